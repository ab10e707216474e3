package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/okvist/partstore/store"
	"github.com/okvist/partstore/store/badgerstore"
	"github.com/okvist/partstore/store/dynamostore"
)

// openStore picks the backend: a local badger database when dbPath is set,
// the configured DynamoDB table otherwise.
func openStore(ctx context.Context, env Env, dbPath string) (store.Store, func() error, error) {
	if dbPath != "" {
		s, err := badgerstore.Open(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	def, err := env.tableDefinition()
	if err != nil {
		return nil, nil, err
	}
	client, err := dynamostore.NewClient(ctx, dynamostore.ClientConfig{
		Region:    env.Region,
		Endpoint:  env.Endpoint,
		AccessKey: env.AccessKey,
		SecretKey: env.SecretKey,
	})
	if err != nil {
		return nil, nil, err
	}
	s, err := dynamostore.New(client, def)
	if err != nil {
		return nil, nil, err
	}
	return s, func() error { return nil }, nil
}

func printRecord(rec store.Record) error {
	var attrs map[string]any
	if err := attributevalue.UnmarshalMap(rec.Attrs, &attrs); err != nil {
		return fmt.Errorf("unmarshal attributes: %w", err)
	}
	out := map[string]any{
		"partition":  rec.Key.Partition,
		"sort":       rec.Key.Sort,
		"attributes": attrs,
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runGet() error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	var (
		partition = fs.String("partition", "", "partition key value (required)")
		sort      = fs.String("sort", "", "sort key value (required)")
		dbPath    = fs.String("db", "", "local database directory instead of DynamoDB")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *partition == "" || *sort == "" {
		return fmt.Errorf("--partition and --sort are required")
	}

	ctx := context.Background()
	s, closeStore, err := openStore(ctx, loadEnv(), *dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	rec, found, err := s.Get(ctx, store.Key{Partition: *partition, Sort: *sort}, true)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no record at %s / %s", *partition, *sort)
	}
	return printRecord(rec)
}

func runQuery() error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	var (
		partition = fs.String("partition", "", "partition key value (required)")
		prefix    = fs.String("prefix", "", "sort key prefix")
		limit     = fs.Int("limit", 0, "stop after this many records (0 for all)")
		desc      = fs.Bool("desc", false, "newest sort keys first")
		dbPath    = fs.String("db", "", "local database directory instead of DynamoDB")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *partition == "" {
		return fmt.Errorf("--partition is required")
	}

	ctx := context.Background()
	s, closeStore, err := openStore(ctx, loadEnv(), *dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	spec := store.QuerySpec{
		Partition: *partition,
		Sort:      store.Prefix(*prefix),
		Ascending: !*desc,
	}
	printed := 0
	for {
		page, err := s.Query(ctx, spec)
		if err != nil {
			return err
		}
		for _, rec := range page.Records {
			if err := printRecord(rec); err != nil {
				return err
			}
			printed++
			if *limit > 0 && printed == *limit {
				return nil
			}
		}
		if page.Cursor == nil {
			return nil
		}
		spec.StartAfter = page.Cursor
	}
}
