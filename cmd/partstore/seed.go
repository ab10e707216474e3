package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/okvist/partstore"
	"github.com/okvist/partstore/store/badgerstore"
)

// note is the sample record type used by seed.
type note struct {
	Title string   `dynamodbav:"title"`
	Body  string   `dynamodbav:"body"`
	Tags  []string `dynamodbav:"tags"`
}

// runSeed fills a local database with sample records so query and get have
// something to work with.
func runSeed() error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	var (
		dbPath = fs.String("db", "", "local database directory (required)")
		count  = fs.Int("count", 25, "number of records to write")
		author = fs.String("author", "sample", "partition id for the records")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("--db is required")
	}

	s, err := badgerstore.Open(*dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	repo, err := partstore.New[note](s, partstore.Config{
		PartitionPrefix: "content",
		PartitionName:   "notebook",
		ContentType:     "note",
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	contents := make([]partstore.PartitionedContent[note], 0, *count)
	for i := 0; i < *count; i++ {
		id := uuid.NewString()
		contents = append(contents, partstore.PartitionedContent[note]{
			PartitionIDs: []string{*author},
			ContentIDs:   []string{now.Format("2006-01-02"), id},
			Item: note{
				Title: fmt.Sprintf("note %d", i+1),
				Body:  fmt.Sprintf("sample body written at %s", now.Format(time.RFC3339)),
				Tags:  []string{"sample", fmt.Sprintf("batch-%d", i/5+1)},
			},
		})
	}
	if err := repo.PutBatch(context.Background(), contents); err != nil {
		return err
	}
	fmt.Printf("wrote %d records under partition content#notebook#%s\n", *count, *author)
	return nil
}
