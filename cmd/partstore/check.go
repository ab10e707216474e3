package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// runCheck verifies that credentials resolve and the schema file parses.
func runCheck() error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	timeout := fs.Duration("timeout", 10*time.Second, "credential check timeout")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	env := loadEnv()
	def, err := env.tableDefinition()
	if err != nil {
		return err
	}
	fmt.Printf("table:          %s (pk=%s sk=%s ttl=%s)\n",
		def.Name, def.PartitionKey, def.SortKey, def.TTLAttribute())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var opts []func(*config.LoadOptions) error
	if env.Region != "" {
		opts = append(opts, config.WithRegion(env.Region))
	}
	if env.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(env.AccessKey, env.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("get caller identity: %w", err)
	}
	fmt.Printf("account:        %s\n", aws.ToString(out.Account))
	fmt.Printf("caller:         %s\n", aws.ToString(out.Arn))
	fmt.Printf("region:         %s\n", cfg.Region)
	if env.Endpoint != "" {
		fmt.Printf("endpoint:       %s\n", env.Endpoint)
	}
	return nil
}
