// partstore is a command line companion for partitioned-content tables.
//
// # Commands
//
//	partstore check    Verify AWS credentials and table configuration
//	partstore get      Fetch a single record by partition and sort key
//	partstore query    List records in a partition
//	partstore seed     Write sample records into a local database
//
// Configuration is read from the environment (a .env file is honored when
// present) and from a partstore.yaml schema file discovered by walking up
// from the working directory.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	// Remove the subcommand from args so flag parsing works
	os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

	var err error
	switch cmd {
	case "check":
		err = runCheck()
	case "get":
		err = runGet()
	case "query", "list":
		err = runQuery()
	case "seed":
		err = runSeed()
	case "help", "-h", "--help":
		printUsage()
		return
	case "version", "-v", "--version":
		fmt.Printf("partstore version %s\n", version)
		return
	default:
		fmt.Fprintf(os.Stderr, "partstore: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "partstore %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`partstore - partitioned content table tools

Usage:
  partstore <command> [flags]

Commands:
  check   Verify AWS credentials and table configuration
  get     Fetch a single record by partition and sort key
  query   List records in a partition
  seed    Write sample records into a local database

Examples:
  # Check credentials and the configured table:
  partstore check

  # List everything under a partition:
  partstore query --partition 'content#note'

  # Work against a local database instead of DynamoDB:
  partstore query --db ./data --partition 'content#note'

  # Seed a local database with sample records:
  partstore seed --db ./data --count 25

Run 'partstore <command> --help' for more information on a command.`)
}
