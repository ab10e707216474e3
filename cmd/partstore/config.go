package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/okvist/partstore/table"
)

const schemaFilename = "partstore.yaml"

// Env holds connection settings taken from the environment. A .env file in
// the working directory is loaded first when present.
type Env struct {
	Table     string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Schema    string
}

func loadEnv() Env {
	_ = godotenv.Load()
	return Env{
		Table:     os.Getenv("PARTSTORE_TABLE"),
		Region:    os.Getenv("AWS_REGION"),
		Endpoint:  os.Getenv("PARTSTORE_ENDPOINT"),
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Schema:    os.Getenv("PARTSTORE_SCHEMA"),
	}
}

// tableDefinition resolves the table definition for env. The schema file is
// taken from PARTSTORE_SCHEMA or discovered by walking up from the working
// directory.
func (e Env) tableDefinition() (table.Definition, error) {
	path := e.Schema
	if path == "" {
		path = findSchemaFile()
	}
	if path == "" {
		return table.Definition{}, fmt.Errorf("no %s found and PARTSTORE_SCHEMA not set", schemaFilename)
	}
	schema, err := table.Load(path)
	if err != nil {
		return table.Definition{}, err
	}
	if e.Table != "" {
		def, err := schema.Table(e.Table)
		if err != nil {
			return table.Definition{}, fmt.Errorf("%w (schema %s)", err, path)
		}
		return def, nil
	}
	if len(schema.Tables) != 1 {
		return table.Definition{}, fmt.Errorf("%s defines %d tables, set PARTSTORE_TABLE", path, len(schema.Tables))
	}
	return schema.Tables[0], nil
}

// findSchemaFile walks up from the current directory looking for the schema.
func findSchemaFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, schemaFilename)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
