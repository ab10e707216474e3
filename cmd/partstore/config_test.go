package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
tables:
  - name: content
    partitionKey: pk
    sortKey: sk
  - name: events
    partitionKey: stream
    sortKey: seq
`

func writeSchema(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), schemaFilename)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEnv_TableDefinition(t *testing.T) {
	path := writeSchema(t, testSchema)

	t.Run("named table", func(t *testing.T) {
		env := Env{Schema: path, Table: "events"}
		def, err := env.tableDefinition()
		require.NoError(t, err)
		assert.Equal(t, "events", def.Name)
		assert.Equal(t, "stream", def.PartitionKey)
	})

	t.Run("unknown table", func(t *testing.T) {
		env := Env{Schema: path, Table: "missing"}
		_, err := env.tableDefinition()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing")
		assert.Contains(t, err.Error(), path)
	})

	t.Run("ambiguous without table name", func(t *testing.T) {
		env := Env{Schema: path}
		_, err := env.tableDefinition()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PARTSTORE_TABLE")
	})

	t.Run("single table fallback", func(t *testing.T) {
		single := writeSchema(t, `
tables:
  - name: content
    partitionKey: pk
    sortKey: sk
`)
		env := Env{Schema: single}
		def, err := env.tableDefinition()
		require.NoError(t, err)
		assert.Equal(t, "content", def.Name)
	})

	t.Run("missing schema file", func(t *testing.T) {
		env := Env{Schema: filepath.Join(t.TempDir(), "nope.yaml")}
		_, err := env.tableDefinition()
		assert.Error(t, err)
	})
}
