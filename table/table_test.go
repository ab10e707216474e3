package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinition_Validate(t *testing.T) {
	valid := Definition{Name: "content", PartitionKey: "pk", SortKey: "sk"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		def  Definition
	}{
		{"missing name", Definition{PartitionKey: "pk", SortKey: "sk"}},
		{"missing partition key", Definition{Name: "content", SortKey: "sk"}},
		{"missing sort key", Definition{Name: "content", PartitionKey: "pk"}},
		{"same key attribute", Definition{Name: "content", PartitionKey: "pk", SortKey: "pk"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.def.Validate())
		})
	}
}

func TestDefinition_TTLAttribute(t *testing.T) {
	def := Definition{Name: "content", PartitionKey: "pk", SortKey: "sk"}
	assert.Equal(t, "_ttl", def.TTLAttribute())

	def.TimeToLive = "expires_at"
	assert.Equal(t, "expires_at", def.TTLAttribute())
}

const schemaYAML = `
tables:
  - name: content
    partitionKey: pk
    sortKey: sk
  - name: events
    partitionKey: stream
    sortKey: seq
    timeToLive: expires_at
`

func TestParse(t *testing.T) {
	schema, err := Parse([]byte(schemaYAML))
	require.NoError(t, err)
	require.Len(t, schema.Tables, 2)

	content, err := schema.Table("content")
	require.NoError(t, err)
	assert.Equal(t, "pk", content.PartitionKey)
	assert.Equal(t, "_ttl", content.TTLAttribute())

	events, err := schema.Table("events")
	require.NoError(t, err)
	assert.Equal(t, "seq", events.SortKey)
	assert.Equal(t, "expires_at", events.TTLAttribute())

	_, err = schema.Table("missing")
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Parse([]byte("tables: ["))
		assert.Error(t, err)
	})

	t.Run("invalid table", func(t *testing.T) {
		_, err := Parse([]byte("tables:\n  - name: content\n"))
		assert.Error(t, err)
	})

	t.Run("duplicate table", func(t *testing.T) {
		_, err := Parse([]byte(`
tables:
  - name: content
    partitionKey: pk
    sortKey: sk
  - name: content
    partitionKey: pk
    sortKey: sk
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate table")
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(schemaYAML), 0o644))

	schema, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, schema.Tables, 2)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
