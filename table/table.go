// Package table describes the physical layout of a partition/sort-key table:
// the table name and the attribute names the store implementations read and
// write keys under. Definitions are plain data and can be declared in code or
// loaded from a YAML schema file.
package table

import "fmt"

// DefaultTTLAttribute is the reserved attribute holding the expiry epoch.
const DefaultTTLAttribute = "_ttl"

// Definition describes one table.
type Definition struct {
	Name         string `yaml:"name"`
	PartitionKey string `yaml:"partitionKey"`
	SortKey      string `yaml:"sortKey"`
	// TimeToLive is the attribute the provider's TTL sweeper watches.
	// Empty means DefaultTTLAttribute.
	TimeToLive string `yaml:"timeToLive,omitempty"`
}

// Validate checks the definition is usable.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if d.PartitionKey == "" {
		return fmt.Errorf("table %s: partition key attribute is required", d.Name)
	}
	if d.SortKey == "" {
		return fmt.Errorf("table %s: sort key attribute is required", d.Name)
	}
	if d.PartitionKey == d.SortKey {
		return fmt.Errorf("table %s: partition and sort key attributes must differ", d.Name)
	}
	return nil
}

// TTLAttribute returns the configured TTL attribute name, defaulted.
func (d Definition) TTLAttribute() string {
	if d.TimeToLive == "" {
		return DefaultTTLAttribute
	}
	return d.TimeToLive
}
