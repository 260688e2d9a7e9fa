// Package sink defines the downstream destination for normalized
// population projection records and provides SQLite and in-memory
// implementations.
package sink

import (
	"context"
	"time"

	"github.com/censtats/popproj-connector/pkg/state"
)

// Record is one row delivered to the destination. The natural key is
// (Year, Race, Sex, Age); LastUpdated is the run timestamp attached
// uniformly to every record of a sync run.
type Record struct {
	Year        int
	Race        string
	Sex         string
	Age         int
	TotalPop    int
	LastUpdated time.Time
}

// Sink receives upserted records and per-run checkpoints.
type Sink interface {
	// Upsert inserts or replaces the record keyed on (year, race, sex, age).
	Upsert(ctx context.Context, rec Record) error

	// Checkpoint persists the run's resumption state in the destination.
	Checkpoint(ctx context.Context, s state.SyncState) error

	// Close releases destination resources.
	Close() error
}

// TableSchema declares the destination table the connector delivers.
type TableSchema struct {
	Table      string
	PrimaryKey []string
	Columns    []ColumnSchema
}

// ColumnSchema is one declared destination column.
type ColumnSchema struct {
	Name string
	Type string
}

// Schema returns the declared destination schema for population projections.
func Schema() TableSchema {
	return TableSchema{
		Table:      "population_projections",
		PrimaryKey: []string{"year", "race", "sex", "age"},
		Columns: []ColumnSchema{
			{Name: "year", Type: "INT"},
			{Name: "race", Type: "STRING"},
			{Name: "sex", Type: "STRING"},
			{Name: "age", Type: "INT"},
			{Name: "total_pop", Type: "INT"},
			{Name: "last_updated", Type: "UTC_DATETIME"},
		},
	}
}
