// Package store treats the relational store as an opaque transactional
// document store, per spec.md §6: four primitives — upsert, delete,
// load_all, replace_all — over named tables. internal/alarms and
// internal/topology are the only callers; neither one knows it is SQL
// underneath.
package store

import "context"

// Row is a single durable record: an id plus its JSON-encoded fields.
// Callers marshal/unmarshal their own types; Store only moves bytes.
type Row struct {
	ID   string
	Data []byte
}

// Store is the durable-store contract from spec.md §6.
type Store interface {
	// Upsert writes row into table, inserting or replacing by id.
	Upsert(ctx context.Context, table string, row Row) error
	// Delete removes the row identified by id from table.
	Delete(ctx context.Context, table string, id string) error
	// LoadAll returns every row currently in table.
	LoadAll(ctx context.Context, table string) ([]Row, error)
	// ReplaceAll atomically replaces every row in table with rows.
	ReplaceAll(ctx context.Context, table string, rows []Row) error
	// Close releases any underlying resources.
	Close() error
}

// Table names used by this control-plane (spec.md §6).
const (
	TableAlarms     = "alarms"
	TableAlarmRules = "alarm_rules"
	TableBlackouts  = "blackout_windows"
	TableTopology   = "topology_edges"
)
