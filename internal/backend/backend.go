// Package backend defines the narrow remote-data-source capability the core
// depends on. The session pipeline and repositories never assume a concrete
// protocol; anything that can read, insert, and update keyed rows satisfies
// DataSource.
package backend

import (
	"context"
	"errors"
)

// Row is a single remote record.
type Row map[string]any

// Filter selects rows by exact column match. Keys must belong to the
// resource's column whitelist.
type Filter map[string]any

var (
	// ErrUnknownResource indicates a resource name outside the whitelist.
	ErrUnknownResource = errors.New("backend: unknown resource")

	// ErrNoRows indicates an Update matched nothing.
	ErrNoRows = errors.New("backend: no rows affected")
)

// DataSource is an opaque remote backend.
type DataSource interface {
	// Read returns the rows of resource matching filter. A nil filter
	// returns all rows (bounded by the resource's default order/limit).
	Read(ctx context.Context, resource string, filter Filter) ([]Row, error)

	// Insert stores rows, applying the resource's upsert semantics so a
	// retried insert of the same logical rows is safe. Returns the first
	// stored row, or nil when the conflict policy skipped every row.
	Insert(ctx context.Context, resource string, rows []Row) (Row, error)

	// Update patches the row identified by id and returns the stored row.
	Update(ctx context.Context, resource string, id any, patch Row) (Row, error)
}
