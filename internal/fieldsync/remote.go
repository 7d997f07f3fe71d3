package fieldsync

import "context"

// Row is one remote database row keyed by column name.
type Row map[string]any

// RemoteDatabase is the client for the remote database work orders are
// written to. Errors are classified with *Error where the driver allows it.
type RemoteDatabase interface {
	// Insert writes row into table and returns the id the database assigned.
	Insert(ctx context.Context, table string, row Row) (string, error)

	// Update applies patch to the row with the given id. Returns an error of
	// KindNotFound when no row matches.
	Update(ctx context.Context, table, id string, patch Row) error

	// Select returns the rows of table whose columns equal every filter value.
	Select(ctx context.Context, table string, filter Row) ([]Row, error)
}
