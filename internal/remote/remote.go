package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"fieldsync/internal/fieldsync"
)

// Database is a remote database backend that can also prepare its schema
// and release its connections.
type Database interface {
	fieldsync.RemoteDatabase

	// EnsureSchema creates the work order table if it does not exist.
	EnsureSchema(ctx context.Context, table string) error

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	Close() error
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkIdentifier rejects table and column names that would need quoting.
func checkIdentifier(name string) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// normalizeRow encodes structured values as JSON text, the way they are
// stored in a json/text column.
func normalizeRow(row fieldsync.Row) (fieldsync.Row, error) {
	out := make(fieldsync.Row, len(row))
	for k, v := range row {
		if err := checkIdentifier(k); err != nil {
			return nil, err
		}
		switch v := v.(type) {
		case nil, string, bool, int, int32, int64, float32, float64, []byte:
			out[k] = v
		case time.Time:
			out[k] = v.UTC()
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encoding column %s: %w", k, err)
			}
			out[k] = string(b)
		}
	}
	return out, nil
}
