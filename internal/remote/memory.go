package remote

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"fieldsync/internal/fieldsync"
)

// MemoryDatabase is an in-memory implementation of the remote database.
// Rows keep insertion order; structured values are stored as JSON text.
// This implementation is safe for concurrent use.
type MemoryDatabase struct {
	tables map[string][]fieldsync.Row
	idgen  fieldsync.IDGenerator
	mu     sync.RWMutex
}

// NewMemoryDatabase creates an empty in-memory remote database that assigns
// random UUIDs to inserted rows.
func NewMemoryDatabase() *MemoryDatabase {
	return NewMemoryDatabaseWithIDs(fieldsync.UUIDGenerator{})
}

// NewMemoryDatabaseWithIDs creates an empty in-memory remote database that
// takes the ids of inserted rows from idgen.
func NewMemoryDatabaseWithIDs(idgen fieldsync.IDGenerator) *MemoryDatabase {
	return &MemoryDatabase{tables: make(map[string][]fieldsync.Row), idgen: idgen}
}

func (m *MemoryDatabase) Insert(ctx context.Context, table string, row fieldsync.Row) (string, error) {
	if err := checkIdentifier(table); err != nil {
		return "", err
	}
	stored, err := normalizeRow(row)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, _ := stored["id"].(string)
	if id == "" {
		id = m.idgen.New()
		stored["id"] = id
	}

	for _, existing := range m.tables[table] {
		if existing["id"] == id {
			return "", fieldsync.NewError(fieldsync.KindConflict, "insert "+table, fmt.Errorf("duplicate id %s", id))
		}
	}
	m.tables[table] = append(m.tables[table], stored)
	return id, nil
}

func (m *MemoryDatabase) Update(ctx context.Context, table, id string, patch fieldsync.Row) error {
	normalized, err := normalizeRow(patch)
	if err != nil {
		return err
	}
	delete(normalized, "id")

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.tables[table] {
		if row["id"] == id {
			maps.Copy(row, normalized)
			return nil
		}
	}
	return fieldsync.NewError(fieldsync.KindNotFound, "update "+table, fmt.Errorf("row %s: %w", id, fieldsync.ErrNotFound))
}

func (m *MemoryDatabase) Select(ctx context.Context, table string, filter fieldsync.Row) ([]fieldsync.Row, error) {
	want, err := normalizeRow(filter)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []fieldsync.Row
	for _, row := range m.tables[table] {
		if matches(row, want) {
			out = append(out, maps.Clone(row))
		}
	}
	return out, nil
}

// Rows returns a copy of every row in table.
func (m *MemoryDatabase) Rows(table string) []fieldsync.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]fieldsync.Row, 0, len(m.tables[table]))
	for _, row := range m.tables[table] {
		out = append(out, maps.Clone(row))
	}
	return out
}

func (m *MemoryDatabase) EnsureSchema(ctx context.Context, table string) error {
	return checkIdentifier(table)
}

func (m *MemoryDatabase) Ping(ctx context.Context) error { return nil }

func (m *MemoryDatabase) Close() error { return nil }

func matches(row, filter fieldsync.Row) bool {
	for k, v := range filter {
		if fmt.Sprint(row[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

var _ Database = (*MemoryDatabase)(nil)
