package remote

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"fieldsync/internal/fieldsync"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDatabase writes work orders through gorm, either to PostgreSQL
// (the hosted backend) or to a SQLite file for self-hosted setups.
type GormDatabase struct {
	db      *gorm.DB
	dialect string
}

// NewPostgresDatabase connects to PostgreSQL using dsn.
func NewPostgresDatabase(dsn string) (*GormDatabase, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres remote database requires a dsn")
	}
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, classify("connect postgres", err)
	}
	return &GormDatabase{db: db, dialect: "postgres"}, nil
}

// NewSQLiteDatabase opens (creating if needed) the SQLite file at path.
func NewSQLiteDatabase(path string) (*GormDatabase, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite remote database requires a path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating remote database directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, classify("open sqlite", err)
	}
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("getting sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &GormDatabase{db: db, dialect: "sqlite"}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
}

// EnsureSchema creates the work order table and its local_id index.
func (g *GormDatabase) EnsureSchema(ctx context.Context, table string) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}

	fieldsType, timeType := "TEXT", "DATETIME"
	if g.dialect == "postgres" {
		fieldsType, timeType = "JSONB", "TIMESTAMPTZ"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			local_id TEXT NOT NULL DEFAULT '',
			fields %s NOT NULL,
			created_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, table, fieldsType, timeType, timeType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_local_id ON %s (local_id)`, table, table),
	}
	for _, stmt := range stmts {
		if err := g.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return classify("ensure schema", err)
		}
	}
	return nil
}

// Insert assigns a UUID when row has no id.
func (g *GormDatabase) Insert(ctx context.Context, table string, row fieldsync.Row) (string, error) {
	if err := checkIdentifier(table); err != nil {
		return "", err
	}
	values, err := normalizeRow(row)
	if err != nil {
		return "", err
	}

	id, _ := values["id"].(string)
	if id == "" {
		id = uuid.NewString()
		values["id"] = id
	}

	if err := g.db.WithContext(ctx).Table(table).Create(map[string]any(values)).Error; err != nil {
		return "", classify("insert "+table, err)
	}
	return id, nil
}

func (g *GormDatabase) Update(ctx context.Context, table, id string, patch fieldsync.Row) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}
	values, err := normalizeRow(patch)
	if err != nil {
		return err
	}
	delete(values, "id")

	res := g.db.WithContext(ctx).Table(table).Where("id = ?", id).Updates(map[string]any(values))
	if res.Error != nil {
		return classify("update "+table, res.Error)
	}
	if res.RowsAffected == 0 {
		return fieldsync.NewError(fieldsync.KindNotFound, "update "+table, fmt.Errorf("row %s: %w", id, fieldsync.ErrNotFound))
	}
	return nil
}

func (g *GormDatabase) Select(ctx context.Context, table string, filter fieldsync.Row) ([]fieldsync.Row, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	values, err := normalizeRow(filter)
	if err != nil {
		return nil, err
	}

	q := g.db.WithContext(ctx).Table(table)
	for _, col := range slices.Sorted(maps.Keys(values)) {
		q = q.Where(col+" = ?", values[col])
	}

	var rows []map[string]any
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, classify("select "+table, err)
	}

	out := make([]fieldsync.Row, len(rows))
	for i, r := range rows {
		out[i] = fieldsync.Row(r)
	}
	return out, nil
}

func (g *GormDatabase) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("getting sql handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

func (g *GormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("getting sql handle: %w", err)
	}
	return sqlDB.Close()
}

var _ Database = (*GormDatabase)(nil)
