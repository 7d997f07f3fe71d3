package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"fieldsync/internal/fieldsync"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// ErrUnversioned is reported for a metadata database that was never migrated.
var ErrUnversioned = errors.New("metadata database has no schema version")

// Schema is the state of a metadata database relative to the embedded
// migrations.
type Schema struct {
	Version uint // 0 when never migrated
	Latest  uint
	Dirty   bool
}

// Pending returns how many migrations still have to run.
func (s Schema) Pending() uint {
	if s.Version >= s.Latest {
		return 0
	}
	return s.Latest - s.Version
}

// Err explains why the photo and work order tables cannot be used as they
// are, or returns nil when the schema is current.
func (s Schema) Err() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("metadata schema %d is dirty: an earlier migration failed halfway", s.Version)
	case s.Version == 0:
		return ErrUnversioned
	case s.Version < s.Latest:
		return fmt.Errorf("metadata schema %d is %d migration(s) behind %d", s.Version, s.Pending(), s.Latest)
	case s.Version > s.Latest:
		return fmt.Errorf("metadata schema %d is newer than this binary supports (%d)", s.Version, s.Latest)
	}
	return nil
}

// Inspect reads the schema version of db without changing it.
func Inspect(db *sql.DB) (Schema, error) {
	m, err := newMigrate(db, nil)
	if err != nil {
		return Schema{}, err
	}
	// Closing m would close db, which belongs to the caller.
	return inspect(m)
}

// Apply migrates db to the latest schema and reports each applied step
// through log. Applying a current schema is a no-op. Returns the resulting
// schema.
func Apply(db *sql.DB, log fieldsync.Logger) (Schema, error) {
	if log == nil {
		log = fieldsync.NewNopLogger()
	}
	m, err := newMigrate(db, log)
	if err != nil {
		return Schema{}, err
	}

	before, err := inspect(m)
	if err != nil {
		return before, err
	}
	if before.Dirty {
		return before, before.Err()
	}
	if before.Pending() == 0 {
		return before, nil
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return before, fmt.Errorf("migrating metadata schema from %d: %w", before.Version, err)
	}

	after, err := inspect(m)
	if err != nil {
		return after, err
	}
	log.Info("metadata schema migrated", "from", before.Version, "to", after.Version)
	return after, nil
}

func inspect(m *migrate.Migrate) (Schema, error) {
	latest, err := latestVersion()
	if err != nil {
		return Schema{}, err
	}

	s := Schema{Latest: latest}
	s.Version, s.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return s, fmt.Errorf("reading metadata schema version: %w", err)
	}
	return s, nil
}

func newMigrate(db *sql.DB, log fieldsync.Logger) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing migrations: %w", err)
	}
	if log != nil {
		m.Log = stepLogger{log: log}
	}
	return m, nil
}

// latestVersion walks the embedded files to the highest version.
func latestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("opening embedded migrations: %w", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading first migration: %w", err)
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			return version, nil
		}
		version = next
	}
}

// stepLogger forwards golang-migrate progress lines to a fieldsync.Logger.
type stepLogger struct {
	log fieldsync.Logger
}

var _ migrate.Logger = stepLogger{}

func (l stepLogger) Printf(format string, v ...any) {
	l.log.Debug("metadata migration step", "step", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l stepLogger) Verbose() bool { return false }
