package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"fieldsync/internal/database/migrations"
	"fieldsync/internal/fieldsync"
	"fieldsync/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and migrates it to the latest
// schema, reporting applied migrations through log (which may be nil).
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string, log fieldsync.Logger) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if _, err := migrations.Apply(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{
		db:   db,
		path: path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:   db,
		path: "",
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// Photo operations

const photoColumns = `id, owner_id, field_type, idx, local_path, remote_url, uploaded,
	latitude, longitude, utm_x, utm_y, utm_zone, content_type, size, checksum,
	encrypted, retries, last_error, last_retry_at, captured_at, uploaded_at`

func scanPhoto(row scanner) (*model.PhotoRecord, error) {
	var (
		p                    model.PhotoRecord
		lat, lon, utmX, utmY sql.NullFloat64
		zone                 sql.NullString
		lastRetry, uploaded  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.FieldType, &p.Index, &p.LocalPath, &p.RemoteURL, &p.Uploaded,
		&lat, &lon, &utmX, &utmY, &zone, &p.ContentType, &p.Size, &p.Checksum,
		&p.Encrypted, &p.Retries, &p.LastError, &lastRetry, &p.CapturedAt, &uploaded)
	if err != nil {
		return nil, err
	}

	p.Latitude = floatPtr(lat)
	p.Longitude = floatPtr(lon)
	p.UTMX = floatPtr(utmX)
	p.UTMY = floatPtr(utmY)
	if zone.Valid {
		p.UTMZone = &zone.String
	}
	p.LastRetryAt = timePtr(lastRetry)
	p.UploadedAt = timePtr(uploaded)
	return &p, nil
}

func (s *SQLiteDatabase) queryPhotos(ctx context.Context, query string, args ...any) ([]*model.PhotoRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PhotoRecord
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) InsertPhoto(ctx context.Context, p *model.PhotoRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO photos (`+photoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.FieldType, p.Index, p.LocalPath, p.RemoteURL, p.Uploaded,
		nullFloat(p.Latitude), nullFloat(p.Longitude), nullFloat(p.UTMX), nullFloat(p.UTMY), nullString(p.UTMZone),
		p.ContentType, p.Size, p.Checksum, p.Encrypted, p.Retries, p.LastError,
		nullTime(p.LastRetryAt), p.CapturedAt.UTC(), nullTime(p.UploadedAt))
	if err != nil {
		return fmt.Errorf("inserting photo: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindPhotoByID(ctx context.Context, id string) (*model.PhotoRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = ?`, id)
	p, err := scanPhoto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding photo by id: %w", err)
	}
	return p, nil
}

func (s *SQLiteDatabase) FindPhotosByIDs(ctx context.Context, ids []string) ([]*model.PhotoRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	photos, err := s.queryPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("finding photos by ids: %w", err)
	}
	return photos, nil
}

func (s *SQLiteDatabase) FindPhotosByOwner(ctx context.Context, ownerID string) ([]*model.PhotoRecord, error) {
	photos, err := s.queryPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE owner_id = ? ORDER BY field_type, idx, captured_at, id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("finding photos by owner: %w", err)
	}
	return photos, nil
}

func (s *SQLiteDatabase) FindPhotosBySlot(ctx context.Context, fieldTypes []string, index int) ([]*model.PhotoRecord, error) {
	if len(fieldTypes) == 0 {
		return nil, nil
	}
	args := append(stringArgs(fieldTypes), index)
	photos, err := s.queryPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE field_type IN (`+placeholders(len(fieldTypes))+`) AND idx = ? ORDER BY captured_at, id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("finding photos by slot: %w", err)
	}
	return photos, nil
}

func (s *SQLiteDatabase) FindUnsyncedPhotos(ctx context.Context, ownerID string) ([]*model.PhotoRecord, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE (uploaded = 0 OR remote_url = '')`
	var args []any
	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY captured_at, id`

	photos, err := s.queryPhotos(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding unsynced photos: %w", err)
	}
	return photos, nil
}

func (s *SQLiteDatabase) ReparentPhotos(ctx context.Context, oldOwnerID, newOwnerID string) (int, error) {
	// The id prefix only claims records that no other work order owns:
	// obra_2_antes_0_... also starts with obra_.
	res, err := s.db.ExecContext(ctx, `
		UPDATE photos SET owner_id = ?
		WHERE owner_id <> ? AND (
			owner_id = ?
			OR (instr(id, ?) = 1
				AND (owner_id = '' OR instr(id, owner_id || '_') <> 1)
				AND owner_id NOT IN (
					SELECT id FROM work_orders WHERE id <> ?
					UNION
					SELECT server_id FROM work_orders WHERE server_id <> '' AND id <> ?)))`,
		newOwnerID, newOwnerID, oldOwnerID, oldOwnerID+"_", oldOwnerID, oldOwnerID)
	if err != nil {
		return 0, fmt.Errorf("reparenting photos: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting reparented photos: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteDatabase) MarkPhotoUploaded(ctx context.Context, id, url string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE photos SET uploaded = 1, remote_url = ?, uploaded_at = ?, last_error = ''
		WHERE id = ?`, url, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("marking photo uploaded: %w", err)
	}
	return requireRow(res, "photo", id)
}

func (s *SQLiteDatabase) RecordPhotoFailure(ctx context.Context, id, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE photos SET retries = retries + 1, last_error = ?, last_retry_at = ?
		WHERE id = ?`, reason, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("recording photo failure: %w", err)
	}
	return requireRow(res, "photo", id)
}

func (s *SQLiteDatabase) ResetZombiePhotos(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE photos SET uploaded = 0 WHERE uploaded = 1 AND remote_url = ''`)
	if err != nil {
		return 0, fmt.Errorf("resetting zombie photos: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting zombie photos: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteDatabase) ClearPhotoContent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE photos SET local_path = '' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clearing photo content: %w", err)
	}
	return requireRow(res, "photo", id)
}

func (s *SQLiteDatabase) DeletePhoto(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting photo: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) PhotoStats(ctx context.Context) (*model.StorageStats, error) {
	var stats model.StorageStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(size), 0),
			COALESCE(SUM(CASE WHEN uploaded = 1 AND remote_url <> '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN uploaded = 1 AND remote_url <> '' THEN size ELSE 0 END), 0)
		FROM photos`).Scan(&stats.TotalPhotos, &stats.TotalBytes, &stats.UploadedPhotos, &stats.UploadedBytes)
	if err != nil {
		return nil, fmt.Errorf("computing photo stats: %w", err)
	}
	stats.PendingPhotos = stats.TotalPhotos - stats.UploadedPhotos
	stats.PendingBytes = stats.TotalBytes - stats.UploadedBytes
	return &stats, nil
}

// Work order operations

const workOrderColumns = `id, server_id, status, fields, error_message, missing_photos,
	sync_attempts, created_at, updated_at, last_sync_at`

func scanWorkOrder(row scanner) (*model.PendingWorkOrder, error) {
	var (
		o               model.PendingWorkOrder
		status          string
		fields, missing string
		lastSync        sql.NullTime
	)
	err := row.Scan(&o.ID, &o.ServerID, &status, &fields, &o.ErrorMessage, &missing,
		&o.SyncAttempts, &o.CreatedAt, &o.UpdatedAt, &lastSync)
	if err != nil {
		return nil, err
	}

	o.Status = model.Status(status)
	o.LastSyncAt = timePtr(lastSync)
	if err := json.Unmarshal([]byte(fields), &o.Fields); err != nil {
		return nil, fmt.Errorf("decoding fields of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal([]byte(missing), &o.MissingPhotos); err != nil {
		return nil, fmt.Errorf("decoding missing photos of %s: %w", o.ID, err)
	}
	return &o, nil
}

func findWorkOrder(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, where string, arg any) (*model.PendingWorkOrder, error) {
	o, err := scanWorkOrder(q.QueryRowContext(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return o, nil
}

func (s *SQLiteDatabase) UpsertWorkOrder(ctx context.Context, o *model.PendingWorkOrder) (*model.PendingWorkOrder, error) {
	fields, err := json.Marshal(o.Fields)
	if err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}
	missing, err := encodeIDs(o.MissingPhotos)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// An assigned server id and the creation time survive every later save.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO work_orders (id, server_id, status, fields, missing_photos, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			fields = excluded.fields,
			updated_at = excluded.updated_at,
			server_id = CASE WHEN work_orders.server_id <> '' THEN work_orders.server_id ELSE excluded.server_id END`,
		o.ID, o.ServerID, string(o.Status), string(fields), missing, o.CreatedAt.UTC(), o.UpdatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("upserting work order: %w", err)
	}

	stored, err := findWorkOrder(ctx, tx, "id = ?", o.ID)
	if err != nil {
		return nil, fmt.Errorf("reading upserted work order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return stored, nil
}

func (s *SQLiteDatabase) FindWorkOrder(ctx context.Context, id string) (*model.PendingWorkOrder, error) {
	o, err := findWorkOrder(ctx, s.db, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("finding work order: %w", err)
	}
	return o, nil
}

func (s *SQLiteDatabase) FindWorkOrderByServerID(ctx context.Context, serverID string) (*model.PendingWorkOrder, error) {
	if serverID == "" {
		return nil, nil
	}
	o, err := findWorkOrder(ctx, s.db, "server_id = ? ORDER BY created_at LIMIT 1", serverID)
	if err != nil {
		return nil, fmt.Errorf("finding work order by server id: %w", err)
	}
	return o, nil
}

func (s *SQLiteDatabase) ListWorkOrders(ctx context.Context, statuses ...model.Status) ([]*model.PendingWorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing work orders: %w", err)
	}
	defer rows.Close()

	var out []*model.PendingWorkOrder
	for rows.Next() {
		o, err := scanWorkOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning work order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing work orders: %w", err)
	}
	return out, nil
}

func (s *SQLiteDatabase) TransitionWorkOrder(ctx context.Context, id string, t fieldsync.Transition) (*model.PendingWorkOrder, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := findWorkOrder(ctx, tx, "id = ?", id)
	if err != nil {
		return nil, false, fmt.Errorf("reading work order: %w", err)
	}
	if current == nil {
		return nil, false, nil
	}

	matched := slices.Contains(t.From, current.Status)
	var (
		sets []string
		args []any
	)
	if matched {
		sets = append(sets, "status = ?", "updated_at = ?")
		args = append(args, string(t.To), t.At.UTC())
		if t.IncrementAttempts {
			sets = append(sets, "sync_attempts = sync_attempts + 1")
		}
		if t.LastSyncAt != nil {
			sets = append(sets, "last_sync_at = ?")
			args = append(args, t.LastSyncAt.UTC())
		}
	}
	if matched || t.Sticky {
		if t.ServerID != "" {
			sets = append(sets, "server_id = ?")
			args = append(args, t.ServerID)
		}
		if t.ErrorMessage != nil {
			sets = append(sets, "error_message = ?")
			args = append(args, *t.ErrorMessage)
		}
	}

	if len(sets) > 0 {
		args = append(args, id)
		if _, err := tx.ExecContext(ctx, `UPDATE work_orders SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
			return nil, false, fmt.Errorf("updating work order: %w", err)
		}
	}

	stored, err := findWorkOrder(ctx, tx, "id = ?", id)
	if err != nil {
		return nil, false, fmt.Errorf("reading work order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing transaction: %w", err)
	}
	return stored, matched, nil
}

func (s *SQLiteDatabase) UpdateWorkOrderFields(ctx context.Context, id string, fields model.Fields, at time.Time) error {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE work_orders SET fields = ?, updated_at = ? WHERE id = ?`,
		string(encoded), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("updating work order fields: %w", err)
	}
	return requireRow(res, "work order", id)
}

func (s *SQLiteDatabase) SetMissingPhotos(ctx context.Context, id string, ids []string) error {
	missing, err := encodeIDs(ids)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE work_orders SET missing_photos = ? WHERE id = ?`, missing, id)
	if err != nil {
		return fmt.Errorf("setting missing photos: %w", err)
	}
	return requireRow(res, "work order", id)
}

func (s *SQLiteDatabase) DemoteStaleSyncing(ctx context.Context, cutoff, at time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, updated_at FROM work_orders WHERE status = 'syncing'`)
	if err != nil {
		return 0, fmt.Errorf("finding syncing work orders: %w", err)
	}
	// Timestamps are compared in Go; the stored text form does not sort reliably across offsets.
	var stale []string
	for rows.Next() {
		var (
			id        string
			updatedAt time.Time
		)
		if err := rows.Scan(&id, &updatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning syncing work order: %w", err)
		}
		if updatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("closing rows: %w", err)
	}

	for _, id := range stale {
		_, err := tx.ExecContext(ctx, `
			UPDATE work_orders SET status = 'pending', updated_at = ?,
				error_message = 'sync interrupted'
			WHERE id = ? AND status = 'syncing'`, at.UTC(), id)
		if err != nil {
			return 0, fmt.Errorf("demoting work order %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return len(stale), nil
}

func (s *SQLiteDatabase) DeleteWorkOrder(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM work_orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting work order: %w", err)
	}
	return nil
}

// Sync run tracking

func (s *SQLiteDatabase) CreateSyncRun(ctx context.Context, trigger string, at time.Time) (*model.SyncRun, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (trigger_name, started_at, status) VALUES (?, ?, 'running')`,
		trigger, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading sync run id: %w", err)
	}
	return &model.SyncRun{ID: id, Trigger: trigger, StartedAt: at.UTC(), Status: "running"}, nil
}

func (s *SQLiteDatabase) FinishSyncRun(ctx context.Context, id int64, success, failed int, status string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET finished_at = ?, success = ?, failed = ?, status = ?
		WHERE id = ?`, at.UTC(), success, failed, status, id)
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListSyncRuns(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_name, started_at, finished_at, success, failed, status
		FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var out []*model.SyncRun
	for rows.Next() {
		var (
			run      model.SyncRun
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Trigger, &run.StartedAt, &finished, &run.Success, &run.Failed, &run.Status); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		run.FinishedAt = timePtr(finished)
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return out, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Schema reports the metadata schema version of the open database.
func (s *SQLiteDatabase) Schema() (migrations.Schema, error) {
	return migrations.Inspect(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(ctx context.Context, destPath string) error {
	_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// helpers

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, fieldsync.ErrNotFound)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encoding ids: %w", err)
	}
	return string(b), nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// Compile-time check that SQLiteDatabase implements fieldsync.Database interface
var _ fieldsync.Database = (*SQLiteDatabase)(nil)
