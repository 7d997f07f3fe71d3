package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/content"
	"fieldsync/internal/database"
	"fieldsync/internal/encryption"
	"fieldsync/internal/fieldsync"
	"fieldsync/internal/fs"
	"fieldsync/internal/imaging"
	"fieldsync/internal/model"
	"fieldsync/internal/remote"
	"fieldsync/internal/vault"
)

// FieldSyncApp is the application layer between the CLI (or HTTP facade)
// and the fieldsync services. It constructs all dependencies from config,
// exposes high-level operations that accept raw paths and ids, and releases
// resources on Close.
type FieldSyncApp struct {
	cfg       *config.Config
	db        fieldsync.Database
	content   fieldsync.ContentStore
	storage   fieldsync.RemoteStorage
	remote    remote.Database
	network   fieldsync.Network
	encryptor fieldsync.Encryptor
	objects   *fieldsync.ObjectStore
	orders    *fieldsync.WorkOrderStore
	engine    *fieldsync.Engine
	logger    *slog.Logger
	logOut    io.Writer
	op        *Operation
	logFile   *os.File
}

// NewFieldSyncApp creates a fully wired FieldSyncApp from the given config.
// operation identifies the command being run (e.g. "SyncAll", "Serve").
// The caller must call Close when done.
func NewFieldSyncApp(ctx context.Context, cfg *config.Config, operation string) (*FieldSyncApp, error) {
	cfg.ApplyEnv(os.Getenv)

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	a := &FieldSyncApp{
		cfg:     cfg,
		logger:  logger,
		logOut:  logWriter(logFile),
		op:      NewOperation(operation, opID),
		logFile: logFile,
	}
	if err := a.wire(ctx, log); err != nil {
		a.closeResources()
		return nil, err
	}

	// Orders left in syncing by a crashed run are not picked up by SyncAll otherwise.
	if _, err := a.orders.RecoverStaleSyncing(ctx, cfg.Sync.StaleAfter.Duration); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("recovering stale syncs: %w", err)
	}

	logger.Debug("app started", "operation", operation, "device_id", cfg.DeviceID)
	return a, nil
}

func (a *FieldSyncApp) wire(ctx context.Context, log fieldsync.Logger) error {
	cfg := a.cfg

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID, log)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db

	cs, err := content.NewContentStoreFromConfig(cfg.Content)
	if err != nil {
		return fmt.Errorf("creating content store: %w", err)
	}
	a.content = cs

	storage, err := vault.NewVaultFromConfig(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating remote storage: %w", err)
	}
	a.storage = storage

	rdb, err := remote.NewDatabaseFromConfig(cfg.Remote)
	if err != nil {
		return fmt.Errorf("creating remote database: %w", err)
	}
	a.remote = rdb

	table := cfg.Remote.Table
	if table == "" {
		table = fieldsync.DefaultRemoteTable
	}
	// The remote may be unreachable at startup.
	if err := rdb.EnsureSchema(ctx, table); err != nil {
		log.Warn("remote schema not verified", "table", table, "error", err)
	}

	network, err := connectivity.NewNetworkFromConfig(cfg.Connectivity)
	if err != nil {
		return fmt.Errorf("creating network checker: %w", err)
	}
	a.network = network

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	clock := fieldsync.RealClock{}
	idgen := fieldsync.UUIDGenerator{}

	a.objects = fieldsync.NewObjectStore(db, cs, log, clock)
	if cfg.Capture.Compress {
		a.objects.WithCompressor(imaging.NewJPEGCompressor(cfg.Capture.MaxDimension, cfg.Capture.JPEGQuality))
	}
	if enc != nil {
		var dc fieldsync.DecryptionContext
		if pass := os.Getenv(config.EnvPassphrase); pass != "" && enc.IsConfigured() {
			dc, err = enc.Unlock(pass)
			if err != nil {
				return fmt.Errorf("unlocking private key: %w", err)
			}
		}
		a.objects.WithEncryption(enc, dc)
	}

	a.orders = fieldsync.NewWorkOrderStore(db, a.objects, rdb, table, log, clock, idgen)
	a.engine = fieldsync.NewEngine(db, a.objects, a.orders, storage, rdb, network, log, clock, idgen, fieldsync.EngineOptions{
		Table:             table,
		UploadConcurrency: cfg.Sync.UploadConcurrency,
		Interval:          cfg.Sync.Interval.Duration,
		PollInterval:      cfg.Sync.PollInterval.Duration,
		ReconnectDelay:    cfg.Sync.ReconnectDelay.Duration,
		StaleAfter:        cfg.Sync.StaleAfter.Duration,
		DeviceID:          cfg.DeviceID,
	})
	return nil
}

// Objects returns the local object store.
func (a *FieldSyncApp) Objects() *fieldsync.ObjectStore { return a.objects }

// Orders returns the pending work-order store.
func (a *FieldSyncApp) Orders() *fieldsync.WorkOrderStore { return a.orders }

// Engine returns the synchronization engine.
func (a *FieldSyncApp) Engine() *fieldsync.Engine { return a.engine }

// Logger returns the structured logger of this run.
func (a *FieldSyncApp) Logger() *slog.Logger { return a.logger }

// ServiceLogger returns the app logger in the form the fieldsync services take.
func (a *FieldSyncApp) ServiceLogger() fieldsync.Logger { return &slogAdapter{l: a.logger} }

// LogWriter returns the writer the log handler writes to, for access logs.
func (a *FieldSyncApp) LogWriter() io.Writer { return a.logOut }

// Config returns the config the app was built from.
func (a *FieldSyncApp) Config() *config.Config { return a.cfg }

// Unlock decrypts the private key so encrypted captures can be read back.
func (a *FieldSyncApp) Unlock(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is not enabled")
	}
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	a.objects.WithEncryption(a.encryptor, dc)
	return nil
}

// CapturePhoto stores the file at rawPath as a capture of owner's slot.
func (a *FieldSyncApp) CapturePhoto(ctx context.Context, rawPath, ownerID, fieldType string, index int, lat, lon *float64) (*model.PhotoRecord, error) {
	a.op.Parameters = rawPath

	p, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}
	defer f.Close()

	return a.objects.Put(ctx, fieldsync.CaptureInput{
		Content:   f,
		OwnerID:   ownerID,
		FieldType: fieldType,
		Index:     index,
		Latitude:  lat,
		Longitude: lon,
	})
}

// ImportPhotos stores every capture found under dir for owner. Subdirectories
// name the field type; files directly in dir use defaultFieldType. Indexes
// continue after the photos owner already has in each slot.
// Returns the stored records; on failure the records stored so far are returned
// together with the error.
func (a *FieldSyncApp) ImportPhotos(ctx context.Context, dir, ownerID, defaultFieldType string) ([]*model.PhotoRecord, error) {
	a.op.Parameters = dir

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	captures, err := fs.NewScanner(a.cfg.Import.Ignore, defaultFieldType).Scan(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	existing, err := a.objects.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	next := make(map[string]int)
	for _, rec := range existing {
		if rec.Index+1 > next[rec.FieldType] {
			next[rec.FieldType] = rec.Index + 1
		}
	}

	var stored []*model.PhotoRecord
	for _, c := range captures {
		rec, err := a.importOne(ctx, c, ownerID, next[c.FieldType]+c.Index)
		if err != nil {
			return stored, fmt.Errorf("importing %s: %w", c.RelPath, err)
		}
		a.logger.Info("capture imported", "path", c.RelPath, "id", rec.ID)
		stored = append(stored, rec)
	}
	return stored, nil
}

func (a *FieldSyncApp) importOne(ctx context.Context, c fs.Capture, ownerID string, index int) (*model.PhotoRecord, error) {
	rc, err := fs.Open(c)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return a.objects.Put(ctx, fieldsync.CaptureInput{
		Content:   rc,
		OwnerID:   ownerID,
		FieldType: c.FieldType,
		Index:     index,
	})
}

// ListPhotos returns the photos of an owner. When knownIDs or serverIDHint
// are given the fallback lookup is used.
func (a *FieldSyncApp) ListPhotos(ctx context.Context, ownerID string, knownIDs []string, serverIDHint string) ([]*model.PhotoRecord, error) {
	if len(knownIDs) == 0 && serverIDHint == "" {
		return a.objects.GetByOwner(ctx, ownerID)
	}
	return a.objects.GetByOwnerWithFallback(ctx, ownerID, knownIDs, serverIDHint)
}

// ExportPhoto writes the plaintext content of photo id to rawPath.
func (a *FieldSyncApp) ExportPhoto(ctx context.Context, id, rawPath string) error {
	rec, err := a.objects.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fieldsync.NewError(fieldsync.KindNotFound, "export photo", fmt.Errorf("photo %s: %w", id, fieldsync.ErrNotFound))
	}

	rc, err := a.objects.Open(ctx, rec)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(rawPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", rawPath, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", rawPath, err)
	}
	return out.Close()
}

// PurgePhotos drops the local bytes of uploaded photos of owner.
func (a *FieldSyncApp) PurgePhotos(ctx context.Context, ownerID string) (int, error) {
	a.op.Parameters = ownerID
	return a.objects.PurgeUploaded(ctx, ownerID)
}

// Stats summarizes the local object store.
func (a *FieldSyncApp) Stats(ctx context.Context) (*model.StorageStats, error) {
	return a.objects.Stats(ctx)
}

// SaveOrderFile saves a work order whose fields are read from a JSON file.
// id may be empty to create a new draft.
func (a *FieldSyncApp) SaveOrderFile(ctx context.Context, id, rawPath string, status model.Status) (string, error) {
	a.op.Parameters = rawPath

	data, err := os.ReadFile(rawPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rawPath, err)
	}
	var fields model.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", fmt.Errorf("decoding %s: %w", rawPath, err)
	}

	return a.orders.SaveDraft(ctx, &model.PendingWorkOrder{ID: id, Status: status, Fields: fields})
}

// SubmitOrder moves a draft to the pending queue.
func (a *FieldSyncApp) SubmitOrder(ctx context.Context, id string) error {
	a.op.Parameters = id
	return a.orders.Submit(ctx, id)
}

// GetOrder returns a work order or a not-found error.
func (a *FieldSyncApp) GetOrder(ctx context.Context, id string) (*model.PendingWorkOrder, error) {
	return a.orders.Get(ctx, id)
}

// ListOrders returns work orders with any of the given statuses (all when none).
func (a *FieldSyncApp) ListOrders(ctx context.Context, statuses ...model.Status) ([]*model.PendingWorkOrder, error) {
	return a.orders.List(ctx, statuses...)
}

// DeleteOrder removes a work order. Its photos are kept.
func (a *FieldSyncApp) DeleteOrder(ctx context.Context, id string) error {
	a.op.Parameters = id
	return a.orders.Delete(ctx, id)
}

// RestorePhotos re-attaches photos the order owns but no field references.
func (a *FieldSyncApp) RestorePhotos(ctx context.Context, id string) (int, error) {
	a.op.Parameters = id
	return a.orders.RestorePhotoReferences(ctx, id)
}

// RefreshOrder reloads a work order's server id and photo slots from the
// remote database.
func (a *FieldSyncApp) RefreshOrder(ctx context.Context, id string) (fieldsync.RefreshReport, error) {
	a.op.Parameters = id
	return a.orders.RefreshFromRemote(ctx, id)
}

// SyncOrder flushes a single work order.
func (a *FieldSyncApp) SyncOrder(ctx context.Context, id string) (fieldsync.FlushReport, error) {
	a.op.Parameters = id
	report, err := a.engine.FlushWorkOrder(ctx, id)
	a.op.Fail(err)
	return report, err
}

// SyncAll flushes every pending and failed work order.
func (a *FieldSyncApp) SyncAll(ctx context.Context) (fieldsync.FlushResult, error) {
	result, err := a.engine.SyncAll(ctx, "manual")
	a.op.Fail(err)
	return result, err
}

// FlushPhotos uploads the unsynced photos of an owner.
func (a *FieldSyncApp) FlushPhotos(ctx context.Context, ownerID string) (fieldsync.FlushResult, error) {
	a.op.Parameters = ownerID
	result, err := a.engine.FlushPhotoQueue(ctx, ownerID)
	a.op.Fail(err)
	return result, err
}

// Status reports the sync queue.
func (a *FieldSyncApp) Status(ctx context.Context) (*fieldsync.SyncStatus, error) {
	return a.engine.Status(ctx)
}

// GetHistory returns the most recent sync runs.
func (a *FieldSyncApp) GetHistory(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	return a.engine.History(ctx, limit)
}

// BackupDatabase uploads a snapshot of the local database to remote storage.
func (a *FieldSyncApp) BackupDatabase(ctx context.Context) (string, error) {
	url, err := a.engine.BackupDatabase(ctx)
	a.op.Fail(err)
	return url, err
}

// Close finalizes the operation and closes all resources.
func (a *FieldSyncApp) Close() error {
	a.op.Finish(time.Now())
	a.logger.Info("operation finished",
		"operation", a.op.Name,
		"parameters", a.op.Parameters,
		"status", a.op.Status,
		"duration", a.op.Duration().Truncate(time.Millisecond),
	)
	return a.closeResources()
}

func (a *FieldSyncApp) closeResources() error {
	var firstErr error

	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			firstErr = fmt.Errorf("closing remote database: %w", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
