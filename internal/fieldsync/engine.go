package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fieldsync/internal/model"
)

// EngineOptions tune the synchronization engine.
type EngineOptions struct {
	Table             string        // remote table; DefaultRemoteTable when empty
	UploadConcurrency int           // photo uploads in flight; 3 when zero
	Interval          time.Duration // periodic auto sync; 5m when zero
	PollInterval      time.Duration // connectivity polling; 5s when zero
	ReconnectDelay    time.Duration // wait after coming back online; 2s when zero
	StaleAfter        time.Duration // syncing orders untouched this long are demoted; 10m when zero
	DeviceID          string        // names the device in database backups
}

func (o EngineOptions) withDefaults() EngineOptions {
	if o.Table == "" {
		o.Table = DefaultRemoteTable
	}
	if o.UploadConcurrency <= 0 {
		o.UploadConcurrency = 3
	}
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 2 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 10 * time.Minute
	}
	if o.DeviceID == "" {
		o.DeviceID = "unknown"
	}
	return o
}

// FlushResult counts the outcome of a flush.
type FlushResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// FlushReport describes one work order flush.
type FlushReport struct {
	ServerID string      `json:"server_id,omitempty"`
	Photos   FlushResult `json:"photos"`
	Missing  []string    `json:"missing,omitempty"` // referenced ids with no stored photo
}

// Engine is the synchronization engine. It is stateless between calls apart
// from a guard that keeps two flushes from running at once.
type Engine struct {
	database Database
	objects  *ObjectStore
	orders   *WorkOrderStore
	storage  RemoteStorage
	remote   RemoteDatabase
	network  Network
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	opts     EngineOptions

	running atomic.Bool
}

// NewEngine creates an Engine.
func NewEngine(database Database, objects *ObjectStore, orders *WorkOrderStore, storage RemoteStorage, remote RemoteDatabase, network Network, logger Logger, clock Clock, idgen IDGenerator, opts EngineOptions) *Engine {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	return &Engine{
		database: database,
		objects:  objects,
		orders:   orders,
		storage:  storage,
		remote:   remote,
		network:  network,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		opts:     opts.withDefaults(),
	}
}

// CheckConnectivity reports whether the device has a link and the internet
// is reachable through it.
func (e *Engine) CheckConnectivity(ctx context.Context) bool {
	if e.network == nil {
		return true
	}
	return e.network.Status(ctx).Online()
}

func (e *Engine) acquire() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	return nil
}

func (e *Engine) release() { e.running.Store(false) }

// FlushPhotoQueue uploads every photo of ownerID that still needs it.
// A failed upload is counted and left for the next flush; it never stops
// the remaining uploads.
func (e *Engine) FlushPhotoQueue(ctx context.Context, ownerID string) (FlushResult, error) {
	if err := e.acquire(); err != nil {
		return FlushResult{}, err
	}
	defer e.release()

	if !e.CheckConnectivity(ctx) {
		return FlushResult{}, NewError(KindConnectivity, "flush photos", ErrOffline)
	}

	recs, err := e.objects.ListUnsynced(ctx, ownerID)
	if err != nil {
		return FlushResult{}, err
	}
	result, _ := e.uploadRecords(ctx, recs)

	e.logger.Info("photo queue flushed", "owner", ownerID, "success", result.Success, "failed", result.Failed)
	return result, nil
}

// uploadRecords uploads recs with bounded parallelism and updates each
// uploaded record in place. Returns the counts and the failure per record id.
func (e *Engine) uploadRecords(ctx context.Context, recs []*model.PhotoRecord) (FlushResult, map[string]error) {
	var (
		mu       sync.Mutex
		result   FlushResult
		failures = make(map[string]error)
	)

	var g errgroup.Group
	g.SetLimit(e.opts.UploadConcurrency)
	for _, rec := range recs {
		g.Go(func() error {
			err := e.uploadOne(ctx, rec)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				failures[rec.ID] = err
				return nil
			}
			result.Success++
			return nil
		})
	}
	_ = g.Wait()

	return result, failures
}

func (e *Engine) uploadOne(ctx context.Context, rec *model.PhotoRecord) error {
	err := e.upload(ctx, rec)
	if err == nil {
		return nil
	}

	e.logger.Warn("photo upload failed", "id", rec.ID, "kind", string(KindOf(err)), "error", err)
	if recErr := e.objects.RecordUploadFailure(context.WithoutCancel(ctx), rec.ID, err); recErr != nil {
		e.logger.Warn("recording upload failure", "id", rec.ID, "error", recErr)
	}
	return err
}

func (e *Engine) upload(ctx context.Context, rec *model.PhotoRecord) error {
	rc, err := e.objects.Open(ctx, rec)
	if err != nil {
		return err
	}
	defer rc.Close()

	url, err := e.storage.Upload(ctx, e.uploadKey(rec), rc, rec.Size, rec.ContentType)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", rec.ID, err)
	}
	// The object exists remotely now; record it even if the caller went away.
	if err := e.objects.MarkUploaded(context.WithoutCancel(ctx), rec.ID, url); err != nil {
		return err
	}

	rec.RemoteURL = url
	rec.Uploaded = true
	e.logger.Debug("photo uploaded", "id", rec.ID, "url", url)
	return nil
}

// uploadKey names a photo in remote storage:
// {ownerID}/{fieldType}_{unixMillis}_{random}_{index}{ext}.
func (e *Engine) uploadKey(rec *model.PhotoRecord) string {
	return fmt.Sprintf("%s/%s_%d_%s_%d%s",
		rec.OwnerID, rec.FieldType, e.clock.Now().UnixMilli(), e.idgen.New(), rec.Index, extensionFor(rec.ContentType))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	}
	return ".bin"
}

// FlushWorkOrder uploads the photos a work order references and writes the
// work order to the remote database, inserting it or merging into the row it
// was synced to before. Offline, nothing changes locally. On any other
// failure the work order is marked failed with a user-facing reason and the
// classified error is returned. Cancelling ctx stops the uploads, but the
// status change that ends the attempt is still written.
func (e *Engine) FlushWorkOrder(ctx context.Context, id string) (FlushReport, error) {
	if err := e.acquire(); err != nil {
		return FlushReport{}, err
	}
	defer e.release()

	return e.flushWorkOrder(ctx, id)
}

func (e *Engine) flushWorkOrder(ctx context.Context, id string) (FlushReport, error) {
	var report FlushReport

	if !e.CheckConnectivity(ctx) {
		return report, NewError(KindConnectivity, "flush work order", ErrOffline)
	}

	order, err := e.orders.Get(ctx, id)
	if err != nil {
		return report, err
	}

	// A record left in syncing is only picked up again by stale recovery.
	state := context.WithoutCancel(ctx)
	if err := e.orders.MarkSyncing(state, id); err != nil {
		return report, err
	}

	resolved, err := e.objects.ResolveIDs(ctx, order.ID, order.Fields.PhotoIDs(), order.ServerID)
	if err != nil {
		return report, e.fail(state, id, err)
	}

	var pending []*model.PhotoRecord
	queued := make(map[string]bool)
	for _, r := range resolved {
		if r.Record != nil && r.Record.NeedsUpload() && !queued[r.Record.ID] {
			queued[r.Record.ID] = true
			pending = append(pending, r.Record)
		}
	}

	result, failures := e.uploadRecords(ctx, pending)
	report.Photos = result
	if result.Failed > 0 {
		var first error
		for _, rec := range pending {
			if err, ok := failures[rec.ID]; ok {
				first = err
				break
			}
		}
		err := NewError(KindOf(first), "flush work order",
			fmt.Errorf("%d of %d photo uploads failed: %w", result.Failed, len(pending), first))
		return report, e.fail(state, id, err)
	}

	payload, missing := BuildPayload(order.Fields, resolved)
	report.Missing = missing
	if err := e.orders.FlagMissingPhotos(state, id, missing); err != nil {
		e.logger.Warn("flagging missing photos", "id", id, "error", err)
	}

	serverID, err := e.writeRemote(ctx, order, payload)
	if err != nil {
		return report, e.fail(state, id, err)
	}
	report.ServerID = serverID

	if err := e.orders.MarkSynced(state, id, serverID); err != nil {
		return report, err
	}
	if _, err := e.objects.Reparent(state, id, serverID); err != nil {
		e.logger.Error("reparenting photos after sync", "id", id, "server_id", serverID, "error", err)
	}
	return report, nil
}

// writeRemote inserts the work order or merges into its existing row and
// returns the server id. A row left by an earlier attempt that inserted but
// never recorded the server id is found by local_id and reused.
func (e *Engine) writeRemote(ctx context.Context, order *model.PendingWorkOrder, payload model.Payload) (string, error) {
	if order.ServerID != "" {
		err := e.orders.mergeInto(ctx, order.ServerID, payload)
		if err == nil {
			return order.ServerID, nil
		}
		if KindOf(err) != KindNotFound {
			return "", err
		}
		e.logger.Warn("remote work order vanished, inserting again", "id", order.ID, "server_id", order.ServerID)
	}

	rows, err := e.remote.Select(ctx, e.opts.Table, Row{"local_id": order.ID})
	if err != nil {
		return "", NewError(KindOf(err), "insert work order", fmt.Errorf("checking for earlier insert: %w", err))
	}
	if len(rows) > 0 {
		if serverID := fmt.Sprint(rows[0]["id"]); rows[0]["id"] != nil && serverID != "" {
			if err := e.orders.mergeInto(ctx, serverID, payload); err != nil {
				return "", err
			}
			return serverID, nil
		}
	}

	now := e.clock.Now().UTC()
	serverID, err := e.remote.Insert(ctx, e.opts.Table, Row{
		"local_id":   order.ID,
		"fields":     payload,
		"created_at": now,
		"updated_at": now,
	})
	if err != nil {
		return "", NewError(KindOf(err), "insert work order", err)
	}
	e.logger.Info("work order inserted", "id", order.ID, "server_id", serverID)
	return serverID, nil
}

// fail marks the work order failed and returns err.
func (e *Engine) fail(ctx context.Context, id string, err error) error {
	if markErr := e.orders.MarkFailed(ctx, id, UserMessage(err)); markErr != nil {
		e.logger.Error("marking work order failed", "id", id, "error", markErr)
	}
	return err
}

// SyncAll flushes every pending and failed work order, oldest first, and
// records the run. Work orders stuck in syncing for longer than
// EngineOptions.StaleAfter are demoted to pending first so the run retries
// them. The returned counts are per work order.
func (e *Engine) SyncAll(ctx context.Context, trigger string) (FlushResult, error) {
	if err := e.acquire(); err != nil {
		return FlushResult{}, err
	}
	defer e.release()

	var result FlushResult
	run, err := e.database.CreateSyncRun(ctx, trigger, e.clock.Now())
	if err != nil {
		return result, fmt.Errorf("recording sync run: %w", err)
	}

	status, runErr := e.syncAll(ctx, &result)

	if err := e.database.FinishSyncRun(context.WithoutCancel(ctx), run.ID, result.Success, result.Failed, status, e.clock.Now()); err != nil {
		e.logger.Warn("finishing sync run", "run", run.ID, "error", err)
	}
	e.logger.Info("sync run finished", "trigger", trigger, "status", status, "success", result.Success, "failed", result.Failed)
	return result, runErr
}

func (e *Engine) syncAll(ctx context.Context, result *FlushResult) (string, error) {
	if !e.CheckConnectivity(ctx) {
		return "error", NewError(KindConnectivity, "sync all", ErrOffline)
	}

	if _, err := e.objects.ResetZombies(ctx); err != nil {
		e.logger.Warn("resetting zombie photos", "error", err)
	}
	// No flush of this engine is running while the guard is held.
	if _, err := e.orders.RecoverStaleSyncing(ctx, e.opts.StaleAfter); err != nil {
		e.logger.Warn("recovering stale syncing work orders", "error", err)
	}

	orders, err := e.orders.List(ctx, model.StatusPending, model.StatusFailed)
	if err != nil {
		return "error", err
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return "error", NewError(KindOf(err), "sync all", err)
		}
		if _, err := e.flushWorkOrder(ctx, order.ID); err != nil {
			result.Failed++
			e.logger.Warn("work order flush failed", "id", order.ID, "error", err)
			continue
		}
		result.Success++
	}

	switch {
	case result.Failed == 0:
		return "success", nil
	case result.Success == 0:
		return "error", nil
	default:
		return "partial", nil
	}
}

// StartAutoSync runs SyncAll in the background on a periodic timer and
// shortly after connectivity returns. onResult is called once per run.
// The returned function stops the loop and waits for it to exit.
func (e *Engine) StartAutoSync(ctx context.Context, onResult func(FlushResult, error)) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		e.autoSyncLoop(ctx, onResult)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (e *Engine) autoSyncLoop(ctx context.Context, onResult func(FlushResult, error)) {
	periodic := time.NewTicker(e.opts.Interval)
	defer periodic.Stop()
	poll := time.NewTicker(e.opts.PollInterval)
	defer poll.Stop()

	online := e.CheckConnectivity(ctx)
	var reconnect <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			now := e.CheckConnectivity(ctx)
			switch {
			case now && !online:
				e.logger.Info("connectivity restored", "delay", e.opts.ReconnectDelay.String())
				reconnect = time.After(e.opts.ReconnectDelay)
			case !now:
				reconnect = nil
			}
			online = now
		case <-reconnect:
			reconnect = nil
			e.autoRun(ctx, "reconnect", onResult)
		case <-periodic.C:
			e.autoRun(ctx, "auto", onResult)
		}
	}
}

func (e *Engine) autoRun(ctx context.Context, trigger string, onResult func(FlushResult, error)) {
	if !e.CheckConnectivity(ctx) {
		return
	}
	result, err := e.SyncAll(ctx, trigger)
	if errors.Is(err, ErrSyncInProgress) {
		e.logger.Debug("auto sync skipped, flush in progress", "trigger", trigger)
		return
	}
	if onResult != nil {
		onResult(result, err)
	}
}

// SyncStatus summarizes what is waiting to sync.
type SyncStatus struct {
	Online        bool       `json:"online"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	PendingCount  int        `json:"pending_count"`
	SyncingCount  int        `json:"syncing_count"`
	FailedCount   int        `json:"failed_count"`
	PendingPhotos int        `json:"pending_photos"`
}

// Status reports the queue state.
func (e *Engine) Status(ctx context.Context) (*SyncStatus, error) {
	status := &SyncStatus{Online: e.CheckConnectivity(ctx)}

	orders, err := e.orders.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		switch o.Status {
		case model.StatusPending:
			status.PendingCount++
		case model.StatusSyncing:
			status.SyncingCount++
		case model.StatusFailed:
			status.FailedCount++
		}
	}

	stats, err := e.objects.Stats(ctx)
	if err != nil {
		return nil, err
	}
	status.PendingPhotos = stats.PendingPhotos

	runs, err := e.database.ListSyncRuns(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	for _, run := range runs {
		if run.FinishedAt != nil && (run.Status == "success" || run.Status == "partial") {
			status.LastSyncAt = run.FinishedAt
			break
		}
	}
	return status, nil
}

// History returns up to limit recent sync runs, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs, err := e.database.ListSyncRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}

// BackupDatabase snapshots the local database and uploads it to
// _devices/{deviceID}/fieldsync-{timestamp}.db on remote storage.
// Returns the URL of the snapshot.
func (e *Engine) BackupDatabase(ctx context.Context) (string, error) {
	tmpDir, err := os.MkdirTemp("", "fieldsync-backup-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "snapshot.db")
	if err := e.database.BackupTo(ctx, snapshot); err != nil {
		return "", fmt.Errorf("snapshotting database: %w", err)
	}

	f, err := os.Open(snapshot)
	if err != nil {
		return "", fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat snapshot: %w", err)
	}

	key := fmt.Sprintf("_devices/%s/fieldsync-%s.db", e.opts.DeviceID, e.clock.Now().UTC().Format("20060102T150405Z"))
	url, err := e.storage.Upload(ctx, key, f, info.Size(), "application/vnd.sqlite3")
	if err != nil {
		return "", NewError(KindOf(err), "backup database", err)
	}

	e.logger.Info("database backed up", "key", key, "size", info.Size())
	return url, nil
}
