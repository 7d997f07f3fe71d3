package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"fieldsync/internal/model"
)

// DefaultRemoteTable is the remote table work orders are written to.
const DefaultRemoteTable = "work_orders"

// WorkOrderStore is the pending work-order store: local drafts and
// submissions with their sync bookkeeping.
type WorkOrderStore struct {
	database Database
	objects  *ObjectStore
	remote   RemoteDatabase
	table    string
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewWorkOrderStore creates a WorkOrderStore. remote may be nil for callers
// that never merge remote updates. An empty table selects DefaultRemoteTable.
func NewWorkOrderStore(database Database, objects *ObjectStore, remote RemoteDatabase, table string, logger Logger, clock Clock, idgen IDGenerator) *WorkOrderStore {
	if table == "" {
		table = DefaultRemoteTable
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	return &WorkOrderStore{
		database: database,
		objects:  objects,
		remote:   remote,
		table:    table,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// SaveDraft upserts order by id and returns the id. A new local id is
// generated when order.ID is empty. The status must be draft or pending
// (empty means draft). A server id or creation time stored by a previous
// save is never cleared.
func (s *WorkOrderStore) SaveDraft(ctx context.Context, order *model.PendingWorkOrder) (string, error) {
	if order == nil {
		return "", errors.New("saving draft: nil work order")
	}

	status := order.Status
	if status == "" {
		status = model.StatusDraft
	}
	if status != model.StatusDraft && status != model.StatusPending {
		return "", fmt.Errorf("saving draft with status %q: %w", status, ErrInvalidTransition)
	}

	now := s.clock.Now()
	id := order.ID
	if id == "" {
		id = LocalID(now, s.idgen)
	}

	toSave := *order
	toSave.ID = id
	toSave.Status = status
	toSave.CreatedAt = now
	toSave.UpdatedAt = now

	stored, err := s.database.UpsertWorkOrder(ctx, &toSave)
	if err != nil {
		return "", NewError(KindOf(err), "save draft", fmt.Errorf("storing work order %s: %w", id, err))
	}

	order.ID = stored.ID
	order.ServerID = stored.ServerID
	order.Status = stored.Status
	order.CreatedAt = stored.CreatedAt
	order.UpdatedAt = stored.UpdatedAt

	s.logger.Debug("work order saved", "id", id, "status", status, "photos", len(order.Fields.PhotoIDs()))
	return id, nil
}

// Get returns the work order with the given local id.
func (s *WorkOrderStore) Get(ctx context.Context, id string) (*model.PendingWorkOrder, error) {
	order, err := s.database.FindWorkOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding work order %s: %w", id, err)
	}
	if order == nil {
		return nil, NewError(KindNotFound, "get work order", fmt.Errorf("work order %s: %w", id, ErrNotFound))
	}
	return order, nil
}

// FindByServerID returns the work order carrying serverID, or nil.
func (s *WorkOrderStore) FindByServerID(ctx context.Context, serverID string) (*model.PendingWorkOrder, error) {
	order, err := s.database.FindWorkOrderByServerID(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("finding work order by server id %s: %w", serverID, err)
	}
	return order, nil
}

// List returns work orders in any of statuses, oldest first. No statuses lists all.
func (s *WorkOrderStore) List(ctx context.Context, statuses ...model.Status) ([]*model.PendingWorkOrder, error) {
	orders, err := s.database.ListWorkOrders(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("listing work orders: %w", err)
	}
	return orders, nil
}

// ListPending returns work orders waiting for or undergoing sync, oldest first.
func (s *WorkOrderStore) ListPending(ctx context.Context) ([]*model.PendingWorkOrder, error) {
	return s.List(ctx, model.StatusPending, model.StatusSyncing, model.StatusFailed)
}

// Submit moves a draft to pending. Submitting a pending work order is a no-op.
func (s *WorkOrderStore) Submit(ctx context.Context, id string) error {
	_, err := s.transition(ctx, "submit", id, Transition{
		From: []model.Status{model.StatusDraft},
		To:   model.StatusPending,
	}, model.StatusPending)
	return err
}

// MarkSyncing starts a sync attempt. Allowed from pending, failed and synced.
func (s *WorkOrderStore) MarkSyncing(ctx context.Context, id string) error {
	_, err := s.transition(ctx, "mark syncing", id, Transition{
		From:              []model.Status{model.StatusPending, model.StatusFailed, model.StatusSynced},
		To:                model.StatusSyncing,
		IncrementAttempts: true,
	})
	return err
}

// MarkSynced completes a sync attempt. The server id is stored even when the
// work order was saved again while syncing; its status then stays as saved.
func (s *WorkOrderStore) MarkSynced(ctx context.Context, id, serverID string) error {
	if serverID == "" {
		return fmt.Errorf("marking %s synced: empty server id", id)
	}
	now := s.clock.Now()
	cleared := ""
	changed, err := s.transition(ctx, "mark synced", id, Transition{
		From:         []model.Status{model.StatusSyncing},
		To:           model.StatusSynced,
		ServerID:     serverID,
		ErrorMessage: &cleared,
		LastSyncAt:   &now,
		Sticky:       true,
	}, allStatuses...)
	if err != nil {
		return err
	}
	if !changed {
		s.logger.Info("work order changed during sync, left for next run", "id", id, "server_id", serverID)
		return nil
	}
	s.logger.Info("work order synced", "id", id, "server_id", serverID)
	return nil
}

// MarkFailed ends a sync attempt with reason. The reason is stored even when
// the work order was saved again while syncing.
func (s *WorkOrderStore) MarkFailed(ctx context.Context, id, reason string) error {
	now := s.clock.Now()
	_, err := s.transition(ctx, "mark failed", id, Transition{
		From:         []model.Status{model.StatusSyncing},
		To:           model.StatusFailed,
		ErrorMessage: &reason,
		LastSyncAt:   &now,
		Sticky:       true,
	}, allStatuses...)
	if err != nil {
		return err
	}
	s.logger.Warn("work order sync failed", "id", id, "reason", reason)
	return nil
}

var allStatuses = []model.Status{
	model.StatusDraft, model.StatusPending, model.StatusSyncing, model.StatusFailed, model.StatusSynced,
}

// transition applies t to id. A guard mismatch is an error unless the
// current status is one of tolerated.
func (s *WorkOrderStore) transition(ctx context.Context, op, id string, t Transition, tolerated ...model.Status) (bool, error) {
	t.At = s.clock.Now()
	stored, changed, err := s.database.TransitionWorkOrder(ctx, id, t)
	if err != nil {
		return false, NewError(KindOf(err), op, fmt.Errorf("work order %s: %w", id, err))
	}
	if stored == nil {
		return false, NewError(KindNotFound, op, fmt.Errorf("work order %s: %w", id, ErrNotFound))
	}
	if !changed && !slices.Contains(tolerated, stored.Status) {
		return false, fmt.Errorf("%s: work order %s is %s: %w", op, id, stored.Status, ErrInvalidTransition)
	}
	return changed, nil
}

// Delete removes a work order. Its photos stay in the object store.
func (s *WorkOrderStore) Delete(ctx context.Context, id string) error {
	if err := s.database.DeleteWorkOrder(ctx, id); err != nil {
		return fmt.Errorf("deleting work order %s: %w", id, err)
	}
	s.logger.Info("work order deleted", "id", id)
	return nil
}

// MergeRemoteUpdate merges delta into the remote row of an already synced
// work order and writes the union back. Calling it again with the same
// delta leaves the remote row unchanged.
func (s *WorkOrderStore) MergeRemoteUpdate(ctx context.Context, id string, delta model.Payload) error {
	order, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.ServerID == "" {
		return fmt.Errorf("merging remote update for %s: work order has no server id", id)
	}
	return s.mergeInto(ctx, order.ServerID, delta)
}

func (s *WorkOrderStore) mergeInto(ctx context.Context, serverID string, delta model.Payload) error {
	if s.remote == nil {
		return errors.New("no remote database configured")
	}

	rows, err := s.remote.Select(ctx, s.table, Row{"id": serverID})
	if err != nil {
		return NewError(KindOf(err), "merge remote update", fmt.Errorf("selecting %s: %w", serverID, err))
	}
	if len(rows) == 0 {
		return NewError(KindNotFound, "merge remote update", fmt.Errorf("remote work order %s: %w", serverID, ErrNotFound))
	}

	current, err := PayloadFromRow(rows[0])
	if err != nil {
		return fmt.Errorf("reading remote work order %s: %w", serverID, err)
	}
	merged := MergePayload(current, delta)

	patch := Row{"fields": merged, "updated_at": s.clock.Now().UTC()}
	if err := s.remote.Update(ctx, s.table, serverID, patch); err != nil {
		return NewError(KindOf(err), "merge remote update", fmt.Errorf("updating %s: %w", serverID, err))
	}

	s.logger.Info("remote work order merged", "server_id", serverID, "slots", len(merged.Photos))
	return nil
}

// PayloadFromRow decodes the fields column of a remote row. The column may
// hold a JSON string, raw JSON bytes, or an already decoded value.
func PayloadFromRow(row Row) (model.Payload, error) {
	var payload model.Payload

	var raw []byte
	switch v := row["fields"].(type) {
	case nil:
		return payload, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return payload, fmt.Errorf("encoding fields column: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("decoding fields column: %w", err)
	}
	return payload, nil
}

// RecoverStaleSyncing demotes work orders left in syncing for longer than
// olderThan back to pending. Called at start-up and before every sync run to
// undo interrupted flushes.
func (s *WorkOrderStore) RecoverStaleSyncing(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.clock.Now()
	n, err := s.database.DemoteStaleSyncing(ctx, now.Add(-olderThan), now)
	if err != nil {
		return 0, fmt.Errorf("recovering stale syncing work orders: %w", err)
	}
	if n > 0 {
		s.logger.Warn("stale syncing work orders demoted", "count", n, "older_than", olderThan.String())
	}
	return n, nil
}

// RestorePhotoReferences appends photos owned by the work order (under its
// local or server id) that none of its fields reference to the slot of their
// field type, ordered by index. Returns the number of ids restored.
func (s *WorkOrderStore) RestorePhotoReferences(ctx context.Context, id string) (int, error) {
	if s.objects == nil {
		return 0, errors.New("no object store configured")
	}
	order, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	ids := order.Fields.PhotoIDs()
	resolved, err := s.objects.ResolveIDs(ctx, order.ID, ids, order.ServerID)
	if err != nil {
		return 0, err
	}
	covered := make(map[string]bool, len(resolved))
	for _, r := range resolved {
		if r.Record != nil {
			covered[r.Record.ID] = true
		}
	}

	var lost []*model.PhotoRecord
	for _, owner := range []string{order.ID, order.ServerID} {
		if owner == "" {
			continue
		}
		recs, err := s.objects.GetByOwner(ctx, owner)
		if err != nil {
			return 0, err
		}
		for _, rec := range recs {
			if !covered[rec.ID] {
				covered[rec.ID] = true
				lost = append(lost, rec)
			}
		}
	}
	if len(lost) == 0 {
		return 0, nil
	}

	slices.SortStableFunc(lost, func(a, b *model.PhotoRecord) int {
		if a.FieldType != b.FieldType {
			if a.FieldType < b.FieldType {
				return -1
			}
			return 1
		}
		if a.Index != b.Index {
			return a.Index - b.Index
		}
		return a.CapturedAt.Compare(b.CapturedAt)
	})

	fields := order.Fields
	if fields.Photos == nil {
		fields.Photos = make(map[string][]string)
	}
	for _, rec := range lost {
		fields.Photos[rec.FieldType] = append(fields.Photos[rec.FieldType], rec.ID)
	}

	if err := s.database.UpdateWorkOrderFields(ctx, id, fields, s.clock.Now()); err != nil {
		return 0, fmt.Errorf("restoring photo references of %s: %w", id, err)
	}
	s.logger.Info("photo references restored", "id", id, "count", len(lost))
	return len(lost), nil
}

// FlagMissingPhotos records the photo ids the last flush could not resolve.
// An empty list clears the flag.
func (s *WorkOrderStore) FlagMissingPhotos(ctx context.Context, id string, ids []string) error {
	if err := s.database.SetMissingPhotos(ctx, id, ids); err != nil {
		return fmt.Errorf("flagging missing photos of %s: %w", id, err)
	}
	if len(ids) > 0 {
		s.logger.Warn("work order references missing photos", "id", id, "missing", len(ids))
	}
	return nil
}
