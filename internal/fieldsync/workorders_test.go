package fieldsync_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"fieldsync/internal/fieldsync"
	"fieldsync/internal/model"
)

func TestWorkOrderStore_SaveDraft(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	order := &model.PendingWorkOrder{
		Fields: model.Fields{Values: map[string]any{"address": "Rua A, 100"}},
	}
	id, err := h.orders.SaveDraft(ctx, order)
	if err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	if !fieldsync.IsLocalID(id) {
		t.Errorf("SaveDraft() id = %q, want a local id", id)
	}
	if want := "local_1705314600000_id1"; id != want {
		t.Errorf("SaveDraft() id = %q, want %q", id, want)
	}
	if order.ID != id || order.Status != model.StatusDraft {
		t.Errorf("order after save = %+v", order)
	}

	createdAt := order.CreatedAt
	h.clock.Advance(time.Minute)
	order.Fields.Values["address"] = "Rua B, 200"
	if _, err := h.orders.SaveDraft(ctx, order); err != nil {
		t.Fatalf("second SaveDraft() error = %v", err)
	}

	got := h.order(t, id)
	if got.Fields.Values["address"] != "Rua B, 200" {
		t.Errorf("address = %v, want updated value", got.Fields.Values["address"])
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, createdAt)
	}
	if !got.UpdatedAt.Equal(h.clock.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, h.clock.Now())
	}
}

func TestWorkOrderStore_SaveDraftKeepsServerID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	id := h.newOrder(t)
	if err := h.orders.Submit(ctx, id); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := h.orders.MarkSyncing(ctx, id); err != nil {
		t.Fatalf("MarkSyncing() error = %v", err)
	}
	if err := h.orders.MarkSynced(ctx, id, "srv_1"); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}

	// A client that never learned the server id saves again.
	order := &model.PendingWorkOrder{ID: id, Status: model.StatusPending}
	if _, err := h.orders.SaveDraft(ctx, order); err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	if order.ServerID != "srv_1" {
		t.Errorf("ServerID = %q after save, want srv_1", order.ServerID)
	}

	byServer, err := h.orders.FindByServerID(ctx, "srv_1")
	if err != nil {
		t.Fatalf("FindByServerID() error = %v", err)
	}
	if byServer == nil || byServer.ID != id {
		t.Errorf("FindByServerID() = %v, want %s", byServer, id)
	}
}

func TestWorkOrderStore_SaveDraftRejectsStatus(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, status := range []model.Status{model.StatusSyncing, model.StatusSynced, model.StatusFailed, "bogus"} {
		_, err := h.orders.SaveDraft(context.Background(), &model.PendingWorkOrder{Status: status})
		if !errors.Is(err, fieldsync.ErrInvalidTransition) {
			t.Errorf("SaveDraft(status %q) error = %v, want ErrInvalidTransition", status, err)
		}
	}
	if _, err := h.orders.SaveDraft(context.Background(), nil); err == nil {
		t.Error("SaveDraft(nil) expected error")
	}
}

func TestWorkOrderStore_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	id := h.newOrder(t)

	if err := h.orders.MarkSyncing(ctx, id); !errors.Is(err, fieldsync.ErrInvalidTransition) {
		t.Errorf("MarkSyncing(draft) error = %v, want ErrInvalidTransition", err)
	}

	if err := h.orders.Submit(ctx, id); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := h.orders.Submit(ctx, id); err != nil {
		t.Errorf("repeated Submit() error = %v", err)
	}

	if err := h.orders.MarkSyncing(ctx, id); err != nil {
		t.Fatalf("MarkSyncing() error = %v", err)
	}
	if err := h.orders.MarkFailed(ctx, id, "No internet connection."); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	failed := h.order(t, id)
	if failed.Status != model.StatusFailed || failed.ErrorMessage != "No internet connection." {
		t.Errorf("after MarkFailed: status %s, message %q", failed.Status, failed.ErrorMessage)
	}
	if failed.LastSyncAt == nil {
		t.Error("LastSyncAt not set by MarkFailed")
	}

	if err := h.orders.MarkSyncing(ctx, id); err != nil {
		t.Fatalf("MarkSyncing() from failed error = %v", err)
	}
	if err := h.orders.MarkSynced(ctx, id, "srv_42"); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}

	synced := h.order(t, id)
	if synced.Status != model.StatusSynced || synced.ServerID != "srv_42" {
		t.Errorf("after MarkSynced: status %s, server id %q", synced.Status, synced.ServerID)
	}
	if synced.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want cleared", synced.ErrorMessage)
	}
	if synced.SyncAttempts != 2 {
		t.Errorf("SyncAttempts = %d, want 2", synced.SyncAttempts)
	}

	if err := h.orders.Submit(ctx, id); !errors.Is(err, fieldsync.ErrInvalidTransition) {
		t.Errorf("Submit(synced) error = %v, want ErrInvalidTransition", err)
	}
	if err := h.orders.MarkSynced(ctx, id, ""); err == nil {
		t.Error("MarkSynced() with empty server id expected error")
	}

	pending, err := h.orders.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("ListPending() = %d orders, want 0", len(pending))
	}
}

func TestWorkOrderStore_SavedWhileSyncing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	id := h.newOrder(t)
	if err := h.orders.Submit(ctx, id); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := h.orders.MarkSyncing(ctx, id); err != nil {
		t.Fatalf("MarkSyncing() error = %v", err)
	}

	h.submit(t, id, model.Fields{Values: map[string]any{"note": "edited"}})

	if err := h.orders.MarkSynced(ctx, id, "srv_7"); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}
	got := h.order(t, id)
	if got.Status != model.StatusPending {
		t.Errorf("Status = %s, want pending so the edit syncs next run", got.Status)
	}
	if got.ServerID != "srv_7" {
		t.Errorf("ServerID = %q, want srv_7", got.ServerID)
	}
}

func TestWorkOrderStore_Missing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	if _, err := h.orders.Get(ctx, "local_0_nope"); fieldsync.KindOf(err) != fieldsync.KindNotFound {
		t.Errorf("Get() kind = %s, want %s", fieldsync.KindOf(err), fieldsync.KindNotFound)
	}
	if err := h.orders.Submit(ctx, "local_0_nope"); !errors.Is(err, fieldsync.ErrNotFound) {
		t.Errorf("Submit() error = %v, want ErrNotFound", err)
	}
	got, err := h.orders.FindByServerID(ctx, "srv_none")
	if err != nil || got != nil {
		t.Errorf("FindByServerID() = %v, %v, want nil, nil", got, err)
	}
}

func TestWorkOrderStore_ListOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	var ids []string
	for range 3 {
		id := h.newOrder(t)
		if err := h.orders.Submit(ctx, id); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		ids = append(ids, id)
		h.clock.Advance(time.Second)
	}
	draft := h.newOrder(t)

	pending, err := h.orders.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	var got []string
	for _, o := range pending {
		got = append(got, o.ID)
	}
	if !slices.Equal(got, ids) {
		t.Errorf("ListPending() = %v, want %v", got, ids)
	}

	all, err := h.orders.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 || all[3].ID != draft {
		t.Errorf("List() returned %d orders, last %v", len(all), all)
	}

	if err := h.orders.Delete(ctx, ids[0]); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if pending, _ := h.orders.ListPending(ctx); len(pending) != 2 {
		t.Errorf("ListPending() after Delete = %d orders, want 2", len(pending))
	}
}

func TestWorkOrderStore_RecoverStaleSyncing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	stale := h.newOrder(t)
	fresh := h.newOrder(t)
	for _, id := range []string{stale, fresh} {
		if err := h.orders.Submit(ctx, id); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if err := h.orders.MarkSyncing(ctx, stale); err != nil {
		t.Fatalf("MarkSyncing() error = %v", err)
	}
	h.clock.Advance(15 * time.Minute)
	if err := h.orders.MarkSyncing(ctx, fresh); err != nil {
		t.Fatalf("MarkSyncing() error = %v", err)
	}

	n, err := h.orders.RecoverStaleSyncing(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("RecoverStaleSyncing() error = %v", err)
	}
	if n != 1 {
		t.Errorf("RecoverStaleSyncing() = %d, want 1", n)
	}
	if got := h.order(t, stale).Status; got != model.StatusPending {
		t.Errorf("stale status = %s, want pending", got)
	}
	if got := h.order(t, fresh).Status; got != model.StatusSyncing {
		t.Errorf("fresh status = %s, want syncing", got)
	}
}

func TestWorkOrderStore_RestorePhotoReferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	id := h.newOrder(t)
	a0 := h.capture(t, id, "antes", 0)
	a1 := h.capture(t, id, "antes", 1)
	d0 := h.capture(t, id, "despues", 0)
	h.submit(t, id, model.Fields{Photos: map[string][]string{"antes": {a0.ID}}})

	n, err := h.orders.RestorePhotoReferences(ctx, id)
	if err != nil {
		t.Fatalf("RestorePhotoReferences() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RestorePhotoReferences() = %d, want 2", n)
	}

	got := h.order(t, id).Fields.Photos
	if !slices.Equal(got["antes"], []string{a0.ID, a1.ID}) {
		t.Errorf("antes = %v, want [%s %s]", got["antes"], a0.ID, a1.ID)
	}
	if !slices.Equal(got["despues"], []string{d0.ID}) {
		t.Errorf("despues = %v, want [%s]", got["despues"], d0.ID)
	}

	again, err := h.orders.RestorePhotoReferences(ctx, id)
	if err != nil {
		t.Fatalf("second RestorePhotoReferences() error = %v", err)
	}
	if again != 0 {
		t.Errorf("second RestorePhotoReferences() = %d, want 0", again)
	}
}

func TestWorkOrderStore_FlagMissingPhotos(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	id := h.newOrder(t)
	if err := h.orders.FlagMissingPhotos(ctx, id, []string{"gone_antes_0_1"}); err != nil {
		t.Fatalf("FlagMissingPhotos() error = %v", err)
	}
	if got := h.order(t, id).MissingPhotos; !slices.Equal(got, []string{"gone_antes_0_1"}) {
		t.Errorf("MissingPhotos = %v", got)
	}
	if err := h.orders.FlagMissingPhotos(ctx, id, nil); err != nil {
		t.Fatalf("FlagMissingPhotos(nil) error = %v", err)
	}
	if got := h.order(t, id).MissingPhotos; len(got) != 0 {
		t.Errorf("MissingPhotos = %v after clearing, want empty", got)
	}
}

func remotePhotos(urls ...string) []model.RemotePhoto {
	out := make([]model.RemotePhoto, 0, len(urls))
	for _, u := range urls {
		out = append(out, model.RemotePhoto{URL: u})
	}
	return out
}

func TestWorkOrderStore_MergeRemoteUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, withServerIDs("srv_5"))

	_, err := h.orders.SaveDraft(ctx, &model.PendingWorkOrder{ID: "local_999", Status: model.StatusPending})
	if err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}

	original := model.Payload{
		Values: map[string]any{"address": "Rua A"},
		Photos: map[string][]model.RemotePhoto{"fotos_antes": remotePhotos("u1", "u2", "u3")},
	}
	serverID, err := h.remoteDB.Insert(ctx, fieldsync.DefaultRemoteTable, fieldsync.Row{"local_id": "local_999", "fields": original})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := h.orders.MarkSyncing(ctx, "local_999"); err != nil {
		t.Fatalf("MarkSyncing() error = %v", err)
	}
	if err := h.orders.MarkSynced(ctx, "local_999", serverID); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}

	delta := model.Payload{
		Values: map[string]any{"notes": "added offline"},
		Photos: map[string][]model.RemotePhoto{"fotos_antes": remotePhotos("u1", "u2", "u3", "u4")},
	}
	for range 2 {
		if err := h.orders.MergeRemoteUpdate(ctx, "local_999", delta); err != nil {
			t.Fatalf("MergeRemoteUpdate() error = %v", err)
		}
		got := h.remotePayload(t, "srv_5")
		if want := []string{"u1", "u2", "u3", "u4"}; !slices.Equal(urls(got.Photos["fotos_antes"]), want) {
			t.Errorf("fotos_antes = %v, want %v", urls(got.Photos["fotos_antes"]), want)
		}
		if got.Values["address"] != "Rua A" || got.Values["notes"] != "added offline" {
			t.Errorf("values = %v", got.Values)
		}
	}
}

func TestWorkOrderStore_MergeRemoteUpdateErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	id := h.newOrder(t)
	err := h.orders.MergeRemoteUpdate(ctx, id, model.Payload{})
	if err == nil || !strings.Contains(err.Error(), "no server id") {
		t.Errorf("MergeRemoteUpdate() without server id error = %v", err)
	}

	if err := h.orders.Submit(ctx, id); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := h.orders.MarkSyncing(ctx, id); err != nil {
		t.Fatalf("MarkSyncing() error = %v", err)
	}
	if err := h.orders.MarkSynced(ctx, id, "srv_gone"); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}
	err = h.orders.MergeRemoteUpdate(ctx, id, model.Payload{})
	if fieldsync.KindOf(err) != fieldsync.KindNotFound {
		t.Errorf("MergeRemoteUpdate() of vanished row kind = %s, want %s", fieldsync.KindOf(err), fieldsync.KindNotFound)
	}
}
