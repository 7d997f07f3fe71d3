package fieldsync_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"fieldsync/internal/fieldsync"
	"fieldsync/internal/model"
	"fieldsync/internal/remote"
	"fieldsync/internal/testutil"
	"fieldsync/internal/vault"
)

// harness wires every component of the sync core over in-memory backends.
type harness struct {
	db       fieldsync.Database
	content  fieldsync.ContentStore
	clock    *testutil.StubClock
	ids      *testutil.StubIDGenerator
	objects  *fieldsync.ObjectStore
	orders   *fieldsync.WorkOrderStore
	vault    *vault.MemoryVault
	storage  *testutil.FlakyStorage
	remoteDB *remote.MemoryDatabase
	remote   *testutil.FailingRemote
	network  *testutil.StubNetwork
	engine   *fieldsync.Engine
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	serverIDs []string
	opts      fieldsync.EngineOptions
	online    bool
}

// withServerIDs makes the remote database assign ids in the given order.
func withServerIDs(ids ...string) harnessOption {
	return func(c *harnessConfig) { c.serverIDs = ids }
}

func withEngineOptions(opts fieldsync.EngineOptions) harnessOption {
	return func(c *harnessConfig) { c.opts = opts }
}

func startOffline() harnessOption {
	return func(c *harnessConfig) { c.online = false }
}

func newHarness(t *testing.T, options ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{online: true, opts: fieldsync.EngineOptions{DeviceID: "test-device"}}
	for _, o := range options {
		o(&cfg)
	}

	h := &harness{
		db:       testutil.NewTestDatabase(t),
		content:  testutil.NewTestContentStore(),
		clock:    testutil.FixedClock(),
		ids:      testutil.NewStubIDGenerator(),
		vault:    testutil.NewTestVault(),
		remoteDB: remote.NewMemoryDatabaseWithIDs(testutil.NewSequenceIDGenerator(cfg.serverIDs...)),
		network:  testutil.NewStubNetwork(cfg.online),
	}
	h.storage = testutil.NewFlakyStorage(h.vault)
	h.remote = testutil.NewFailingRemote(h.remoteDB)
	h.objects = fieldsync.NewObjectStore(h.db, h.content, nil, h.clock)
	h.orders = fieldsync.NewWorkOrderStore(h.db, h.objects, h.remote, "", nil, h.clock, h.ids)
	h.engine = fieldsync.NewEngine(h.db, h.objects, h.orders, h.storage, h.remote, h.network, nil, h.clock, h.ids, cfg.opts)
	return h
}

func jpegBytes(name string) []byte {
	return append([]byte("\xff\xd8\xff\xe0"), name...)
}

// capture stores a photo for owner and advances the clock by a second.
func (h *harness) capture(t *testing.T, owner, fieldType string, index int) *model.PhotoRecord {
	t.Helper()
	rec, err := h.objects.Put(context.Background(), fieldsync.CaptureInput{
		Content:   bytes.NewReader(jpegBytes(owner + fieldType)),
		OwnerID:   owner,
		FieldType: fieldType,
		Index:     index,
	})
	if err != nil {
		t.Fatalf("Put(%s, %s, %d) error = %v", owner, fieldType, index, err)
	}
	h.clock.Advance(time.Second)
	return rec
}

// newOrder creates a draft with a generated local id.
func (h *harness) newOrder(t *testing.T) string {
	t.Helper()
	id, err := h.orders.SaveDraft(context.Background(), &model.PendingWorkOrder{})
	if err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	return id
}

// submit saves fields for id with status pending.
func (h *harness) submit(t *testing.T, id string, fields model.Fields) {
	t.Helper()
	_, err := h.orders.SaveDraft(context.Background(), &model.PendingWorkOrder{
		ID:     id,
		Status: model.StatusPending,
		Fields: fields,
	})
	if err != nil {
		t.Fatalf("SaveDraft(%s) error = %v", id, err)
	}
}

// pendingOrder creates a pending work order whose slots hold freshly
// captured photos, counts[slot] of each.
func (h *harness) pendingOrder(t *testing.T, counts map[string]int) (string, []*model.PhotoRecord) {
	t.Helper()
	id := h.newOrder(t)
	fields := model.Fields{Photos: make(map[string][]string)}
	var recs []*model.PhotoRecord
	for slot, n := range counts {
		for i := range n {
			rec := h.capture(t, id, slot, i)
			fields.Photos[slot] = append(fields.Photos[slot], rec.ID)
			recs = append(recs, rec)
		}
	}
	h.submit(t, id, fields)
	return id, recs
}

func (h *harness) order(t *testing.T, id string) *model.PendingWorkOrder {
	t.Helper()
	order, err := h.orders.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return order
}

// remotePayload decodes the fields of the remote row with the given id.
func (h *harness) remotePayload(t *testing.T, serverID string) model.Payload {
	t.Helper()
	rows, err := h.remoteDB.Select(context.Background(), fieldsync.DefaultRemoteTable, fieldsync.Row{"id": serverID})
	if err != nil {
		t.Fatalf("Select(%s) error = %v", serverID, err)
	}
	if len(rows) != 1 {
		t.Fatalf("Select(%s) returned %d rows, want 1", serverID, len(rows))
	}
	payload, err := fieldsync.PayloadFromRow(rows[0])
	if err != nil {
		t.Fatalf("PayloadFromRow() error = %v", err)
	}
	return payload
}

func urls(photos []model.RemotePhoto) []string {
	out := make([]string, 0, len(photos))
	for _, p := range photos {
		out = append(out, p.URL)
	}
	return out
}
