package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fieldsync/internal/fieldsync"
	"fieldsync/internal/httpapi"
	"fieldsync/internal/model"
	"fieldsync/internal/remote"
	"fieldsync/internal/testutil"
)

type testServer struct {
	handler http.Handler
	network *testutil.StubNetwork
	objects *fieldsync.ObjectStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()
	ids := testutil.NewStubIDGenerator()
	rdb := remote.NewMemoryDatabaseWithIDs(testutil.NewSequenceIDGenerator("srv_1", "srv_2"))
	network := testutil.NewStubNetwork(true)

	objects := fieldsync.NewObjectStore(db, testutil.NewTestContentStore(), nil, clock)
	orders := fieldsync.NewWorkOrderStore(db, objects, rdb, "", nil, clock, ids)
	engine := fieldsync.NewEngine(db, objects, orders, testutil.NewTestVault(), rdb, network, nil, clock, ids, fieldsync.EngineOptions{DeviceID: "test-device"})

	return &testServer{
		handler: httpapi.NewServer(objects, orders, engine, nil).Handler(nil),
		network: network,
		objects: objects,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return s.do(t, method, path, r, "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func captureForm(t *testing.T, fields map[string]string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if content != nil {
		fw, err := mw.CreateFormFile("file", "capture.jpg")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

var jpeg = []byte("\xff\xd8\xff\xe0fotografia")

func (s *testServer) capture(t *testing.T, owner, fieldType, index string) model.PhotoRecord {
	t.Helper()
	body, ct := captureForm(t, map[string]string{"owner_id": owner, "field_type": fieldType, "index": index}, jpeg)
	rec := s.do(t, "POST", "/photos", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /photos = %d %s", rec.Code, rec.Body)
	}
	return decode[model.PhotoRecord](t, rec)
}

func TestCapturePhoto(t *testing.T) {
	s := newTestServer(t)

	body, ct := captureForm(t, map[string]string{
		"owner_id":   "wo1",
		"field_type": "antes",
		"index":      "0",
		"latitude":   "-23.5505",
		"longitude":  "-46.6333",
	}, jpeg)
	rec := s.do(t, "POST", "/photos", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /photos = %d %s", rec.Code, rec.Body)
	}
	photo := decode[model.PhotoRecord](t, rec)
	if photo.ID != "wo1_antes_0_1705314600000" {
		t.Errorf("id = %q, want wo1_antes_0_1705314600000", photo.ID)
	}
	if photo.UTMZone == nil || *photo.UTMZone != "23K" {
		t.Errorf("utm_zone = %v, want 23K", photo.UTMZone)
	}
	if photo.ContentType != "image/jpeg" {
		t.Errorf("content_type = %q, want image/jpeg", photo.ContentType)
	}

	rec = s.doJSON(t, "GET", "/photos/"+photo.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /photos/{id} = %d", rec.Code)
	}
	if got := decode[model.PhotoRecord](t, rec); got.OwnerID != "wo1" || got.Uploaded {
		t.Errorf("GET /photos/{id} = %+v", got)
	}

	rec = s.doJSON(t, "GET", "/photos/"+photo.ID+"/content", "")
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), jpeg) {
		t.Errorf("GET content = %d %q, want original bytes", rec.Code, rec.Body.Bytes())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("content Content-Type = %q", got)
	}

	rec = s.doJSON(t, "GET", "/photos/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET missing photo = %d, want 404", rec.Code)
	}
	if e := decode[errorBody](t, rec); e.Kind != string(fieldsync.KindNotFound) {
		t.Errorf("kind = %q, want %q", e.Kind, fieldsync.KindNotFound)
	}
}

func TestCapturePhoto_BadRequest(t *testing.T) {
	valid := map[string]string{"owner_id": "wo1", "field_type": "antes", "index": "0"}
	with := func(k, v string) map[string]string {
		m := map[string]string{}
		for key, val := range valid {
			m[key] = val
		}
		m[k] = v
		return m
	}

	tests := []struct {
		name    string
		fields  map[string]string
		content []byte
	}{
		{name: "missing owner", fields: with("owner_id", ""), content: jpeg},
		{name: "missing field type", fields: with("field_type", ""), content: jpeg},
		{name: "bad index", fields: with("index", "first"), content: jpeg},
		{name: "negative index", fields: with("index", "-1"), content: jpeg},
		{name: "bad latitude", fields: with("latitude", "south"), content: jpeg},
		{name: "missing file", fields: valid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			body, ct := captureForm(t, tt.fields, tt.content)
			if rec := s.do(t, "POST", "/photos", body, ct); rec.Code != http.StatusBadRequest {
				t.Errorf("POST /photos = %d %s, want 400", rec.Code, rec.Body)
			}
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		s := newTestServer(t)
		if rec := s.doJSON(t, "POST", "/photos", `{}`); rec.Code != http.StatusBadRequest {
			t.Errorf("POST /photos = %d, want 400", rec.Code)
		}
	})
}

func TestWorkOrderFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(t, "PUT", "/work-orders", `{"fields":{"values":{"descricao":"troca de poste"}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /work-orders = %d %s", rec.Code, rec.Body)
	}
	order := decode[model.PendingWorkOrder](t, rec)
	if !fieldsync.IsLocalID(order.ID) || order.Status != model.StatusDraft {
		t.Fatalf("saved order = %+v, want local draft", order)
	}

	photo := s.capture(t, order.ID, "antes", "0")
	update := `{"id":"` + order.ID + `","fields":{"values":{"descricao":"troca de poste"},"photos":{"antes":["` + photo.ID + `"]}}}`
	if rec := s.doJSON(t, "PUT", "/work-orders", update); rec.Code != http.StatusOK {
		t.Fatalf("PUT /work-orders update = %d %s", rec.Code, rec.Body)
	}

	rec = s.doJSON(t, "POST", "/work-orders/"+order.ID+"/submit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d %s", rec.Code, rec.Body)
	}
	if got := decode[model.PendingWorkOrder](t, rec); got.Status != model.StatusPending {
		t.Errorf("status after submit = %q, want pending", got.Status)
	}

	rec = s.doJSON(t, "GET", "/work-orders/pending", "")
	if pending := decode[[]model.PendingWorkOrder](t, rec); len(pending) != 1 {
		t.Fatalf("pending = %d orders, want 1", len(pending))
	}

	rec = s.doJSON(t, "POST", "/work-orders/"+order.ID+"/sync", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sync = %d %s", rec.Code, rec.Body)
	}
	report := decode[fieldsync.FlushReport](t, rec)
	if report.ServerID != "srv_1" || report.Photos.Success != 1 {
		t.Errorf("report = %+v, want srv_1 with 1 photo uploaded", report)
	}

	rec = s.doJSON(t, "GET", "/work-orders/"+order.ID, "")
	if got := decode[model.PendingWorkOrder](t, rec); got.Status != model.StatusSynced || got.ServerID != "srv_1" {
		t.Errorf("order after sync = %+v", got)
	}

	rec = s.doJSON(t, "GET", "/owners/srv_1/photos", "")
	photos := decode[[]model.PhotoRecord](t, rec)
	if len(photos) != 1 || !photos[0].Uploaded || photos[0].RemoteURL == "" {
		t.Errorf("photos of srv_1 = %+v, want 1 uploaded", photos)
	}

	rec = s.doJSON(t, "GET", "/work-orders/pending", "")
	if pending := decode[[]model.PendingWorkOrder](t, rec); len(pending) != 0 {
		t.Errorf("pending after sync = %d, want 0", len(pending))
	}

	rec = s.doJSON(t, "POST", "/work-orders/"+order.ID+"/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d %s", rec.Code, rec.Body)
	}
	if got := decode[fieldsync.RefreshReport](t, rec); got != (fieldsync.RefreshReport{ServerID: "srv_1", Linked: 1}) {
		t.Errorf("refresh report = %+v, want srv_1 with 1 photo matched", got)
	}
}

func TestSyncWorkOrder_Offline(t *testing.T) {
	s := newTestServer(t)
	s.network.SetOnline(false)

	order := decode[model.PendingWorkOrder](t, s.doJSON(t, "PUT", "/work-orders", `{"status":"pending","fields":{}}`))

	rec := s.doJSON(t, "POST", "/work-orders/"+order.ID+"/sync", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("sync offline = %d, want 503", rec.Code)
	}
	e := decode[errorBody](t, rec)
	if e.Kind != string(fieldsync.KindConnectivity) || e.Message == "" {
		t.Errorf("error body = %+v", e)
	}

	rec = s.doJSON(t, "GET", "/sync/status", "")
	status := decode[fieldsync.SyncStatus](t, rec)
	if status.Online || status.PendingCount != 1 {
		t.Errorf("status = %+v, want offline with 1 pending", status)
	}

	rec = s.doJSON(t, "GET", "/connectivity", "")
	if got := decode[map[string]bool](t, rec); got["online"] {
		t.Error("connectivity online = true, want false")
	}
}

func TestWorkOrderErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "get unknown", method: "GET", path: "/work-orders/local_1_missing", want: http.StatusNotFound},
		{name: "submit unknown", method: "POST", path: "/work-orders/local_1_missing/submit", want: http.StatusNotFound},
		{name: "refresh unknown", method: "POST", path: "/work-orders/local_1_missing/refresh", want: http.StatusNotFound},
		{name: "invalid json", method: "PUT", path: "/work-orders", body: `{"fields":`, want: http.StatusBadRequest},
		{name: "synced status rejected", method: "PUT", path: "/work-orders", body: `{"status":"synced"}`, want: http.StatusConflict},
		{name: "reparent without target", method: "POST", path: "/owners/wo1/reparent", body: `{}`, want: http.StatusBadRequest},
		{name: "bad history limit", method: "GET", path: "/sync/history?limit=zero", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			if rec := s.doJSON(t, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("%s %s = %d %s, want %d", tt.method, tt.path, rec.Code, rec.Body, tt.want)
			}
		})
	}
}

func TestOwnerPhotos_Fallback(t *testing.T) {
	s := newTestServer(t)
	photo := s.capture(t, "local_1_abc", "antes", "0")

	rec := s.doJSON(t, "GET", "/owners/srv_9/photos", "")
	if photos := decode[[]model.PhotoRecord](t, rec); len(photos) != 0 {
		t.Fatalf("photos without hints = %d, want 0", len(photos))
	}

	rec = s.doJSON(t, "GET", "/owners/srv_9/photos?known="+photo.ID, "")
	photos := decode[[]model.PhotoRecord](t, rec)
	if len(photos) != 1 || photos[0].ID != photo.ID {
		t.Errorf("photos with known ids = %+v, want %s", photos, photo.ID)
	}
}

func TestReparentAndFlush(t *testing.T) {
	s := newTestServer(t)
	s.capture(t, "local_1_abc", "antes", "0")
	s.capture(t, "local_1_abc", "depois", "0")

	rec := s.doJSON(t, "POST", "/owners/local_1_abc/reparent", `{"new_owner_id":"srv_7"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reparent = %d %s", rec.Code, rec.Body)
	}
	if got := decode[map[string]int](t, rec); got["reparented"] != 2 {
		t.Errorf("reparented = %d, want 2", got["reparented"])
	}

	rec = s.doJSON(t, "POST", "/owners/srv_7/flush", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("flush = %d %s", rec.Code, rec.Body)
	}
	if got := decode[fieldsync.FlushResult](t, rec); got.Success != 2 || got.Failed != 0 {
		t.Errorf("flush = %+v, want 2 successes", got)
	}
}

func TestSyncAllAndHistory(t *testing.T) {
	s := newTestServer(t)
	s.doJSON(t, "PUT", "/work-orders", `{"status":"pending","fields":{"values":{"n":1}}}`)

	rec := s.doJSON(t, "POST", "/sync", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /sync = %d %s", rec.Code, rec.Body)
	}
	if got := decode[fieldsync.FlushResult](t, rec); got.Success != 1 {
		t.Errorf("sync = %+v, want 1 success", got)
	}

	rec = s.doJSON(t, "GET", "/sync/history?limit=5", "")
	runs := decode[[]model.SyncRun](t, rec)
	if len(runs) != 1 || runs[0].Trigger != "api" || runs[0].Status != "success" {
		t.Errorf("history = %+v, want one successful api run", runs)
	}
}

func TestAccessLog(t *testing.T) {
	s := newTestServer(t)
	var logBuf bytes.Buffer
	h := httpapi.NewServer(s.objects, nil, nil, nil).Handler(&logBuf)

	req := httptest.NewRequest("GET", "/photos/nope", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(logBuf.String(), `"GET /photos/nope HTTP/1.1" 404`) {
		t.Errorf("access log = %q", logBuf.String())
	}
}
