// Package httpapi exposes the object store, work-order store and sync engine
// to a local form over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"fieldsync/internal/fieldsync"
	"fieldsync/internal/model"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// maxCaptureSize bounds a multipart capture upload.
const maxCaptureSize = 32 << 20

// Server routes HTTP requests to the fieldsync services.
type Server struct {
	objects *fieldsync.ObjectStore
	orders  *fieldsync.WorkOrderStore
	engine  *fieldsync.Engine
	logger  fieldsync.Logger
	router  *mux.Router
}

// NewServer creates a Server over the given services.
func NewServer(objects *fieldsync.ObjectStore, orders *fieldsync.WorkOrderStore, engine *fieldsync.Engine, logger fieldsync.Logger) *Server {
	if logger == nil {
		logger = fieldsync.NewNopLogger()
	}
	s := &Server{
		objects: objects,
		orders:  orders,
		engine:  engine,
		logger:  logger,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/photos", s.capturePhoto).Methods("POST")
	r.HandleFunc("/photos/{id}", s.getPhoto).Methods("GET")
	r.HandleFunc("/photos/{id}/content", s.photoContent).Methods("GET")
	r.HandleFunc("/owners/{owner}/photos", s.ownerPhotos).Methods("GET")
	r.HandleFunc("/owners/{owner}/reparent", s.reparent).Methods("POST")
	r.HandleFunc("/owners/{owner}/flush", s.flushPhotos).Methods("POST")

	r.HandleFunc("/work-orders", s.saveWorkOrder).Methods("PUT")
	r.HandleFunc("/work-orders/pending", s.pendingWorkOrders).Methods("GET")
	r.HandleFunc("/work-orders/{id}", s.getWorkOrder).Methods("GET")
	r.HandleFunc("/work-orders/{id}", s.deleteWorkOrder).Methods("DELETE")
	r.HandleFunc("/work-orders/{id}/submit", s.submitWorkOrder).Methods("POST")
	r.HandleFunc("/work-orders/{id}/sync", s.syncWorkOrder).Methods("POST")
	r.HandleFunc("/work-orders/{id}/restore-photos", s.restorePhotos).Methods("POST")
	r.HandleFunc("/work-orders/{id}/refresh", s.refreshWorkOrder).Methods("POST")

	r.HandleFunc("/sync", s.syncAll).Methods("POST")
	r.HandleFunc("/sync/status", s.syncStatus).Methods("GET")
	r.HandleFunc("/sync/history", s.syncHistory).Methods("GET")
	r.HandleFunc("/connectivity", s.connectivity).Methods("GET")
}

// Handler returns the router wrapped with an access log written to accessLog.
// A nil accessLog disables access logging.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	var h http.Handler = s.router
	if accessLog != nil {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"` // text for the user
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: string(kind), Message: fieldsync.UserMessage(err)})
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// statusOf maps a failure to an HTTP status and its classification.
func statusOf(err error) (int, fieldsync.Kind) {
	switch {
	case errors.Is(err, fieldsync.ErrSyncInProgress), errors.Is(err, fieldsync.ErrInvalidTransition):
		return http.StatusConflict, fieldsync.KindConflict
	}

	kind := fieldsync.KindOf(err)
	switch kind {
	case fieldsync.KindNotFound:
		return http.StatusNotFound, kind
	case fieldsync.KindConnectivity:
		return http.StatusServiceUnavailable, kind
	case fieldsync.KindStorageQuota:
		return http.StatusInsufficientStorage, kind
	case fieldsync.KindPermission:
		return http.StatusForbidden, kind
	case fieldsync.KindConflict:
		return http.StatusConflict, kind
	case fieldsync.KindConstraint:
		return http.StatusUnprocessableEntity, kind
	}
	return http.StatusInternalServerError, fieldsync.KindUnknown
}

func notFound(op, what string) error {
	return fieldsync.NewError(fieldsync.KindNotFound, op, fmt.Errorf("%s: %w", what, fieldsync.ErrNotFound))
}

// optionalFloat parses a form value that may be absent.
func optionalFloat(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return &v, nil
}

func (s *Server) capturePhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCaptureSize)
	if err := r.ParseMultipartForm(maxCaptureSize); err != nil {
		badRequest(w, "invalid multipart form: %v", err)
		return
	}

	owner := r.FormValue("owner_id")
	fieldType := r.FormValue("field_type")
	if owner == "" || fieldType == "" {
		badRequest(w, "owner_id and field_type are required")
		return
	}
	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil || index < 0 {
		badRequest(w, "invalid index %q", r.FormValue("index"))
		return
	}
	lat, err := optionalFloat(r, "latitude")
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	lon, err := optionalFloat(r, "longitude")
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file")
		return
	}
	defer file.Close()

	rec, err := s.objects.Put(r.Context(), fieldsync.CaptureInput{
		Content:   file,
		OwnerID:   owner,
		FieldType: fieldType,
		Index:     index,
		Latitude:  lat,
		Longitude: lon,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) getPhoto(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.objects.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec == nil {
		s.writeError(w, r, notFound("get photo", "photo "+id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) photoContent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.objects.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec == nil {
		s.writeError(w, r, notFound("get photo", "photo "+id))
		return
	}

	rc, err := s.objects.Open(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("writing photo content", "id", id, "error", err)
	}
}

// ownerPhotos lists the photos of an owner. The optional "known" (comma
// separated or repeated) and "server_id" parameters enable the fallback lookup.
func (s *Server) ownerPhotos(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	q := r.URL.Query()

	var known []string
	for _, v := range q["known"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				known = append(known, id)
			}
		}
	}
	serverID := q.Get("server_id")

	var (
		recs []*model.PhotoRecord
		err  error
	)
	if len(known) == 0 && serverID == "" {
		recs, err = s.objects.GetByOwner(r.Context(), owner)
	} else {
		recs, err = s.objects.GetByOwnerWithFallback(r.Context(), owner, known, serverID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*model.PhotoRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) reparent(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	var req struct {
		NewOwnerID string `json:"new_owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewOwnerID == "" {
		badRequest(w, "new_owner_id is required")
		return
	}

	n, err := s.objects.Reparent(r.Context(), owner, req.NewOwnerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reparented": n})
}

func (s *Server) flushPhotos(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.FlushPhotoQueue(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type workOrderRequest struct {
	ID     string       `json:"id"`
	Status model.Status `json:"status"`
	Fields model.Fields `json:"fields"`
}

func (s *Server) saveWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req workOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON: %v", err)
		return
	}

	order := &model.PendingWorkOrder{ID: req.ID, Status: req.Status, Fields: req.Fields}
	if _, err := s.orders.SaveDraft(r.Context(), order); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) pendingWorkOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.ListPending(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*model.PendingWorkOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) getWorkOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) deleteWorkOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.orders.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) submitWorkOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orders.Submit(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.getWorkOrder(w, r)
}

func (s *Server) syncWorkOrder(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.FlushWorkOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) restorePhotos(w http.ResponseWriter, r *http.Request) {
	n, err := s.orders.RestorePhotoReferences(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"restored": n})
}

func (s *Server) refreshWorkOrder(w http.ResponseWriter, r *http.Request) {
	report, err := s.orders.RefreshFromRemote(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) syncAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.SyncAll(r.Context(), "api")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) syncHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "invalid limit %q", raw)
			return
		}
		limit = n
	}

	runs, err := s.engine.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*model.SyncRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) connectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"online": s.engine.CheckConnectivity(r.Context())})
}
