package fieldsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"fieldsync/internal/geo"
	"fieldsync/internal/model"
)

// maxIDBumps bounds how far Put shifts a capture timestamp to avoid an id collision.
const maxIDBumps = 1000

// ObjectStore is the local object store: captured content plus its
// geolocation metadata, addressable by id and by owner.
type ObjectStore struct {
	database   Database
	content    ContentStore
	compressor Compressor
	encryptor  Encryptor
	decryption DecryptionContext
	logger     Logger
	clock      Clock
}

// NewObjectStore creates an ObjectStore over the given metadata database and content store.
func NewObjectStore(database Database, content ContentStore, logger Logger, clock Clock) *ObjectStore {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &ObjectStore{
		database: database,
		content:  content,
		logger:   logger,
		clock:    clock,
	}
}

// WithCompressor makes Put shrink content before storing it.
func (s *ObjectStore) WithCompressor(c Compressor) *ObjectStore {
	s.compressor = c
	return s
}

// WithEncryption makes Put encrypt content at rest. dc may be nil when the
// private key has not been unlocked; Open then fails for encrypted records.
func (s *ObjectStore) WithEncryption(enc Encryptor, dc DecryptionContext) *ObjectStore {
	s.encryptor = enc
	s.decryption = dc
	return s
}

// CaptureInput is what a capture hands to Put.
type CaptureInput struct {
	Content   io.Reader
	OwnerID   string
	FieldType string
	Index     int
	Latitude  *float64
	Longitude *float64
}

// Put persists captured content and its metadata and returns the new record.
// Content is written first; if the metadata write fails the content is
// removed again. Failures are returned as classified *Error values.
func (s *ObjectStore) Put(ctx context.Context, in CaptureInput) (*model.PhotoRecord, error) {
	if err := validateSlot(in.OwnerID, in.FieldType, in.Index); err != nil {
		return nil, err
	}
	if in.Content == nil {
		return nil, errors.New("capture has no content")
	}

	data, err := io.ReadAll(in.Content)
	if err != nil {
		return nil, NewError(KindOf(err), "put photo", fmt.Errorf("reading content: %w", err))
	}
	contentType := http.DetectContentType(data)

	if s.compressor != nil {
		compressed, ct, err := s.compressor.Compress(data, contentType)
		if err != nil {
			s.logger.Warn("compression failed, storing original", "owner", in.OwnerID, "field", in.FieldType, "error", err)
		} else {
			data, contentType = compressed, ct
		}
	}

	id, capturedAt, err := s.nextPhotoID(ctx, in.OwnerID, in.FieldType, in.Index)
	if err != nil {
		return nil, err
	}

	rec := &model.PhotoRecord{
		ID:          id,
		OwnerID:     in.OwnerID,
		FieldType:   in.FieldType,
		Index:       in.Index,
		LocalPath:   id,
		ContentType: contentType,
		Size:        int64(len(data)),
		CapturedAt:  capturedAt,
	}
	s.tagLocation(rec, in.Latitude, in.Longitude)

	var body io.Reader = bytes.NewReader(data)
	if s.encryptor != nil {
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(data), &buf); err != nil {
			return nil, NewError(KindUnknown, "put photo", fmt.Errorf("encrypting content: %w", err))
		}
		body = &buf
		rec.Encrypted = true
	}

	_, checksum, err := s.content.Put(rec.LocalPath, body)
	if err != nil {
		return nil, NewError(KindOf(err), "put photo", fmt.Errorf("storing content: %w", err))
	}
	rec.Checksum = checksum

	if err := s.database.InsertPhoto(ctx, rec); err != nil {
		if rmErr := s.content.Remove(rec.LocalPath); rmErr != nil {
			s.logger.Warn("removing orphaned content", "id", rec.ID, "error", rmErr)
		}
		return nil, NewError(KindOf(err), "put photo", fmt.Errorf("recording photo: %w", err))
	}

	s.logger.Info("photo captured", "id", rec.ID, "owner", rec.OwnerID, "size", rec.Size, "utm_zone", deref(rec.UTMZone))
	return rec, nil
}

// nextPhotoID returns an unused id for the slot, shifting the timestamp by a
// millisecond at a time when two captures land in the same millisecond.
func (s *ObjectStore) nextPhotoID(ctx context.Context, ownerID, fieldType string, index int) (string, time.Time, error) {
	at := s.clock.Now().UTC().Truncate(time.Millisecond)
	for range maxIDBumps {
		id := PhotoID(ownerID, fieldType, index, at)
		existing, err := s.database.FindPhotoByID(ctx, id)
		if err != nil {
			return "", time.Time{}, NewError(KindOf(err), "put photo", fmt.Errorf("checking photo id: %w", err))
		}
		if existing == nil {
			return id, at, nil
		}
		at = at.Add(time.Millisecond)
	}
	return "", time.Time{}, NewError(KindConflict, "put photo", fmt.Errorf("no free photo id for %s_%s_%d", ownerID, fieldType, index))
}

// tagLocation stores raw coordinates and, when both are present and inside
// UTM coverage, the projected position.
func (s *ObjectStore) tagLocation(rec *model.PhotoRecord, lat, lon *float64) {
	rec.Latitude = lat
	rec.Longitude = lon
	if lat == nil || lon == nil {
		return
	}
	pos, err := geo.FromLatLon(*lat, *lon)
	if err != nil {
		s.logger.Warn("skipping UTM projection", "id", rec.ID, "error", err)
		return
	}
	zone := pos.Zone()
	rec.UTMX = &pos.Easting
	rec.UTMY = &pos.Northing
	rec.UTMZone = &zone
}

// Get returns the record with the given id, or nil if there is none.
func (s *ObjectStore) Get(ctx context.Context, id string) (*model.PhotoRecord, error) {
	rec, err := s.database.FindPhotoByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding photo %s: %w", id, err)
	}
	return rec, nil
}

// GetByOwner returns the records currently owned by ownerID.
func (s *ObjectStore) GetByOwner(ctx context.Context, ownerID string) ([]*model.PhotoRecord, error) {
	recs, err := s.database.FindPhotosByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("finding photos for %s: %w", ownerID, err)
	}
	return recs, nil
}

// GetByOwnerWithFallback returns the records of ownerID plus every record
// knownIDs resolve to, each at most once. Records owned by ownerID or
// serverIDHint come first, then records resolved from knownIDs in their
// order. Unresolved ids are left out; lookup failures are logged and yield
// partial results.
func (s *ObjectStore) GetByOwnerWithFallback(ctx context.Context, ownerID string, knownIDs []string, serverIDHint string) ([]*model.PhotoRecord, error) {
	r := s.newResolver(ctx, ownerID, knownIDs, serverIDHint)

	seen := make(map[string]bool)
	var out []*model.PhotoRecord
	add := func(rec *model.PhotoRecord) {
		if rec == nil || seen[rec.ID] {
			return
		}
		seen[rec.ID] = true
		out = append(out, rec)
	}

	for _, rec := range r.owned {
		add(rec)
	}
	for _, res := range r.resolve(ctx, knownIDs) {
		add(res.Record)
	}
	return out, nil
}

// Resolution is the outcome of resolving one photo id.
type Resolution struct {
	ID       string
	Record   *model.PhotoRecord
	NotFound bool
}

// ResolveIDs resolves each id in ids for a work order identified by ownerID
// (and serverIDHint once it has one). The result has one entry per id, in
// order; ids that cannot be resolved are flagged NotFound.
func (s *ObjectStore) ResolveIDs(ctx context.Context, ownerID string, ids []string, serverIDHint string) ([]Resolution, error) {
	r := s.newResolver(ctx, ownerID, ids, serverIDHint)
	return r.resolve(ctx, ids), nil
}

// Reparent moves every record owned by oldOwnerID, and every record whose id
// was captured under oldOwnerID unless another work order owns it now, to
// newOwnerID. The change is committed
// before Reparent returns. A repeated call returns 0.
func (s *ObjectStore) Reparent(ctx context.Context, oldOwnerID, newOwnerID string) (int, error) {
	if oldOwnerID == "" || newOwnerID == "" {
		return 0, errors.New("reparent requires both owner ids")
	}
	if oldOwnerID == newOwnerID {
		return 0, nil
	}

	n, err := s.database.ReparentPhotos(ctx, oldOwnerID, newOwnerID)
	if err != nil {
		return 0, NewError(KindOf(err), "reparent photos", err)
	}
	if n > 0 {
		s.logger.Info("photos reparented", "from", oldOwnerID, "to", newOwnerID, "count", n)
	}
	return n, nil
}

// MarkUploaded records that the photo is available at url.
func (s *ObjectStore) MarkUploaded(ctx context.Context, id, url string) error {
	if url == "" {
		return fmt.Errorf("marking %s uploaded: empty url", id)
	}
	if err := s.database.MarkPhotoUploaded(ctx, id, url, s.clock.Now()); err != nil {
		return fmt.Errorf("marking %s uploaded: %w", id, err)
	}
	return nil
}

// AdoptRemote records a photo that only exists in remote storage, such as
// one uploaded from another device, under ownerID. The record has no local
// content and never needs uploading.
func (s *ObjectStore) AdoptRemote(ctx context.Context, ownerID, fieldType string, index int, photo model.RemotePhoto) (*model.PhotoRecord, error) {
	if err := validateSlot(ownerID, fieldType, index); err != nil {
		return nil, err
	}
	if photo.URL == "" {
		return nil, fmt.Errorf("adopting %s_%s_%d: empty url", ownerID, fieldType, index)
	}

	id, at, err := s.nextPhotoID(ctx, ownerID, fieldType, index)
	if err != nil {
		return nil, err
	}
	rec := &model.PhotoRecord{
		ID:         id,
		OwnerID:    ownerID,
		FieldType:  fieldType,
		Index:      index,
		RemoteURL:  photo.URL,
		Uploaded:   true,
		Latitude:   photo.Latitude,
		Longitude:  photo.Longitude,
		UTMX:       photo.UTMX,
		UTMY:       photo.UTMY,
		UTMZone:    photo.UTMZone,
		CapturedAt: at,
		UploadedAt: &at,
	}
	if err := s.database.InsertPhoto(ctx, rec); err != nil {
		return nil, NewError(KindOf(err), "adopt remote photo", fmt.Errorf("recording photo: %w", err))
	}
	s.logger.Debug("remote photo adopted", "id", rec.ID, "url", rec.RemoteURL)
	return rec, nil
}

// RecordUploadFailure bumps the retry counter of a photo and keeps the cause.
func (s *ObjectStore) RecordUploadFailure(ctx context.Context, id string, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	if err := s.database.RecordPhotoFailure(ctx, id, reason, s.clock.Now()); err != nil {
		return fmt.Errorf("recording upload failure for %s: %w", id, err)
	}
	return nil
}

// ListUnsynced returns records of ownerID that still need uploading,
// including records marked uploaded without a URL. An empty ownerID
// lists every owner.
func (s *ObjectStore) ListUnsynced(ctx context.Context, ownerID string) ([]*model.PhotoRecord, error) {
	recs, err := s.database.FindUnsyncedPhotos(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing unsynced photos: %w", err)
	}
	return recs, nil
}

// ResetZombies clears the uploaded flag on records that have no URL so the
// next flush uploads them again.
func (s *ObjectStore) ResetZombies(ctx context.Context) (int, error) {
	n, err := s.database.ResetZombiePhotos(ctx)
	if err != nil {
		return 0, fmt.Errorf("resetting zombie photos: %w", err)
	}
	if n > 0 {
		s.logger.Warn("zombie photos reset", "count", n)
	}
	return n, nil
}

// Open returns the plaintext content of rec.
func (s *ObjectStore) Open(ctx context.Context, rec *model.PhotoRecord) (io.ReadCloser, error) {
	if rec.LocalPath == "" {
		return nil, NewError(KindNotFound, "open photo", fmt.Errorf("content of %s was purged: %w", rec.ID, ErrNotFound))
	}

	rc, err := s.content.Open(rec.LocalPath)
	if err != nil {
		return nil, NewError(KindOf(err), "open photo", fmt.Errorf("opening content of %s: %w", rec.ID, err))
	}
	if !rec.Encrypted {
		return rc, nil
	}
	defer rc.Close()

	if s.decryption == nil {
		return nil, NewError(KindPermission, "open photo", fmt.Errorf("content of %s is encrypted and no key is unlocked", rec.ID))
	}
	var buf bytes.Buffer
	if err := s.decryption.Decrypt(rc, &buf); err != nil {
		return nil, fmt.Errorf("decrypting content of %s: %w", rec.ID, err)
	}
	return io.NopCloser(&buf), nil
}

// PurgeContent removes the local bytes of a photo and keeps its metadata.
// Records that are not uploaded are only purged when force is set.
func (s *ObjectStore) PurgeContent(ctx context.Context, id string, force bool) error {
	rec, err := s.database.FindPhotoByID(ctx, id)
	if err != nil {
		return fmt.Errorf("finding photo %s: %w", id, err)
	}
	if rec == nil {
		return NewError(KindNotFound, "purge photo", fmt.Errorf("photo %s: %w", id, ErrNotFound))
	}
	return s.purge(ctx, rec, force)
}

// PurgeUploaded purges the local bytes of every uploaded record of ownerID.
func (s *ObjectStore) PurgeUploaded(ctx context.Context, ownerID string) (int, error) {
	recs, err := s.GetByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range recs {
		if rec.NeedsUpload() || rec.LocalPath == "" {
			continue
		}
		if err := s.purge(ctx, rec, false); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *ObjectStore) purge(ctx context.Context, rec *model.PhotoRecord, force bool) error {
	if rec.NeedsUpload() && !force {
		return fmt.Errorf("photo %s is not uploaded", rec.ID)
	}
	if rec.LocalPath == "" {
		return nil
	}
	if err := s.content.Remove(rec.LocalPath); err != nil {
		return fmt.Errorf("removing content of %s: %w", rec.ID, err)
	}
	if err := s.database.ClearPhotoContent(ctx, rec.ID); err != nil {
		return fmt.Errorf("clearing content of %s: %w", rec.ID, err)
	}
	s.logger.Info("photo content purged", "id", rec.ID)
	return nil
}

// Delete removes a photo's metadata and content.
func (s *ObjectStore) Delete(ctx context.Context, id string) error {
	rec, err := s.database.FindPhotoByID(ctx, id)
	if err != nil {
		return fmt.Errorf("finding photo %s: %w", id, err)
	}
	if rec == nil {
		return NewError(KindNotFound, "delete photo", fmt.Errorf("photo %s: %w", id, ErrNotFound))
	}

	if err := s.database.DeletePhoto(ctx, id); err != nil {
		return fmt.Errorf("deleting photo %s: %w", id, err)
	}
	if rec.LocalPath != "" {
		if err := s.content.Remove(rec.LocalPath); err != nil {
			s.logger.Warn("removing deleted photo content", "id", id, "error", err)
		}
	}
	s.logger.Info("photo deleted", "id", id)
	return nil
}

// Stats summarizes the store.
func (s *ObjectStore) Stats(ctx context.Context) (*model.StorageStats, error) {
	stats, err := s.database.PhotoStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing photo stats: %w", err)
	}
	return stats, nil
}

func validateSlot(ownerID, fieldType string, index int) error {
	switch {
	case ownerID == "":
		return errors.New("capture requires an owner id")
	case fieldType == "":
		return errors.New("capture requires a field type")
	case strings.ContainsAny(ownerID+fieldType, "/\\"):
		return fmt.Errorf("owner id and field type must not contain path separators: %s/%s", ownerID, fieldType)
	case index < 0:
		return fmt.Errorf("negative photo index %d", index)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// resolver maps photo ids to stored records for one owner.
type resolver struct {
	store     *ObjectStore
	owned     []*model.PhotoRecord
	preferred map[string]bool // owner ids that win fallback ties
	byID      map[string]*model.PhotoRecord
	claimed   map[string]bool // record ids already handed to a known id
}

func (s *ObjectStore) newResolver(ctx context.Context, ownerID string, ids []string, serverIDHint string) *resolver {
	r := &resolver{
		store:     s,
		preferred: make(map[string]bool),
		byID:      make(map[string]*model.PhotoRecord),
		claimed:   make(map[string]bool),
	}

	// (a) exact owner, (b) server id hint
	for _, owner := range []string{ownerID, serverIDHint} {
		if owner == "" || r.preferred[owner] {
			continue
		}
		r.preferred[owner] = true
		recs, err := s.database.FindPhotosByOwner(ctx, owner)
		if err != nil {
			s.logger.Warn("owner lookup failed", "owner", owner, "error", err)
			continue
		}
		for _, rec := range recs {
			r.owned = append(r.owned, rec)
			r.byID[rec.ID] = rec
		}
	}

	// Owners embedded in the known ids also count as preferred.
	for _, id := range ids {
		if parts, ok := parsePhotoID(id); ok {
			for _, c := range parts.candidates() {
				r.preferred[c.ownerID] = true
			}
		}
	}
	return r
}

func (r *resolver) resolve(ctx context.Context, ids []string) []Resolution {
	// (c) direct id lookup for everything not already known
	var missing []string
	for _, id := range ids {
		if _, ok := r.byID[id]; !ok && !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		recs, err := r.store.database.FindPhotosByIDs(ctx, missing)
		if err != nil {
			r.store.logger.Warn("photo id lookup failed", "count", len(missing), "error", err)
		}
		for _, rec := range recs {
			r.byID[rec.ID] = rec
		}
	}

	out := make([]Resolution, len(ids))
	assigned := make(map[string]*model.PhotoRecord)

	for i, id := range ids {
		out[i].ID = id
		if rec, ok := r.byID[id]; ok {
			out[i].Record = rec
			assigned[id] = rec
			r.claimed[rec.ID] = true
		}
	}

	// (d) type/index fallback for what is left
	for i, id := range ids {
		if out[i].Record != nil {
			continue
		}
		if rec, ok := assigned[id]; ok {
			out[i].Record = rec
			continue
		}
		rec := r.matchSlot(ctx, id)
		if rec == nil {
			out[i].NotFound = true
			continue
		}
		r.claimed[rec.ID] = true
		assigned[id] = rec
		out[i].Record = rec
		r.store.logger.Debug("photo resolved by slot", "id", id, "record", rec.ID)
	}
	return out
}

func (r *resolver) matchSlot(ctx context.Context, id string) *model.PhotoRecord {
	parts, ok := parsePhotoID(id)
	if !ok {
		return nil
	}
	cands := parts.candidates()
	fieldTypes := make([]string, 0, len(cands))
	for _, c := range cands {
		fieldTypes = append(fieldTypes, c.fieldType)
	}

	recs, err := r.store.database.FindPhotosBySlot(ctx, fieldTypes, parts.index)
	if err != nil {
		r.store.logger.Warn("slot lookup failed", "id", id, "error", err)
		return nil
	}

	var best *model.PhotoRecord
	for _, rec := range recs {
		if r.claimed[rec.ID] || !slices.Contains(fieldTypes, rec.FieldType) {
			continue
		}
		if best == nil || r.better(rec, best, parts.millis) {
			best = rec
		}
	}
	return best
}

// better reports whether a ranks above b as the match for a photo captured at millis.
func (r *resolver) better(a, b *model.PhotoRecord, millis int64) bool {
	if pa, pb := r.preferred[a.OwnerID], r.preferred[b.OwnerID]; pa != pb {
		return pa
	}
	if len(a.FieldType) != len(b.FieldType) {
		return len(a.FieldType) > len(b.FieldType)
	}
	da, db := distance(a.CapturedAt.UnixMilli(), millis), distance(b.CapturedAt.UnixMilli(), millis)
	if da != db {
		return da < db
	}
	return a.ID < b.ID
}

func distance(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
