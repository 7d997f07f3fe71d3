package model

import (
	"maps"
	"slices"
	"time"
)

// PhotoRecord is one captured image or document held in the local object store.
// The ID keeps the owner it was captured under even after the record is
// reparented, which is why lookups fall back to the (FieldType, Index) pair.
type PhotoRecord struct {
	ID          string     `json:"id"`                   // {ownerID}_{fieldType}_{index}_{unixMillis}
	OwnerID     string     `json:"owner_id"`             // work order the photo currently belongs to
	FieldType   string     `json:"field_type"`           // logical slot, e.g. "antes" or "doc_apr"
	Index       int        `json:"index"`                // position within the slot
	LocalPath   string     `json:"local_path,omitempty"` // content store key; empty once purged
	RemoteURL   string     `json:"remote_url,omitempty"`
	Uploaded    bool       `json:"uploaded"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	UTMX        *float64   `json:"utm_x"`
	UTMY        *float64   `json:"utm_y"`
	UTMZone     *string    `json:"utm_zone"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	Checksum    string     `json:"checksum"` // SHA-256 of the stored bytes
	Encrypted   bool       `json:"encrypted"`
	Retries     int        `json:"retries"`
	LastError   string     `json:"last_error,omitempty"`
	LastRetryAt *time.Time `json:"last_retry_at,omitempty"`
	CapturedAt  time.Time  `json:"captured_at"`
	UploadedAt  *time.Time `json:"uploaded_at,omitempty"`
}

// IsZombie reports whether the record claims to be uploaded but has no URL.
func (p *PhotoRecord) IsZombie() bool {
	return p.Uploaded && p.RemoteURL == ""
}

// NeedsUpload reports whether the record still has to reach remote storage.
func (p *PhotoRecord) NeedsUpload() bool {
	return !p.Uploaded || p.RemoteURL == ""
}

// Status is the sync state of a pending work order.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
	StatusSynced  Status = "synced"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusSyncing, StatusFailed, StatusSynced:
		return true
	}
	return false
}

// PendingWorkOrder is a work order draft or submission tracked for sync.
// ID is the local primary key; ServerID is retained alongside it once the
// remote database has assigned one.
type PendingWorkOrder struct {
	ID            string     `json:"id"`
	ServerID      string     `json:"server_id,omitempty"`
	Status        Status     `json:"status"`
	Fields        Fields     `json:"fields"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	MissingPhotos []string   `json:"missing_photos,omitempty"`
	SyncAttempts  int        `json:"sync_attempts"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
}

// Fields is the form payload of a work order.
// Photos maps a field type to its ordered photo ids. Collections hold dynamic
// sub-records (e.g. "postes") in the order the form rendered them.
type Fields struct {
	Values      map[string]any         `json:"values,omitempty"`
	Photos      map[string][]string    `json:"photos,omitempty"`
	Collections map[string][]SubRecord `json:"collections,omitempty"`
}

// SubRecord is one entry of a dynamic collection with its own photo slots.
type SubRecord struct {
	ID     string              `json:"id"`
	Values map[string]any      `json:"values,omitempty"`
	Photos map[string][]string `json:"photos,omitempty"`
}

// PhotoIDs returns every photo id referenced by the fields, top-level slots
// first, in slot then insertion order. Duplicates are kept.
func (f Fields) PhotoIDs() []string {
	var ids []string
	for _, slot := range slices.Sorted(maps.Keys(f.Photos)) {
		ids = append(ids, f.Photos[slot]...)
	}
	for _, name := range slices.Sorted(maps.Keys(f.Collections)) {
		for _, sub := range f.Collections[name] {
			for _, slot := range slices.Sorted(maps.Keys(sub.Photos)) {
				ids = append(ids, sub.Photos[slot]...)
			}
		}
	}
	return ids
}

// RemotePhoto is the representation of an uploaded photo in a remote row.
type RemotePhoto struct {
	URL       string   `json:"url"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	UTMX      *float64 `json:"utm_x"`
	UTMY      *float64 `json:"utm_y"`
	UTMZone   *string  `json:"utm_zone"`
}

// RemoteSubRecord is a collection entry with photo ids resolved to remote photos.
type RemoteSubRecord struct {
	ID     string                   `json:"id"`
	Values map[string]any           `json:"values,omitempty"`
	Photos map[string][]RemotePhoto `json:"photos,omitempty"`
}

// Payload is the document written to the remote database for a work order.
// Photo slot keys use the remote column naming ("fotos_antes", "doc_apr").
type Payload struct {
	Values      map[string]any               `json:"values"`
	Photos      map[string][]RemotePhoto     `json:"photos"`
	Collections map[string][]RemoteSubRecord `json:"collections"`
}

// SyncRun records one engine run over the pending queue.
type SyncRun struct {
	ID         int64      `json:"id"`
	Trigger    string     `json:"trigger"` // "manual", "auto", "reconnect", "api"
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Success    int        `json:"success"`
	Failed     int        `json:"failed"`
	Status     string     `json:"status"` // "running", "success", "partial", "error"
}

// StorageStats summarizes the local object store.
type StorageStats struct {
	TotalPhotos    int   `json:"total_photos"`
	PendingPhotos  int   `json:"pending_photos"`
	UploadedPhotos int   `json:"uploaded_photos"`
	TotalBytes     int64 `json:"total_bytes"`
	PendingBytes   int64 `json:"pending_bytes"`
	UploadedBytes  int64 `json:"uploaded_bytes"`
}
