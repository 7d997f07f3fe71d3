package fieldsync

import (
	"context"
	"time"

	"fieldsync/internal/model"
)

// Database provides local metadata storage for photos, work orders and sync runs.
// Implementations must make every write atomic; lookups that find nothing
// return nil without an error.
type Database interface {
	// Photo operations

	// InsertPhoto stores a new photo record. The id must be unique.
	InsertPhoto(ctx context.Context, photo *model.PhotoRecord) error

	// FindPhotoByID returns the record with the given id.
	FindPhotoByID(ctx context.Context, id string) (*model.PhotoRecord, error)

	// FindPhotosByIDs returns the records matching ids, in no particular order.
	FindPhotosByIDs(ctx context.Context, ids []string) ([]*model.PhotoRecord, error)

	// FindPhotosByOwner returns the records owned by ownerID ordered by
	// field type, index and capture time.
	FindPhotosByOwner(ctx context.Context, ownerID string) ([]*model.PhotoRecord, error)

	// FindPhotosBySlot returns records whose field type is one of fieldTypes
	// and whose index equals index, regardless of owner.
	FindPhotosBySlot(ctx context.Context, fieldTypes []string, index int) ([]*model.PhotoRecord, error)

	// FindUnsyncedPhotos returns records that are not uploaded or that are
	// marked uploaded without a URL. An empty ownerID matches every owner.
	FindUnsyncedPhotos(ctx context.Context, ownerID string) ([]*model.PhotoRecord, error)

	// ReparentPhotos moves records owned by oldOwnerID, and records whose id
	// carries the oldOwnerID prefix while no other work order owns them, to
	// newOwnerID. Returns the number moved.
	ReparentPhotos(ctx context.Context, oldOwnerID, newOwnerID string) (int, error)

	// MarkPhotoUploaded records the remote URL of an uploaded photo.
	MarkPhotoUploaded(ctx context.Context, id, url string, at time.Time) error

	// RecordPhotoFailure increments the retry counter and keeps the reason.
	RecordPhotoFailure(ctx context.Context, id, reason string, at time.Time) error

	// ResetZombiePhotos clears the uploaded flag on records without a URL.
	ResetZombiePhotos(ctx context.Context) (int, error)

	// ClearPhotoContent forgets the local content key of a record.
	ClearPhotoContent(ctx context.Context, id string) error

	// DeletePhoto removes a record.
	DeletePhoto(ctx context.Context, id string) error

	// PhotoStats summarizes stored records.
	PhotoStats(ctx context.Context) (*model.StorageStats, error)

	// Work order operations

	// UpsertWorkOrder inserts or updates a work order by id. An existing
	// server id and creation time are never overwritten. Returns the stored row.
	UpsertWorkOrder(ctx context.Context, order *model.PendingWorkOrder) (*model.PendingWorkOrder, error)

	// FindWorkOrder returns the work order with the given local id.
	FindWorkOrder(ctx context.Context, id string) (*model.PendingWorkOrder, error)

	// FindWorkOrderByServerID returns the work order carrying serverID.
	FindWorkOrderByServerID(ctx context.Context, serverID string) (*model.PendingWorkOrder, error)

	// ListWorkOrders returns work orders in any of statuses (all when empty),
	// oldest first.
	ListWorkOrders(ctx context.Context, statuses ...model.Status) ([]*model.PendingWorkOrder, error)

	// TransitionWorkOrder applies t atomically. The status only changes when
	// the current status is in t.From; the other columns follow t.Sticky.
	// Returns the stored row (nil if missing) and whether the status changed.
	TransitionWorkOrder(ctx context.Context, id string, t Transition) (*model.PendingWorkOrder, bool, error)

	// UpdateWorkOrderFields replaces the fields of a work order.
	UpdateWorkOrderFields(ctx context.Context, id string, fields model.Fields, at time.Time) error

	// SetMissingPhotos records photo ids a flush could not resolve.
	SetMissingPhotos(ctx context.Context, id string, ids []string) error

	// DemoteStaleSyncing moves work orders stuck in syncing since before
	// cutoff back to pending. Returns the number demoted.
	DemoteStaleSyncing(ctx context.Context, cutoff, at time.Time) (int, error)

	// DeleteWorkOrder removes a work order.
	DeleteWorkOrder(ctx context.Context, id string) error

	// Sync run tracking

	CreateSyncRun(ctx context.Context, trigger string, at time.Time) (*model.SyncRun, error)
	FinishSyncRun(ctx context.Context, id int64, success, failed int, status string, at time.Time) error
	ListSyncRuns(ctx context.Context, limit int) ([]*model.SyncRun, error)

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(ctx context.Context, destPath string) error

	// Close closes the database connection.
	Close() error
}

// Transition describes a guarded work order status change.
type Transition struct {
	From []model.Status
	To   model.Status

	ServerID          string  // stored when non-empty
	ErrorMessage      *string // stored when non-nil
	IncrementAttempts bool
	LastSyncAt        *time.Time
	At                time.Time

	// Sticky applies ServerID and ErrorMessage even when the status guard
	// does not match.
	Sticky bool
}
