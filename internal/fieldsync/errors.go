package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"syscall"
)

// Kind classifies a failure so callers can decide between retrying,
// falling back to offline persistence, or prompting the user.
type Kind string

const (
	KindUnknown      Kind = "classification-unknown"
	KindConnectivity Kind = "connectivity-lost"
	KindStorageQuota Kind = "storage-quota-exceeded"
	KindPermission   Kind = "permission-denied"
	KindNotFound     Kind = "not-found"
	KindConflict     Kind = "remote-conflict"
	KindConstraint   Kind = "constraint-violation"
)

var (
	// ErrNotFound is returned when a photo or work order does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOffline is returned when a flush is attempted without connectivity.
	ErrOffline = errors.New("device is offline")

	// ErrSyncInProgress is returned when a flush is already running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrStorageFull is returned by content stores that hit their size cap.
	ErrStorageFull = errors.New("local storage full")

	// ErrInvalidTransition is returned for a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies err. Explicitly classified errors win; otherwise
// well-known sentinels and system errors are recognized.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var classified *Error
	if errors.As(err, &classified) && classified.Kind != KindUnknown {
		return classified.Kind
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, ErrOffline),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ENETUNREACH):
		return KindConnectivity
	case errors.Is(err, ErrStorageFull), errors.Is(err, syscall.ENOSPC):
		return KindStorageQuota
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}
	return KindUnknown
}

// IsRetryable reports whether a later flush may succeed without user action.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConnectivity, KindConflict, KindUnknown:
		return true
	}
	return false
}

// UserMessage renders err as the short text kept in a work order's
// error_message and shown by retry screens.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "network request failed"), strings.Contains(msg, "fetch failed"):
		return "No internet connection. The work order was kept on this device and will sync when the connection returns."
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "jwt"):
		return "Session expired. Sign in again to sync."
	}

	switch KindOf(err) {
	case KindConnectivity:
		return "No internet connection. The work order was kept on this device and will sync when the connection returns."
	case KindStorageQuota:
		return "Storage is full. Free up space and try again."
	case KindPermission:
		return "Permission denied by the server."
	case KindNotFound:
		return "The work order no longer exists on the server."
	case KindConflict:
		return "The work order was changed on the server at the same time. Try again."
	case KindConstraint:
		return "The server rejected the work order data."
	}
	return err.Error()
}
