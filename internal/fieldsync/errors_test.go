package fieldsync_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
	"testing"

	"fieldsync/internal/fieldsync"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want fieldsync.Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "classified", err: fieldsync.NewError(fieldsync.KindConflict, "insert", errors.New("dup")), want: fieldsync.KindConflict},
		{name: "wrapped classified", err: fmt.Errorf("flush: %w", fieldsync.NewError(fieldsync.KindPermission, "update", errors.New("rls"))), want: fieldsync.KindPermission},
		{name: "unknown kind falls through", err: fieldsync.NewError(fieldsync.KindUnknown, "put", fieldsync.ErrStorageFull), want: fieldsync.KindStorageQuota},
		{name: "not found", err: fmt.Errorf("x: %w", fieldsync.ErrNotFound), want: fieldsync.KindNotFound},
		{name: "missing file", err: fs.ErrNotExist, want: fieldsync.KindNotFound},
		{name: "offline", err: fieldsync.ErrOffline, want: fieldsync.KindConnectivity},
		{name: "deadline", err: context.DeadlineExceeded, want: fieldsync.KindConnectivity},
		{name: "cancelled", err: fmt.Errorf("uploading p1: %w", context.Canceled), want: fieldsync.KindConnectivity},
		{name: "refused", err: syscall.ECONNREFUSED, want: fieldsync.KindConnectivity},
		{name: "disk full", err: syscall.ENOSPC, want: fieldsync.KindStorageQuota},
		{name: "permission", err: fs.ErrPermission, want: fieldsync.KindPermission},
		{name: "plain", err: errors.New("boom"), want: fieldsync.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := fieldsync.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind fieldsync.Kind
		want bool
	}{
		{kind: fieldsync.KindConnectivity, want: true},
		{kind: fieldsync.KindConflict, want: true},
		{kind: fieldsync.KindUnknown, want: true},
		{kind: fieldsync.KindConstraint, want: false},
		{kind: fieldsync.KindPermission, want: false},
		{kind: fieldsync.KindStorageQuota, want: false},
		{kind: fieldsync.KindNotFound, want: false},
	}
	for _, tt := range tests {
		err := fieldsync.NewError(tt.kind, "op", errors.New("x"))
		if got := fieldsync.IsRetryable(err); got != tt.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "nil", err: nil, contains: ""},
		{name: "fetch failed", err: errors.New("TypeError: Network request failed"), contains: "No internet connection"},
		{name: "expired token", err: errors.New("JWT expired"), contains: "Sign in again"},
		{name: "quota", err: fieldsync.NewError(fieldsync.KindStorageQuota, "put", errors.New("x")), contains: "Storage is full"},
		{name: "constraint", err: fieldsync.NewError(fieldsync.KindConstraint, "insert", errors.New("x")), contains: "rejected"},
		{name: "unclassified", err: errors.New("strange failure"), contains: "strange failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := fieldsync.UserMessage(tt.err)
			if tt.contains == "" {
				if got != "" {
					t.Errorf("UserMessage() = %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tt.contains) {
				t.Errorf("UserMessage() = %q, want it to contain %q", got, tt.contains)
			}
		})
	}
}

func TestError_Format(t *testing.T) {
	t.Parallel()

	err := fieldsync.NewError(fieldsync.KindConflict, "insert work_orders", errors.New("duplicate key"))
	if got, want := err.Error(), "insert work_orders: remote-conflict: duplicate key"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(fieldsync.NewError(fieldsync.KindNotFound, "", fieldsync.ErrNotFound), fieldsync.ErrNotFound) {
		t.Error("Error does not unwrap")
	}
}
