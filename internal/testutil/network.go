package testutil

import (
	"context"
	"sync/atomic"

	"fieldsync/internal/fieldsync"
)

// StubNetwork reports whatever connectivity the test sets.
type StubNetwork struct {
	online atomic.Bool
	checks atomic.Int64
}

var _ fieldsync.Network = (*StubNetwork)(nil)

// NewStubNetwork creates a StubNetwork that starts online or offline.
func NewStubNetwork(online bool) *StubNetwork {
	n := &StubNetwork{}
	n.online.Store(online)
	return n
}

// SetOnline switches connectivity.
func (n *StubNetwork) SetOnline(online bool) {
	n.online.Store(online)
}

// Checks returns how many times Status was called.
func (n *StubNetwork) Checks() int64 {
	return n.checks.Load()
}

func (n *StubNetwork) Status(context.Context) fieldsync.NetworkStatus {
	n.checks.Add(1)
	online := n.online.Load()
	return fieldsync.NetworkStatus{Connected: online, InternetReachable: online}
}
