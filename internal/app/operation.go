package app

import "time"

// Operation tracks one CLI command or server run for the operation log.
// ID is the opID stamped on every log line of the run.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Status     string // "success" or "error"
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewOperation creates a new operation that started now.
func NewOperation(name, id string) *Operation {
	return &Operation{
		ID:        id,
		Name:      name,
		Status:    "success",
		StartedAt: time.Now(),
	}
}

// Fail marks the operation as failed when err is non-nil.
func (op *Operation) Fail(err error) {
	if err != nil {
		op.Status = "error"
	}
}

// Finish stamps the end time. Later calls keep the first stamp.
func (op *Operation) Finish(at time.Time) {
	if op.FinishedAt.IsZero() {
		op.FinishedAt = at
	}
}

// Duration returns how long the operation ran, or zero while it is running.
func (op *Operation) Duration() time.Duration {
	if op.FinishedAt.IsZero() {
		return 0
	}
	return op.FinishedAt.Sub(op.StartedAt)
}
