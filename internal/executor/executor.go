// Package executor defines the contract of the components running circuits:
// the remote QPU service client and the local simulator.
package executor

import (
	"context"

	"github.com/qrandom/qrng/internal/circuit"
)

// Status is the job status as reported by an executor.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Poll is the answer to one status query.
type Poll struct {
	Status Status
	// Bits is set only when Status is StatusDone.
	Bits string
	// FailureDetail is set only when Status is StatusFailed.
	FailureDetail string
}

type Executor interface {
	// Submit queues spec on the named backend and returns the job id.
	Submit(ctx context.Context, spec circuit.CircuitSpec, backendName string) (string, error)
	PollStatus(ctx context.Context, jobID string) (Poll, error)
	// Cancel is best-effort: executors may ignore it for jobs already running.
	Cancel(ctx context.Context, jobID string) error
}
