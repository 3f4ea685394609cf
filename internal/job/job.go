package job

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/qrandom/qrng/internal/backend"
	"github.com/qrandom/qrng/internal/circuit"
	"github.com/qrandom/qrng/internal/executor"
)

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var ErrIllegalTransition = errors.New("illegal job status transition")

// allowed transitions. Terminal statuses have none.
var transitions = map[Status][]Status{
	StatusSubmitted: {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning:   {StatusDone, StatusFailed, StatusCancelled},
}

func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Job is one execution request on a backend. It is created by the Dispatcher
// and moved to a terminal status by the Monitor.
type Job struct {
	lock sync.RWMutex

	id          string
	backend     backend.Candidate
	spec        circuit.CircuitSpec
	status      Status
	submittedAt time.Time
	completedAt time.Time
	bits        string
	failure     string

	exec executor.Executor
}

func newJob(id string, c backend.Candidate, spec circuit.CircuitSpec, exec executor.Executor, submittedAt time.Time) *Job {
	return &Job{
		id:          id,
		backend:     c,
		spec:        spec,
		status:      StatusSubmitted,
		submittedAt: submittedAt,
		exec:        exec,
	}
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Backend() backend.Candidate {
	return j.backend
}

func (j *Job) Spec() circuit.CircuitSpec {
	return j.spec
}

func (j *Job) SubmittedAt() time.Time {
	return j.submittedAt
}

func (j *Job) Status() Status {
	j.lock.RLock()
	defer j.lock.RUnlock()
	return j.status
}

// Result returns the measured bits. ok is false unless the job is done.
func (j *Job) Result() (bits string, ok bool) {
	j.lock.RLock()
	defer j.lock.RUnlock()
	if j.status != StatusDone {
		return "", false
	}
	return j.bits, true
}

// FailureDetail is the reason reported by the backend for a failed job.
func (j *Job) FailureDetail() string {
	j.lock.RLock()
	defer j.lock.RUnlock()
	return j.failure
}

// Elapsed is the time from submission to the terminal status, or to now for
// a job still in flight.
func (j *Job) Elapsed() time.Duration {
	j.lock.RLock()
	defer j.lock.RUnlock()
	if j.completedAt.IsZero() {
		return time.Since(j.submittedAt)
	}
	return j.completedAt.Sub(j.submittedAt)
}

func (j *Job) String() string {
	return fmt.Sprintf("job %s on %s (%s)", j.id, j.backend.Name, j.Status())
}

func (j *Job) transition(to Status, at time.Time) error {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.transitionLocked(to, at)
}

func (j *Job) transitionLocked(to Status, at time.Time) error {
	if !slices.Contains(transitions[j.status], to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.status, to)
	}
	j.status = to
	if to.IsTerminal() {
		j.completedAt = at
	}
	return nil
}

// complete moves the job to done through running, storing bits.
func (j *Job) complete(bits string, at time.Time) error {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.status == StatusSubmitted {
		if err := j.transitionLocked(StatusRunning, at); err != nil {
			return err
		}
	}
	if err := j.transitionLocked(StatusDone, at); err != nil {
		return err
	}
	j.bits = bits
	return nil
}

func (j *Job) fail(detail string, at time.Time) error {
	j.lock.Lock()
	defer j.lock.Unlock()
	if err := j.transitionLocked(StatusFailed, at); err != nil {
		return err
	}
	j.failure = detail
	return nil
}
