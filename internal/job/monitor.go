package job

import (
	"context"
	"fmt"
	"time"

	"github.com/lthibault/jitterbug/v2"

	"github.com/qrandom/qrng/internal/executor"
	"github.com/qrandom/qrng/pkg/log"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 5 * time.Minute

	cancelTimeout = 5 * time.Second
)

// Monitor drives a submitted job to a terminal status by polling its executor.
type Monitor struct {
	now    func() time.Time
	logger *log.StructuredLogger
}

func NewMonitor() *Monitor {
	return &Monitor{
		now:    time.Now,
		logger: log.NewDebugLogger("job_monitor"),
	}
}

// Await polls j every pollInterval until it reaches a terminal status.
//
// The first poll is immediate. When maxWait elapses, or ctx ends, a cancel
// request is sent to the backend and j is cancelled locally; Await then
// returns ErrTimeout or ErrAborted. A job reported failed yields
// ErrBackendExecution. Poll errors are logged and retried on the next tick.
// Non positive durations are replaced by the defaults.
func (m *Monitor) Await(ctx context.Context, j *Job, pollInterval, maxWait time.Duration) (*Job, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	tracer := m.logger.WithContext(ctx).Operation("await_job").
		WithString("job_id", j.ID()).
		WithString("backend", j.Backend().Name).
		WithParam("poll_interval", pollInterval).
		WithParam("max_wait", maxWait).
		Build()

	if status := j.Status(); status.IsTerminal() {
		return j, fmt.Errorf("%w: job %s is already %s", ErrIllegalTransition, j.ID(), status)
	}

	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	ticker := jitterbug.New(pollInterval, &jitterbug.Norm{Stdev: pollInterval / 10, Mean: 0})
	defer ticker.Stop()

	polls := 0
	for {
		polls++
		terminal, err := m.poll(waitCtx, j)
		if terminal {
			if err != nil {
				tracer.Error(err).WithInt("polls", polls).Log()
			} else {
				tracer.Success().WithInt("polls", polls).Log()
			}
			return j, err
		}

		select {
		case <-waitCtx.Done():
			err := m.cancel(ctx, j, maxWait)
			tracer.Error(err).WithInt("polls", polls).Log()
			return j, err
		case <-ticker.C:
		}
	}
}

// poll queries the executor once. It returns true when j reached a terminal status.
func (m *Monitor) poll(ctx context.Context, j *Job) (bool, error) {
	p, err := j.exec.PollStatus(ctx, j.ID())
	if err != nil {
		m.logger.WithContext(ctx).Operation("poll_job").WithString("job_id", j.ID()).Build().Error(err).Log()
		return false, nil
	}

	now := m.now()
	switch p.Status {
	case executor.StatusQueued:
		return false, nil
	case executor.StatusRunning:
		if j.Status() == StatusSubmitted {
			if err := j.transition(StatusRunning, now); err != nil {
				return true, err
			}
		}
		return false, nil
	case executor.StatusDone:
		if err := j.complete(p.Bits, now); err != nil {
			return true, err
		}
		return true, nil
	case executor.StatusFailed:
		if err := j.fail(p.FailureDetail, now); err != nil {
			return true, err
		}
		return true, NewErrBackendExecution(j.ID(), j.Backend().Name, p.FailureDetail)
	case executor.StatusCancelled:
		// cancelled by someone else, e.g. the provider's operator
		if err := j.transition(StatusCancelled, now); err != nil {
			return true, err
		}
		return true, NewErrBackendExecution(j.ID(), j.Backend().Name, "job was cancelled by the backend")
	default:
		m.logger.WithContext(ctx).Operation("poll_job").WithString("job_id", j.ID()).Build().
			Step("unknown_status").WithString("status", string(p.Status)).Log()
		return false, nil
	}
}

func (m *Monitor) cancel(ctx context.Context, j *Job, maxWait time.Duration) error {
	// ctx may be done already, the cancel request still deserves a chance
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	if err := j.exec.Cancel(cancelCtx, j.ID()); err != nil {
		m.logger.WithContext(ctx).Operation("cancel_job").WithString("job_id", j.ID()).Build().Error(err).Log()
	}
	if err := j.transition(StatusCancelled, m.now()); err != nil {
		return err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewErrAborted(j.ID(), ctxErr)
	}
	return NewErrTimeout(j.ID(), maxWait)
}
