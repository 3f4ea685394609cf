package job

import (
	"context"
	"errors"
	"time"

	"github.com/qrandom/qrng/internal/backend"
	"github.com/qrandom/qrng/internal/circuit"
	"github.com/qrandom/qrng/internal/executor"
	"github.com/qrandom/qrng/pkg/log"
)

var errNoRemoteExecutor = errors.New("no executor configured for remote backends")

// Dispatcher submits circuits. The local simulator candidate goes to the
// simulator executor, every registry candidate to the remote executor.
type Dispatcher struct {
	remote    executor.Executor
	simulator executor.Executor
	now       func() time.Time
	logger    *log.StructuredLogger
}

// NewDispatcher returns a dispatcher. remote may be nil when no remote
// service is configured: registry backends then fail with ErrSubmission.
func NewDispatcher(remote, simulator executor.Executor) *Dispatcher {
	return &Dispatcher{
		remote:    remote,
		simulator: simulator,
		now:       time.Now,
		logger:    log.NewDebugLogger("job_dispatcher"),
	}
}

// Submit makes exactly one submission attempt. It does not retry: the caller
// decides whether to select another backend.
func (d *Dispatcher) Submit(ctx context.Context, spec circuit.CircuitSpec, c backend.Candidate) (*Job, error) {
	tracer := d.logger.WithContext(ctx).Operation("submit_job").
		WithString("backend", c.Name).
		WithString("kind", string(c.Kind)).
		WithInt("bit_length", spec.BitLength()).
		Build()

	exec := d.executorFor(c)
	if exec == nil {
		err := NewErrSubmission(c.Name, errNoRemoteExecutor)
		tracer.Error(err).Log()
		return nil, err
	}

	id, err := exec.Submit(ctx, spec, c.Name)
	if err != nil {
		tracer.Error(err).Log()
		return nil, NewErrSubmission(c.Name, err)
	}

	tracer.Success().WithString("job_id", id).Log()
	return newJob(id, c, spec, exec, d.now()), nil
}

func (d *Dispatcher) executorFor(c backend.Candidate) executor.Executor {
	if c.IsLocal() {
		return d.simulator
	}
	return d.remote
}
