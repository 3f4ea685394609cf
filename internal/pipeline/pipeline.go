// Package pipeline runs one random bit generation end to end:
// build, select, submit, await and validate, strictly in this order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/qrandom/qrng/internal/backend"
	"github.com/qrandom/qrng/internal/circuit"
	"github.com/qrandom/qrng/internal/events"
	"github.com/qrandom/qrng/internal/job"
	"github.com/qrandom/qrng/internal/validator"
	"github.com/qrandom/qrng/pkg/log"
	"github.com/qrandom/qrng/pkg/metrics"
)

type Options struct {
	PreferredBackends []string
	PollInterval      time.Duration
	MaxWait           time.Duration
	// SelectTimeout bounds the backend selection. Zero means no bound.
	SelectTimeout time.Duration
	// FallbackOnJobFailure reruns the job once on the simulator when a
	// hardware job fails or times out after submission.
	FallbackOnJobFailure bool
	// Events receives the job lifecycle when set.
	Events *events.EventProducer
}

// Result is what a run produced. On error it holds whatever was reached:
// Job is set once a submission succeeded, Report only on success.
type Result struct {
	Backend backend.Candidate
	Phase   backend.Phase
	Job     *job.Job
	Report  *validator.Report
	// Rejected lists the backends which refused the submission, in order.
	Rejected []string
	// FellBack is true when the job was rerun on the simulator.
	FellBack bool
}

type Pipeline struct {
	registry   backend.Registry
	selector   *backend.Selector
	dispatcher *job.Dispatcher
	monitor    *job.Monitor
	opts       Options
	logger     *log.StructuredLogger
}

func New(registry backend.Registry, dispatcher *job.Dispatcher, opts Options) *Pipeline {
	if registry == nil {
		registry = backend.NewStaticRegistry()
	}
	return &Pipeline{
		registry:   registry,
		selector:   backend.NewSelector(),
		dispatcher: dispatcher,
		monitor:    job.NewMonitor(),
		opts:       opts,
		logger:     log.NewInfoLogger("pipeline"),
	}
}

// Run generates bitLength random bits.
//
// A hardware backend rejecting the submission is excluded and the selection
// runs again, until a submission is accepted. The simulator closes the loop
// since it never rejects a submission. Execution failures, timeouts and
// malformed results end the run, unless FallbackOnJobFailure applies.
func (p *Pipeline) Run(ctx context.Context, bitLength int) (*Result, error) {
	tracer := p.logger.WithContext(ctx).Operation("generate").WithInt("bit_length", bitLength).Build()

	spec, err := circuit.Build(bitLength)
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	result := &Result{}
	j, err := p.dispatch(ctx, spec, result)
	if err != nil {
		tracer.Error(err).Log()
		return result, err
	}
	result.Job = j
	tracer.Step("submitted").WithString("job_id", j.ID()).WithString("backend", j.Backend().Name).Log()
	p.emitJob(ctx, events.JobSubmittedKind, j, nil)

	j, err = p.await(ctx, j)
	if err != nil && p.shouldFallback(j, err) {
		tracer.Step("fallback_to_simulator").WithString("cause", err.Error()).Log()
		result.FellBack = true
		result.Backend, result.Phase = backend.SimulatorCandidate(), backend.PhaseSimulator

		j, err = p.dispatcher.Submit(ctx, spec, result.Backend)
		if err != nil {
			tracer.Error(err).Log()
			return result, err
		}
		result.Job = j
		p.emitJob(ctx, events.JobSubmittedKind, j, nil)
		j, err = p.await(ctx, j)
	}
	if err != nil {
		tracer.Error(err).Log()
		return result, err
	}

	report, err := validator.Validate(j)
	if err != nil {
		tracer.Error(err).Log()
		p.emitJob(ctx, events.JobFailedKind, j, err)
		return result, err
	}
	p.emitJob(ctx, events.JobCompletedKind, j, nil)
	metrics.IncreaseEntropyChecksMetric(report.EntropyPass)
	result.Report = report

	tracer.Success().
		WithString("job_id", j.ID()).
		WithString("backend", j.Backend().Name).
		WithParam("entropy_pass", report.EntropyPass).
		Log()
	return result, nil
}

// dispatch runs the select and submit loop.
func (p *Pipeline) dispatch(ctx context.Context, spec circuit.CircuitSpec, result *Result) (*job.Job, error) {
	exclude := sets.New[string]()
	for {
		c, phase, err := p.selectBackend(ctx, exclude)
		if err != nil {
			return nil, err
		}
		result.Backend, result.Phase = c, phase
		metrics.IncreaseBackendSelectionsMetric(string(phase))

		j, err := p.dispatcher.Submit(ctx, spec, c)
		if err == nil {
			return j, nil
		}

		var subErr *job.ErrSubmission
		if !errors.As(err, &subErr) {
			return nil, err
		}
		metrics.IncreaseSubmissionFailuresMetric(c.Name)
		if c.IsLocal() {
			return nil, fmt.Errorf("local simulator rejected the job: %w", err)
		}
		if exclude.Has(c.Name) {
			// the selector handed back an excluded backend, do not loop forever
			return nil, err
		}
		exclude.Insert(c.Name)
		result.Rejected = append(result.Rejected, c.Name)
		p.emit(ctx, events.BackendRejectedKind, events.RejectionEvent{Backend: c.Name, Reason: err.Error()})
	}
}

func (p *Pipeline) selectBackend(ctx context.Context, exclude sets.Set[string]) (backend.Candidate, backend.Phase, error) {
	if p.opts.SelectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.SelectTimeout)
		defer cancel()
	}
	return p.selector.Select(ctx, p.opts.PreferredBackends, p.registry, exclude)
}

func (p *Pipeline) await(ctx context.Context, j *job.Job) (*job.Job, error) {
	j, err := p.monitor.Await(ctx, j, p.opts.PollInterval, p.opts.MaxWait)
	kind := string(j.Backend().Kind)
	metrics.IncreaseJobsMetric(kind, string(j.Status()))
	metrics.ObserveJobDurationMetric(kind, j.Elapsed().Seconds())
	if err != nil {
		p.emitJob(ctx, events.JobFailedKind, j, err)
	}
	return j, err
}

func (p *Pipeline) emitJob(ctx context.Context, kind string, j *job.Job, cause error) {
	e := events.JobEvent{
		JobID:       j.ID(),
		Backend:     j.Backend().Name,
		BackendKind: string(j.Backend().Kind),
		BitLength:   j.Spec().BitLength(),
		Status:      string(j.Status()),
		ElapsedMs:   j.Elapsed().Milliseconds(),
	}
	if cause != nil {
		e.Detail = cause.Error()
	}
	p.emit(ctx, kind, e)
}

func (p *Pipeline) emit(ctx context.Context, kind string, v any) {
	if p.opts.Events == nil {
		return
	}
	if err := p.opts.Events.Publish(ctx, kind, v); err != nil {
		p.logger.WithContext(ctx).Operation("publish_event").WithString("kind", kind).Build().Error(err).Log()
	}
}

func (p *Pipeline) shouldFallback(j *job.Job, err error) bool {
	if !p.opts.FallbackOnJobFailure || j.Backend().IsLocal() {
		return false
	}
	var execErr *job.ErrBackendExecution
	var timeoutErr *job.ErrTimeout
	return errors.As(err, &execErr) || errors.As(err, &timeoutErr)
}
