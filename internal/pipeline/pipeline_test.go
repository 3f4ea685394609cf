package pipeline_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/qrandom/qrng/internal/backend"
	"github.com/qrandom/qrng/internal/circuit"
	"github.com/qrandom/qrng/internal/client"
	"github.com/qrandom/qrng/internal/events"
	"github.com/qrandom/qrng/internal/executor"
	"github.com/qrandom/qrng/internal/job"
	"github.com/qrandom/qrng/internal/pipeline"
	"github.com/qrandom/qrng/internal/qpuserver"
	"github.com/qrandom/qrng/internal/simulator"
)

// hardwareStub runs jobs on a simulator and rejects submissions to the
// backends in reject. Jobs submitted to a backend in hang never finish.
type hardwareStub struct {
	lock      sync.Mutex
	sim       *simulator.Simulator
	reject    sets.Set[string]
	hang      sets.Set[string]
	fail      sets.Set[string]
	backendOf map[string]string
	attempts  []string
	cancelled []string
}

func newHardwareStub() *hardwareStub {
	return &hardwareStub{
		sim:       simulator.New(),
		reject:    sets.New[string](),
		hang:      sets.New[string](),
		fail:      sets.New[string](),
		backendOf: map[string]string{},
	}
}

func (h *hardwareStub) Submit(ctx context.Context, spec circuit.CircuitSpec, backendName string) (string, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.attempts = append(h.attempts, backendName)
	if h.reject.Has(backendName) {
		return "", errors.New("queue is full")
	}
	id, err := h.sim.Submit(ctx, spec, backendName)
	if err != nil {
		return "", err
	}
	h.backendOf[id] = backendName
	return id, nil
}

func (h *hardwareStub) PollStatus(ctx context.Context, jobID string) (executor.Poll, error) {
	h.lock.Lock()
	name := h.backendOf[jobID]
	h.lock.Unlock()
	switch {
	case h.hang.Has(name):
		return executor.Poll{Status: executor.StatusQueued}, nil
	case h.fail.Has(name):
		return executor.Poll{Status: executor.StatusFailed, FailureDetail: "calibration error"}, nil
	}
	return h.sim.PollStatus(ctx, jobID)
}

func (h *hardwareStub) Cancel(ctx context.Context, jobID string) error {
	h.lock.Lock()
	h.cancelled = append(h.cancelled, jobID)
	h.lock.Unlock()
	return h.sim.Cancel(ctx, jobID)
}

func hardware(name string, depth int) backend.Candidate {
	return backend.Candidate{Name: name, Kind: backend.KindHardware, Operational: true, QueueDepth: backend.QueueDepth(depth)}
}

var _ = Describe("pipeline", func() {
	var (
		ctx      context.Context
		registry *backend.StaticRegistry
		stub     *hardwareStub
		opts     pipeline.Options
	)

	newPipeline := func() *pipeline.Pipeline {
		return pipeline.New(registry, job.NewDispatcher(stub, simulator.New()), opts)
	}

	BeforeEach(func() {
		ctx = context.Background()
		registry = backend.NewStaticRegistry()
		stub = newHardwareStub()
		opts = pipeline.Options{PollInterval: 10 * time.Millisecond, MaxWait: 2 * time.Second}
	})

	Context("without hardware", func() {
		DescribeTable("generates and validates bits on the simulator",
			func(bitLength int) {
				result, err := newPipeline().Run(ctx, bitLength)
				Expect(err).To(BeNil())
				Expect(result.Phase).To(Equal(backend.PhaseSimulator))
				Expect(result.Backend.IsLocal()).To(BeTrue())
				Expect(result.Job.Status()).To(Equal(job.StatusDone))

				bits, ok := result.Job.Result()
				Expect(ok).To(BeTrue())
				Expect(bits).To(HaveLen(bitLength))
				Expect(strings.Trim(bits, "01")).To(BeEmpty())

				report := result.Report
				Expect(report.BitLength).To(Equal(bitLength))
				Expect(report.Zeros + report.Ones).To(Equal(bitLength))
				bound := new(big.Int).Lsh(big.NewInt(1), uint(bitLength))
				Expect(report.DecimalValue.Cmp(bound)).To(Equal(-1))
				Expect(stub.attempts).To(BeEmpty())
			},
			Entry("8 bits", 8),
			Entry("32 bits", 32),
			Entry("255 bits", 255),
			Entry("256 bits", 256),
		)

		It("yields exactly bitLength bits for every supported length", func() {
			p := newPipeline()
			for bitLength := circuit.MinBitLength; bitLength <= circuit.MaxBitLength; bitLength++ {
				result, err := p.Run(ctx, bitLength)
				Expect(err).To(BeNil(), "bit length %d", bitLength)

				bits, ok := result.Job.Result()
				Expect(ok).To(BeTrue(), "bit length %d", bitLength)
				Expect(bits).To(HaveLen(bitLength))
				Expect(result.Report.BitLength).To(Equal(bitLength))
			}
			Expect(stub.attempts).To(BeEmpty())
		})

		It("rejects an invalid length before selecting a backend", func() {
			registry = backend.NewStaticRegistry(hardware("ibm_sherbrooke", 0))
			result, err := newPipeline().Run(ctx, 7)
			Expect(err).NotTo(BeNil())
			var lengthErr *circuit.ErrInvalidLength
			Expect(errors.As(err, &lengthErr)).To(BeTrue())
			Expect(result).To(BeNil())
			Expect(stub.attempts).To(BeEmpty())
		})
	})

	Context("with hardware", func() {
		It("prefers the configured backend", func() {
			registry = backend.NewStaticRegistry(hardware("ibm_sherbrooke", 0), hardware("ibm_kyiv", 9))
			opts.PreferredBackends = []string{"ibm_kyiv"}

			result, err := newPipeline().Run(ctx, 16)
			Expect(err).To(BeNil())
			Expect(result.Phase).To(Equal(backend.PhasePreferred))
			Expect(result.Backend.Name).To(Equal("ibm_kyiv"))
			Expect(stub.attempts).To(Equal([]string{"ibm_kyiv"}))
		})

		It("excludes a backend rejecting the submission and selects again", func() {
			registry = backend.NewStaticRegistry(hardware("ibm_sherbrooke", 1), hardware("ibm_kyiv", 4))
			stub.reject.Insert("ibm_sherbrooke")

			result, err := newPipeline().Run(ctx, 16)
			Expect(err).To(BeNil())
			Expect(result.Backend.Name).To(Equal("ibm_kyiv"))
			Expect(result.Phase).To(Equal(backend.PhaseHardware))
			Expect(result.Rejected).To(Equal([]string{"ibm_sherbrooke"}))
			Expect(stub.attempts).To(Equal([]string{"ibm_sherbrooke", "ibm_kyiv"}))
		})

		It("ends on the simulator when every hardware backend rejects", func() {
			registry = backend.NewStaticRegistry(hardware("ibm_sherbrooke", 1), hardware("ibm_kyiv", 4))
			stub.reject.Insert("ibm_sherbrooke", "ibm_kyiv")
			opts.PreferredBackends = []string{"ibm_kyiv"}

			result, err := newPipeline().Run(ctx, 64)
			Expect(err).To(BeNil())
			Expect(result.Backend.IsLocal()).To(BeTrue())
			Expect(result.Rejected).To(Equal([]string{"ibm_kyiv", "ibm_sherbrooke"}))
			Expect(result.Report.BitLength).To(Equal(64))
		})

		It("publishes the job lifecycle", func() {
			registry = backend.NewStaticRegistry(hardware("ibm_sherbrooke", 1), hardware("ibm_kyiv", 4))
			stub.reject.Insert("ibm_sherbrooke")
			var out bytes.Buffer
			producer := events.NewEventProducer(events.NewJSONWriter(&out))
			opts.Events = producer

			_, err := newPipeline().Run(ctx, 16)
			Expect(err).To(BeNil())
			Expect(producer.Close()).To(Succeed())

			var types []string
			scanner := bufio.NewScanner(&out)
			for scanner.Scan() {
				var e struct {
					Type string `json:"type"`
				}
				Expect(json.Unmarshal(scanner.Bytes(), &e)).To(Succeed())
				types = append(types, e.Type)
			}
			Expect(types).To(Equal([]string{events.BackendRejectedKind, events.JobSubmittedKind, events.JobCompletedKind}))
		})

		It("reports an execution failure without rerunning", func() {
			registry = backend.NewStaticRegistry(hardware("ibm_sherbrooke", 0))
			stub.fail.Insert("ibm_sherbrooke")

			result, err := newPipeline().Run(ctx, 8)
			var execErr *job.ErrBackendExecution
			Expect(errors.As(err, &execErr)).To(BeTrue())
			Expect(execErr.Detail).To(Equal("calibration error"))
			Expect(result.Job.Status()).To(Equal(job.StatusFailed))
			Expect(result.Report).To(BeNil())
			Expect(result.FellBack).To(BeFalse())
		})

		It("cancels the job when the maximum wait elapses", func() {
			registry = backend.NewStaticRegistry(hardware("ibm_sherbrooke", 0))
			stub.hang.Insert("ibm_sherbrooke")
			opts.MaxWait = 50 * time.Millisecond

			result, err := newPipeline().Run(ctx, 8)
			var timeoutErr *job.ErrTimeout
			Expect(errors.As(err, &timeoutErr)).To(BeTrue())
			Expect(result.Job.Status()).To(Equal(job.StatusCancelled))
			_, ok := result.Job.Result()
			Expect(ok).To(BeFalse())
			Expect(stub.cancelled).To(ConsistOf(result.Job.ID()))
		})

		It("reruns on the simulator after a failure when asked to", func() {
			registry = backend.NewStaticRegistry(hardware("ibm_sherbrooke", 0))
			stub.fail.Insert("ibm_sherbrooke")
			opts.FallbackOnJobFailure = true

			result, err := newPipeline().Run(ctx, 8)
			Expect(err).To(BeNil())
			Expect(result.FellBack).To(BeTrue())
			Expect(result.Backend.IsLocal()).To(BeTrue())
			Expect(result.Phase).To(Equal(backend.PhaseSimulator))
			Expect(result.Report).NotTo(BeNil())
		})

		It("reruns on the simulator after a timeout when asked to", func() {
			registry = backend.NewStaticRegistry(hardware("ibm_sherbrooke", 0))
			stub.hang.Insert("ibm_sherbrooke")
			opts.MaxWait = 50 * time.Millisecond
			opts.FallbackOnJobFailure = true

			result, err := newPipeline().Run(ctx, 8)
			Expect(err).To(BeNil())
			Expect(result.FellBack).To(BeTrue())
			Expect(result.Job.Backend().IsSimulator()).To(BeTrue())
		})

		It("aborts when the context is cancelled", func() {
			registry = backend.NewStaticRegistry(hardware("ibm_sherbrooke", 0))
			stub.hang.Insert("ibm_sherbrooke")
			opts.FallbackOnJobFailure = true

			cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()

			result, err := newPipeline().Run(cctx, 8)
			var abortErr *job.ErrAborted
			Expect(errors.As(err, &abortErr)).To(BeTrue())
			Expect(result.FellBack).To(BeFalse())
			Expect(result.Job.Status()).To(Equal(job.StatusCancelled))
		})
	})

	Context("against the QPU service", func() {
		var server *httptest.Server

		AfterEach(func() {
			server.Close()
		})

		It("runs the job remotely and validates the result", func() {
			served := backend.NewStaticRegistry(
				hardware("ibm_sherbrooke", 5),
				hardware("ibm_brisbane", 1),
			)
			server = httptest.NewServer(qpuserver.New(qpuserver.Options{APIKey: "secret", Registry: served}).Handler())
			qpu := client.NewQPUClient(server.URL, "secret")

			p := pipeline.New(qpu, job.NewDispatcher(qpu, simulator.New()), opts)
			result, err := p.Run(ctx, 128)
			Expect(err).To(BeNil())
			Expect(result.Backend.Name).To(Equal("ibm_brisbane"))
			Expect(result.Job.Status()).To(Equal(job.StatusDone))
			Expect(result.Report.BitLength).To(Equal(128))
		})

		It("fails when the backend listing is refused", func() {
			server = httptest.NewServer(qpuserver.New(qpuserver.Options{APIKey: "secret"}).Handler())
			qpu := client.NewQPUClient(server.URL, "wrong key")

			p := pipeline.New(qpu, job.NewDispatcher(qpu, simulator.New()), opts)
			result, err := p.Run(ctx, 8)
			var registryErr *backend.ErrRegistryUnavailable
			Expect(errors.As(err, &registryErr)).To(BeTrue())
			Expect(result.Job).To(BeNil())
		})
	})
})
