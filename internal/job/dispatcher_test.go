package job_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/qrandom/qrng/internal/backend"
	"github.com/qrandom/qrng/internal/circuit"
	"github.com/qrandom/qrng/internal/job"
	"github.com/qrandom/qrng/internal/simulator"
)

var _ = Describe("Dispatcher", func() {
	var (
		spec     circuit.CircuitSpec
		hardware backend.Candidate
	)

	BeforeEach(func() {
		var err error
		spec, err = circuit.Build(16)
		Expect(err).To(BeNil())
		hardware = backend.Candidate{Name: "ibm_sherbrooke", Kind: backend.KindHardware, Operational: true}
	})

	It("submits hardware candidates to the remote executor", func() {
		remote := &scriptedExecutor{}
		d := job.NewDispatcher(remote, simulator.New())

		j, err := d.Submit(context.TODO(), spec, hardware)
		Expect(err).To(BeNil())
		Expect(j.ID()).To(Equal("job-ibm_sherbrooke"))
		Expect(j.Status()).To(Equal(job.StatusSubmitted))
		Expect(j.Backend()).To(Equal(hardware))
		Expect(j.Spec()).To(Equal(spec))
		Expect(j.SubmittedAt().IsZero()).To(BeFalse())
		Expect(remote.submitted).To(Equal([]string{"ibm_sherbrooke"}))

		_, ok := j.Result()
		Expect(ok).To(BeFalse())
	})

	It("submits the simulator candidate to the simulator", func() {
		remote := &scriptedExecutor{}
		d := job.NewDispatcher(remote, simulator.New())

		j, err := d.Submit(context.TODO(), spec, backend.SimulatorCandidate())
		Expect(err).To(BeNil())
		Expect(j.Status()).To(Equal(job.StatusSubmitted))
		Expect(remote.submitted).To(BeEmpty())
	})

	It("submits a simulator listed by the registry to the remote executor", func() {
		remote := &scriptedExecutor{}
		local := &scriptedExecutor{}
		d := job.NewDispatcher(remote, local)

		remoteSim := backend.Candidate{Name: "ibmq_qasm_simulator", Kind: backend.KindSimulator, Operational: true}
		j, err := d.Submit(context.TODO(), spec, remoteSim)
		Expect(err).To(BeNil())
		Expect(j.Backend().Name).To(Equal("ibmq_qasm_simulator"))
		Expect(remote.submitted).To(Equal([]string{"ibmq_qasm_simulator"}))
		Expect(local.submitted).To(BeEmpty())
	})

	It("wraps executor failures into ErrSubmission", func() {
		offline := errors.New("backend is offline")
		remote := &scriptedExecutor{submitErr: offline}
		d := job.NewDispatcher(remote, simulator.New())

		j, err := d.Submit(context.TODO(), spec, hardware)
		Expect(j).To(BeNil())

		var subErr *job.ErrSubmission
		Expect(errors.As(err, &subErr)).To(BeTrue())
		Expect(subErr.Backend).To(Equal("ibm_sherbrooke"))
		Expect(err.Error()).To(ContainSubstring("backend is offline"))
		Expect(errors.Is(err, offline)).To(BeTrue())
	})

	It("fails registry submissions when no remote executor is configured", func() {
		d := job.NewDispatcher(nil, simulator.New())

		_, err := d.Submit(context.TODO(), spec, hardware)
		var subErr *job.ErrSubmission
		Expect(errors.As(err, &subErr)).To(BeTrue())
	})
})
