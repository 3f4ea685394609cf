package qpuserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	v1 "github.com/qrandom/qrng/api/v1"
	"github.com/qrandom/qrng/internal/backend"
	"github.com/qrandom/qrng/internal/circuit"
	"github.com/qrandom/qrng/internal/qpuserver"
	"github.com/qrandom/qrng/internal/simulator"
	"github.com/qrandom/qrng/pkg/metrics"
)

var _ = Describe("fake qpu service", func() {
	var (
		server   *httptest.Server
		registry *backend.StaticRegistry
		httpm    *metrics.Middleware
	)

	post := func(req v1.JobCreate) (*http.Response, v1.JobStatus) {
		body, err := json.Marshal(req)
		Expect(err).To(BeNil())
		resp, err := http.Post(server.URL+v1.JobsPath, "application/json", bytes.NewReader(body))
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		var status v1.JobStatus
		data, err := io.ReadAll(resp.Body)
		Expect(err).To(BeNil())
		_ = json.Unmarshal(data, &status)
		return resp, status
	}

	get := func(id string) v1.JobStatus {
		resp, err := http.Get(server.URL + v1.JobsPath + "/" + id)
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var status v1.JobStatus
		Expect(json.NewDecoder(resp.Body).Decode(&status)).To(Succeed())
		return status
	}

	job := func(name string, bitLength int) v1.JobCreate {
		spec, err := circuit.Build(bitLength)
		Expect(err).To(BeNil())
		return v1.JobCreate{Backend: name, Program: spec.QASM(), BitLength: bitLength, Shots: 1}
	}

	BeforeEach(func() {
		registry = backend.NewStaticRegistry(
			backend.Candidate{Name: "ibm_sherbrooke", Kind: backend.KindHardware, Operational: true},
			backend.Candidate{Name: "ibm_torino", Kind: backend.KindHardware, Operational: true},
			backend.Candidate{Name: "ibm_kyiv", Kind: backend.KindHardware, Operational: false},
		)
		httpm = metrics.NewMiddleware("fakeqpu_test")
		server = httptest.NewServer(qpuserver.New(qpuserver.Options{
			Registry:        registry,
			Simulator:       simulator.New(),
			FailingBackends: []string{"ibm_torino"},
			Metrics:         httpm,
		}).Handler())
	})

	AfterEach(func() {
		server.Close()
	})

	It("runs a job to completion", func() {
		resp, status := post(job("ibm_sherbrooke", 24))
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		Expect(status.Status).To(Equal("queued"))

		status = get(status.ID)
		Expect(status.Status).To(Equal("done"))
		Expect(status.Bits).To(HaveLen(24))
	})

	It("reports the jobs of a failing backend as failed", func() {
		_, status := post(job("ibm_torino", 8))
		status = get(status.ID)
		Expect(status.Status).To(Equal("failed"))
		Expect(status.Bits).To(BeEmpty())
		Expect(status.Error).To(Equal("execution error on ibm_torino"))
	})

	DescribeTable("rejects submissions",
		func(req func() v1.JobCreate, code int) {
			resp, _ := post(req())
			Expect(resp.StatusCode).To(Equal(code))
		},
		Entry("unknown backend", func() v1.JobCreate { return job("ibm_nowhere", 8) }, http.StatusNotFound),
		Entry("backend down", func() v1.JobCreate { return job("ibm_kyiv", 8) }, http.StatusServiceUnavailable),
		Entry("invalid backend name", func() v1.JobCreate { return job("../etc", 8) }, http.StatusBadRequest),
		Entry("several shots", func() v1.JobCreate {
			j := job("ibm_sherbrooke", 8)
			j.Shots = 2
			return j
		}, http.StatusBadRequest),
		Entry("program of another length", func() v1.JobCreate {
			j := job("ibm_sherbrooke", 8)
			j.BitLength = 16
			return j
		}, http.StatusBadRequest),
	)

	It("answers 404 for unknown jobs", func() {
		resp, err := http.Get(server.URL + v1.JobsPath + "/missing")
		Expect(err).To(BeNil())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("exposes its metrics", func() {
		reg := prometheus.NewRegistry()
		Expect(reg.Register(metrics.NewBackendStatsCollector(registry))).To(Succeed())
		for _, c := range httpm.Collectors() {
			Expect(reg.Register(c)).To(Succeed())
		}
		post(job("ibm_sherbrooke", 8))

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			defer GinkgoRecover()
			Expect(qpuserver.NewMetricServer(reg, listener).Run(ctx)).To(Succeed())
		}()

		var body string
		Eventually(func() error {
			resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			body = string(data)
			return err
		}, 2*time.Second, 50*time.Millisecond).Should(Succeed())

		Expect(body).To(ContainSubstring(`qrng_backend_operational{backend="ibm_kyiv",kind="hardware"} 0`))
		Expect(body).To(ContainSubstring("qrng_http_requests_total"))
	})
})
