package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"

	"github.com/qrandom/qrng/internal/backend"
	"github.com/qrandom/qrng/internal/config"
	"github.com/qrandom/qrng/internal/qpuserver"
	"github.com/qrandom/qrng/internal/simulator"
	"github.com/qrandom/qrng/pkg/log"
	"github.com/qrandom/qrng/pkg/metrics"
)

func main() {
	defer utilruntime.HandleCrash()

	cfg, err := config.New()
	if err != nil {
		// logger is not set up yet
		logger := log.InitLog(log.ParseLevel("info"))
		logger.Sugar().Fatalf("reading configuration: %v", err)
	}

	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel))
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	zap.S().Info("Starting fake QPU service")
	defer zap.S().Info("Fake QPU service stopped")

	registry := defaultRegistry()
	if cfg.FakeQPU.BackendsFile != "" {
		registry, err = backend.LoadStaticRegistry(cfg.FakeQPU.BackendsFile)
		if err != nil {
			zap.S().Fatalf("loading backends: %v", err)
		}
	}

	httpMetrics := metrics.NewMiddleware("fakeqpu")
	prometheus.MustRegister(httpMetrics.Collectors()...)
	prometheus.MustRegister(metrics.NewBackendStatsCollector(registry))

	server := qpuserver.New(qpuserver.Options{
		APIKey:          cfg.Service.APIKey,
		Registry:        registry,
		Simulator:       simulator.New(simulator.WithDelay(cfg.FakeQPU.JobDelay)),
		FailingBackends: cfg.FakeQPU.FailingBackends,
		Metrics:         httpMetrics,
		Logger:          logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	go func() {
		defer cancel()
		listener, err := newListener(cfg.FakeQPU.Address)
		if err != nil {
			zap.S().Fatalf("creating listener: %s", err)
		}
		zap.S().Infow("serving QPU API", "address", listener.Addr().String())
		if err := server.Run(ctx, listener); err != nil {
			zap.S().Fatalf("Error running server: %s", err)
		}
	}()

	go func() {
		defer cancel()
		listener, err := newListener(cfg.FakeQPU.MetricsAddress)
		if err != nil {
			zap.S().Fatalf("creating listener: %s", err)
		}
		metricServer := qpuserver.NewMetricServer(prometheus.DefaultGatherer, listener)
		if err := metricServer.Run(ctx); err != nil {
			zap.S().Fatalf("Error running metrics server: %s", err)
		}
	}()

	<-ctx.Done()
}

func defaultRegistry() *backend.StaticRegistry {
	return backend.NewStaticRegistry(
		backend.Candidate{Name: "ibm_sherbrooke", Kind: backend.KindHardware, Operational: true, QueueDepth: backend.QueueDepth(4)},
		backend.Candidate{Name: "ibm_brisbane", Kind: backend.KindHardware, Operational: true, QueueDepth: backend.QueueDepth(1)},
		backend.Candidate{Name: "ibm_kyiv", Kind: backend.KindHardware, Operational: false},
	)
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
