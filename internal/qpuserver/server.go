// Package qpuserver is a stand-in for a remote QPU service. It exposes the
// REST API consumed by internal/client and runs every job on the local
// simulator. It is meant for development and tests.
package qpuserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"

	v1 "github.com/qrandom/qrng/api/v1"
	"github.com/qrandom/qrng/internal/backend"
	"github.com/qrandom/qrng/internal/simulator"
	"github.com/qrandom/qrng/pkg/log"
	"github.com/qrandom/qrng/pkg/metrics"
	"github.com/qrandom/qrng/pkg/requestid"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	readHeaderTimeout       = 10 * time.Second
)

type Options struct {
	// APIKey enables bearer authentication when set.
	APIKey    string
	Registry  *backend.StaticRegistry
	Simulator *simulator.Simulator
	// FailingBackends report every job they run as failed.
	FailingBackends []string
	// Metrics is optional. Its collectors must be registered by the caller.
	Metrics *metrics.Middleware
	Logger  *zap.Logger
}

type Server struct {
	apiKey    string
	registry  *backend.StaticRegistry
	sim       *simulator.Simulator
	failing   sets.Set[string]
	metrics   *metrics.Middleware
	logger    *zap.Logger
	validator *requestValidator
	lock      sync.RWMutex
	jobOwners map[string]string
}

func New(opts Options) *Server {
	s := &Server{
		apiKey:    opts.APIKey,
		registry:  opts.Registry,
		sim:       opts.Simulator,
		failing:   sets.New(opts.FailingBackends...),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		validator: newRequestValidator(),
		jobOwners: make(map[string]string),
	}
	if s.registry == nil {
		s.registry = backend.NewStaticRegistry()
	}
	if s.sim == nil {
		s.sim = simulator.New()
	}
	if s.logger == nil {
		s.logger = zap.L()
	}
	return s
}

// Handler returns the router of the service.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	if s.metrics != nil {
		router.Use(s.metrics.Handler)
	}
	router.Use(
		requestid.Middleware,
		log.Logger(s.logger, "fakeqpu"),
		chiMiddleware.Recoverer,
	)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get(v1.BackendsPath, s.listBackends)
		r.Post(v1.JobsPath, s.createJob)
		r.Get(v1.JobsPath+"/{id}", s.getJob)
		r.Delete(v1.JobsPath+"/{id}", s.cancelJob)
	})

	return router
}

// Run serves on listener until ctx is done.
func (s *Server) Run(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		s.logger.Named("fakeqpu").Info("fake qpu service terminated")
	}()

	s.logger.Named("fakeqpu").Info("serving fake qpu service", zap.String("address", listener.Addr().String()))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			writeError(w, r, http.StatusUnauthorized, "invalid or missing api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) owner(jobID string) (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	name, ok := s.jobOwners[jobID]
	return name, ok
}
