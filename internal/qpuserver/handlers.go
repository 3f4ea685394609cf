package qpuserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	v1 "github.com/qrandom/qrng/api/v1"
	"github.com/qrandom/qrng/internal/circuit"
	"github.com/qrandom/qrng/internal/executor"
	"github.com/qrandom/qrng/internal/simulator"
)

func writeError(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	render.JSON(w, r, v1.Error{Message: message})
}

func (s *Server) listBackends(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.registry.ListBackends(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	list := v1.BackendList{Backends: make([]v1.Backend, 0, len(candidates))}
	for _, c := range candidates {
		list.Backends = append(list.Backends, v1.Backend{
			Name:        c.Name,
			Kind:        string(c.Kind),
			Operational: c.Operational,
			QueueDepth:  c.QueueDepth,
		})
	}
	render.JSON(w, r, list)
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req v1.JobCreate
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := s.validator.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	spec, err := circuit.Build(req.BitLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// only the random bit circuit can run here
	if strings.TrimSpace(req.Program) != strings.TrimSpace(spec.QASM()) {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("program is not the %d qubit random bit circuit", spec.BitLength()))
		return
	}

	c, ok := s.registry.Get(req.Backend)
	if !ok {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("backend %s not found", req.Backend))
		return
	}
	if !c.Operational {
		writeError(w, r, http.StatusServiceUnavailable, fmt.Sprintf("backend %s is not operational", req.Backend))
		return
	}

	id, err := s.sim.Submit(r.Context(), spec, c.Name)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	s.lock.Lock()
	s.jobOwners[id] = c.Name
	s.lock.Unlock()

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, v1.JobStatus{ID: id, Backend: c.Name, Status: string(executor.StatusQueued)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	owner, ok := s.owner(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}

	p, err := s.sim.PollStatus(r.Context(), id)
	if err != nil {
		var notFound *simulator.ErrJobNotFound
		if errors.As(err, &notFound) {
			writeError(w, r, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	status := v1.JobStatus{ID: id, Backend: owner, Status: string(p.Status)}
	switch {
	case p.Status == executor.StatusDone && s.failing.Has(owner):
		status.Status = string(executor.StatusFailed)
		status.Error = fmt.Sprintf("execution error on %s", owner)
	case p.Status == executor.StatusDone:
		status.Bits = p.Bits
	}
	render.JSON(w, r, status)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.owner(id); !ok {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	if err := s.sim.Cancel(r.Context(), id); err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
