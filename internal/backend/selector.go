package backend

import (
	"cmp"
	"context"
	"slices"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/qrandom/qrng/pkg/log"
)

// Phase tells which step of the selection produced the candidate.
type Phase string

const (
	PhasePreferred Phase = "preferred"
	PhaseHardware  Phase = "hardware"
	PhaseSimulator Phase = "simulator"
)

// Selector picks the backend a job is submitted to.
//
// The selection runs three phases and stops at the first one producing a candidate:
//  1. the preferred names, in the given order; the first operational one wins.
//  2. every operational hardware candidate, by ascending queue depth. Unknown
//     depths sort last, ties are broken by name.
//  3. the local simulator, which is always available.
//
// The registry is listed once per registry phase. Selection fails only when
// both listings fail. Selector does not retry.
type Selector struct {
	simulator Candidate
	logger    *log.StructuredLogger
}

func NewSelector() *Selector {
	return &Selector{
		simulator: SimulatorCandidate(),
		logger:    log.NewDebugLogger("backend_selector"),
	}
}

// Select returns the candidate to use. Names in exclude are skipped by both
// registry phases; callers put there the backends which rejected a submission.
func (s *Selector) Select(ctx context.Context, preferred []string, registry Registry, exclude sets.Set[string]) (Candidate, Phase, error) {
	tracer := s.logger.WithContext(ctx).Operation("select_backend").
		WithParam("preferred", preferred).
		WithParam("excluded", sets.List(exclude)).
		Build()

	usable := func(c Candidate) bool {
		return c.Operational && !exclude.Has(c.Name)
	}

	listing, preferredErr := registry.ListBackends(ctx)
	if preferredErr != nil {
		tracer.Error(preferredErr).WithString("phase", string(PhasePreferred)).Log()
	} else if c, ok := firstPreferred(preferred, listing, usable); ok {
		tracer.Success().WithString("phase", string(PhasePreferred)).WithString("backend", c.Name).Log()
		return c, PhasePreferred, nil
	}
	tracer.Step("no_preferred_backend").Log()

	// the snapshot may have changed since the first listing
	listing, hardwareErr := registry.ListBackends(ctx)
	if hardwareErr != nil {
		tracer.Error(hardwareErr).WithString("phase", string(PhaseHardware)).Log()
		if preferredErr != nil {
			return Candidate{}, "", NewErrRegistryUnavailable(preferredErr, hardwareErr)
		}
	} else if c, ok := leastQueued(listing, usable); ok {
		tracer.Success().WithString("phase", string(PhaseHardware)).WithString("backend", c.Name).Log()
		return c, PhaseHardware, nil
	}

	tracer.Success().WithString("phase", string(PhaseSimulator)).WithString("backend", s.simulator.Name).Log()
	return s.simulator, PhaseSimulator, nil
}

func firstPreferred(preferred []string, listing []Candidate, usable func(Candidate) bool) (Candidate, bool) {
	for _, name := range preferred {
		idx := slices.IndexFunc(listing, func(c Candidate) bool { return c.Name == name })
		if idx >= 0 && usable(listing[idx]) {
			return listing[idx], true
		}
	}
	return Candidate{}, false
}

func leastQueued(listing []Candidate, usable func(Candidate) bool) (Candidate, bool) {
	hardware := make([]Candidate, 0, len(listing))
	for _, c := range listing {
		if c.Kind == KindHardware && usable(c) {
			hardware = append(hardware, c)
		}
	}
	if len(hardware) == 0 {
		return Candidate{}, false
	}
	slices.SortFunc(hardware, compareQueue)
	return hardware[0], true
}

func compareQueue(a, b Candidate) int {
	switch {
	case a.QueueDepth == nil && b.QueueDepth == nil:
		return cmp.Compare(a.Name, b.Name)
	case a.QueueDepth == nil:
		return 1
	case b.QueueDepth == nil:
		return -1
	}
	if c := cmp.Compare(*a.QueueDepth, *b.QueueDepth); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}
