package backend

import (
	"context"
	"fmt"
	"strings"
)

type Kind string

const (
	KindHardware  Kind = "hardware"
	KindSimulator Kind = "simulator"

	// SimulatorName is the name of the local fallback candidate.
	SimulatorName = "local_simulator"
)

// Candidate is one entry of a registry snapshot. The snapshot may be stale:
// an operational candidate can still reject a submission.
type Candidate struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Operational bool   `json:"operational"`
	// QueueDepth is nil when the registry does not know it.
	QueueDepth *int `json:"queueDepth,omitempty"`
}

func (c Candidate) IsSimulator() bool {
	return c.Kind == KindSimulator
}

// IsLocal reports whether c is the in-process simulator candidate. A
// simulator listed by a registry is a remote backend.
func (c Candidate) IsLocal() bool {
	return c.Kind == KindSimulator && c.Name == SimulatorName
}

// ParseKind normalizes a kind read from a file or the wire. An empty kind
// means hardware; ok is false for anything else it does not know.
func ParseKind(s string) (kind Kind, ok bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindHardware:
		return KindHardware, true
	case KindSimulator:
		return KindSimulator, true
	default:
		return Kind(s), false
	}
}

func (c Candidate) String() string {
	depth := "unknown"
	if c.QueueDepth != nil {
		depth = fmt.Sprintf("%d", *c.QueueDepth)
	}
	return fmt.Sprintf("%s (kind=%s operational=%t queue=%s)", c.Name, c.Kind, c.Operational, depth)
}

// SimulatorCandidate is the terminal fallback of the selection. It is always operational.
func SimulatorCandidate() Candidate {
	return Candidate{
		Name:        SimulatorName,
		Kind:        KindSimulator,
		Operational: true,
	}
}

// Registry lists the backends known to a provider.
type Registry interface {
	ListBackends(ctx context.Context) ([]Candidate, error)
}

// QueueDepth is a helper to build candidates with a known queue depth.
func QueueDepth(n int) *int {
	return &n
}
