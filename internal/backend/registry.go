package backend

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"sigs.k8s.io/yaml"
)

// StaticRegistry serves a fixed list of candidates.
// It backs the registry file option of the CLI and the fake QPU service.
type StaticRegistry struct {
	lock       sync.RWMutex
	candidates []Candidate
}

func NewStaticRegistry(candidates ...Candidate) *StaticRegistry {
	return &StaticRegistry{candidates: slices.Clone(candidates)}
}

type registryFile struct {
	Backends []Candidate `json:"backends"`
}

// LoadStaticRegistry reads a YAML or JSON file of the form:
//
//	backends:
//	  - name: ibm_sherbrooke
//	    kind: hardware
//	    operational: true
//	    queueDepth: 4
func LoadStaticRegistry(path string) (*StaticRegistry, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(contents, &f); err != nil {
		return nil, fmt.Errorf("unmarshalling registry file: %w", err)
	}
	for i, c := range f.Backends {
		if c.Name == "" {
			return nil, fmt.Errorf("registry file %s: backend #%d has no name", path, i)
		}
		kind, ok := ParseKind(string(c.Kind))
		if !ok {
			return nil, fmt.Errorf("registry file %s: backend %s has unknown kind %q", path, c.Name, c.Kind)
		}
		f.Backends[i].Kind = kind
	}
	return NewStaticRegistry(f.Backends...), nil
}

func (r *StaticRegistry) ListBackends(_ context.Context) ([]Candidate, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return slices.Clone(r.candidates), nil
}

// Get returns the candidate called name.
func (r *StaticRegistry) Get(name string) (Candidate, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, c := range r.candidates {
		if c.Name == name {
			return c, true
		}
	}
	return Candidate{}, false
}

// SetOperational flips the operational flag of a candidate, the way a
// provider takes a processor offline for maintenance.
func (r *StaticRegistry) SetOperational(name string, operational bool) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i := range r.candidates {
		if r.candidates[i].Name == name {
			r.candidates[i].Operational = operational
			return true
		}
	}
	return false
}
