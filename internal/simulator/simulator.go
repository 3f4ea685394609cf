// Package simulator is the local executor used when no quantum hardware is
// usable. It measures every qubit of a Hadamard circuit, which amounts to
// drawing one uniform random bit per qubit, so bits come from crypto/rand.
package simulator

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qrandom/qrng/internal/circuit"
	"github.com/qrandom/qrng/internal/executor"
)

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id string) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("simulator job %s not found", id)}
}

type simJob struct {
	bits      string
	readyAt   time.Time
	cancelled bool
}

// Simulator runs circuits in process. With a zero Delay a job is done on its first poll.
type Simulator struct {
	lock   sync.Mutex
	jobs   map[string]*simJob
	delay  time.Duration
	source io.Reader
	now    func() time.Time
}

type Option func(*Simulator)

// WithDelay makes jobs report running until d has elapsed since submission.
func WithDelay(d time.Duration) Option {
	return func(s *Simulator) {
		s.delay = d
	}
}

// WithSource replaces crypto/rand as the source of the measured bits.
func WithSource(r io.Reader) Option {
	return func(s *Simulator) {
		s.source = r
	}
}

func New(opts ...Option) *Simulator {
	s := &Simulator{
		jobs:   make(map[string]*simJob),
		source: rand.Reader,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Submit(ctx context.Context, spec circuit.CircuitSpec, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bits, err := Measure(s.source, spec.BitLength())
	if err != nil {
		return "", err
	}

	id := uuid.New().String()

	s.lock.Lock()
	defer s.lock.Unlock()
	s.jobs[id] = &simJob{bits: bits, readyAt: s.now().Add(s.delay)}

	return id, nil
}

func (s *Simulator) PollStatus(_ context.Context, jobID string) (executor.Poll, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return executor.Poll{}, NewErrJobNotFound(jobID)
	}
	switch {
	case j.cancelled:
		return executor.Poll{Status: executor.StatusCancelled}, nil
	case s.now().Before(j.readyAt):
		return executor.Poll{Status: executor.StatusRunning}, nil
	default:
		return executor.Poll{Status: executor.StatusDone, Bits: j.bits}, nil
	}
}

// Cancel marks a pending job as cancelled. Finished jobs are left untouched.
func (s *Simulator) Cancel(_ context.Context, jobID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return NewErrJobNotFound(jobID)
	}
	if s.now().Before(j.readyAt) {
		j.cancelled = true
	}
	return nil
}

// Measure reads n bits from r, most significant bit of each byte first.
func Measure(r io.Reader, n int) (string, error) {
	buf := make([]byte, (n+7)/8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}

	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		if buf[i/8]&(0x80>>(i%8)) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String(), nil
}
