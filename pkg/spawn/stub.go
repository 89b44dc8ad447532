//go:build linux

package spawn

import (
	"context"
	"sync"
)

// Invocation records one Start/Run call made against a Stub.
type Invocation struct {
	Name string
	Args []string
}

// Stub is an in-process ProcessSpawner for tests: it records every
// invocation and returns canned output instead of touching the host OS.
type Stub struct {
	mu sync.Mutex

	// Output is returned by Run/Wait for every invocation unless Outputs
	// has a per-name override.
	Output []byte
	// Err is returned by Run/Wait for every invocation unless Errs has a
	// per-name override.
	Err error
	// Outputs overrides Output keyed by command name.
	Outputs map[string][]byte
	// Errs overrides Err keyed by command name.
	Errs map[string]error

	Invocations []Invocation
}

func (s *Stub) Start(_ context.Context, name string, args ...string) (Handle, error) {
	s.record(name, args)
	return &stubHandle{out: s.outputFor(name), err: s.errFor(name)}, nil
}

func (s *Stub) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	s.record(name, args)
	return s.outputFor(name), s.errFor(name)
}

func (s *Stub) record(name string, args []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Invocations = append(s.Invocations, Invocation{Name: name, Args: append([]string(nil), args...)})
}

func (s *Stub) outputFor(name string) []byte {
	if v, ok := s.Outputs[name]; ok {
		return v
	}
	return s.Output
}

func (s *Stub) errFor(name string) error {
	if v, ok := s.Errs[name]; ok {
		return v
	}
	return s.Err
}

// Calls returns the invocations recorded so far, safe for concurrent use.
func (s *Stub) Calls() []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Invocation, len(s.Invocations))
	copy(out, s.Invocations)
	return out
}

type stubHandle struct {
	out []byte
	err error
}

func (h *stubHandle) Wait() ([]byte, error) { return h.out, h.err }
func (h *stubHandle) Kill() error           { return nil }
func (h *stubHandle) Pid() int              { return 0 }
