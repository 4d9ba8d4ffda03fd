package settlement

import (
	"context"
	"sync"
)

// Recorder is a Settler that records every submitted request and answers
// with a configurable error. Intended for tests and local development.
type Recorder struct {
	mu       sync.Mutex
	requests []Request

	// FailWith, when non-nil, is returned for every Submit call.
	FailWith error
}

// NewRecorder creates an empty Recorder that accepts all requests.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Submit implements Settler.
func (r *Recorder) Submit(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, req)
	if r.FailWith != nil {
		return r.FailWith
	}
	return nil
}

// Requests returns a copy of all recorded requests.
func (r *Recorder) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Request, len(r.requests))
	copy(out, r.requests)
	return out
}

// Count returns the number of recorded requests.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.requests)
}
