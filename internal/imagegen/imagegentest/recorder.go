// Package imagegentest provides a recording imagegen.Generator for tests.
package imagegentest

import (
	"context"
	"sync"

	"github.com/roschler/livepeer-image-helper-back-end/internal/imagegen"
)

// Recorder returns fixed URLs and remembers every request.
type Recorder struct {
	mu   sync.Mutex
	URLs []string
	Err  error
	reqs []imagegen.Request
}

// New returns a recorder answering with urls.
func New(urls ...string) *Recorder {
	return &Recorder{URLs: urls}
}

// Generate implements imagegen.Generator.
func (r *Recorder) Generate(_ context.Context, req imagegen.Request) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.State = req.State.Clone()
	r.reqs = append(r.reqs, req)
	if r.Err != nil {
		return nil, r.Err
	}
	return append([]string(nil), r.URLs...), nil
}

// Requests returns the recorded requests.
func (r *Recorder) Requests() []imagegen.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]imagegen.Request(nil), r.reqs...)
}
