// Package completiontest provides a scripted completion.Completer for tests.
package completiontest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roschler/livepeer-image-helper-back-end/internal/completion"
	"github.com/roschler/livepeer-image-helper-back-end/internal/jsonfix"
)

// Reply is the canned outcome for one tag.
type Reply struct {
	Text string
	Err  error
}

// Scripted answers each request from a table keyed by request tag and
// records every request it receives. Safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	replies map[string]Reply
	calls   []completion.Request
}

// New returns an empty script.
func New() *Scripted {
	return &Scripted{replies: make(map[string]Reply)}
}

// On registers the raw model text returned for tag.
func (s *Scripted) On(tag, text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[tag] = Reply{Text: text}
	return s
}

// Fail makes requests for tag return err.
func (s *Scripted) Fail(tag string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[tag] = Reply{Err: err}
	return s
}

// Complete implements completion.Completer. JSON decoding goes through the
// same repair path as the real service.
func (s *Scripted) Complete(ctx context.Context, req completion.Request) (*completion.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	reply, ok := s.replies[req.Tag]
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("completiontest: no reply scripted for %q", req.Tag)
	}
	if reply.Err != nil {
		return nil, fmt.Errorf("%s: %w", req.Tag, reply.Err)
	}

	res := &completion.Result{Tag: req.Tag, Text: reply.Text, ReceivedAt: time.Now().UTC()}
	if !req.ExpectJSON {
		return res, nil
	}
	if len(req.Fields) > 0 {
		obj, err := jsonfix.ExtractFields(reply.Text, req.Fields)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", req.Tag, err)
		}
		res.JSON = obj
		return res, nil
	}
	v, err := jsonfix.Parse(reply.Text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Tag, err)
	}
	res.JSON = v
	return res, nil
}

// Calls returns a copy of the recorded requests in arrival order.
func (s *Scripted) Calls() []completion.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]completion.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// Count returns how many requests carried tag.
func (s *Scripted) Count(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Tag == tag {
			n++
		}
	}
	return n
}

// Last returns the most recent request for tag.
func (s *Scripted) Last(tag string) (completion.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].Tag == tag {
			return s.calls[i], true
		}
	}
	return completion.Request{}, false
}
