// Package session is the delivery side of the pipeline: it forwards
// recognized text into the current assistant session and reports progress
// to whatever UI is listening.
package session

import (
	"context"
	"errors"
	"sync"
)

// ErrNoActiveSession marks the reportable state where nothing is attached.
// Deliver never returns it; it reports StatusNoSession instead.
var ErrNoActiveSession = errors.New(StatusNoSession)

// Session accepts text as conversational context.
type Session interface {
	SendRealtimeInput(ctx context.Context, text string) error
}

// Ref is the attach/detach slot holding the current session. An empty Ref
// is a normal state.
type Ref struct {
	mu      sync.RWMutex
	current Session
}

func (r *Ref) Attach(s Session) {
	r.mu.Lock()
	r.current = s
	r.mu.Unlock()
}

// Detach clears the slot and returns what was attached.
func (r *Ref) Detach() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.current
	r.current = nil
	return s
}

func (r *Ref) Current() Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Sink delivers text to the attached session and emits status messages.
type Sink struct {
	ref      *Ref
	reporter StatusReporter
}

func NewSink(ref *Ref, reporter StatusReporter) *Sink {
	if ref == nil {
		ref = &Ref{}
	}
	if reporter == nil {
		reporter = LogReporter{}
	}
	return &Sink{ref: ref, reporter: reporter}
}

// Ref returns the session slot the sink delivers to.
func (s *Sink) Ref() *Ref { return s.ref }

// ReportStatus emits message as an update-status event.
func (s *Sink) ReportStatus(message string) {
	s.reporter.SendToRenderer(EventUpdateStatus, message)
}

// Deliver sends text to the current session. With no session attached it
// reports StatusNoSession and returns (false, nil).
func (s *Sink) Deliver(ctx context.Context, text string) (bool, error) {
	cur := s.ref.Current()
	if cur == nil {
		s.ReportStatus(StatusNoSession)
		return false, nil
	}
	if err := cur.SendRealtimeInput(ctx, text); err != nil {
		return false, err
	}
	return true, nil
}
