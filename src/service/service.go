// Package service is the boundary the host talks to. Every operation returns
// a Response; errors and panics never escape.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"screen-ocr-assist/src/config"
	"screen-ocr-assist/src/pipeline"
	"screen-ocr-assist/src/scheduler"
	"screen-ocr-assist/src/session"
)

// Response mirrors the JSON shape handed back to callers.
type Response struct {
	Success     bool   `json:"success"`
	Text        string `json:"text,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	Error       string `json:"error,omitempty"`
}

func ok() Response { return Response{Success: true} }

func failure(err error) Response { return Response{Success: false, Error: err.Error()} }

// Engine is the OCR lifecycle owned by the service.
type Engine interface {
	Initialize(ctx context.Context) error
	Cleanup() error
}

type Options struct {
	// DefaultMode is used by CaptureSingle when the caller names none.
	DefaultMode pipeline.Mode
}

type Service struct {
	sched       *scheduler.Scheduler
	ocr         Engine
	sink        *session.Sink
	defaultMode pipeline.Mode
}

func New(sched *scheduler.Scheduler, ocr Engine, sink *session.Sink, opts Options) *Service {
	mode := opts.DefaultMode
	if !mode.Valid() {
		mode = pipeline.ModeRegion
	}
	return &Service{sched: sched, ocr: ocr, sink: sink, defaultMode: mode}
}

// Capturing reports whether the repeating schedule is running.
func (s *Service) Capturing() bool { return s.sched.Capturing() }

// StartCapture starts repeating capture every interval seconds. "manual"
// (or empty) only prepares the OCR engine and leaves the schedule idle.
func (s *Service) StartCapture(ctx context.Context, interval string) (resp Response) {
	defer recoverTo("start-capture", &resp)

	interval = strings.TrimSpace(interval)
	if interval == "" || strings.EqualFold(interval, config.IntervalManual) {
		if err := s.ocr.Initialize(ctx); err != nil {
			return failure(err)
		}
		log.Printf("Service: manual mode, OCR ready")
		return ok()
	}
	d, err := ParseInterval(interval)
	if err != nil {
		return failure(err)
	}
	if err := s.sched.StartRepeating(d); err != nil {
		return failure(err)
	}
	return ok()
}

func (s *Service) StopCapture() (resp Response) {
	defer recoverTo("stop-capture", &resp)
	s.sched.Stop()
	return ok()
}

// CaptureSingle runs one capture and reports the text and encoded image.
func (s *Service) CaptureSingle(ctx context.Context, mode string) (resp Response) {
	defer recoverTo("capture-single", &resp)

	m := s.defaultMode
	if strings.TrimSpace(mode) != "" {
		m = pipeline.Mode(config.ResolveMode(mode))
	}
	out, err := s.sched.CaptureOnce(ctx, m)
	if err != nil {
		return failure(err)
	}
	return Response{Success: true, Text: out.Text, ImageBase64: out.ImageBase64}
}

// Cleanup stops the schedule, terminates OCR and removes the scratch
// directory. Repeated calls succeed.
func (s *Service) Cleanup() (resp Response) {
	defer recoverTo("cleanup", &resp)
	s.sched.Stop()
	if err := s.ocr.Cleanup(); err != nil {
		return failure(err)
	}
	log.Printf("Service: cleanup complete")
	return ok()
}

// SendText forwards arbitrary text to the attached session.
func (s *Service) SendText(ctx context.Context, text string) (resp Response) {
	defer recoverTo("send-text", &resp)

	text = strings.TrimSpace(text)
	if text == "" {
		return failure(errors.New("text is empty"))
	}
	delivered, err := s.sink.Deliver(ctx, text)
	if err != nil {
		return failure(err)
	}
	if !delivered {
		return failure(session.ErrNoActiveSession)
	}
	return ok()
}

// ParseInterval accepts whole seconds ("5") or a Go duration ("1500ms").
func ParseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%w: %q", scheduler.ErrInvalidInterval, v)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid capture interval %q", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %q", scheduler.ErrInvalidInterval, v)
	}
	return d, nil
}

func recoverTo(op string, resp *Response) {
	if r := recover(); r != nil {
		log.Printf("Service: %s panicked: %v", op, r)
		*resp = Response{Success: false, Error: fmt.Sprintf("%s failed: %v", op, r)}
	}
}
