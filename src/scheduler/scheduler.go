// Package scheduler drives capture cycles: one-off captures on demand and a
// repeating timer that feeds screen text to the delivery sink.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"screen-ocr-assist/src/logutil"
	"screen-ocr-assist/src/pipeline"
	"screen-ocr-assist/src/screenshot"
	"screen-ocr-assist/src/session"
	"screen-ocr-assist/src/worker"
)

const (
	DefaultMinContentChars = 10
	DefaultCycleDeadline   = 20 * time.Second
)

var ErrInvalidInterval = errors.New("capture interval must be positive")

type Capturer interface {
	Capture(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Recognizer is the OCR engine as seen by the scheduler.
type Recognizer interface {
	Initialize(ctx context.Context) error
	Recognize(ctx context.Context, image []byte) (string, error)
}

type RegionSelector interface {
	Select(ctx context.Context) (screenshot.Region, error)
}

// Deliverer is the session sink.
type Deliverer interface {
	Deliver(ctx context.Context, text string) (bool, error)
	ReportStatus(message string)
}

type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type timeTicker struct{ *time.Ticker }

func (t timeTicker) Chan() <-chan time.Time { return t.C }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }

type Options struct {
	// MinContentChars: repeating cycles deliver only text longer than this.
	MinContentChars int
	// SingleMinContentChars: single captures deliver text longer than this.
	SingleMinContentChars int
	Quality               int
	CycleDeadline         time.Duration
	NewTicker             TickerFactory
}

// Outcome is the result of a single capture.
type Outcome struct {
	Text        string
	ImageBase64 string
	Delivered   bool
}

type Scheduler struct {
	capture  Capturer
	ocr      Recognizer
	selector RegionSelector
	sink     Deliverer
	opts     Options

	// one worker, one queued cycle; surplus ticks are dropped
	pool *worker.Pool

	mu        sync.Mutex
	capturing bool
	interval  time.Duration
	ticker    Ticker
	stop      chan struct{}
	loopDone  chan struct{}
}

func New(capture Capturer, ocr Recognizer, selector RegionSelector, sink Deliverer, opts Options) *Scheduler {
	if opts.MinContentChars < 0 {
		opts.MinContentChars = DefaultMinContentChars
	}
	if opts.SingleMinContentChars < 0 {
		opts.SingleMinContentChars = 0
	}
	if opts.CycleDeadline <= 0 {
		opts.CycleDeadline = DefaultCycleDeadline
	}
	if opts.NewTicker == nil {
		opts.NewTicker = newTimeTicker
	}
	return &Scheduler{
		capture:  capture,
		ocr:      ocr,
		selector: selector,
		sink:     sink,
		opts:     opts,
		pool:     worker.New(1),
	}
}

// Capturing reports whether the repeating schedule is active.
func (s *Scheduler) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

// Interval returns the active repeat interval, or zero when idle.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// StartRepeating runs one cycle immediately and then one per interval.
// Calling it while already capturing is a no-op.
func (s *Scheduler) StartRepeating(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturing {
		log.Printf("Scheduler: already capturing every %v, ignoring start", s.interval)
		return nil
	}
	s.capturing = true
	s.interval = interval
	s.ticker = s.opts.NewTicker(interval)
	s.stop = make(chan struct{})
	s.loopDone = make(chan struct{})
	log.Printf("Scheduler: started repeating capture every %v", interval)

	s.trigger()
	go s.loop(s.ticker, s.stop, s.loopDone)
	return nil
}

// Stop cancels the repeating timer. In-flight cycles run to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.capturing {
		s.mu.Unlock()
		return
	}
	s.capturing = false
	s.interval = 0
	s.ticker.Stop()
	close(s.stop)
	done := s.loopDone
	s.ticker, s.stop, s.loopDone = nil, nil, nil
	s.mu.Unlock()

	<-done
	log.Printf("Scheduler: stopped repeating capture")
}

// Close stops the schedule and waits for the in-flight cycle.
func (s *Scheduler) Close() {
	s.Stop()
	s.pool.Close()
}

func (s *Scheduler) loop(t Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			s.trigger()
		}
	}
}

func (s *Scheduler) trigger() {
	if !s.pool.Submit(context.Background(), s.runCycle) {
		log.Printf("Scheduler: previous cycle still running, skipping tick")
	}
}

// runCycle is one repeating capture: full screen, threshold, screen framing.
// Failures are reported and swallowed.
func (s *Scheduler) runCycle(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.opts.CycleDeadline)
	defer cancel()
	id := uuid.NewString()[:8]
	start := time.Now()

	s.sink.ReportStatus(session.StatusCapturing)
	res, err := s.capture.Capture(ctx, pipeline.Request{Mode: pipeline.ModeFullScreen, Quality: s.opts.Quality})
	if err != nil {
		s.fail(id, err)
		return
	}

	s.sink.ReportStatus(session.StatusProcessing)
	text, err := s.recognize(ctx, res.Encoded)
	if err != nil {
		s.fail(id, err)
		return
	}

	if utf8.RuneCountInString(text) <= s.opts.MinContentChars {
		log.Printf("Scheduler[%s]: %d chars below threshold, not delivering", id, utf8.RuneCountInString(text))
		s.sink.ReportStatus(session.StatusNoContent)
		return
	}

	delivered, err := s.sink.Deliver(ctx, session.ScreenContext(text))
	if err != nil {
		s.fail(id, err)
		return
	}
	if delivered {
		s.sink.ReportStatus(session.StatusForwarded)
	}
	log.Printf("Scheduler[%s]: cycle done in %v (chars=%d delivered=%v)", id, time.Since(start).Round(time.Millisecond), len(text), delivered)
}

func (s *Scheduler) fail(id string, err error) {
	log.Printf("Scheduler[%s]: cycle failed: %v", id, err)
	s.sink.ReportStatus(session.ErrorStatus(err))
}

// CaptureOnce runs a single capture in the given mode. Region mode asks the
// selector first; a failed selection returns before any capture.
func (s *Scheduler) CaptureOnce(ctx context.Context, mode pipeline.Mode) (Outcome, error) {
	req := pipeline.Request{Mode: mode, Quality: s.opts.Quality}
	switch mode {
	case pipeline.ModeRegion:
		if s.selector == nil {
			return Outcome{}, errors.New("region selection unavailable")
		}
		region, err := s.selector.Select(ctx)
		if err != nil {
			log.Printf("Scheduler: region selection ended: %v", err)
			return Outcome{}, err
		}
		req.Region = region
	case pipeline.ModeFullScreen:
	default:
		return Outcome{}, fmt.Errorf("unknown capture mode %q", mode)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CycleDeadline)
	defer cancel()

	s.sink.ReportStatus(session.StatusCapturing)
	res, err := s.capture.Capture(ctx, req)
	if err != nil {
		s.sink.ReportStatus(session.ErrorStatus(err))
		return Outcome{}, err
	}

	s.sink.ReportStatus(session.StatusProcessing)
	text, err := s.recognize(ctx, res.Encoded)
	if err != nil {
		s.sink.ReportStatus(session.ErrorStatus(err))
		return Outcome{}, err
	}
	out := Outcome{Text: text, ImageBase64: res.Base64}

	if text == "" || utf8.RuneCountInString(text) <= s.opts.SingleMinContentChars {
		s.sink.ReportStatus(session.StatusNoText)
		return out, nil
	}

	s.sink.ReportStatus(session.StatusSending)
	delivered, err := s.sink.Deliver(ctx, session.SingleCaptureContext(text))
	switch {
	case err != nil:
		log.Printf("Scheduler: delivery failed: %v", err)
		s.sink.ReportStatus(session.StatusSendFailed)
	case delivered:
		out.Delivered = true
		s.sink.ReportStatus(session.StatusSent)
	}
	log.Printf("Scheduler: single %s capture %q delivered=%v", mode, logutil.SanitizeForLogging(text), out.Delivered)
	return out, nil
}

// recognize initializes the engine on first use and returns trimmed text.
func (s *Scheduler) recognize(ctx context.Context, image []byte) (string, error) {
	if err := s.ocr.Initialize(ctx); err != nil {
		return "", err
	}
	text, err := s.ocr.Recognize(ctx, image)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
