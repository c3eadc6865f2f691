// Package overlay implements interactive region selection. A Driver opens a
// platform Surface that streams pointer and key events; the Selector turns
// those events into a screen rectangle.
package overlay

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"time"

	"screen-ocr-assist/src/screenshot"
)

var (
	ErrSelectionCancelled  = errors.New("Selection cancelled")
	ErrSelectionTimeout    = errors.New("Selection timed out")
	ErrSelectionInProgress = errors.New("Selection already in progress")
)

const (
	DefaultTimeout = 30 * time.Second
	// minSelectionSpan is the smallest committed width/height; smaller drags are ignored.
	minSelectionSpan = 5
)

type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	Cancel
)

func (k EventKind) String() string {
	switch k {
	case PointerDown:
		return "pointer-down"
	case PointerMove:
		return "pointer-move"
	case PointerUp:
		return "pointer-up"
	case Cancel:
		return "cancel"
	}
	return "unknown"
}

// Event is a message from the surface. X and Y are relative to the primary
// display origin.
type Event struct {
	Kind EventKind
	X, Y int
}

// Surface is the transient selection UI.
type Surface interface {
	// Events delivers input until the surface is destroyed. A closed channel
	// means the user dismissed the surface.
	Events() <-chan Event
	// Bounds is the selectable area in display-local coordinates.
	Bounds() image.Rectangle
	// Highlight shows live feedback for the rectangle being dragged.
	Highlight(r image.Rectangle)
	// Destroy tears the surface down. The selector calls it exactly once.
	Destroy()
}

// Driver opens a surface for one selection.
type Driver interface {
	Open(ctx context.Context) (Surface, error)
}

type State int

const (
	StateIdle State = iota
	StateAwaitingInput
)

type Options struct {
	Timeout time.Duration
}

// Selector resolves one rectangle at a time.
type Selector struct {
	driver  Driver
	timeout time.Duration

	mu    sync.Mutex
	state State
}

func NewSelector(driver Driver, opts Options) *Selector {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Selector{driver: driver, timeout: timeout}
}

// State reports whether a selection is pending.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Select opens a surface and blocks until the user commits a rectangle,
// cancels, the timeout fires or ctx ends. A concurrent call fails fast with
// ErrSelectionInProgress.
func (s *Selector) Select(ctx context.Context) (screenshot.Region, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return screenshot.Region{}, ErrSelectionInProgress
	}
	s.state = StateAwaitingInput
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	}()

	surface, err := s.driver.Open(ctx)
	if err != nil {
		return screenshot.Region{}, err
	}
	var destroyOnce sync.Once
	defer destroyOnce.Do(surface.Destroy)

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	bounds := surface.Bounds()
	events := surface.Events()
	var anchor image.Point
	dragging := false

	for {
		select {
		case <-ctx.Done():
			return screenshot.Region{}, ctx.Err()
		case <-timer.C:
			log.Printf("Selector: timed out after %s", s.timeout)
			return screenshot.Region{}, ErrSelectionTimeout
		case ev, ok := <-events:
			if !ok {
				log.Printf("Selector: surface closed")
				return screenshot.Region{}, ErrSelectionCancelled
			}
			switch ev.Kind {
			case Cancel:
				log.Printf("Selector: cancelled by user")
				return screenshot.Region{}, ErrSelectionCancelled
			case PointerDown:
				anchor = clampPoint(image.Pt(ev.X, ev.Y), bounds)
				dragging = true
			case PointerMove:
				if dragging {
					surface.Highlight(normalize(anchor, clampPoint(image.Pt(ev.X, ev.Y), bounds)))
				}
			case PointerUp:
				if !dragging {
					continue
				}
				dragging = false
				r := normalize(anchor, clampPoint(image.Pt(ev.X, ev.Y), bounds))
				if r.Dx() < minSelectionSpan || r.Dy() < minSelectionSpan {
					log.Printf("Selector: selection too small (%dx%d), ignoring", r.Dx(), r.Dy())
					surface.Highlight(image.Rectangle{})
					continue
				}
				region := screenshot.Region{
					X:      r.Min.X - bounds.Min.X,
					Y:      r.Min.Y - bounds.Min.Y,
					Width:  r.Dx(),
					Height: r.Dy(),
				}
				log.Printf("Selector: region selected %+v", region)
				return region, nil
			}
		}
	}
}

// clampPoint limits p to the closed rectangle b so a drag can end on the far edge.
func clampPoint(p image.Point, b image.Rectangle) image.Point {
	if p.X < b.Min.X {
		p.X = b.Min.X
	}
	if p.Y < b.Min.Y {
		p.Y = b.Min.Y
	}
	if p.X > b.Max.X {
		p.X = b.Max.X
	}
	if p.Y > b.Max.Y {
		p.Y = b.Max.Y
	}
	return p
}

func normalize(a, b image.Point) image.Rectangle {
	return image.Rectangle{Min: a, Max: b}.Canon()
}
