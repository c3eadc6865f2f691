package overlay

import (
	"context"
	"image"
	"sync"

	gohook "github.com/robotn/gohook"

	"screen-ocr-assist/src/hotkey"
	"screen-ocr-assist/src/screenshot"
)

// hookDriver selects a region using the global input hook instead of a
// window: the user drags anywhere on the primary display and presses Esc to
// cancel. It works wherever gohook does, without drawing anything.
type hookDriver struct {
	src *screenshot.Source
	hub *hotkey.Hub
}

// NewHookDriver returns a driver fed by hub.
func NewHookDriver(src *screenshot.Source, hub *hotkey.Hub) Driver {
	return &hookDriver{src: src, hub: hub}
}

func (d *hookDriver) Open(ctx context.Context) (Surface, error) {
	primary, err := d.src.PrimaryBounds()
	if err != nil {
		return nil, err
	}
	raw, unsubscribe := d.hub.Subscribe(256)
	s := &hookSurface{
		events:      make(chan Event, 256),
		origin:      primary.Min,
		bounds:      image.Rect(0, 0, primary.Dx(), primary.Dy()),
		unsubscribe: unsubscribe,
		done:        make(chan struct{}),
	}
	go s.pump(raw)
	return s, nil
}

type hookSurface struct {
	events      chan Event
	origin      image.Point
	bounds      image.Rectangle
	unsubscribe func()
	done        chan struct{}
	once        sync.Once
}

func (s *hookSurface) Events() <-chan Event      { return s.events }
func (s *hookSurface) Bounds() image.Rectangle   { return s.bounds }
func (s *hookSurface) Highlight(image.Rectangle) {}

func (s *hookSurface) Destroy() {
	s.once.Do(func() {
		close(s.done)
		s.unsubscribe()
	})
}

func (s *hookSurface) pump(raw <-chan gohook.Event) {
	defer close(s.events)
	for ev := range raw {
		out, ok := translateHookEvent(ev, s.origin)
		if !ok {
			continue
		}
		select {
		case s.events <- out:
		case <-s.done:
			return
		}
	}
}

const hookLeftButton = 1

func translateHookEvent(ev gohook.Event, origin image.Point) (Event, bool) {
	x := int(ev.X) - origin.X
	y := int(ev.Y) - origin.Y
	switch ev.Kind {
	case gohook.MouseDown:
		if ev.Button == hookLeftButton {
			return Event{Kind: PointerDown, X: x, Y: y}, true
		}
	case gohook.MouseDrag:
		return Event{Kind: PointerMove, X: x, Y: y}, true
	case gohook.MouseUp:
		if ev.Button == hookLeftButton {
			return Event{Kind: PointerUp, X: x, Y: y}, true
		}
	case gohook.KeyDown:
		if ev.Keycode == gohook.Keycode["esc"] {
			return Event{Kind: Cancel}, true
		}
	}
	return Event{}, false
}
