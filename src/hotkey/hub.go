package hotkey

import (
	"log"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Hub owns the single global input hook and fans its events out to
// subscribers. gohook supports only one running hook per process, so the
// hotkey listener and the region selector both attach here.
type Hub struct {
	start func() chan gohook.Event

	mu      sync.Mutex
	started bool
	nextID  int
	subs    map[int]chan gohook.Event
}

// NewHub returns a hub that calls start once, on first subscription.
func NewHub(start func() chan gohook.Event) *Hub {
	return &Hub{start: start, subs: make(map[int]chan gohook.Event)}
}

var (
	defaultHubOnce sync.Once
	defaultHub     *Hub
)

// DefaultHub returns the process-wide hub backed by gohook.Start.
func DefaultHub() *Hub {
	defaultHubOnce.Do(func() { defaultHub = NewHub(gohook.Start) })
	return defaultHub
}

// Subscribe registers a buffered receiver. Events are dropped for a
// subscriber whose buffer is full. The returned function unsubscribes and
// closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan gohook.Event, func()) {
	ch := make(chan gohook.Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	needStart := !h.started
	h.started = true
	h.mu.Unlock()

	if needStart {
		src := h.start()
		if src == nil {
			log.Printf("ERROR: input hook start returned nil channel")
		} else {
			go h.run(src)
		}
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
			h.mu.Unlock()
		})
	}
}

func (h *Hub) run(src chan gohook.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in input hook goroutine: %v", r)
		}
	}()
	for ev := range src {
		h.mu.Lock()
		for _, ch := range h.subs {
			select {
			case ch <- ev:
			default:
			}
		}
		h.mu.Unlock()
	}
	log.Printf("Input hook channel closed")

	h.mu.Lock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.started = false
	h.mu.Unlock()
}
