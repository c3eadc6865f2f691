package tray

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/getlantern/systray"

	"screen-ocr-assist/src/notification"
	"screen-ocr-assist/src/session"
)

// Windows limits tooltips to 127 characters.
const maxTooltipLen = 127

// Config wires menu items to actions. Nil actions hide their item.
type Config struct {
	Title   string
	Tooltip string
	About   string

	OnStart         func()
	OnStop          func()
	OnCaptureRegion func()
	OnCaptureFull   func()
	OnCleanup       func()
	OnExit          func()
}

// Tray owns the system tray icon. It implements session.StatusReporter so
// the latest status is always visible in the tooltip.
type Tray struct {
	cfg Config

	mu     sync.Mutex
	ready  bool
	status string
	start  *systray.MenuItem
	stop   *systray.MenuItem
	quit   chan struct{}
}

func New(cfg Config) *Tray {
	if cfg.Title == "" {
		cfg.Title = "Screen OCR Assist"
	}
	if cfg.Tooltip == "" {
		cfg.Tooltip = cfg.Title
	}
	return &Tray{cfg: cfg, quit: make(chan struct{})}
}

// Run blocks until the tray exits. Call it from the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the icon and makes Run return.
func (t *Tray) Quit() { systray.Quit() }

func (t *Tray) onReady() {
	if icon := Icon(); len(icon) > 0 {
		systray.SetIcon(icon)
	}
	systray.SetTitle(t.cfg.Title)
	systray.SetTooltip(t.cfg.Tooltip)

	items := map[*systray.MenuItem]func(){}
	add := func(title, tip string, fn func()) *systray.MenuItem {
		if fn == nil {
			return nil
		}
		item := systray.AddMenuItem(title, tip)
		items[item] = fn
		return item
	}

	t.mu.Lock()
	t.start = add("Start capturing", "Capture the screen repeatedly", t.cfg.OnStart)
	t.stop = add("Stop capturing", "Stop repeating capture", t.cfg.OnStop)
	t.mu.Unlock()
	add("Capture region", "Select a region and capture it once", t.cfg.OnCaptureRegion)
	add("Capture full screen", "Capture the whole screen once", t.cfg.OnCaptureFull)
	systray.AddSeparator()
	add("Clean up", "Stop capturing and release OCR resources", t.cfg.OnCleanup)
	t.mu.Lock()
	about := t.cfg.About
	t.mu.Unlock()
	if about != "" {
		add("About", "About this tool", func() { notification.ShowInfo(t.cfg.Title, about) })
	}
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	t.mu.Lock()
	t.ready = true
	t.applyLocked()
	t.mu.Unlock()

	for item, fn := range items {
		go watch(item, fn, t.quit)
	}
	go func() {
		<-mQuit.ClickedCh
		log.Printf("Tray: quit requested")
		systray.Quit()
	}()
}

func watch(item *systray.MenuItem, fn func(), quit <-chan struct{}) {
	for {
		select {
		case <-item.ClickedCh:
			fn()
		case <-quit:
			return
		}
	}
}

func (t *Tray) onExit() {
	close(t.quit)
	if t.cfg.OnExit != nil {
		t.cfg.OnExit()
	}
}

// SetAbout replaces the About text. It only takes effect before Run.
func (t *Tray) SetAbout(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.About = text
}

// SetCapturing switches which of start/stop is enabled.
func (t *Tray) SetCapturing(capturing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return
	}
	if t.start != nil {
		if capturing {
			t.start.Disable()
		} else {
			t.start.Enable()
		}
	}
	if t.stop != nil {
		if capturing {
			t.stop.Enable()
		} else {
			t.stop.Disable()
		}
	}
}

// SendToRenderer shows update-status messages in the tooltip.
func (t *Tray) SendToRenderer(event, message string) {
	if event != session.EventUpdateStatus {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = message
	t.applyLocked()
}

func (t *Tray) applyLocked() {
	if !t.ready {
		return
	}
	systray.SetTooltip(tooltipText(t.cfg.Tooltip, t.status))
}

func tooltipText(base, status string) string {
	text := base
	if status = strings.TrimSpace(status); status != "" {
		text = fmt.Sprintf("%s - %s", base, status)
	}
	if len(text) > maxTooltipLen {
		text = text[:maxTooltipLen-3] + "..."
	}
	return text
}
