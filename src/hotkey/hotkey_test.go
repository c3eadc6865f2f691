package hotkey

import (
	"testing"

	gohook "github.com/robotn/gohook"
)

func TestKeyNameToRawcodes(t *testing.T) {
	tests := []struct {
		keyName  string
		expected []uint16
	}{
		{"ctrl", []uint16{162, 163}},
		{"alt", []uint16{164, 165}},
		{"shift", []uint16{160, 161}},
		{"win", []uint16{91, 92}},
		{"super", []uint16{91, 92}},
		{"q", []uint16{81}},
		{"w", []uint16{87}},
		{"0", []uint16{48}},
		{"9", []uint16{57}},
		{"f1", []uint16{112}},
		{"f12", []uint16{123}},
		{"f24", []uint16{135}},
		{"f25", nil},
		{"f01", nil},
		{"esc", []uint16{27}},
		{"printscreen", []uint16{44}},
		{"unknown", nil},
	}

	for _, tt := range tests {
		t.Run(tt.keyName, func(t *testing.T) {
			result := keyNameToRawcodes(tt.keyName)
			if len(result) != len(tt.expected) {
				t.Fatalf("keyNameToRawcodes(%q) = %v, expected %v", tt.keyName, result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("keyNameToRawcodes(%q)[%d] = %d, expected %d", tt.keyName, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"Ctrl+Alt+Q", []string{"ctrl", "alt", "q"}},
		{"Alt+F4", []string{"alt", "f4"}},
		{"Ctrl+Win+E", []string{"ctrl", "cmd", "e"}},
		{"Super + Alt + T", []string{"cmd", "alt", "t"}},
		{"Control+W", []string{"ctrl", "w"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseHotkey(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("parseHotkey(%q) = %v, expected %v", tt.input, result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("parseHotkey(%q)[%d] = %q, expected %q", tt.input, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestMatcherFiresOncePerPress(t *testing.T) {
	m, err := newMatcher("Ctrl+Alt+Q")
	if err != nil {
		t.Fatal(err)
	}

	if m.feed(gohook.KeyDown, 162) || m.feed(gohook.KeyDown, 165) {
		t.Fatal("Combination must not fire before all keys are down")
	}
	if !m.feed(gohook.KeyDown, 81) {
		t.Fatal("Expected combination to fire on final key")
	}
	if m.feed(gohook.KeyDown, 81) {
		t.Fatal("Expected no repeat fire while modifiers are not re-pressed")
	}

	// release and press again
	m.feed(gohook.KeyUp, 81)
	m.feed(gohook.KeyDown, 163)
	m.feed(gohook.KeyDown, 164)
	if !m.feed(gohook.KeyDown, 81) {
		t.Fatal("Expected combination to fire again")
	}
}

func TestMatcherReleaseBreaksCombination(t *testing.T) {
	m, err := newMatcher("Ctrl+Q")
	if err != nil {
		t.Fatal(err)
	}
	m.feed(gohook.KeyDown, 162)
	m.feed(gohook.KeyUp, 162)
	if m.feed(gohook.KeyDown, 81) {
		t.Fatal("Released modifier must not count")
	}
}

func TestNewMatcherRejectsUnknownKeys(t *testing.T) {
	if _, err := newMatcher("Ctrl+Banana"); err == nil {
		t.Fatal("Expected error for unknown key")
	}
	if _, err := newMatcher(""); err == nil {
		t.Fatal("Expected error for empty hotkey")
	}
}

func TestHubFanOutAndListen(t *testing.T) {
	src := make(chan gohook.Event, 16)
	starts := 0
	h := NewHub(func() chan gohook.Event {
		starts++
		return src
	})

	fired := make(chan struct{}, 1)
	stop, err := h.Listen("Ctrl+Q", func() { fired <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()
	raw, unsubscribe := h.Subscribe(8)

	src <- gohook.Event{Kind: gohook.KeyDown, Rawcode: 162}
	src <- gohook.Event{Kind: gohook.KeyDown, Rawcode: 81}

	<-fired
	if ev := <-raw; ev.Rawcode != 162 {
		t.Fatalf("Expected raw subscriber to see first event, got %+v", ev)
	}
	if starts != 1 {
		t.Fatalf("Expected a single hook start, got %d", starts)
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-raw; ok {
		// drain the buffered second event, then the channel must be closed
		if _, ok := <-raw; ok {
			t.Fatal("Expected channel closed after unsubscribe")
		}
	}
}
