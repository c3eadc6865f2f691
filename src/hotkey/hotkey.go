package hotkey

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	gohook "github.com/robotn/gohook"
)

// Listen registers combo on the default hub and invokes callback each time
// the full combination is held down. The returned function stops listening.
func Listen(combo string, callback func()) (func(), error) {
	return DefaultHub().Listen(combo, callback)
}

// Listen registers combo on h. See the package-level Listen.
func (h *Hub) Listen(combo string, callback func()) (func(), error) {
	m, err := newMatcher(combo)
	if err != nil {
		return nil, err
	}
	events, stop := h.Subscribe(64)
	log.Printf("Hotkey listener configured for: %s", combo)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		for ev := range events {
			if m.feed(ev.Kind, ev.Rawcode) {
				log.Printf("Hotkey activated: %s", combo)
				if callback != nil {
					callback()
				}
			}
		}
	}()
	return stop, nil
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// matcher tracks which keys of one combination are currently held.
type matcher struct {
	keys []keyState
}

func newMatcher(combo string) (*matcher, error) {
	names := parseHotkey(combo)
	m := &matcher{}
	for _, name := range names {
		codes := keyNameToRawcodes(name)
		if len(codes) == 0 {
			return nil, fmt.Errorf("cannot map key %q in hotkey %q", name, combo)
		}
		m.keys = append(m.keys, keyState{name: name, rawcodes: codes})
	}
	if len(m.keys) == 0 {
		return nil, fmt.Errorf("no valid keys in hotkey %q", combo)
	}
	return m, nil
}

// feed updates key state and reports whether the combination just completed.
// State resets after a match so holding the keys fires once.
func (m *matcher) feed(kind uint8, rawcode uint16) bool {
	switch kind {
	case gohook.KeyDown, gohook.KeyHold:
		if !m.set(rawcode, true) {
			return false
		}
		for _, k := range m.keys {
			if !k.pressed {
				return false
			}
		}
		for i := range m.keys {
			m.keys[i].pressed = false
		}
		return true
	case gohook.KeyUp:
		m.set(rawcode, false)
	}
	return false
}

func (m *matcher) set(rawcode uint16, pressed bool) bool {
	hit := false
	for i := range m.keys {
		for _, c := range m.keys[i].rawcodes {
			if c == rawcode {
				m.keys[i].pressed = pressed
				hit = true
				break
			}
		}
	}
	return hit
}

func parseHotkey(combo string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(combo), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			part = "ctrl"
		case "win", "super":
			part = "cmd"
		}
		keys = append(keys, part)
	}
	return keys
}

// Windows virtual-key codes as reported in gohook rawcodes.
var namedKeys = map[string][]uint16{
	"ctrl":  {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":   {164, 165}, // VK_LMENU, VK_RMENU
	"shift": {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":   {91, 92},   // VK_LWIN, VK_RWIN

	"space":     {32},
	"enter":     {13},
	"return":    {13},
	"esc":       {27},
	"escape":    {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"del":       {46},
	"insert":    {45},
	"ins":       {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pgup":      {33},
	"pagedown":  {34},
	"pgdn":      {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},

	"printscreen": {44},
}

func keyNameToRawcodes(name string) []uint16 {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "win", "super":
		name = "cmd"
	case "control":
		name = "ctrl"
	}
	if codes, ok := namedKeys[name]; ok {
		return codes
	}
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c - 'a' + 'A')}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c)}
		}
	}
	if len(name) >= 2 && name[0] == 'f' {
		if n, err := strconv.Atoi(name[1:]); err == nil && n >= 1 && n <= 24 && name[1] != '0' {
			return []uint16{uint16(111 + n)} // VK_F1 = 112
		}
	}
	return nil
}
