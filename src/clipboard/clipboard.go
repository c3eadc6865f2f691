package clipboard

import (
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

var (
	initOnce sync.Once
	initErr  error
	writeMu  sync.Mutex
)

// Init prepares the system clipboard. Repeated calls return the first result.
func Init() error {
	initOnce.Do(func() {
		initErr = clipboard.Init()
	})
	return initErr
}

// Write performs a mutex-guarded clipboard write to prevent corruption under parallel writes.
func Write(text string) error {
	if err := Init(); err != nil {
		return fmt.Errorf("clipboard unavailable: %w", err)
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// Read returns the current text content of the clipboard.
func Read() (string, error) {
	if err := Init(); err != nil {
		return "", fmt.Errorf("clipboard unavailable: %w", err)
	}
	return string(clipboard.Read(clipboard.FmtText)), nil
}
