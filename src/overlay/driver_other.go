//go:build !windows

package overlay

import (
	"screen-ocr-assist/src/hotkey"
	"screen-ocr-assist/src/screenshot"
)

// NewDriver returns the platform selection driver.
func NewDriver(src *screenshot.Source) Driver {
	return NewHookDriver(src, hotkey.DefaultHub())
}
