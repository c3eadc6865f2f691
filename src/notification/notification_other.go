//go:build !windows

package notification

import "log"

// ShowBlockingError logs a blocking error message on non-Windows platforms.
func ShowBlockingError(title, message string) {
	log.Printf("%s: %s", title, clip(message))
}

// ShowInfo logs an informational message on non-Windows platforms.
func ShowInfo(title, message string) {
	log.Printf("%s: %s", title, clip(message))
}
