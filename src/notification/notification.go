// Package notification shows modal message boxes for conditions the user
// must acknowledge, such as a failed startup check.
package notification

import "strings"

const maxMessageLen = 1024

// clip bounds message length and normalizes line endings for the dialog.
func clip(message string) string {
	message = strings.ReplaceAll(message, "\r\n", "\n")
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen] + "..."
	}
	return message
}
