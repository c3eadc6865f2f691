package session

import (
	"fmt"
	"log"
)

const (
	EventUpdateStatus   = "update-status"
	EventAssistantReply = "assistant-reply"
)

const (
	StatusCapturing  = "Capturing screen..."
	StatusProcessing = "Processing screenshot..."
	StatusForwarded  = "Processing..."
	StatusNoSession  = "No active session"
	StatusNoContent  = "No content detected"
	StatusSending    = "Sending to assistant..."
	StatusSent       = "Text sent to assistant successfully"
	StatusSendFailed = "Failed to send to assistant"
	StatusNoText     = "No text found in screenshot"
)

// ErrorStatus formats a failed cycle for the renderer.
func ErrorStatus(err error) string { return fmt.Sprintf("Error: %v", err) }

// ScreenContext frames text captured by the repeating schedule.
func ScreenContext(text string) string {
	return `I can see the following content on screen: "` + text + `"`
}

// SingleCaptureContext frames text from a one-off capture.
func SingleCaptureContext(text string) string {
	return "Screenshot OCR Result: " + text
}

// StatusReporter receives fire-and-forget UI notifications. Implementations
// must not block.
type StatusReporter interface {
	SendToRenderer(event, message string)
}

type ReporterFunc func(event, message string)

func (f ReporterFunc) SendToRenderer(event, message string) { f(event, message) }

// Reporters fans one notification out to several reporters.
type Reporters []StatusReporter

func (rs Reporters) SendToRenderer(event, message string) {
	for _, r := range rs {
		if r != nil {
			r.SendToRenderer(event, message)
		}
	}
}

// LogReporter writes notifications to the standard logger.
type LogReporter struct{}

func (LogReporter) SendToRenderer(event, message string) {
	log.Printf("Status [%s]: %s", event, message)
}
