package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"screen-ocr-assist/src/clipboard"
	"screen-ocr-assist/src/logutil"
)

// ClipboardSession places delivered text on the system clipboard.
type ClipboardSession struct{}

func (ClipboardSession) SendRealtimeInput(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := clipboard.Write(text); err != nil {
		return err
	}
	log.Printf("Session: copied %d chars to clipboard", len(text))
	return nil
}

// WriterSession writes each delivery as one line to W.
type WriterSession struct {
	mu sync.Mutex
	W  io.Writer
}

func NewWriterSession(w io.Writer) *WriterSession { return &WriterSession{W: w} }

func (s *WriterSession) SendRealtimeInput(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.W, text); err != nil {
		return fmt.Errorf("write session output: %w", err)
	}
	log.Printf("Session: wrote %q", logutil.SanitizeForLogging(text))
	return nil
}
