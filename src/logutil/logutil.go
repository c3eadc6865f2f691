package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const (
	logFileName  = "screen_ocr_assist.log"
	maxSizeBytes = 10 * 1024 * 1024 // 10 MB
	maxArchives  = 3
	maxLogLength = 100
)

// Setup enables file logging with basic size-based rotation (10MB, max 3 files).
// When disabled, logs are discarded to keep stdout clean for the stdout sink.
func Setup(enableFileLogging bool) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if !enableFileLogging {
		log.SetOutput(io.Discard)
		return
	}
	w, err := newRotatingWriter(logFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return
	}
	log.SetOutput(w)
}

type rotatingWriter struct {
	path string
	f    *os.File
}

func newRotatingWriter(path string) (*rotatingWriter, error) {
	rotateIfNeeded(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return &rotatingWriter{path: path, f: f}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > maxSizeBytes {
		_ = w.f.Close()
		rotate(w.path)
		nf, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func rotateIfNeeded(path string) {
	if st, err := os.Stat(path); err == nil && st.Size() > maxSizeBytes {
		rotate(path)
	}
}

// rotate shifts path -> path.1 -> path.2 -> path.3; the oldest archive is dropped.
func rotate(path string) {
	_ = os.Remove(archiveName(path, maxArchives))
	for i := maxArchives - 1; i >= 1; i-- {
		_ = os.Rename(archiveName(path, i), archiveName(path, i+1))
	}
	_ = os.Rename(path, archiveName(path, 1))
}

func archiveName(path string, n int) string {
	return filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.%d", filepath.Base(path), n))
}

// RedactKey masks an API key, leaving first/last 4 chars: xxxx...yyyy
func RedactKey(k string) string {
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}

// SanitizeForLogging truncates recognized text and escapes control characters
// so screen content cannot inject lines into the log.
func SanitizeForLogging(text string) string {
	if len(text) > maxLogLength {
		text = text[:maxLogLength] + "..."
	}

	var b strings.Builder
	for _, r := range text {
		switch {
		case r == '\n' || r == '\r':
			b.WriteString("\\n")
		case r == '\t':
			b.WriteString("\\t")
		case r < 32 || r == 127:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
