package service

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"screen-ocr-assist/src/ocr"
	"screen-ocr-assist/src/overlay"
	"screen-ocr-assist/src/pipeline"
	"screen-ocr-assist/src/scheduler"
	"screen-ocr-assist/src/screenshot"
	"screen-ocr-assist/src/session"
)

type frameSource struct{}

func (frameSource) frame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 0, 255})
		}
	}
	return img
}

func (f frameSource) CaptureFull(ctx context.Context) (*image.RGBA, error) { return f.frame(), nil }

func (f frameSource) CaptureRegion(ctx context.Context, r screenshot.Region) (*image.RGBA, error) {
	return screenshot.Crop(f.frame(), r)
}

type textBackend struct{ text string }

func (b textBackend) Recognize(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return b.text, nil
}

func (textBackend) Close() error { return nil }

type selectorFunc func(ctx context.Context) (screenshot.Region, error)

func (f selectorFunc) Select(ctx context.Context) (screenshot.Region, error) { return f(ctx) }

type memSession struct {
	mu    sync.Mutex
	texts []string
}

func (m *memSession) SendRealtimeInput(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

type fixture struct {
	svc     *Service
	engine  *ocr.Engine
	ref     *session.Ref
	session *memSession
	scratch string
}

func newFixture(t *testing.T, text string, sel scheduler.RegionSelector) *fixture {
	t.Helper()
	scratch := filepath.Join(t.TempDir(), "screenshot-ocr")
	engine := ocr.New(ocr.Options{
		ScratchDir: scratch,
		NewBackend: func(string) (ocr.Backend, error) { return textBackend{text: text}, nil },
	})
	ref := &session.Ref{}
	ms := &memSession{}
	ref.Attach(ms)
	sink := session.NewSink(ref, session.Reporters{})
	sched := scheduler.New(pipeline.New(frameSource{}), engine, sel, sink, scheduler.Options{MinContentChars: 10})
	t.Cleanup(sched.Close)
	return &fixture{
		svc:     New(sched, engine, sink, Options{DefaultMode: pipeline.ModeFullScreen}),
		engine:  engine,
		ref:     ref,
		session: ms,
		scratch: scratch,
	}
}

func TestCaptureSingleFullScreen(t *testing.T) {
	f := newFixture(t, "  Quarterly report  ", nil)
	resp := f.svc.CaptureSingle(context.Background(), "")
	if !resp.Success || resp.Text != "Quarterly report" || resp.ImageBase64 == "" {
		t.Fatalf("Unexpected response %+v", resp)
	}
	if len(f.session.texts) != 1 || f.session.texts[0] != "Screenshot OCR Result: Quarterly report" {
		t.Fatalf("Unexpected delivery %v", f.session.texts)
	}
}

func TestCaptureSingleRegionCancelled(t *testing.T) {
	f := newFixture(t, "unused", selectorFunc(func(context.Context) (screenshot.Region, error) {
		return screenshot.Region{}, overlay.ErrSelectionCancelled
	}))
	resp := f.svc.CaptureSingle(context.Background(), "region")
	if resp.Success || resp.Error != "Selection cancelled" {
		t.Fatalf("Expected selection cancelled failure, got %+v", resp)
	}
	if f.engine.Initialized() || len(f.session.texts) != 0 {
		t.Fatal("Expected no OCR and no delivery after cancellation")
	}
}

func TestCleanupTwice(t *testing.T) {
	f := newFixture(t, "text", nil)
	if resp := f.svc.StartCapture(context.Background(), "manual"); !resp.Success {
		t.Fatalf("manual start failed: %+v", resp)
	}
	if !f.engine.Initialized() {
		t.Fatal("Expected manual start to initialize OCR")
	}
	if _, err := os.Stat(f.scratch); err != nil {
		t.Fatalf("Expected scratch dir: %v", err)
	}
	for i := 0; i < 2; i++ {
		if resp := f.svc.Cleanup(); !resp.Success {
			t.Fatalf("cleanup %d failed: %+v", i, resp)
		}
	}
	if _, err := os.Stat(f.scratch); !os.IsNotExist(err) {
		t.Fatalf("Expected scratch dir removed, stat err=%v", err)
	}
}

func TestStartStopCapture(t *testing.T) {
	f := newFixture(t, "Hello World This Is A Test", nil)
	if resp := f.svc.StartCapture(context.Background(), "60"); !resp.Success {
		t.Fatalf("start failed: %+v", resp)
	}
	if resp := f.svc.StartCapture(context.Background(), "60"); !resp.Success {
		t.Fatalf("second start must be a no-op success: %+v", resp)
	}
	if !f.svc.Capturing() {
		t.Fatal("Expected capturing")
	}
	if resp := f.svc.StopCapture(); !resp.Success {
		t.Fatalf("stop failed: %+v", resp)
	}
	if resp := f.svc.StopCapture(); !resp.Success {
		t.Fatalf("stop while idle failed: %+v", resp)
	}
	if f.svc.Capturing() {
		t.Fatal("Expected idle")
	}
}

func TestStartCaptureInvalidInterval(t *testing.T) {
	f := newFixture(t, "", nil)
	for _, v := range []string{"0", "-3", "soon"} {
		resp := f.svc.StartCapture(context.Background(), v)
		if resp.Success || resp.Error == "" {
			t.Errorf("Expected failure for %q, got %+v", v, resp)
		}
	}
}

func TestSendText(t *testing.T) {
	f := newFixture(t, "", nil)
	if resp := f.svc.SendText(context.Background(), "  hi there "); !resp.Success {
		t.Fatalf("send failed: %+v", resp)
	}
	if f.session.texts[0] != "hi there" {
		t.Fatalf("Unexpected text %q", f.session.texts[0])
	}
	if resp := f.svc.SendText(context.Background(), "   "); resp.Success {
		t.Fatal("Expected failure for empty text")
	}
	f.ref.Detach()
	resp := f.svc.SendText(context.Background(), "hello")
	if resp.Success || resp.Error != "No active session" {
		t.Fatalf("Expected no active session failure, got %+v", resp)
	}
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{"5": 5 * time.Second, " 2 ": 2 * time.Second, "1500ms": 1500 * time.Millisecond}
	for in, want := range cases {
		got, err := ParseInterval(in)
		if err != nil || got != want {
			t.Errorf("ParseInterval(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseInterval("0"); !errors.Is(err, scheduler.ErrInvalidInterval) {
		t.Errorf("Expected ErrInvalidInterval, got %v", err)
	}
}

func TestResponseJSON(t *testing.T) {
	b, err := json.Marshal(Response{Success: false, Error: "Selection cancelled"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"success":false,"error":"Selection cancelled"}` {
		t.Fatalf("Unexpected JSON %s", b)
	}
	b, _ = json.Marshal(Response{Success: true, Text: "t", ImageBase64: "aW1n"})
	if !strings.Contains(string(b), `"imageBase64":"aW1n"`) {
		t.Fatalf("Unexpected JSON %s", b)
	}
}

func TestPanicBecomesFailure(t *testing.T) {
	f := newFixture(t, "", nil)
	f.svc.ocr = panicEngine{}
	resp := f.svc.Cleanup()
	if resp.Success || !strings.Contains(resp.Error, "cleanup failed") {
		t.Fatalf("Expected recovered failure, got %+v", resp)
	}
}

type panicEngine struct{}

func (panicEngine) Initialize(context.Context) error { return nil }
func (panicEngine) Cleanup() error                   { panic("engine exploded") }
