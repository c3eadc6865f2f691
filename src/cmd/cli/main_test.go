package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"screen-ocr-assist/src/ocr"
)

type fakeBackend struct {
	text   string
	err    error
	images [][]byte
	closed bool
}

func (f *fakeBackend) Recognize(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	f.images = append(f.images, data)
	return f.text, f.err
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func newTestTool(b *fakeBackend) (*tool, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	clock := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return &tool{
		stdin:  strings.NewReader(""),
		stdout: &stdout,
		stderr: &stderr,
		newBackend: func(lang string) (ocr.Backend, error) {
			return b, nil
		},
		now: func() time.Time { return clock },
	}, &stdout, &stderr
}

func writeTestPNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 32), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "input.png")
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNormalizeLegacyArgs(t *testing.T) {
	got := normalizeLegacyArgs([]string{"ocr-tool", "-file", "a.png", "-json", "-lang=deu", "-v"})
	want := []string{"ocr-tool", "--file", "a.png", "--json", "--lang=deu", "-v"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected arg[%d]=%q, got %q", i, want[i], got[i])
		}
	}
}

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		ok   bool
	}{
		{"png", append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, 0), true},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, true},
		{"text", []byte("not an image"), false},
		{"short", []byte{0x89}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateImage(tt.data)
			if (err == nil) != tt.ok {
				t.Fatalf("validateImage ok=%v, got err=%v", tt.ok, err)
			}
		})
	}
}

func TestMissingFileFlag(t *testing.T) {
	tl, _, _ := newTestTool(&fakeBackend{})
	if err := tl.runWithArgs([]string{"ocr-tool"}); err == nil {
		t.Fatal("Expected error when --file is missing")
	}
}

func TestPlainTextOutputEnhancesInput(t *testing.T) {
	b := &fakeBackend{text: "  Hello OCR \n"}
	tl, stdout, _ := newTestTool(b)

	if err := tl.runWithArgs([]string{"ocr-tool", "--file", writeTestPNG(t)}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stdout.String() != "Hello OCR" {
		t.Fatalf("Expected trimmed text, got %q", stdout.String())
	}
	if len(b.images) != 1 || !bytes.HasPrefix(b.images[0], jpegMagic) {
		t.Fatal("Expected the backend to receive one enhanced JPEG")
	}
	if !b.closed {
		t.Fatal("Expected backend closed after the run")
	}
}

func TestRawSkipsEnhancement(t *testing.T) {
	b := &fakeBackend{text: "x"}
	tl, _, _ := newTestTool(b)

	if err := tl.runWithArgs([]string{"ocr-tool", "--file", writeTestPNG(t), "--raw"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(b.images) != 1 || !bytes.HasPrefix(b.images[0], pngMagic) {
		t.Fatal("Expected the backend to receive the original PNG")
	}
}

func TestJSONOutput(t *testing.T) {
	tl, stdout, _ := newTestTool(&fakeBackend{text: "line one\nline two"})
	path := writeTestPNG(t)

	if err := tl.runWithArgs([]string{"ocr-tool", "-file", path, "-json"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var result OCRResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse JSON: %v\n%s", err, stdout.String())
	}
	if result.Text != "line one\nline two" || result.CharCount != len(result.Text) {
		t.Fatalf("Unexpected result: %+v", result)
	}
	if result.Source != path {
		t.Fatalf("Expected source=%s, got %s", path, result.Source)
	}
	if result.Timestamp != "2025-01-02T03:04:05Z" {
		t.Fatalf("Unexpected timestamp %s", result.Timestamp)
	}
}

func TestStdinInput(t *testing.T) {
	data, err := os.ReadFile(writeTestPNG(t))
	if err != nil {
		t.Fatal(err)
	}
	tl, stdout, _ := newTestTool(&fakeBackend{text: "from stdin"})
	tl.stdin = bytes.NewReader(data)

	if err := tl.runWithArgs([]string{"ocr-tool", "--file", "-"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stdout.String() != "from stdin" {
		t.Fatalf("Unexpected output %q", stdout.String())
	}
}

func TestInvalidInputs(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.png")
	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(empty, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(text, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing", filepath.Join(dir, "nope.png"), "failed to read file"},
		{"empty", empty, "input file is empty"},
		{"not an image", text, "invalid magic number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{}
			tl, _, _ := newTestTool(b)
			err := tl.runWithArgs([]string{"ocr-tool", "--file", tt.path})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Expected error containing %q, got %v", tt.want, err)
			}
			if len(b.images) != 0 {
				t.Fatal("Backend must not run for invalid input")
			}
		})
	}
}

func TestRecognitionFailure(t *testing.T) {
	tl, stdout, _ := newTestTool(&fakeBackend{err: errors.New("tesseract crashed")})
	err := tl.runWithArgs([]string{"ocr-tool", "--file", writeTestPNG(t)})
	if !errors.Is(err, ocr.ErrRecognition) {
		t.Fatalf("Expected ErrRecognition, got %v", err)
	}
	if stdout.Len() != 0 {
		t.Fatalf("Expected no output on failure, got %q", stdout.String())
	}
}

func TestVerboseLogsToStderr(t *testing.T) {
	tl, _, stderr := newTestTool(&fakeBackend{text: "x"})
	if err := tl.runWithArgs([]string{"ocr-tool", "--file", writeTestPNG(t), "-v"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr.String(), "[verbose] OCR completed") {
		t.Fatalf("Expected verbose trace, got %q", stderr.String())
	}
}
