// Package pipeline turns a capture request into an OCR-ready image.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"log"

	"screen-ocr-assist/src/enhance"
	"screen-ocr-assist/src/screenshot"
)

type Mode string

const (
	ModeFullScreen Mode = "full-screen"
	ModeRegion     Mode = "region"
)

func (m Mode) Valid() bool { return m == ModeFullScreen || m == ModeRegion }

// Request describes one capture attempt.
type Request struct {
	Mode Mode
	// Region is used only in region mode.
	Region  screenshot.Region
	Quality int
}

// Result holds the captured frame and its encoded derivative. It is owned by
// the cycle that produced it and dropped once OCR is done.
type Result struct {
	Raw     []byte // PNG
	Encoded []byte // enhanced JPEG
	Base64  string // base64 of Encoded
	Width   int
	Height  int
}

// FrameSource produces raw frames from the primary display.
type FrameSource interface {
	CaptureFull(ctx context.Context) (*image.RGBA, error)
	CaptureRegion(ctx context.Context, region screenshot.Region) (*image.RGBA, error)
}

type Capturer struct {
	src FrameSource
}

func New(src FrameSource) *Capturer { return &Capturer{src: src} }

// Capture grabs a frame for req and runs it through the enhancer.
func (c *Capturer) Capture(ctx context.Context, req Request) (*Result, error) {
	var (
		frame *image.RGBA
		err   error
	)
	switch req.Mode {
	case ModeFullScreen:
		frame, err = c.src.CaptureFull(ctx)
	case ModeRegion:
		frame, err = c.src.CaptureRegion(ctx, req.Region)
	default:
		return nil, fmt.Errorf("unknown capture mode %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	raw, err := screenshot.EncodePNG(frame)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	encoded, err := enhance.Enhance(raw, enhance.Options{Quality: req.Quality})
	if err != nil {
		return nil, err
	}
	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	log.Printf("Pipeline: captured %s frame %dx%d (png=%d bytes, jpeg=%d bytes)", req.Mode, w, h, len(raw), len(encoded))
	return &Result{
		Raw:     raw,
		Encoded: encoded,
		Base64:  base64.StdEncoding.EncodeToString(encoded),
		Width:   w,
		Height:  h,
	}, nil
}
