package screenshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/kbinani/screenshot"
)

// ErrNoScreenSource is returned when no display can be enumerated.
var ErrNoScreenSource = errors.New("No screen sources found")

// Region is a rectangle in pixels relative to the primary display origin.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Rectangle converts the region into an image.Rectangle.
func (r Region) Rectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Display abstracts the OS screen enumeration so capture logic is testable.
type Display interface {
	NumActiveDisplays() int
	DisplayBounds(index int) image.Rectangle
	CaptureRect(bounds image.Rectangle) (*image.RGBA, error)
}

type systemDisplay struct{}

func (systemDisplay) NumActiveDisplays() int { return screenshot.NumActiveDisplays() }

func (systemDisplay) DisplayBounds(index int) image.Rectangle {
	return screenshot.GetDisplayBounds(index)
}

func (systemDisplay) CaptureRect(bounds image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(bounds)
}

// Source captures frames from the primary display. Multi-monitor selection
// is intentionally absent: display 0 is always used.
type Source struct {
	display Display
}

// NewSource returns a Source backed by the OS display.
func NewSource() *Source { return &Source{display: systemDisplay{}} }

// NewSourceWithDisplay returns a Source backed by d.
func NewSourceWithDisplay(d Display) *Source { return &Source{display: d} }

// PrimaryBounds returns the bounds of the primary display in virtual-screen coordinates.
func (s *Source) PrimaryBounds() (image.Rectangle, error) {
	if s.display.NumActiveDisplays() == 0 {
		return image.Rectangle{}, ErrNoScreenSource
	}
	return s.display.DisplayBounds(0), nil
}

// CaptureFull grabs the whole primary display at native resolution.
// The returned image is rebased to (0,0).
func (s *Source) CaptureFull(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bounds, err := s.PrimaryBounds()
	if err != nil {
		return nil, err
	}
	img, err := s.display.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	return rebase(img), nil
}

// CaptureRegion grabs the full primary frame and crops it to region.
// The output has exactly region.Width x region.Height pixels.
func (s *Source) CaptureRegion(ctx context.Context, region Region) (*image.RGBA, error) {
	if region.Empty() || region.X < 0 || region.Y < 0 {
		return nil, fmt.Errorf("invalid region: x=%d y=%d width=%d height=%d", region.X, region.Y, region.Width, region.Height)
	}
	full, err := s.CaptureFull(ctx)
	if err != nil {
		return nil, err
	}
	return Crop(full, region)
}

// Crop copies region out of img into a new image rebased at (0,0).
func Crop(img *image.RGBA, region Region) (*image.RGBA, error) {
	rect := region.Rectangle()
	if !rect.In(img.Bounds()) {
		return nil, fmt.Errorf("region %v exceeds frame %v", rect, img.Bounds())
	}
	out := image.NewRGBA(image.Rect(0, 0, region.Width, region.Height))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out, nil
}

func rebase(img *image.RGBA) *image.RGBA {
	if img.Bounds().Min == (image.Point{}) {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

// EncodePNG serializes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}
