// Package enhance prepares captured frames for OCR: greyscale, a fixed
// contrast boost, a dynamic range stretch and a JPEG re-encode.
package enhance

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ErrImageProcessing is returned when the input cannot be decoded or re-encoded.
var ErrImageProcessing = errors.New("image processing failed")

const (
	// ContrastPercent is the fixed contrast adjustment applied to every frame.
	ContrastPercent = 30
	DefaultQuality  = 90
)

type Options struct {
	// Quality is the JPEG quality in [1,100]; zero means DefaultQuality.
	Quality int
}

// Enhance decodes raw (any format registered with image, PNG in practice),
// applies the OCR enhancement chain and returns JPEG bytes. The result depends
// only on raw and opts.
func Enhance(raw []byte, opts Options) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrImageProcessing, err)
	}

	img := Apply(src)

	q := opts.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrImageProcessing, err)
	}
	return buf.Bytes(), nil
}

// Apply runs the pixel pipeline without encoding.
func Apply(src image.Image) *image.NRGBA {
	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, ContrastPercent)
	return normalize(img)
}

// normalize stretches each colour channel so its observed range covers 0..255.
// Channels with a flat histogram are left unchanged.
func normalize(img *image.NRGBA) *image.NRGBA {
	var lo, hi [3]uint8
	lo = [3]uint8{255, 255, 255}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			for i, v := range [3]uint8{c.R, c.G, c.B} {
				if v < lo[i] {
					lo[i] = v
				}
				if v > hi[i] {
					hi[i] = v
				}
			}
		}
	}

	var lut [3][256]uint8
	for ch := 0; ch < 3; ch++ {
		span := int(hi[ch]) - int(lo[ch])
		for v := 0; v < 256; v++ {
			switch {
			case span <= 0:
				lut[ch][v] = uint8(v)
			case v <= int(lo[ch]):
				lut[ch][v] = 0
			case v >= int(hi[ch]):
				lut[ch][v] = 255
			default:
				lut[ch][v] = uint8((v - int(lo[ch])) * 255 / span)
			}
		}
	}

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[0][c.R], G: lut[1][c.G], B: lut[2][c.B], A: c.A}
	})
}
