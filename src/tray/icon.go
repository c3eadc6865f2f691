package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
	"sync"
)

const iconSize = 32

var (
	iconOnce  sync.Once
	iconBytes []byte
)

// Icon returns the tray icon: ICO on Windows, PNG elsewhere.
func Icon() []byte {
	iconOnce.Do(func() {
		data, err := renderIconPNG()
		if err != nil {
			return
		}
		if runtime.GOOS == "windows" {
			data = wrapICO(data, iconSize)
		}
		iconBytes = data
	})
	return iconBytes
}

// renderIconPNG draws a dashed selection frame with three text lines inside.
func renderIconPNG() ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	frame := color.NRGBA{0x00, 0x78, 0xd4, 0xff}
	ink := color.NRGBA{0x33, 0x33, 0x33, 0xff}

	for i := 2; i < iconSize-2; i++ {
		if (i/3)%2 == 1 {
			continue
		}
		for _, w := range []int{2, 3} {
			img.Set(i, w, frame)
			img.Set(i, iconSize-1-w, frame)
			img.Set(w, i, frame)
			img.Set(iconSize-1-w, i, frame)
		}
	}
	for n, y := range []int{10, 15, 20} {
		end := iconSize - 8 - 4*n
		for x := 8; x < end; x++ {
			img.Set(x, y, ink)
			img.Set(x, y+1, ink)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapICO embeds a PNG in a single-image ICO container (Vista and later).
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	// ICONDIRENTRY
	dim := byte(size)
	if size >= 256 {
		dim = 0
	}
	buf.Write([]byte{dim, dim, 0, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))  // planes
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32)) // bpp
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pngData)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(6+16))
	buf.Write(pngData)
	return buf.Bytes()
}
