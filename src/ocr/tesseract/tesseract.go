// Package tesseract provides the gosseract-backed OCR backend. It requires
// cgo and the tesseract/leptonica libraries at build time.
package tesseract

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"screen-ocr-assist/src/ocr"
)

type backend struct {
	client *gosseract.Client
}

// New creates a tesseract client for language and satisfies ocr.BackendFactory.
func New(language string) (ocr.Backend, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set language %q: %w", language, err)
	}
	return &backend{client: client}, nil
}

func (b *backend) Recognize(imagePath string) (string, error) {
	if err := b.client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	return b.client.Text()
}

func (b *backend) Close() error { return b.client.Close() }

// Version reports the linked tesseract version.
func Version() string { return gosseract.Version() }
