// Package ocr adapts an external OCR backend into a single, lazily
// initialized engine shared by the whole process.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

var (
	ErrNotInitialized = errors.New("OCR engine not initialized")
	ErrInit           = errors.New("Failed to initialize OCR")
	ErrRecognition    = errors.New("OCR recognition failed")
)

// Backend recognizes text in an image file. Implementations need not be
// safe for concurrent use; Engine serializes all calls.
type Backend interface {
	Recognize(imagePath string) (string, error)
	Close() error
}

// BackendFactory builds a backend for the given language model.
type BackendFactory func(language string) (Backend, error)

type Options struct {
	Language   string
	ScratchDir string
	NewBackend BackendFactory
}

// Engine is the process-wide OCR handle. Construct it once and share the pointer.
type Engine struct {
	language   string
	newBackend BackendFactory
	scratch    *Scratch

	// gate is a one-slot semaphore: one recognition (or teardown) at a time.
	gate chan struct{}

	mu      sync.Mutex
	backend Backend
}

func New(opts Options) *Engine {
	lang := opts.Language
	if lang == "" {
		lang = "eng"
	}
	return &Engine{
		language:   lang,
		newBackend: opts.NewBackend,
		scratch:    NewScratch(opts.ScratchDir),
		gate:       make(chan struct{}, 1),
	}
}

// Scratch exposes the engine's scratch area.
func (e *Engine) Scratch() *Scratch { return e.scratch }

// Initialized reports whether a backend is loaded.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend != nil
}

// Initialize prepares the scratch directory and loads the backend. It is a
// no-op when already initialized. A failed attempt leaves the engine
// uninitialized so a later call can retry.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend != nil {
		return nil
	}
	if e.newBackend == nil {
		return fmt.Errorf("%w: no backend configured", ErrInit)
	}
	if err := e.scratch.Ensure(); err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	b, err := e.newBackend(e.language)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	e.backend = b
	log.Printf("OCR: engine initialized (language=%s, scratch=%s)", e.language, e.scratch.Dir())
	return nil
}

// Recognize extracts trimmed text from an encoded image. Calls are queued
// behind the gate; ctx bounds both the wait and the recognition itself. When
// ctx expires mid-recognition the backend call finishes in the background
// while still holding the gate.
func (e *Engine) Recognize(ctx context.Context, image []byte) (string, error) {
	select {
	case e.gate <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	released := false
	defer func() {
		if !released {
			<-e.gate
		}
	}()

	e.mu.Lock()
	b := e.backend
	e.mu.Unlock()
	if b == nil {
		return "", ErrNotInitialized
	}

	path, err := e.scratch.Write(image)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognition, err)
	}

	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	released = true
	go func() {
		defer func() { <-e.gate }()
		text, err := b.Recognize(path)
		e.scratch.Remove(path)
		resCh <- result{text: text, err: err}
	}()

	select {
	case r := <-resCh:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", ErrRecognition, r.err)
		}
		return strings.TrimSpace(r.text), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Terminate releases the backend. It waits for an in-flight recognition and
// is a no-op when the engine was never initialized.
func (e *Engine) Terminate() error {
	e.gate <- struct{}{}
	defer func() { <-e.gate }()

	e.mu.Lock()
	b := e.backend
	e.backend = nil
	e.mu.Unlock()
	if b == nil {
		return nil
	}
	log.Printf("OCR: terminating engine")
	return b.Close()
}

// Cleanup terminates the engine and removes the scratch directory. Safe to
// call repeatedly.
func (e *Engine) Cleanup() error {
	termErr := e.Terminate()
	rmErr := e.scratch.RemoveAll()
	return errors.Join(termErr, rmErr)
}
