package ocr

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	scratchPrefix = "screenshot-"
	scratchSuffix = ".jpg"
)

// fileOps is the subset of the filesystem the scratch area touches.
type fileOps interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(name string, data []byte, perm os.FileMode) error
	Remove(name string) error
	ReadDir(name string) ([]os.DirEntry, error)
	RemoveAll(path string) error
}

type osFileOps struct{}

func (osFileOps) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (osFileOps) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}
func (osFileOps) Remove(name string) error                   { return os.Remove(name) }
func (osFileOps) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }
func (osFileOps) RemoveAll(path string) error                { return os.RemoveAll(path) }

// Scratch owns the temporary directory holding images handed to the OCR backend.
type Scratch struct {
	dir string
	fs  fileOps
	now func() time.Time

	mu      sync.Mutex
	present bool
}

// NewScratch returns a scratch area rooted at dir. Nothing is created until Ensure.
func NewScratch(dir string) *Scratch {
	return &Scratch{dir: dir, fs: osFileOps{}, now: time.Now}
}

func (s *Scratch) Dir() string { return s.dir }

// Ensure creates the directory and removes files left behind by a previous run.
func (s *Scratch) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create scratch dir %s: %w", s.dir, err)
	}
	s.present = true
	s.sweepLocked()
	return nil
}

func (s *Scratch) sweepLocked() {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, scratchPrefix) || !strings.HasSuffix(name, scratchSuffix) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.dir, name)); err == nil {
			log.Printf("OCR: removed leftover scratch file %s", name)
		}
	}
}

// Write stores data under a unique timestamped name and returns its path.
func (s *Scratch) Write(data []byte) (string, error) {
	name := fmt.Sprintf("%s%d-%s%s", scratchPrefix, s.now().UnixMilli(), uuid.NewString()[:8], scratchSuffix)
	path := filepath.Join(s.dir, name)
	if err := s.fs.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return path, nil
}

// Remove deletes a scratch file; a file that is already gone is not an error.
func (s *Scratch) Remove(path string) {
	if err := s.fs.Remove(path); err != nil && !isNotExist(err) {
		log.Printf("OCR: failed to remove scratch file %s: %v", path, err)
	}
}

// RemoveAll deletes the directory. Calls after the first are no-ops that touch nothing.
func (s *Scratch) RemoveAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return nil
	}
	s.present = false
	if err := s.fs.RemoveAll(s.dir); err != nil && !isNotExist(err) {
		return fmt.Errorf("remove scratch dir %s: %w", s.dir, err)
	}
	return nil
}

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }
