package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local is a filesystem-backed Store rooted at a base directory.
type Local struct {
	basePath string
}

// NewLocal creates the base directory if needed and returns the store.
func NewLocal(basePath string) (*Local, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("blob: create base directory: %w", err)
	}
	return &Local{basePath: abs}, nil
}

func (l *Local) fullPath(key string) string {
	return filepath.Join(l.basePath, filepath.Clean("/"+key))
}

// Upload writes data from the reader to a local file.
func (l *Local) Upload(_ context.Context, key string, r io.Reader) error {
	fullPath := l.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("blob: create directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("blob: create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("blob: write file: %w", err)
	}
	return nil
}

// Download returns a reader for the local file at key.
func (l *Local) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob: object not found: %s", key)
		}
		return nil, fmt.Errorf("blob: open file: %w", err)
	}
	return f, nil
}

// Delete removes the local file. Missing files are not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	if err := os.Remove(l.fullPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: delete file: %w", err)
	}
	return nil
}

// Exists checks whether the local file is present.
func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("blob: stat file: %w", err)
	}
	return true, nil
}

var _ Store = (*Local)(nil)
