// Package artifact persists assembled context documents by name.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidName is returned for names that are empty or could escape
	// the store directory.
	ErrInvalidName = errors.New("invalid artifact name")

	// ErrNotFound is returned by Open for a missing artifact.
	ErrNotFound = errors.New("artifact not found")
)

// Store saves and serves artifacts.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
	Open(name string) (io.ReadCloser, int64, error)
}

// FSStore keeps artifacts as files in Dir.
type FSStore struct {
	Dir string
}

// NewFSStore returns a store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{Dir: dir}
}

// ValidateName rejects names that are empty, contain a path separator or
// refer to a parent directory.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Save writes data to Dir/name atomically: the bytes land in a temporary
// file in the same directory which is then renamed over the target.
func (s *FSStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err = os.Rename(tmpName, filepath.Join(s.Dir, name)); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// Open returns the artifact's content and size.
func (s *FSStore) Open(name string) (io.ReadCloser, int64, error) {
	if err := ValidateName(name); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, info.Size(), nil
}
