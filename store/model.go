package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var ErrInvalidName = errors.New("invalid model name")

var validName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ModelStore persists opaque network parameter blobs by name.
type ModelStore interface {
	Save(ctx context.Context, name string, blob []byte) error
	// Load returns ok=false when nothing was saved under name.
	Load(ctx context.Context, name string) (blob []byte, ok bool, err error)
	Close() error
}

// NewModelStore opens the backend of the given kind. For "file" path is a
// directory, for "sqlite" it is the database file.
func NewModelStore(ctx context.Context, kind, path string) (ModelStore, error) {
	switch kind {
	case "", "file":
		return NewFileStore(path)
	case "sqlite":
		s := NewSQLiteStore(path)
		if err := s.Init(ctx); err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported model store backend: %s", kind)
	}
}

func checkName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// FileStore keeps each blob at <dir>/<name>.bin.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("model directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name+".bin")
}

// Save writes to a temp file in the same directory and renames it over the
// previous blob.
func (s *FileStore) Save(ctx context.Context, name string, blob []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp model: %w", err)
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp model: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path(name)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename model: %w", err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, name string) ([]byte, bool, error) {
	if err := checkName(name); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	blob, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read model: %w", err)
	}
	return blob, true, nil
}

func (s *FileStore) Close() error { return nil }
