package stack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when the stack definition file does not exist.
var ErrNotFound = errors.New("stack definition not found")

// Store loads and persists stack definitions.
type Store interface {
	Load(ctx context.Context) (*Definition, error)
	Save(ctx context.Context, def *Definition) error
}

// FileStore persists a stack definition as JSON on disk.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a JSON file-backed store.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and validates the definition.
func (s *FileStore) Load(ctx context.Context) (*Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, err
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	s.logger.Debug().
		Str("path", s.path).
		Int("members", len(def.Members)).
		Msg("stack definition loaded")

	return def, nil
}

// Save writes the definition atomically, keeping the file's permissions.
func (s *FileStore) Save(ctx context.Context, def *Definition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := def.Encode()
	if err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(s.path)
	tempFile, err := os.CreateTemp(dir, ".stack-*.json")
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tempFile.Name(), s.path); err != nil {
		cleanup()
		return err
	}

	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}

	s.logger.Debug().Str("path", s.path).Int("bytes", len(data)).Msg("stack definition written")
	return nil
}
