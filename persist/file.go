package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one file per value in a directory, named
// <token>.<kind>.<ext>.
type FileStore struct {
	dir string
	ext string
}

var _ Store = (*FileStore)(nil)

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithExtension sets the file extension, without the leading dot. Defaults
// to "dat".
func WithExtension(ext string) FileOption {
	return func(s *FileStore) {
		s.ext = strings.TrimPrefix(ext, ".")
	}
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &FileStore{dir: dir, ext: "dat"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(token, kind string) string {
	return filepath.Join(s.dir, token+"."+kind+"."+s.ext)
}

func (s *FileStore) Load(ctx context.Context, token, kind string) ([]byte, error) {
	if err := validateKey(token, kind); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(token, kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", token, kind, err)
	}
	return data, nil
}

// Save writes through a temporary file and renames it into place so readers
// never observe a partial value.
func (s *FileStore) Save(ctx context.Context, token, kind string, data []byte) error {
	if err := validateKey(token, kind); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", token, kind, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s/%s: %w", token, kind, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s/%s: %w", token, kind, err)
	}
	if err := os.Rename(tmp.Name(), s.path(token, kind)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s/%s: %w", token, kind, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, token, kind string) error {
	if err := validateKey(token, kind); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(token, kind))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", token, kind, err)
	}
	return nil
}
