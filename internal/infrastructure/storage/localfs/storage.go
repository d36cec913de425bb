package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Storage is the documents directory. Keys are plain basenames.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/docs"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) BasePath() string {
	return s.basePath
}

// Save writes to a temporary file first so a concurrent rebuild never reads
// a partially uploaded PDF.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.basePath, ".upload-*.tmp")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path(key)); err != nil {
		return fmt.Errorf("move file into place: %w", err)
	}
	return nil
}

// List returns the keys of regular files with the given extension
// (case-insensitive), sorted by name. Subdirectories are not traversed.
func (s *Storage) List(ctx context.Context, ext string) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) Path(key string) string {
	return filepath.Join(s.basePath, key)
}

func validateKey(key string) error {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return errors.New("storage key must be a plain file name")
	}
	return nil
}
