package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FilesystemStore stores each key as a file below a root directory.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates a store rooted at dir. The directory is created
// on the first write.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &FilesystemStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FilesystemStore) Root() string { return s.root }

func (s *FilesystemStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FilesystemStore) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Set writes the value to a temporary file and renames it into place.
func (s *FilesystemStore) Set(_ context.Context, key string, value []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (s *FilesystemStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FilesystemStore) walk(prefix string, fn func(key string, d fs.DirEntry) error) error {
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(filepath.Base(key), ".tmp-") || !hasPrefix(key, prefix) {
			return nil
		}
		return fn(key, d)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FilesystemStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.walk(prefix, func(key string, _ fs.DirEntry) error {
		keys = append(keys, key)
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

// DeletePrefix removes matching files. A prefix ending in "/" (or the empty
// prefix) removes the whole directory.
func (s *FilesystemStore) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		entries, err := os.ReadDir(s.root)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	if strings.HasSuffix(prefix, "/") {
		return os.RemoveAll(s.path(strings.TrimSuffix(prefix, "/")))
	}
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *FilesystemStore) Size(_ context.Context, prefix string) (uint64, error) {
	var total uint64
	err := s.walk(prefix, func(_ string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	return total, err
}

func (s *FilesystemStore) Close() error { return nil }

var (
	_ Store = (*FilesystemStore)(nil)
	_ Sizer = (*FilesystemStore)(nil)
)
