package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FileStorage stores artifacts as files below a root directory
type FileStorage struct {
	fs afero.Fs
}

// NewFileStorage creates a storage rooted at dir on the local filesystem
func NewFileStorage(dir string) *FileStorage {
	return NewFileStorageFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// NewFileStorageFs creates a storage on an arbitrary afero filesystem
func NewFileStorageFs(fs afero.Fs) *FileStorage {
	return &FileStorage{fs: fs}
}

// Read implements Storage
func (s *FileStorage) Read(_ context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, cleanKey(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %q: %w", key, err)
	}
	return data, nil
}

// Write implements Storage. The file is written to a sibling temporary file
// and renamed into place so readers never observe a partial artifact.
func (s *FileStorage) Write(_ context.Context, key string, data []byte, _ string) error {
	name := cleanKey(key)
	if dir := filepath.Dir(name); dir != "." {
		if err := s.fs.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("ensuring directories for %q: %w", key, err)
		}
	}

	f, err := afero.TempFile(s.fs, filepath.Dir(name), partialPrefix+"*"+partialSuffix)
	if err != nil {
		return fmt.Errorf("creating temporary file for %q: %w", key, err)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = s.fs.Chmod(tmp, 0644)
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("writing %q: %w", key, err)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("renaming %q: %w", key, err)
	}
	return nil
}

const (
	partialPrefix = ".publish-"
	partialSuffix = ".partial"
)

// isPartial reports whether p names an in-flight write
func isPartial(p string) bool {
	base := filepath.Base(p)
	return strings.HasPrefix(base, partialPrefix) && strings.HasSuffix(base, partialSuffix)
}

// Delete implements Storage
func (s *FileStorage) Delete(_ context.Context, key string) error {
	if err := s.fs.Remove(cleanKey(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %q: %w", key, err)
	}
	return nil
}

// List implements Storage
func (s *FileStorage) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := afero.Walk(s.fs, ".", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || isPartial(p) {
			return nil
		}
		key := filepath.ToSlash(strings.TrimPrefix(p, "./"))
		key = strings.TrimPrefix(key, "/")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists implements Storage
func (s *FileStorage) Exists(_ context.Context, key string) (bool, error) {
	fi, err := s.fs.Stat(cleanKey(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking %q: %w", key, err)
	}
	return !fi.IsDir(), nil
}
