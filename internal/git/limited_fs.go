package git

import (
	"errors"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
)

var (
	// ErrTooManyFiles is returned when a clone would create more than MaxFiles files
	ErrTooManyFiles = errors.New("repository exceeds the maximum number of files")

	// ErrTooLarge is returned when a clone would write more than TotalFileSize bytes
	ErrTooLarge = errors.New("repository exceeds the maximum total size")
)

// LimitedFs caps the number of files and bytes written to a filesystem, so a
// hostile or oversized repository cannot exhaust memory during a clone.
type LimitedFs struct {
	billy.Filesystem

	MaxFiles      int64
	TotalFileSize int64

	usage *fsUsage
}

type fsUsage struct {
	mu    sync.Mutex
	files int64
	bytes int64
}

// NewLimitedFs wraps fs with the given limits
func NewLimitedFs(fs billy.Filesystem, maxFiles, totalSize int64) *LimitedFs {
	return &LimitedFs{
		Filesystem:    fs,
		MaxFiles:      maxFiles,
		TotalFileSize: totalSize,
		usage:         &fsUsage{},
	}
}

func (f *LimitedFs) addFile() error {
	f.usage.mu.Lock()
	defer f.usage.mu.Unlock()
	if f.usage.files+1 > f.MaxFiles {
		return ErrTooManyFiles
	}
	f.usage.files++
	return nil
}

func (f *LimitedFs) addBytes(n int) error {
	f.usage.mu.Lock()
	defer f.usage.mu.Unlock()
	if f.usage.bytes+int64(n) > f.TotalFileSize {
		return ErrTooLarge
	}
	f.usage.bytes += int64(n)
	return nil
}

// Create implements billy.Filesystem
func (f *LimitedFs) Create(filename string) (billy.File, error) {
	return f.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

// OpenFile implements billy.Filesystem
func (f *LimitedFs) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&os.O_CREATE != 0 {
		if _, err := f.Filesystem.Stat(filename); os.IsNotExist(err) {
			if err := f.addFile(); err != nil {
				return nil, err
			}
		}
	}

	file, err := f.Filesystem.OpenFile(filename, flag, perm)
	if err != nil {
		return nil, err
	}
	return &limitedFile{File: file, fs: f}, nil
}

// TempFile implements billy.Filesystem
func (f *LimitedFs) TempFile(dir, prefix string) (billy.File, error) {
	if err := f.addFile(); err != nil {
		return nil, err
	}
	file, err := f.Filesystem.TempFile(dir, prefix)
	if err != nil {
		return nil, err
	}
	return &limitedFile{File: file, fs: f}, nil
}

// Chroot implements billy.Filesystem. The chrooted filesystem shares the limits.
func (f *LimitedFs) Chroot(path string) (billy.Filesystem, error) {
	sub, err := f.Filesystem.Chroot(path)
	if err != nil {
		return nil, err
	}
	return &LimitedFs{
		Filesystem:    sub,
		MaxFiles:      f.MaxFiles,
		TotalFileSize: f.TotalFileSize,
		usage:         f.usage,
	}, nil
}

type limitedFile struct {
	billy.File
	fs *LimitedFs
}

func (lf *limitedFile) Write(p []byte) (int, error) {
	if err := lf.fs.addBytes(len(p)); err != nil {
		return 0, err
	}
	return lf.File.Write(p)
}
