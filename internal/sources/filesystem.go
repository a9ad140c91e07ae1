package sources

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/jgchk/blog-sub001/internal/content"
	"github.com/jgchk/blog-sub001/internal/logger"
)

// FilesystemFetcher reads content from a local checkout. It has no history,
// so refs are ignored and the working copy is always served.
type FilesystemFetcher struct {
	fs          afero.Fs
	contentRoot string
}

// NewFilesystemFetcher serves the checkout at dir
func NewFilesystemFetcher(dir, contentRoot string) *FilesystemFetcher {
	return NewFilesystemFetcherFs(afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), contentRoot)
}

// NewFilesystemFetcherFs serves an arbitrary afero filesystem
func NewFilesystemFetcherFs(fs afero.Fs, contentRoot string) *FilesystemFetcher {
	return &FilesystemFetcher{fs: fs, contentRoot: content.CleanRoot(contentRoot)}
}

// FetchChanged implements ContentFetcher
func (f *FilesystemFetcher) FetchChanged(_ context.Context, ref string, paths []string) ([]content.File, error) {
	if ref != "" {
		logger.Debugf("Filesystem source ignores ref %s", ref)
	}

	files := make([]content.File, 0, len(paths))
	for _, p := range paths {
		data, err := afero.ReadFile(f.fs, cleanPath(p))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, content.File{Path: p, Content: data})
	}
	return files, nil
}

// FetchAll implements ContentFetcher
func (f *FilesystemFetcher) FetchAll(_ context.Context, _ string) ([]content.File, error) {
	root := f.contentRoot
	if root == "" {
		root = "."
	}

	var files []content.File
	err := afero.Walk(f.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return nil
			}
			return err
		}
		if info.IsDir() {
			if p != root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		data, err := afero.ReadFile(f.fs, p)
		if err != nil {
			return err
		}
		files = append(files, content.File{Path: cleanPath(filepath.ToSlash(p)), Content: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
