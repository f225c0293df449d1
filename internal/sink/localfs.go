// internal/sink/localfs.go
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// LocalFS implements Sink for the local filesystem. Destination directories
// are never created: a missing directory is a placement error.
type LocalFS struct {
	basePath string
}

// NewLocalFS creates a LocalFS resolving relative destinations against
// basePath; an empty basePath means the working directory.
func NewLocalFS(basePath string) *LocalFS {
	return &LocalFS{basePath: basePath}
}

func (l *LocalFS) fullPath(path string) string {
	if filepath.IsAbs(path) || l.basePath == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(l.basePath, path)
}

func (l *LocalFS) Place(ctx context.Context, src, dest string, overwrite bool) (string, error) {
	fullPath := l.fullPath(dest)

	if !overwrite {
		exists, err := l.Exists(ctx, dest)
		if err != nil {
			return "", err
		}
		if exists {
			return "", fmt.Errorf("%s: %w", fullPath, ErrExists)
		}
	}

	err := os.Rename(src, fullPath)
	if errors.Is(err, syscall.EXDEV) {
		err = copyAcross(src, fullPath)
	}
	if err != nil {
		return "", err
	}

	if abs, aerr := filepath.Abs(fullPath); aerr == nil {
		return abs, nil
	}
	return fullPath, nil
}

// copyAcross moves src to dest across filesystems. The copy lands next to
// dest first so dest is never seen half-written.
func copyAcross(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Remove(src)
}

func (l *LocalFS) Exists(ctx context.Context, dest string) (bool, error) {
	_, err := os.Stat(l.fullPath(dest))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}
