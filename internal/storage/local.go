package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"epingest/internal/support/exception"
	"epingest/internal/support/logger"
)

const stage = "storage"

// Local is a filesystem-backed Connection rooted at a base directory.
type Local struct {
	baseDir string
}

var _ Connection = (*Local)(nil)

// NewLocal creates a Local connection rooted at baseDir, creating the
// directory if needed.
func NewLocal(baseDir string) (*Local, error) {
	if baseDir == "" {
		return nil, exception.Newf(stage, nil, "local storage base directory must be specified")
	}
	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, exception.Newf(stage, err, "create base directory %s", baseDir)
		}
	case err != nil:
		return nil, exception.Newf(stage, err, "stat base directory %s", baseDir)
	case !info.IsDir():
		return nil, exception.Newf(stage, nil, "base directory %s is not a directory", baseDir)
	}
	return &Local{baseDir: baseDir}, nil
}

// Upload writes data to bucket/objectName under the base directory.
func (l *Local) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := l.resolve(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return exception.Newf(stage, err, "create directory for %s", fullPath)
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return exception.Newf(stage, err, "create %s", fullPath)
	}
	defer f.Close()
	if _, err := io.Copy(f, data); err != nil {
		return exception.Newf(stage, err, "write %s", fullPath)
	}
	logger.Debugf("Uploaded object %s.", fullPath)
	return nil
}

// Download opens bucket/objectName for reading.
func (l *Local) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := l.resolve(bucket, objectName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, exception.Newf(stage, err, "open %s", fullPath)
	}
	return f, nil
}

// ListObjects walks bucket and calls fn for every object under prefix.
func (l *Local) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	basePath, err := l.resolve(bucket, "")
	if err != nil {
		return err
	}
	err = filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		objectName, relErr := filepath.Rel(basePath, path)
		if relErr != nil {
			return relErr
		}
		objectName = filepath.ToSlash(objectName)
		if !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if err != nil {
		return exception.Newf(stage, err, "list objects under %s", basePath)
	}
	return nil
}

// DeleteObject removes bucket/objectName; a missing object is not an error.
func (l *Local) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := l.resolve(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("Attempted to delete non-existent object %s.", fullPath)
			return nil
		}
		return exception.Newf(stage, err, "delete %s", fullPath)
	}
	return nil
}

// Close does nothing for the filesystem connection.
func (l *Local) Close() error {
	return nil
}

// resolve joins bucket/objectName under the base directory and rejects paths
// escaping it.
func (l *Local) resolve(bucket, objectName string) (string, error) {
	fullPath := filepath.Join(l.baseDir, bucket, objectName)

	absBase, err := filepath.Abs(l.baseDir)
	if err != nil {
		return "", exception.Newf(stage, err, "resolve base directory %s", l.baseDir)
	}
	absFull, err := filepath.Abs(fullPath)
	if err != nil {
		return "", exception.Newf(stage, err, "resolve path %s", fullPath)
	}
	if absFull != absBase && !strings.HasPrefix(absFull, absBase+string(os.PathSeparator)) {
		return "", exception.Newf(stage, nil, "path %s escapes base directory %s", fullPath, l.baseDir)
	}
	return fullPath, nil
}
