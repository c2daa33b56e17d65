package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/sovits-service/internal/core"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o640
	tempPrefix      = ".tmp-"
)

// ErrInvalidKey indicates an object name that is not a plain file name.
var ErrInvalidKey = errors.New("invalid object key")

// FileStore is a core.BlobStore over one flat directory. Writes land in a temporary
// file that is renamed into place, so readers see either no entry or a complete one.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// Download returns the contents of key.
func (f *FileStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, key)
		}

		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

// Upload atomically replaces key with data.
func (f *FileStore) Upload(_ context.Context, key string, data []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, tempPrefix+key+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", key, err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(tmpName, filePermissions)
	}

	if writeErr == nil {
		writeErr = os.Rename(tmpName, path)
	}

	if writeErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write %s: %w", path, writeErr)
	}

	return nil
}

// List returns every stored object with its file modification time.
func (f *FileStore) List(_ context.Context) ([]core.ObjectInfo, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory %s: %w", f.dir, err)
	}

	infos := make([]core.ObjectInfo, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			// Removed between ReadDir and Info.
			continue
		}

		infos = append(infos, core.ObjectInfo{
			Key:     entry.Name(),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	return infos, nil
}

// Delete removes key.
func (f *FileStore) Delete(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", core.ErrObjectNotFound, key)
		}

		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(f.dir, key), nil
}
