package engine

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

type WritableFile interface {
	io.WriteCloser
	Sync() error
}

type FileSystem interface {
	Create(path string) (WritableFile, error)
	Open(path string) (io.ReadCloser, error)
	// Publish moves oldPath to newPath and fails with fs.ErrExist rather
	// than replace a file already at newPath.
	Publish(oldPath, newPath string) error
	Remove(path string) error
	Size(path string) (int64, error)
	MkdirAll(path string) error
	ReadDir(path string) ([]string, error)
	RemoveDir(path string) error
}

// OSFileSystem is the local disk.
type OSFileSystem struct{}

func (OSFileSystem) Create(path string) (WritableFile, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

func (OSFileSystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (OSFileSystem) Publish(oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return err
	}
	err := os.Link(oldPath, newPath)
	if err == nil {
		return os.Remove(oldPath)
	}
	if errors.Is(err, fs.ErrExist) {
		return err
	}
	// no hard links here (some network and FAT volumes)
	if _, statErr := os.Lstat(newPath); statErr == nil {
		return &fs.PathError{Op: "publish", Path: newPath, Err: fs.ErrExist}
	}
	return os.Rename(oldPath, newPath)
}

// Remove treats a missing file as already removed.
func (OSFileSystem) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (OSFileSystem) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (OSFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func (OSFileSystem) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// RemoveDir removes an empty directory only.
func (OSFileSystem) RemoveDir(path string) error {
	return os.Remove(path)
}
