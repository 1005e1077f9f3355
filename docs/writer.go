package docs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FS is a file system that can be written to.
type FS interface {
	fs.FS
	MkdirAll(path string, perm fs.FileMode) error
	WriteFile(name string, data []byte, perm fs.FileMode) error
}

// OSFS is an FS backed by the host file system. Relative names resolve
// against Root; absolute names are used as-is.
type OSFS struct {
	Root string
}

var _ FS = OSFS{}

func (o OSFS) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Root, name)
}

func (o OSFS) Open(name string) (fs.File, error) {
	return os.Open(o.path(name))
}

func (o OSFS) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(o.path(path), perm)
}

func (o OSFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(o.path(name), data, perm)
}

// Writer stores documentation files.
type Writer struct {
	fsys FS
}

func NewWriter(fsys FS) *Writer {
	return &Writer{fsys: fsys}
}

// Write replaces the file at path with content, creating parent
// directories as needed.
func (w *Writer) Write(path, content string) error {
	if path == "" {
		return fmt.Errorf("documentation path is empty")
	}
	path = filepath.Clean(path)

	if dir := filepath.Dir(path); dir != "." && dir != string(filepath.Separator) {
		if err := w.fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := w.fsys.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Read returns the contents of the file at path.
func (w *Writer) Read(path string) (string, error) {
	data, err := fs.ReadFile(w.fsys, filepath.Clean(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
