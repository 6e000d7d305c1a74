package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Workdir is a lease on a uniquely named working directory under a shared
// root. It is created per run and must be released exactly once; Release
// removes the directory and everything under it.
type Workdir struct {
	fs       FileSystem
	path     string
	released bool
}

// AcquireWorkdir creates root/id (including missing parents) and returns a
// lease on it. A filesystem error from an unwritable root propagates
// unretried.
func AcquireWorkdir(fs FileSystem, root, id string) (*Workdir, error) {
	path := filepath.Join(root, id)
	if err := fs.MkdirAll(path, DirPermission); err != nil {
		return nil, fmt.Errorf("failed to create workdir %s: %w", path, err)
	}
	return &Workdir{fs: fs, path: path}, nil
}

// Path returns the leased directory.
func (w *Workdir) Path() string {
	return w.path
}

// Release removes the leased directory recursively. It is idempotent so it
// can be deferred unconditionally.
func (w *Workdir) Release() error {
	if w.released {
		return nil
	}
	w.released = true
	return w.fs.RemoveAll(w.path)
}

// Materialize writes a staged mapping into the leased directory: parents are
// created as needed, content is written, and executable entries get execute
// permission added to their existing mode bits.
func (w *Workdir) Materialize(mapping FileSystemMapping) error {
	for _, entry := range mapping {
		filePath, err := w.resolve(entry.Path)
		if err != nil {
			return err
		}

		if mkdirErr := w.fs.MkdirAll(filepath.Dir(filePath), DirPermission); mkdirErr != nil {
			return fmt.Errorf("failed to create parent directories: %w", mkdirErr)
		}

		if writeErr := w.fs.WriteFile(filePath, []byte(entry.Content), FilePermission); writeErr != nil {
			return fmt.Errorf("failed to write %s: %w", entry.Path, writeErr)
		}

		if entry.Executable {
			mode, statErr := w.fs.Stat(filePath)
			if statErr != nil {
				return fmt.Errorf("failed to stat %s: %w", entry.Path, statErr)
			}
			if chmodErr := w.fs.Chmod(filePath, mode|ExecPermission); chmodErr != nil {
				return fmt.Errorf("failed to chmod %s: %w", entry.Path, chmodErr)
			}
		}
	}
	return nil
}

// resolve validates that path stays inside the leased directory and returns
// its absolute location. Absolute and parent-escaping paths are rejected.
func (w *Workdir) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute path not allowed in mapping: %s", path)
	}

	cleanName := filepath.Clean(path)
	if cleanName == ".." || strings.HasPrefix(cleanName, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe relative path in mapping: %s", path)
	}

	filePath := filepath.Join(w.path, cleanName)
	if !strings.HasPrefix(filePath, w.path) {
		return "", fmt.Errorf("invalid file path in mapping: %s", path)
	}

	return filePath, nil
}
