package organizer

import (
	"io/fs"
	"os"
	"path/filepath"

	"bidsify/internal/fileutil"
)

// Filesystem abstracts the operations the organizer performs on disk.
type Filesystem interface {
	// ListFiles returns the names of regular files directly inside dir.
	ListFiles(dir string) ([]string, error)
	// MakeDir creates a single directory and fails if it already exists.
	MakeDir(path string) error
	// Move relocates src into dir keeping its name and returns the new path.
	Move(src, dir string) (string, error)
	// Rename renames oldPath to newPath without replacing an existing file.
	Rename(oldPath, newPath string) error
	// Stat describes path.
	Stat(path string) (fs.FileInfo, error)
}

// OSFilesystem is the Filesystem backed by the real disk.
type OSFilesystem struct{}

func (OSFilesystem) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (OSFilesystem) MakeDir(path string) error {
	return os.Mkdir(path, 0o755)
}

func (OSFilesystem) Move(src, dir string) (string, error) {
	dst := filepath.Join(dir, filepath.Base(src))
	if err := fileutil.MoveNoReplace(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (OSFilesystem) Rename(oldPath, newPath string) error {
	return fileutil.MoveNoReplace(oldPath, newPath)
}

func (OSFilesystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}
