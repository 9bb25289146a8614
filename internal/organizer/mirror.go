package organizer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"

	"bidsify/internal/fileutil"
)

// BillyFilesystem adapts a go-billy filesystem to Filesystem.
type BillyFilesystem struct {
	FS billy.Filesystem
}

func (b BillyFilesystem) ListFiles(dir string) ([]string, error) {
	infos, err := b.FS.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Mode().IsRegular() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

func (b BillyFilesystem) MakeDir(path string) error {
	if _, err := b.FS.Stat(path); err == nil {
		return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrExist}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return b.FS.MkdirAll(path, 0o755)
}

func (b BillyFilesystem) Move(src, dir string) (string, error) {
	dst := b.FS.Join(dir, filepath.Base(src))
	if err := b.Rename(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (b BillyFilesystem) Rename(oldPath, newPath string) error {
	if _, err := b.FS.Stat(newPath); err == nil {
		return fmt.Errorf("%w: %s", fileutil.ErrDestinationExists, newPath)
	}
	return b.FS.Rename(oldPath, newPath)
}

func (b BillyFilesystem) Stat(path string) (fs.FileInfo, error) {
	return b.FS.Stat(path)
}

// Mirror copies the shape of sessionDir into an in-memory filesystem: every
// regular file as an empty file and every subdirectory as a directory. An
// Organizer over the mirror reproduces a real run, precondition failures
// included, without touching disk.
func Mirror(sessionDir string) (BillyFilesystem, error) {
	mirror := BillyFilesystem{FS: memfs.New()}
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return mirror, nil
		}
		return mirror, fmt.Errorf("read %s: %w", sessionDir, err)
	}
	if err := mirror.FS.MkdirAll(sessionDir, 0o755); err != nil {
		return mirror, fmt.Errorf("mirror %s: %w", sessionDir, err)
	}
	for _, entry := range entries {
		path := filepath.Join(sessionDir, entry.Name())
		switch {
		case entry.IsDir():
			if err := mirror.FS.MkdirAll(path, 0o755); err != nil {
				return mirror, fmt.Errorf("mirror %s: %w", path, err)
			}
		case entry.Type().IsRegular():
			f, err := mirror.FS.Create(path)
			if err != nil {
				return mirror, fmt.Errorf("mirror %s: %w", path, err)
			}
			f.Close()
		}
	}
	return mirror, nil
}
