package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	maxLineBytes         = 1024 * 1024
	defaultPollInterval  = 250 * time.Millisecond
	defaultTailLineLimit = 50
)

// Filter selects log lines. An empty Contains matches every line.
type Filter struct {
	Contains string
}

func (f Filter) match(line string) bool {
	return f.Contains == "" || strings.Contains(line, f.Contains)
}

// TailOptions controls Tail.
type TailOptions struct {
	// Limit is the number of trailing lines returned; zero means 50.
	Limit  int
	Filter Filter
}

// TailResult holds the selected lines and the byte offset following them.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail returns the last matching lines of path. A missing file yields an
// empty result.
func Tail(path string, opts TailOptions) (TailResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultTailLineLimit
	}

	file, err := openLog(path)
	if err != nil || file == nil {
		return TailResult{}, err
	}
	defer file.Close()

	ring := make([]string, limit)
	count, next := 0, 0
	offset, err := scan(file, func(line string) {
		if !opts.Filter.match(line) {
			return
		}
		ring[next] = line
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return TailResult{}, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := 0; i < count; i++ {
		lines = append(lines, ring[(start+i)%limit])
	}
	return TailResult{Lines: lines, Offset: offset}, nil
}

// Follow emits matching lines appended after offset until ctx is done. A
// truncated file is read again from the start. Changes are picked up through
// fsnotify on the log directory, with a poll every interval as a fallback for
// filesystems that do not deliver events.
func Follow(ctx context.Context, path string, offset int64, filter Filter, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			events = watcher.Events
			watchErrs = watcher.Errors
		}
	}

	for {
		next, err := readFrom(path, offset, filter, emit)
		if err != nil {
			return err
		}
		offset = next

		for changed := false; !changed; {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				changed = true
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				changed = filepath.Clean(ev.Name) == filepath.Clean(path) && ev.Has(fsnotify.Write|fsnotify.Create)
			case _, ok := <-watchErrs:
				if !ok {
					watchErrs = nil
				}
			}
		}
	}
}

func readFrom(path string, offset int64, filter Filter, emit func(string)) (int64, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scan(file, func(line string) {
		if filter.match(line) {
			emit(line)
		}
	})
	if err != nil {
		return offset, err
	}
	return offset + read, nil
}

// scan feeds complete lines to fn and returns the number of bytes consumed.
// A trailing partial line is left for the next read.
func scan(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes]
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}

func openLog(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}
