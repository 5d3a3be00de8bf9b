// Package logs reads back the invocation log file for the CLI. Runs are
// short-lived cron invocations, so "following" the log means polling the file
// for growth rather than holding a daemon connection.
package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions controls one Tail call.
type TailOptions struct {
	// Lines bounds how many trailing lines the initial read returns.
	Lines int
	// Follow keeps emitting appended lines until the context is done.
	Follow bool
}

// Tail emits the last opts.Lines lines of the log file through emit, then,
// when following, polls for appended lines until ctx is cancelled. A missing
// file is not an error: cron may not have produced a log yet.
func Tail(ctx context.Context, path string, opts TailOptions, emit func(string)) error {
	lines, offset, err := lastLines(path, opts.Lines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		emit(line)
	}
	if !opts.Follow {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		appended, next, err := readFrom(path, offset)
		if err != nil {
			return err
		}
		// Truncation or rotation resets the cursor to the new tail.
		if next < offset {
			next, err = fileSize(path)
			if err != nil {
				return err
			}
		}
		offset = next
		for _, line := range appended {
			emit(line)
		}
	}
}

// lastLines returns up to limit trailing complete lines and the offset just
// past them.
func lastLines(path string, limit int) ([]string, int64, error) {
	if limit <= 0 {
		size, err := fileSize(path)
		return nil, size, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	ring := make([]string, limit)
	count, idx := 0, 0
	var offset int64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
		offset += int64(len(scanner.Bytes())) + 1
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	// A final line without a newline is still unfinished; do not run the
	// cursor past the end of the file.
	if info, err := file.Stat(); err == nil && offset > info.Size() {
		offset = info.Size()
	}

	lines := make([]string, count)
	for i := 0; i < count; i++ {
		if count == limit {
			lines[i] = ring[(idx+i)%limit]
		} else {
			lines[i] = ring[i]
		}
	}
	return lines, offset, nil
}

// readFrom returns complete lines appended at or after offset, plus the
// offset just past them.
func readFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		return nil, info.Size(), nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	next := offset
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		next += int64(len(scanner.Bytes())) + 1
	}
	if err := scanner.Err(); err != nil {
		return nil, offset, fmt.Errorf("read log file: %w", err)
	}
	return lines, next, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat log file: %w", err)
	}
	return info.Size(), nil
}
