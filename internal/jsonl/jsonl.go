// Package jsonl implements the durable, line-oriented record files used for
// every queue and store in the repository: one self-contained JSON record per
// line, appendable without reading the whole file, and readable while another
// process is mid-rewrite.
//
// Readers are deliberately forgiving. Blank lines and a UTF-8 BOM are skipped,
// a record that fails to parse is reported alongside the good records instead
// of aborting the read, and an unparsable final line is treated as the partial
// tail of a crashed writer.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// BadLine describes a record that could not be decoded.
type BadLine struct {
	Number  int // 1-based line number
	Text    string
	Err     error
	Partial bool // true when this was the final line (crashed-writer tail)
}

// Read decodes every well-formed record in path. A missing file yields no
// records and no error. Malformed lines are returned separately so callers can
// log or quarantine them without losing the rest of the file.
func Read[T any](path string) ([]T, []BadLine, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	var (
		records []T
		bad     []BadLine
		lineNo  int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimPrefix(scanner.Bytes(), []byte("\xef\xbb\xbf"))
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			bad = append(bad, BadLine{Number: lineNo, Text: string(line), Err: err})
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return records, bad, fmt.Errorf("read %q: %w", path, err)
	}
	if n := len(bad); n > 0 && bad[n-1].Number == lineNo {
		bad[n-1].Partial = true
	}
	return records, bad, nil
}

// Append encodes each record as one line and appends it to path, creating the
// file and parent directory as needed. Each record is written with a single
// write call so concurrent readers never see a torn record boundary.
func Append[T any](path string, records ...T) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %q for append: %w", path, err)
	}
	defer f.Close()

	for _, record := range records {
		encoded, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if _, err := f.Write(append(encoded, '\n')); err != nil {
			return fmt.Errorf("append to %q: %w", path, err)
		}
	}
	return f.Close()
}

// WriteAtomic replaces the file at path with the given records via a temp file
// and rename, so a crash mid-rewrite leaves either the old or the new file.
func WriteAtomic[T any](path string, records []T) error {
	var buf bytes.Buffer
	for _, record := range records {
		encoded, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %q: %w", path, err)
	}
	return nil
}

// Count returns the number of well-formed records in path without decoding
// them into a caller type. Used for the queue-drained completion signal.
func Count(path string) (int, error) {
	records, _, err := Read[json.RawMessage](path)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
