package jsonl_test

import (
	"os"
	"path/filepath"
	"testing"

	"clipper/internal/jsonl"
)

type record struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestReadMissingFile(t *testing.T) {
	records, bad, err := jsonl.Read[record](filepath.Join(t.TempDir(), "missing.jsonl"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 0 || len(bad) != 0 {
		t.Fatalf("expected empty result, got %d records, %d bad", len(records), len(bad))
	}
}

func TestAppendThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")
	if err := jsonl.Append(path, record{Name: "a", Value: 1}, record{Name: "b", Value: 2}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := jsonl.Append(path, record{Name: "c", Value: 3}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	records, bad, err := jsonl.Read[record](path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(bad) != 0 {
		t.Fatalf("unexpected bad lines: %+v", bad)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[2].Name != "c" || records[2].Value != 3 {
		t.Fatalf("unexpected last record: %+v", records[2])
	}
}

func TestReadToleratesPartialTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")
	content := `{"name":"a","value":1}
{"name":"b","value":2}
{"name":"c","val`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	records, bad, err := jsonl.Read[record](path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if len(bad) != 1 {
		t.Fatalf("expected 1 bad line, got %d", len(bad))
	}
	if !bad[0].Partial {
		t.Fatal("trailing unparsable line should be flagged partial")
	}
}

func TestReadFlagsMalformedMiddleLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")
	content := `{"name":"a","value":1}
not json at all
{"name":"c","value":3}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	records, bad, err := jsonl.Read[record](path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if len(bad) != 1 || bad[0].Number != 2 {
		t.Fatalf("expected bad line 2, got %+v", bad)
	}
	if bad[0].Partial {
		t.Fatal("mid-file corruption must not be flagged partial")
	}
}

func TestWriteAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")
	if err := jsonl.Append(path, record{Name: "old", Value: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := jsonl.WriteAtomic(path, []record{{Name: "new", Value: 9}}); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	records, _, err := jsonl.Read[record](path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 || records[0].Name != "new" {
		t.Fatalf("expected replaced content, got %+v", records)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %d entries", len(entries))
	}
}

func TestWriteAtomicEmptySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")
	if err := jsonl.WriteAtomic(path, []record{}); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	count, err := jsonl.Count(path)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected drained file, got %d records", count)
	}
}
