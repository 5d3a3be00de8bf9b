package candidates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir(), "candidates.jsonl")
	records, bad, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 0 || len(bad) != 0 {
		t.Fatalf("expected empty result, got %d records %d bad", len(records), len(bad))
	}
}

func TestStoreMarkPickedRewritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, "candidates.jsonl")
	writeLines(t, store.Path(),
		`{"start_abs":0,"end_abs":20,"motion":5.0}`,
		`{"start_abs":20,"end_abs":40,"motion":9.0}`,
		`{"start_abs":40,"end_abs":60,"motion":2.0}`,
	)

	records, _, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := store.MarkPicked(records, []int{1}, "2026-02-20T22:00:00+09:00", "20260220_220000"); err != nil {
		t.Fatalf("MarkPicked: %v", err)
	}

	reloaded, _, err := store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded) != 3 {
		t.Fatalf("record count changed: %d", len(reloaded))
	}
	if !reloaded[1].Picked() || reloaded[1].PickID != "20260220_220000" {
		t.Fatalf("pick not persisted: %+v", reloaded[1])
	}
	if reloaded[0].Picked() || reloaded[2].Picked() {
		t.Fatal("unselected candidates must stay unpicked")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestStoreMarkPickedRejectsBadIndex(t *testing.T) {
	store := NewStore(t.TempDir(), "candidates.jsonl")
	records := []Candidate{{StartAbs: 0, EndAbs: 20}}
	if err := store.MarkPicked(records, []int{5}, "now", "id"); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Fatal("bad index must not write the file")
	}
}

func TestCandidateOverlapsAndEventName(t *testing.T) {
	a := Candidate{StartAbs: 7080, EndAbs: 7100}
	b := Candidate{StartAbs: 7090, EndAbs: 7110}
	c := Candidate{StartAbs: 7100, EndAbs: 7120}
	if !a.Overlaps(b) {
		t.Fatal("expected overlap")
	}
	if a.Overlaps(c) {
		t.Fatal("touching windows do not overlap")
	}
	if a.EventName() != "07080_07100" {
		t.Fatalf("unexpected event name: %s", a.EventName())
	}
}

func setupSession(t *testing.T, root, name string, withMarker bool, mediaSize int) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "raw.mkv"), make([]byte, mediaSize), 0o644); err != nil {
		t.Fatal(err)
	}
	writeLines(t, filepath.Join(dir, "candidates.jsonl"), `{"start_abs":0,"end_abs":20,"motion":1.0}`)
	if withMarker {
		if err := os.WriteFile(filepath.Join(dir, ".analysis_complete"), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestScannerSkipsUnreadySessions(t *testing.T) {
	root := t.TempDir()
	setupSession(t, root, "session_b", true, 128)
	setupSession(t, root, "session_a", true, 128)
	setupSession(t, root, "no_marker", false, 128)

	scanner := NewScanner(root, "raw.mkv", "candidates.jsonl", ".analysis_complete",
		WithSleeper(func(time.Duration) {}))
	sessions, skipped, err := scanner.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 eligible sessions, got %d", len(sessions))
	}
	if sessions[0].Name != "session_a" || sessions[1].Name != "session_b" {
		t.Fatalf("sessions not in name order: %+v", sessions)
	}
	if len(skipped) != 1 || skipped[0].Session != "no_marker" {
		t.Fatalf("unexpected skip list: %+v", skipped)
	}
}

func TestScannerSkipsGrowingMedia(t *testing.T) {
	root := t.TempDir()
	dir := setupSession(t, root, "live", true, 64)
	mediaPath := filepath.Join(dir, "raw.mkv")

	grow := func(time.Duration) {
		if err := os.WriteFile(mediaPath, make([]byte, 256), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	scanner := NewScanner(root, "raw.mkv", "candidates.jsonl", ".analysis_complete", WithSleeper(grow))
	sessions, skipped, err := scanner.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("growing session must be skipped, got %+v", sessions)
	}
	if len(skipped) != 1 || skipped[0].Reason != "media still growing" {
		t.Fatalf("unexpected skip reasons: %+v", skipped)
	}
}

func TestScannerMissingRootIsError(t *testing.T) {
	scanner := NewScanner(filepath.Join(t.TempDir(), "missing"), "raw.mkv", "candidates.jsonl", ".analysis_complete")
	if _, _, err := scanner.Scan(); err == nil {
		t.Fatal("expected error for missing library root")
	}
}
