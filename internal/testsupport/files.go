package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"clipper/internal/config"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// CandidateFixture describes one candidate row for a seeded session.
type CandidateFixture struct {
	StartAbs float64 `json:"start_abs"`
	EndAbs   float64 `json:"end_abs"`
	Motion   float64 `json:"motion"`
	Band     float64 `json:"band,omitempty"`
	Hits     int     `json:"hits,omitempty"`
}

// SeedSession creates a complete analyzed session under the config's library
// root: raw video, analysis marker, and one candidates line per fixture. It
// returns the session directory.
func SeedSession(t testing.TB, cfg *config.Config, name string, fixtures ...CandidateFixture) string {
	t.Helper()

	sessionDir := filepath.Join(cfg.Paths.LibraryDir, name)
	WriteFile(t, filepath.Join(sessionDir, cfg.Library.RawVideoName), 1<<20)
	if err := os.WriteFile(filepath.Join(sessionDir, cfg.Library.AnalysisMarker), nil, 0o644); err != nil {
		t.Fatalf("write analysis marker: %v", err)
	}

	path := filepath.Join(sessionDir, cfg.Library.CandidatesName)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, fixture := range fixtures {
		if err := enc.Encode(fixture); err != nil {
			t.Fatalf("encode candidate: %v", err)
		}
	}
	return sessionDir
}

// SeedDecision writes a decision document at the given version under the
// event directory and returns its path.
func SeedDecision(t testing.TB, eventDir string, version int, doc map[string]any) string {
	t.Helper()

	dir := filepath.Join(eventDir, "api", fmt.Sprintf("v%d", version))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal decision: %v", err)
	}
	path := filepath.Join(dir, "decision.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write decision: %v", err)
	}
	return path
}
