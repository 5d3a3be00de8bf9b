package candidates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"clipper/internal/services"
)

const stableProbeDelay = 1 * time.Second

// Session is one library session directory eligible for picking.
type Session struct {
	Dir  string
	Name string
}

// Scanner enumerates session directories under the library root that are
// ready for picking: analysis marker present, candidates file present, and
// the raw media no longer growing.
type Scanner struct {
	libraryDir     string
	rawVideoName   string
	candidatesName string
	analysisMarker string
	sleeper        func(time.Duration)
}

// ScannerOption customizes a Scanner.
type ScannerOption func(*Scanner)

// WithSleeper overrides how the media growth probe waits (useful for tests).
func WithSleeper(sleeper func(time.Duration)) ScannerOption {
	return func(s *Scanner) {
		if sleeper != nil {
			s.sleeper = sleeper
		}
	}
}

// NewScanner returns a scanner over libraryDir using the configured
// per-session file names.
func NewScanner(libraryDir, rawVideoName, candidatesName, analysisMarker string, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		libraryDir:     libraryDir,
		rawVideoName:   rawVideoName,
		candidatesName: candidatesName,
		analysisMarker: analysisMarker,
		sleeper:        time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SkipReason explains why a session directory was not eligible.
type SkipReason struct {
	Session string
	Reason  string
}

// Scan walks the library root and returns eligible sessions in name order
// plus the sessions it skipped. A missing library root is an error; an empty
// one is not.
func (s *Scanner) Scan() ([]Session, []SkipReason, error) {
	entries, err := os.ReadDir(s.libraryDir)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, "pick", "scan-library", s.libraryDir, err)
	}

	var sessions []Session
	var skipped []SkipReason
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.libraryDir, entry.Name())
		if reason := s.eligibility(dir); reason != "" {
			skipped = append(skipped, SkipReason{Session: entry.Name(), Reason: reason})
			continue
		}
		sessions = append(sessions, Session{Dir: dir, Name: entry.Name()})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name < sessions[j].Name })
	return sessions, skipped, nil
}

func (s *Scanner) eligibility(dir string) string {
	if _, err := os.Stat(filepath.Join(dir, s.analysisMarker)); err != nil {
		return "analysis marker missing"
	}
	if _, err := os.Stat(filepath.Join(dir, s.candidatesName)); err != nil {
		return "candidates file missing"
	}
	stable, err := s.mediaStable(filepath.Join(dir, s.rawVideoName))
	if err != nil {
		return fmt.Sprintf("media unreadable: %v", err)
	}
	if !stable {
		return "media still growing"
	}
	return ""
}

// mediaStable samples the raw media size twice, a short delay apart. A file
// whose size changes between samples is still being written by the recorder.
func (s *Scanner) mediaStable(path string) (bool, error) {
	first, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	s.sleeper(stableProbeDelay)
	second, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return first.Size() == second.Size(), nil
}
