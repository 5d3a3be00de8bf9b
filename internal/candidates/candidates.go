// Package candidates reads and mutates the per-session candidate ledgers
// the analysis step produces. Each session directory under the library root
// holds one line-oriented candidates file; picking appends fields to
// existing lines and never removes them.
package candidates

import (
	"fmt"
	"path/filepath"

	"clipper/internal/jsonl"
	"clipper/internal/services"
)

// Candidate is one fixed-window clip proposal within a session. StartAbs and
// EndAbs are offsets in seconds from the start of the session recording.
type Candidate struct {
	StartAbs int     `json:"start_abs"`
	EndAbs   int     `json:"end_abs"`
	Motion   float64 `json:"motion"`
	Band     float64 `json:"band,omitempty"`
	Hits     int     `json:"hits,omitempty"`
	PickedAt string  `json:"picked_at,omitempty"`
	PickID   string  `json:"pick_id,omitempty"`
	VideoID  string  `json:"video_id,omitempty"`
}

// Picked reports whether the candidate has already been selected.
func (c Candidate) Picked() bool {
	return c.PickedAt != ""
}

// EventName returns the zero-padded directory name derived from the window.
func (c Candidate) EventName() string {
	return fmt.Sprintf("%05d_%05d", c.StartAbs, c.EndAbs)
}

// Overlaps reports whether two windows share any seconds.
func (c Candidate) Overlaps(other Candidate) bool {
	return !(c.EndAbs <= other.StartAbs || other.EndAbs <= c.StartAbs)
}

// Store provides read and mutate access to one session's candidate file.
// Mutations rewrite the whole file atomically; concurrent writers are
// excluded by the invocation-level lock, not by the store.
type Store struct {
	sessionDir string
	path       string
}

// NewStore returns a store for the candidates file inside sessionDir.
func NewStore(sessionDir, candidatesName string) *Store {
	return &Store{
		sessionDir: sessionDir,
		path:       filepath.Join(sessionDir, candidatesName),
	}
}

// SessionDir returns the directory the store belongs to.
func (s *Store) SessionDir() string {
	return s.sessionDir
}

// Path returns the candidates file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads every candidate in file order. A missing file yields an empty
// slice. Unparsable lines are returned alongside the good records so the
// caller can report them without aborting.
func (s *Store) Load() ([]Candidate, []jsonl.BadLine, error) {
	records, bad, err := jsonl.Read[Candidate](s.path)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "pick", "load-candidates", s.path, err)
	}
	return records, bad, nil
}

// MarkPicked stamps the candidates at the given indices with pickedAt and
// pickID and rewrites the file atomically. Indices refer to positions in the
// slice a prior Load returned; out-of-range indices are an error before any
// write happens.
func (s *Store) MarkPicked(records []Candidate, indices []int, pickedAt, pickID string) error {
	for _, idx := range indices {
		if idx < 0 || idx >= len(records) {
			return services.Wrap(services.ErrValidation, "pick", "mark-picked",
				fmt.Sprintf("index %d out of range for %d candidates", idx, len(records)), nil)
		}
	}
	for _, idx := range indices {
		records[idx].PickedAt = pickedAt
		records[idx].PickID = pickID
	}
	if err := jsonl.WriteAtomic(s.path, records); err != nil {
		return services.Wrap(services.ErrTransient, "pick", "mark-picked", s.path, err)
	}
	return nil
}
