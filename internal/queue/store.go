package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipper/internal/jsonl"
	"clipper/internal/services"
)

const (
	eventQueueName    = "event_queue.jsonl"
	deferredQueueName = "deferred_queue.jsonl"
	rejectedQueueName = "rejected_queue.jsonl"
	uploadQueueName   = "upload_queue.jsonl"
	quarantineName    = "event_queue.quarantine.jsonl"
)

// Store provides access to the durable queue files under one queue
// directory. All rewrites go through a temp file and rename; the
// invocation-level lock serializes writers, so the store itself carries no
// locking.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore returns a store rooted at dir. The directory is created on first
// write, not here.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// WithClock overrides the store's time source (useful for tests).
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// EventQueuePath returns the path of the active event queue file.
func (s *Store) EventQueuePath() string {
	return filepath.Join(s.dir, eventQueueName)
}

// UploadQueuePath returns the path of the upload handoff file.
func (s *Store) UploadQueuePath() string {
	return filepath.Join(s.dir, uploadQueueName)
}

// QuarantinePath returns the path malformed queue lines are parked under.
func (s *Store) QuarantinePath() string {
	return filepath.Join(s.dir, quarantineName)
}

func (s *Store) deferredPath() string { return filepath.Join(s.dir, deferredQueueName) }
func (s *Store) rejectedPath() string { return filepath.Join(s.dir, rejectedQueueName) }

// LoadEvents reads the active event queue in FIFO order. Unparsable lines
// are returned separately so the caller can quarantine them instead of
// aborting the run.
func (s *Store) LoadEvents() ([]Item, []jsonl.BadLine, error) {
	items, bad, err := jsonl.Read[Item](s.EventQueuePath())
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "queue", "load-events", s.EventQueuePath(), err)
	}
	for i := range items {
		if items[i].Status == "" {
			items[i].Status = StatusPending
		}
	}
	return items, bad, nil
}

// AppendEvents appends items to the active event queue without touching
// existing lines. New items default to pending.
func (s *Store) AppendEvents(items ...Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	now := s.now().Format(time.RFC3339)
	for i := range items {
		if items[i].Status == "" {
			items[i].Status = StatusPending
		}
		if items[i].EnqueuedAt == "" {
			items[i].EnqueuedAt = now
		}
	}
	if err := jsonl.Append(s.EventQueuePath(), items...); err != nil {
		return services.Wrap(services.ErrTransient, "queue", "append-events", s.EventQueuePath(), err)
	}
	return nil
}

// ReplaceEvents rewrites the active event queue atomically. This is how
// every state transition is persisted: mutate the in-memory slice, then
// replace the file in one rename.
func (s *Store) ReplaceEvents(items []Item) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := jsonl.WriteAtomic(s.EventQueuePath(), items); err != nil {
		return services.Wrap(services.ErrTransient, "queue", "replace-events", s.EventQueuePath(), err)
	}
	return nil
}

// Quarantine moves malformed queue lines into a side file so the active
// queue can be rewritten without them. Lines are appended verbatim with a
// line-number prefix comment stripped; the original text is preserved.
func (s *Store) Quarantine(bad []jsonl.BadLine) error {
	if len(bad) == 0 {
		return nil
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.QuarantinePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return services.Wrap(services.ErrTransient, "queue", "quarantine", s.QuarantinePath(), err)
	}
	defer f.Close()
	for _, line := range bad {
		if _, err := fmt.Fprintln(f, strings.TrimRight(line.Text, "\n")); err != nil {
			return services.Wrap(services.ErrTransient, "queue", "quarantine", s.QuarantinePath(), err)
		}
	}
	return nil
}

// AppendDeferred parks an item in the deferred queue.
func (s *Store) AppendDeferred(item Item) error {
	return s.appendParked(s.deferredPath(), item, StatusDeferred)
}

// AppendRejected parks an item in the rejected queue.
func (s *Store) AppendRejected(item Item) error {
	return s.appendParked(s.rejectedPath(), item, StatusRejected)
}

func (s *Store) appendParked(path string, item Item, status Status) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	item.Status = status
	item = item.Touch(s.now())
	if err := jsonl.Append(path, item); err != nil {
		return services.Wrap(services.ErrTransient, "queue", "append-parked", path, err)
	}
	return nil
}

// LoadDeferred reads the deferred queue.
func (s *Store) LoadDeferred() ([]Item, error) {
	items, _, err := jsonl.Read[Item](s.deferredPath())
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "load-deferred", s.deferredPath(), err)
	}
	return items, nil
}

// LoadRejected reads the rejected queue.
func (s *Store) LoadRejected() ([]Item, error) {
	items, _, err := jsonl.Read[Item](s.rejectedPath())
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "load-rejected", s.rejectedPath(), err)
	}
	return items, nil
}

// RemoveDeferred drops the deferred entry for eventDir and returns it, for
// manual re-injection into the active queue.
func (s *Store) RemoveDeferred(eventDir string) (Item, error) {
	items, err := s.LoadDeferred()
	if err != nil {
		return Item{}, err
	}
	kept := items[:0]
	var found *Item
	for _, item := range items {
		if found == nil && item.EventDir == eventDir {
			picked := item
			found = &picked
			continue
		}
		kept = append(kept, item)
	}
	if found == nil {
		return Item{}, services.Wrap(services.ErrNotFound, "queue", "requeue",
			fmt.Sprintf("no deferred entry for %s", eventDir), nil)
	}
	if err := jsonl.WriteAtomic(s.deferredPath(), kept); err != nil {
		return Item{}, services.Wrap(services.ErrTransient, "queue", "requeue", s.deferredPath(), err)
	}
	return *found, nil
}

// AppendUpload hands a rendered short to the uploader queue. A second call
// with the same video path is a no-op so a crash between the upload append
// and the event queue rewrite cannot duplicate the handoff.
func (s *Store) AppendUpload(item UploadItem) (bool, error) {
	exists, err := s.HasUpload(item.VideoPath)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.ensureDir(); err != nil {
		return false, err
	}
	if item.EnqueuedAt == "" {
		item.EnqueuedAt = s.now().Format(time.RFC3339)
	}
	if err := jsonl.Append(s.UploadQueuePath(), item); err != nil {
		return false, services.Wrap(services.ErrTransient, "queue", "append-upload", s.UploadQueuePath(), err)
	}
	return true, nil
}

// HasUpload reports whether the upload queue already references videoPath.
func (s *Store) HasUpload(videoPath string) (bool, error) {
	items, _, err := jsonl.Read[UploadItem](s.UploadQueuePath())
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "queue", "load-uploads", s.UploadQueuePath(), err)
	}
	for _, item := range items {
		if item.VideoPath == videoPath {
			return true, nil
		}
	}
	return false, nil
}

// LoadUploads reads the upload queue.
func (s *Store) LoadUploads() ([]UploadItem, error) {
	items, _, err := jsonl.Read[UploadItem](s.UploadQueuePath())
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "load-uploads", s.UploadQueuePath(), err)
	}
	return items, nil
}

// HasEvent reports whether the active queue contains an entry for eventDir.
func (s *Store) HasEvent(eventDir string) (bool, error) {
	items, _, err := s.LoadEvents()
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.EventDir == eventDir {
			return true, nil
		}
	}
	return false, nil
}

// Snapshot aggregates queue sizes for the status view. Parse failures in
// any file count as bad lines rather than errors; a reader must tolerate a
// file that is mid-rewrite.
func (s *Store) Snapshot() (Counts, error) {
	counts := Counts{Active: make(map[Status]int)}

	events, bad, err := jsonl.Read[Item](s.EventQueuePath())
	if err != nil {
		return Counts{}, services.Wrap(services.ErrTransient, "queue", "snapshot", s.EventQueuePath(), err)
	}
	for _, item := range events {
		status := item.Status
		if status == "" {
			status = StatusPending
		}
		counts.Active[status]++
	}
	counts.Bad = len(bad)

	if counts.Deferred, err = s.countOf(s.deferredPath()); err != nil {
		return Counts{}, err
	}
	if counts.Rejected, err = s.countOf(s.rejectedPath()); err != nil {
		return Counts{}, err
	}
	if counts.Upload, err = s.countOf(s.UploadQueuePath()); err != nil {
		return Counts{}, err
	}
	return counts, nil
}

func (s *Store) countOf(path string) (int, error) {
	n, err := jsonl.Count(path)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "queue", "snapshot", path, err)
	}
	return n, nil
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "queue", "ensure-dir", s.dir, err)
	}
	return nil
}
