package picker

import (
	"path/filepath"

	"clipper/internal/candidates"
	"clipper/internal/logging"
	"clipper/internal/queue"
)

// Reconcile takes the queue lock and repairs orphaned picks. alreadyRunning
// reports lock contention, which is a clean no-op.
func (p *Picker) Reconcile() (restored int, alreadyRunning bool, err error) {
	lock, ok, err := p.acquireLock()
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, true, nil
	}
	defer func() {
		_ = lock.Unlock()
	}()

	restored, err = p.reconcile()
	return restored, false, err
}

// reconcile scans every eligible session for candidates that carry a pick
// stamp but appear in no durable queue, and re-enqueues them. This repairs
// the window where a crash separated the ledger commit from the queue
// append, so a picked candidate never stays orphaned. Callers hold the
// queue lock.
func (p *Picker) reconcile() (int, error) {
	sessions, _, err := p.scanner.Scan()
	if err != nil {
		return 0, err
	}
	queued, err := p.knownEventDirs()
	if err != nil {
		return 0, err
	}

	var repaired []queue.Item
	for _, session := range sessions {
		store := candidates.NewStore(session.Dir, p.candidatesName)
		records, _, err := store.Load()
		if err != nil {
			return 0, err
		}
		for _, candidate := range records {
			if !candidate.Picked() || candidate.VideoID != "" {
				continue
			}
			eventDir := filepath.Join(session.Dir, "events", candidate.EventName())
			if _, ok := queued[eventDir]; ok {
				continue
			}
			repaired = append(repaired, queue.Item{
				SessionDir: session.Dir,
				EventName:  candidate.EventName(),
				EventDir:   eventDir,
				PickID:     candidate.PickID,
				Status:     queue.StatusPending,
			})
			queued[eventDir] = struct{}{}
			p.logger.Warn("re-enqueued orphaned pick",
				logging.String(logging.FieldSession, session.Name),
				logging.String(logging.FieldEvent, candidate.EventName()))
		}
	}
	if len(repaired) == 0 {
		return 0, nil
	}
	if err := p.store.AppendEvents(repaired...); err != nil {
		return 0, err
	}
	return len(repaired), nil
}

// knownEventDirs collects the event directories referenced by any durable
// queue: active, deferred, rejected, and upload. A picked candidate found
// in none of them is an orphan.
func (p *Picker) knownEventDirs() (map[string]struct{}, error) {
	dirs, err := p.queuedEventDirs()
	if err != nil {
		return nil, err
	}
	deferred, err := p.store.LoadDeferred()
	if err != nil {
		return nil, err
	}
	rejected, err := p.store.LoadRejected()
	if err != nil {
		return nil, err
	}
	for _, item := range append(deferred, rejected...) {
		dirs[item.EventDir] = struct{}{}
	}
	uploads, err := p.store.LoadUploads()
	if err != nil {
		return nil, err
	}
	for _, upload := range uploads {
		dirs[upload.EventDir] = struct{}{}
	}
	return dirs, nil
}
