// Package picker implements the global candidate picker: it scans every
// eligible session under the library root, scores unpicked candidates,
// selects a deduplicated non-overlapping subset, assigns each selection a
// publish timestamp, and commits the batch to the event queue and the
// per-session candidate ledgers.
package picker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"clipper/internal/candidates"
	"clipper/internal/logging"
	"clipper/internal/queue"
	"clipper/internal/services"
)

// Mode selects the scoring strategy.
type Mode string

const (
	ModeRandom Mode = "random"
	ModeMotion Mode = "motion"
	ModeBand   Mode = "band"
	ModeHybrid Mode = "hybrid"
)

// ParseMode normalizes raw mode text.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeRandom, ModeMotion, ModeBand, ModeHybrid:
		return Mode(raw), nil
	}
	return "", services.Wrap(services.ErrValidation, "pick", "parse-mode",
		fmt.Sprintf("unknown mode %q", raw), nil)
}

// Request describes one picker invocation.
type Request struct {
	Mode          Mode
	Total         int
	MaxPerSession int
	NoOverlap     bool
	// Seed drives random mode's shuffle; the other modes break ties
	// deterministically. Zero means generate a fresh seed and report it in
	// the result.
	Seed int64
	// Start is the first publish slot. Zero means five minutes from now.
	Start time.Time
	// PitchHours spaces successive publish slots. Zero or negative leaves
	// publish timestamps empty for downstream scheduling.
	PitchHours float64
	Zone       *time.Location
	// DryRun selects and schedules without committing anything.
	DryRun bool
}

// Pick is one selected candidate annotated with its schedule slot.
type Pick struct {
	Session   candidates.Session
	Candidate candidates.Candidate
	EventName string
	EventDir  string
	PublishAt string
}

// Result is the outcome of one picker invocation.
type Result struct {
	// AlreadyRunning means another invocation held the lock; nothing ran.
	AlreadyRunning bool
	Picks          []Pick
	// Seed is the seed actually used, generated when the request left it
	// zero, so random picks are auditable.
	Seed int64
	// Short reports that fewer unpicked candidates existed than requested.
	Short   bool
	Skipped []candidates.SkipReason
}

// Picker wires the scanner, candidate stores, and event queue together.
type Picker struct {
	scanner        *candidates.Scanner
	store          *queue.Store
	candidatesName string
	lockPath       string
	logger         *slog.Logger
	now            func() time.Time
}

// Option customizes a Picker.
type Option func(*Picker)

// WithClock overrides the picker's time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(p *Picker) {
		if now != nil {
			p.now = now
		}
	}
}

// New returns a picker over the given scanner and queue store. lockPath is
// the single-flight lock shared with the pipeline driver; every mutating
// entry point takes it before touching the queue or a candidate ledger.
func New(scanner *candidates.Scanner, store *queue.Store, candidatesName, lockPath string, logger *slog.Logger, opts ...Option) *Picker {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Picker{
		scanner:        scanner,
		store:          store,
		candidatesName: candidatesName,
		lockPath:       lockPath,
		logger:         logger.With(logging.String(logging.FieldComponent, "picker")),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type poolEntry struct {
	session   candidates.Session
	store     *candidates.Store
	records   []candidates.Candidate
	index     int
	candidate candidates.Candidate
	score     float64
}

// Pick runs one full selection cycle and commits the result. The queue lock
// is held for the whole cycle; contention is a clean no-op, not an error.
// Commit order is queue append first, then candidate ledger mutation;
// candidates whose event directory already appears in the active queue are
// excluded from the pool so a crash between the two writes cannot
// double-enqueue.
func (p *Picker) Pick(req Request) (*Result, error) {
	if req.Total < 1 {
		return nil, services.Wrap(services.ErrValidation, "pick", "request", "total must be >= 1", nil)
	}
	if req.Zone == nil {
		req.Zone = time.UTC
	}

	lock, ok, err := p.acquireLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{AlreadyRunning: true}, nil
	}
	defer func() {
		_ = lock.Unlock()
	}()

	seed := req.Seed
	if seed == 0 {
		seed = p.now().UnixNano()
		p.logger.Info("generated seed", logging.Int64("seed", seed))
	}

	// Repair any orphaned picks from a previously interrupted run before
	// selecting new ones.
	if !req.DryRun {
		if _, err := p.reconcile(); err != nil {
			return nil, err
		}
	}

	sessions, skipped, err := p.scanner.Scan()
	if err != nil {
		return nil, err
	}
	for _, skip := range skipped {
		p.logger.Warn("session skipped",
			logging.String(logging.FieldSession, skip.Session),
			logging.String("reason", skip.Reason))
	}

	queued, err := p.queuedEventDirs()
	if err != nil {
		return nil, err
	}

	pool, stores, err := p.loadPool(sessions, queued)
	if err != nil {
		return nil, err
	}

	scorePool(pool, req.Mode, seed)
	chosen := selectPicks(pool, req)

	result := &Result{
		Seed:    seed,
		Short:   len(chosen) < req.Total,
		Skipped: skipped,
	}
	if len(chosen) == 0 {
		p.logger.Info("nothing to pick")
		return result, nil
	}

	pickedAt := p.now().In(req.Zone).Truncate(time.Second)
	pickID := pickedAt.Format("20060102_150405") + "_" + uuid.NewString()[:8]
	slots := schedule(req, pickedAt, len(chosen))

	queueItems := make([]queue.Item, 0, len(chosen))
	for k, entry := range chosen {
		eventName := entry.candidate.EventName()
		eventDir := filepath.Join(entry.session.Dir, "events", eventName)
		result.Picks = append(result.Picks, Pick{
			Session:   entry.session,
			Candidate: entry.candidate,
			EventName: eventName,
			EventDir:  eventDir,
			PublishAt: slots[k],
		})
		queueItems = append(queueItems, queue.Item{
			SessionDir: entry.session.Dir,
			EventName:  eventName,
			EventDir:   eventDir,
			PickID:     pickID,
			PublishAt:  slots[k],
			Status:     queue.StatusPending,
		})
	}

	if req.DryRun {
		p.logger.Info("dry run, nothing committed", logging.Int("picked", len(chosen)))
		return result, nil
	}

	if err := p.store.AppendEvents(queueItems...); err != nil {
		return nil, err
	}

	if err := p.commitLedgers(chosen, stores, pickedAt, pickID); err != nil {
		return nil, err
	}

	p.logger.Info("pick committed",
		logging.Int("picked", len(chosen)),
		logging.String("pick_id", pickID),
		logging.Bool("short", result.Short))
	return result, nil
}

// acquireLock takes the non-blocking queue lock. ok reports whether the
// lock was acquired; contention is not an error.
func (p *Picker) acquireLock() (*flock.Flock, bool, error) {
	if p.lockPath == "" {
		return nil, false, services.Wrap(services.ErrConfiguration, "pick", "lock", "no lock path configured", nil)
	}
	if err := os.MkdirAll(filepath.Dir(p.lockPath), 0o755); err != nil {
		return nil, false, services.Wrap(services.ErrConfiguration, "pick", "lock-dir", p.lockPath, err)
	}
	lock := flock.New(p.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, false, services.Wrap(services.ErrTransient, "pick", "lock", p.lockPath, err)
	}
	if !locked {
		p.logger.Info("another invocation holds the lock, exiting")
		return nil, false, nil
	}
	return lock, true, nil
}

func (p *Picker) queuedEventDirs() (map[string]struct{}, error) {
	items, bad, err := p.store.LoadEvents()
	if err != nil {
		return nil, err
	}
	if len(bad) > 0 {
		p.logger.Warn("event queue has malformed lines", logging.Int("count", len(bad)))
	}
	dirs := make(map[string]struct{}, len(items))
	for _, item := range items {
		dirs[item.EventDir] = struct{}{}
	}
	return dirs, nil
}

func (p *Picker) loadPool(sessions []candidates.Session, queued map[string]struct{}) ([]*poolEntry, map[string]*candidates.Store, error) {
	var pool []*poolEntry
	stores := make(map[string]*candidates.Store, len(sessions))
	for _, session := range sessions {
		store := candidates.NewStore(session.Dir, p.candidatesName)
		records, bad, err := store.Load()
		if err != nil {
			return nil, nil, err
		}
		if len(bad) > 0 {
			p.logger.Warn("candidates file has malformed lines",
				logging.String(logging.FieldSession, session.Name),
				logging.Int("count", len(bad)))
		}
		stores[session.Dir] = store
		for i, candidate := range records {
			if candidate.Picked() || candidate.VideoID != "" {
				continue
			}
			eventDir := filepath.Join(session.Dir, "events", candidate.EventName())
			if _, ok := queued[eventDir]; ok {
				continue
			}
			pool = append(pool, &poolEntry{
				session:   session,
				store:     store,
				records:   records,
				index:     i,
				candidate: candidate,
			})
		}
	}
	return pool, stores, nil
}

func (p *Picker) commitLedgers(chosen []*poolEntry, stores map[string]*candidates.Store, pickedAt time.Time, pickID string) error {
	stamp := pickedAt.Format(time.RFC3339)
	bySession := make(map[string][]*poolEntry)
	for _, entry := range chosen {
		bySession[entry.session.Dir] = append(bySession[entry.session.Dir], entry)
	}
	for dir, entries := range bySession {
		indices := make([]int, 0, len(entries))
		for _, entry := range entries {
			indices = append(indices, entry.index)
		}
		if err := stores[dir].MarkPicked(entries[0].records, indices, stamp, pickID); err != nil {
			return err
		}
	}
	return nil
}
