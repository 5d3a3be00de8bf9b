// Package pipeline drives event queue items through the review, decision,
// render, and upload-enqueue stages. One invocation holds the queue lock,
// processes a bounded batch FIFO, and persists every state transition by
// rewriting the event queue atomically, so a crash at any point leaves each
// item in exactly one well-defined state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"clipper/internal/decision"
	"clipper/internal/logging"
	"clipper/internal/queue"
	"clipper/internal/render"
	"clipper/internal/review"
	"clipper/internal/services"
)

// Deps carries the collaborators one driver invocation needs.
type Deps struct {
	Store    *queue.Store
	Renderer *render.Renderer
	Decider  *decision.Service
	Gate     review.Gate
	Logger   *slog.Logger

	LockPath       string
	Bounds         decision.Bounds
	RawVideoName   string
	DetectionsName string
	WindowSeconds  int
}

// Options bound one driver run.
type Options struct {
	// MaxItems caps how many queue items this invocation touches.
	MaxItems int
	// EventDir, when set, restricts the run to a single manually injected
	// event, enqueuing it first if needed.
	EventDir string
}

// Summary reports what one run did.
type Summary struct {
	// AlreadyRunning means another invocation held the lock; nothing ran.
	AlreadyRunning bool
	Processed      int
	Approved       int
	Deferred       int
	Rejected       int
	Rendered       int
	RenderFailed   int
	UploadQueued   int
	Waiting        int
	Remaining      int
	// Complete means both the event and upload queues are empty.
	Complete bool
}

// Driver advances event queue items through the pipeline state machine.
type Driver struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Driver.
type Option func(*Driver)

// WithClock overrides the driver's time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// New returns a driver over the given dependencies.
func New(deps Deps, opts ...Option) *Driver {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Driver{
		deps:   deps,
		logger: logger.With(logging.String(logging.FieldComponent, "pipeline")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes one bounded pipeline pass. Every log line of the pass
// carries a fresh correlation id so interleaved cron invocations can be
// told apart. Failure to acquire the lock is a clean no-op, not an error:
// concurrent cron invocations are expected.
func (d *Driver) Run(ctx context.Context, opts Options) (Summary, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, d.logger)

	if err := os.MkdirAll(filepath.Dir(d.deps.LockPath), 0o755); err != nil {
		return Summary{}, services.Wrap(services.ErrConfiguration, "pipeline", "lock-dir", d.deps.LockPath, err)
	}
	lock := flock.New(d.deps.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return Summary{}, services.Wrap(services.ErrTransient, "pipeline", "lock", d.deps.LockPath, err)
	}
	if !locked {
		logger.Info("another invocation holds the lock, exiting")
		return Summary{AlreadyRunning: true}, nil
	}
	defer func() {
		_ = lock.Unlock()
	}()

	if opts.EventDir != "" {
		if err := d.inject(opts.EventDir, logger); err != nil {
			return Summary{}, err
		}
	}

	items, bad, err := d.deps.Store.LoadEvents()
	if err != nil {
		return Summary{}, err
	}
	if len(bad) > 0 {
		logger.Warn("quarantining malformed queue lines", logging.Int("count", len(bad)))
		if err := d.deps.Store.Quarantine(bad); err != nil {
			return Summary{}, err
		}
		if err := d.deps.Store.ReplaceEvents(items); err != nil {
			return Summary{}, err
		}
	}

	summary := Summary{}
	processed := 0
	for idx := 0; idx < len(items); idx++ {
		if opts.MaxItems > 0 && processed >= opts.MaxItems {
			break
		}
		if opts.EventDir != "" && items[idx].EventDir != opts.EventDir {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		var remove bool
		items, remove, err = d.advance(ctx, items, idx, &summary)
		if err != nil {
			return summary, err
		}
		if remove {
			idx--
		}
		processed++
	}
	summary.Processed = processed

	remaining, _, err := d.deps.Store.LoadEvents()
	if err != nil {
		return summary, err
	}
	summary.Remaining = len(remaining)
	uploads, err := d.deps.Store.LoadUploads()
	if err != nil {
		return summary, err
	}
	summary.Complete = len(remaining) == 0 && len(uploads) == 0
	return summary, nil
}

// inject appends a pending item for eventDir unless one already exists.
// The session directory is the grandparent of the event directory.
func (d *Driver) inject(eventDir string, logger *slog.Logger) error {
	exists, err := d.deps.Store.HasEvent(eventDir)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	eventName := filepath.Base(eventDir)
	if _, err := render.ParseEventStart(eventName); err != nil {
		return err
	}
	sessionDir := filepath.Dir(filepath.Dir(eventDir))
	logger.Info("injecting event",
		logging.String(logging.FieldEvent, eventName),
		logging.String(logging.FieldSession, sessionDir))
	return d.deps.Store.AppendEvents(queue.Item{
		SessionDir: sessionDir,
		EventName:  eventName,
		EventDir:   eventDir,
		Status:     queue.StatusPending,
	})
}

// advance pushes items[idx] as far as it can go in this run, persisting
// after every transition. The returned slice reflects any removal; remove
// reports whether the item left the active queue.
func (d *Driver) advance(ctx context.Context, items []queue.Item, idx int, summary *Summary) ([]queue.Item, bool, error) {
	for {
		item := items[idx]
		itemCtx := services.WithStage(services.WithEvent(ctx, item.EventName), string(item.Status))
		logger := logging.WithContext(itemCtx, d.logger)

		switch item.Status {
		case queue.StatusPending:
			next, ready, err := d.stagePending(itemCtx, item, logger)
			if err != nil {
				return items, false, err
			}
			items[idx] = next
			if err := d.persist(items); err != nil {
				return items, false, err
			}
			if !ready {
				summary.Waiting++
				return items, false, nil
			}

		case queue.StatusUnderReview:
			verdict, err := d.stageReview(itemCtx, item, logger)
			if err != nil {
				return items, false, err
			}
			switch verdict {
			case review.VerdictApprove:
				summary.Approved++
				items[idx] = item.WithStatus(queue.StatusApproved, d.now())
				if err := d.persist(items); err != nil {
					return items, false, err
				}
			case review.VerdictDefer:
				summary.Deferred++
				if err := d.deps.Store.AppendDeferred(item); err != nil {
					return items, false, err
				}
				return d.removeAt(items, idx)
			case review.VerdictReject:
				summary.Rejected++
				if err := d.deps.Store.AppendRejected(item); err != nil {
					return items, false, err
				}
				return d.removeAt(items, idx)
			}

		case queue.StatusApproved:
			items[idx] = item.WithStatus(queue.StatusRendering, d.now())
			if err := d.persist(items); err != nil {
				return items, false, err
			}

		case queue.StatusRendering:
			next, failed, err := d.stageRender(itemCtx, item, logger)
			if err != nil {
				return items, false, err
			}
			if failed {
				summary.RenderFailed++
				return d.removeAt(items, idx)
			}
			items[idx] = next
			if next.Status == queue.StatusRendering {
				// Transient failure; leave the item retryable for the next
				// invocation.
				if err := d.persist(items); err != nil {
					return items, false, err
				}
				summary.Waiting++
				return items, false, nil
			}
			if next.Status == queue.StatusRendered {
				summary.Rendered++
			}
			if err := d.persist(items); err != nil {
				return items, false, err
			}

		case queue.StatusRendered:
			if err := d.stageUpload(item, logger); err != nil {
				return items, false, err
			}
			summary.UploadQueued++
			return d.removeAt(items, idx)

		default:
			logger.Warn("unexpected status in active queue, parking as deferred")
			if err := d.deps.Store.AppendDeferred(item); err != nil {
				return items, false, err
			}
			return d.removeAt(items, idx)
		}
	}
}

func (d *Driver) persist(items []queue.Item) error {
	return d.deps.Store.ReplaceEvents(items)
}

func (d *Driver) removeAt(items []queue.Item, idx int) ([]queue.Item, bool, error) {
	items = append(items[:idx], items[idx+1:]...)
	if err := d.persist(items); err != nil {
		return items, true, err
	}
	return items, true, nil
}

// stagePending makes sure the event has a valid decision document. When the
// latest version is already valid the stage is a pure state read, which is
// what makes resume idempotent.
func (d *Driver) stagePending(ctx context.Context, item queue.Item, logger *slog.Logger) (queue.Item, bool, error) {
	version, err := decision.LatestVersion(item.EventDir)
	if err != nil {
		return item, false, err
	}

	if version == 0 {
		if err := d.prepareReviewMaterial(ctx, item, logger); err != nil {
			logger.Warn("review material preparation failed", logging.Error(err))
		}
		if !d.deps.Decider.Configured() {
			logger.Info("no decision yet and no decision command configured, waiting")
			item.LastError = "waiting for decision document"
			return item.Touch(d.now()), false, nil
		}
		if _, version, err = d.deps.Decider.Invoke(ctx, item.EventDir); err != nil {
			logger.Error("decision command failed", logging.Error(err))
			item.LastError = err.Error()
			return item.Touch(d.now()), false, nil
		}
		if version == 0 {
			logger.Warn("decision command produced no document")
			item.LastError = "decision command produced no document"
			return item.Touch(d.now()), false, nil
		}
	}

	doc, err := decision.Load(item.EventDir, version)
	if err != nil {
		item.LastError = err.Error()
		return item.Touch(d.now()), false, nil
	}
	if err := doc.Validate(d.deps.Bounds); err != nil {
		logger.Warn("decision document invalid", logging.Int("version", version), logging.Error(err))
		item.LastError = err.Error()
		return item.Touch(d.now()), false, nil
	}

	item.DecisionVersion = version
	item.LastError = ""
	item = item.WithStatus(queue.StatusUnderReview, d.now())
	logger.Info("decision ready", logging.Int("version", version))
	return item, true, nil
}

// prepareReviewMaterial exports proxy frames and review samples for the
// event window so both the decision service and a human reviewer have
// something to look at. Best effort; failures do not block the stage.
func (d *Driver) prepareReviewMaterial(ctx context.Context, item queue.Item, logger *slog.Logger) error {
	start, err := render.ParseEventStart(item.EventName)
	if err != nil {
		return err
	}
	rawPath := filepath.Join(item.SessionDir, d.deps.RawVideoName)
	framesDir := filepath.Join(item.EventDir, "frames")
	if err := d.deps.Renderer.ExportFrames(ctx, rawPath, framesDir, start, d.deps.WindowSeconds); err != nil {
		return err
	}

	detectionsPath := filepath.Join(item.SessionDir, d.deps.DetectionsName)
	if median, ok, err := render.MedianCenterX(detectionsPath, start, start+d.deps.WindowSeconds); err == nil && ok {
		logger.Debug("detection median center", logging.Float64("center_x", median))
	}

	return render.PrepareReviewSamples(framesDir, filepath.Join(item.EventDir, "review"))
}

func (d *Driver) stageReview(ctx context.Context, item queue.Item, logger *slog.Logger) (review.Verdict, error) {
	doc, err := decision.Load(item.EventDir, item.DecisionVersion)
	if err != nil {
		return "", err
	}
	verdict, err := d.deps.Gate.Review(ctx, item, doc)
	if err != nil {
		return "", err
	}
	logger.Info("review verdict", logging.String("verdict", string(verdict)))
	return verdict, nil
}

// stageRender runs the render stage for the item's decision version. The
// failed return means the durable failure flag is set and the item must
// leave the active queue.
func (d *Driver) stageRender(ctx context.Context, item queue.Item, logger *slog.Logger) (queue.Item, bool, error) {
	version := item.DecisionVersion
	if version == 0 {
		// Resumed item predating version tracking; re-derive it.
		latest, err := decision.LatestVersion(item.EventDir)
		if err != nil {
			return item, false, err
		}
		if latest == 0 {
			item.LastError = "no decision document for render"
			return item.WithStatus(queue.StatusPending, d.now()), false, nil
		}
		version = latest
		item.DecisionVersion = latest
	}

	if render.Flagged(item.EventDir, version) {
		logger.Warn("failure flag set, dropping from active queue",
			logging.String(logging.FieldErrorHint, "clear with: clipper queue clear-flag "+item.EventDir))
		return item, true, nil
	}

	doc, err := decision.Load(item.EventDir, version)
	if err != nil {
		item.LastError = err.Error()
		return item.Touch(d.now()), false, nil
	}

	outcome, err := d.deps.Renderer.Render(ctx, item.SessionDir, item.EventDir, item.EventName, doc, version)
	if err != nil {
		if render.Flagged(item.EventDir, version) {
			logger.Error("render failed, flag written", logging.Error(err),
				logging.String(logging.FieldErrorHint, "clear with: clipper queue clear-flag "+item.EventDir))
			return item, true, nil
		}
		item.LastError = err.Error()
		return item.Touch(d.now()), false, nil
	}

	if err := render.WriteSidecars(item.EventDir, version, doc.Title, doc.Description); err != nil {
		logger.Warn("sidecar write failed", logging.Error(err))
	}

	item.LastError = ""
	item = item.WithStatus(queue.StatusRendered, d.now())
	logger.Info("render stage complete",
		logging.String("path", outcome.VideoPath),
		logging.Bool("resumed", outcome.AlreadyRendered))
	return item, false, nil
}

func (d *Driver) stageUpload(item queue.Item, logger *slog.Logger) error {
	doc, err := decision.Load(item.EventDir, item.DecisionVersion)
	if err != nil {
		return err
	}
	added, err := d.deps.Store.AppendUpload(queue.UploadItem{
		VideoPath:    render.ArtifactPath(item.EventDir, item.DecisionVersion),
		DecisionPath: decision.Path(item.EventDir, item.DecisionVersion),
		Title:        render.NormalizeTitle(doc.Title),
		Description:  doc.Description,
		PublishAt:    item.PublishAt,
		EventDir:     item.EventDir,
	})
	if err != nil {
		return err
	}
	if !added {
		logger.Info("upload already enqueued, skipping duplicate")
		return nil
	}
	logger.Info("upload enqueued", logging.String("publish_at", item.PublishAt))
	return nil
}

// String renders a one-line human summary.
func (s Summary) String() string {
	if s.AlreadyRunning {
		return "another invocation is already running"
	}
	return fmt.Sprintf("processed=%d approved=%d deferred=%d rejected=%d rendered=%d render_failed=%d upload_queued=%d waiting=%d remaining=%d",
		s.Processed, s.Approved, s.Deferred, s.Rejected, s.Rendered, s.RenderFailed, s.UploadQueued, s.Waiting, s.Remaining)
}
