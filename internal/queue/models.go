package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an event queue item.
type Status string

const (
	StatusPending      Status = "pending"
	StatusUnderReview  Status = "under_review"
	StatusApproved     Status = "approved"
	StatusDeferred     Status = "deferred"
	StatusRejected     Status = "rejected"
	StatusRendering    Status = "rendering"
	StatusRendered     Status = "rendered"
	StatusRenderFailed Status = "render_failed"
	StatusUploadQueued Status = "upload_queued"
)

var allStatuses = []Status{
	StatusPending,
	StatusUnderReview,
	StatusApproved,
	StatusDeferred,
	StatusRejected,
	StatusRendering,
	StatusRendered,
	StatusRenderFailed,
	StatusUploadQueued,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus normalizes raw status text into a Status.
func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := statusSet[status]
	return status, ok
}

// Terminal reports whether the item has left the active pipeline. Terminal
// items stay in their parked queue and are never auto-retried.
func (s Status) Terminal() bool {
	switch s {
	case StatusDeferred, StatusRejected, StatusUploadQueued:
		return true
	}
	return false
}

// Active reports whether the driver should pick the item up on the next run.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRendering, StatusRendered:
		return true
	case StatusRenderFailed:
		return false
	}
	return !s.Terminal()
}

// Item is one event in the durable event queue.
type Item struct {
	SessionDir      string `json:"session_dir"`
	EventName       string `json:"event_name"`
	EventDir        string `json:"event_dir"`
	PickID          string `json:"pick_id,omitempty"`
	PublishAt       string `json:"publishAt,omitempty"`
	Status          Status `json:"status"`
	DecisionVersion int    `json:"decision_version,omitempty"`
	EnqueuedAt      string `json:"enqueued_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

// Key identifies an item: one event directory appears at most once in the
// active queue.
func (i Item) Key() string {
	return i.EventDir
}

// Touch stamps the item's update time and returns it for chaining.
func (i Item) Touch(now time.Time) Item {
	i.UpdatedAt = now.Format(time.RFC3339)
	return i
}

// WithStatus returns the item transitioned to status with the update time
// stamped.
func (i Item) WithStatus(status Status, now time.Time) Item {
	i.Status = status
	return i.Touch(now)
}

// UploadItem is one rendered short handed off to the external uploader.
type UploadItem struct {
	VideoPath    string `json:"video_path"`
	DecisionPath string `json:"decision_path,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	PublishAt    string `json:"publish_at,omitempty"`
	EventDir     string `json:"event_dir"`
	EnqueuedAt   string `json:"enqueued_at,omitempty"`
}

// Counts aggregates queue sizes for the status view.
type Counts struct {
	Active   map[Status]int
	Deferred int
	Rejected int
	Upload   int
	Bad      int
}

// Total returns the number of items in the active queue.
func (c Counts) Total() int {
	total := 0
	for _, n := range c.Active {
		total += n
	}
	return total
}
