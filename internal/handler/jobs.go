package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/middleware"
	"github.com/arturoeanton/design-copilot/internal/port"
)

// Job states.
const (
	JobRunning  = "running"
	JobComplete = "complete"
	JobError    = "error"
)

// JobStatus represents the current state of an asynchronous ingestion.
type JobStatus struct {
	ID          string               `json:"id"`
	OwnerID     string               `json:"owner_id"`
	Filename    string               `json:"filename"`
	Status      string               `json:"status"` // running, complete, error
	Progress    int                  `json:"progress"`
	Total       int                  `json:"total"`
	Result      *domain.IngestResult `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at,omitempty"`
}

func (j *JobStatus) done() bool {
	return j.Status == JobComplete || j.Status == JobError
}

// JobTracker manages ingestion jobs in memory.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobStatus
	subs map[string][]chan JobStatus // subscribers per job
}

// NewJobTracker creates a new job tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{
		jobs: make(map[string]*JobStatus),
		subs: make(map[string][]chan JobStatus),
	}
}

// CreateJob registers a running job and returns its id.
func (t *JobTracker) CreateJob(ownerID, filename string) string {
	id := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = &JobStatus{
		ID:        id,
		OwnerID:   ownerID,
		Filename:  filename,
		Status:    JobRunning,
		StartedAt: time.Now(),
	}
	return id
}

// UpdateProgress records how many chunks have settled. Slow subscribers miss intermediate updates.
func (t *JobTracker) UpdateProgress(id string, done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok || job.done() {
		return
	}
	job.Progress = done
	job.Total = total
	t.notify(id, *job, false)
}

// CompleteJob stores the final result. A non-nil err marks the job as failed,
// but a partial result is still kept.
func (t *JobTracker) CompleteJob(id string, result *domain.IngestResult, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return
	}
	job.Result = result
	job.Status = JobComplete
	if err != nil {
		job.Status = JobError
		job.Error = err.Error()
	}
	job.CompletedAt = time.Now()
	t.notify(id, *job, true)
}

// notify must be called with mu held.
func (t *JobTracker) notify(id string, snapshot JobStatus, final bool) {
	for _, ch := range t.subs[id] {
		select {
		case ch <- snapshot:
			continue
		default:
		}
		if !final {
			continue
		}
		// Make room so the final update is never dropped.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// GetJob returns a job status.
func (t *JobTracker) GetJob(id string) (*JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// GetOwnedJob returns the job only if it belongs to ownerID.
func (t *JobTracker) GetOwnedJob(ownerID, id string) (*JobStatus, error) {
	job, ok := t.GetJob(id)
	if !ok || job.OwnerID != ownerID {
		return nil, port.ErrJobNotFound
	}
	return job, nil
}

// Subscribe returns the current status and a channel that receives later updates.
func (t *JobTracker) Subscribe(id string) (JobStatus, chan JobStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return JobStatus{}, nil, false
	}
	ch := make(chan JobStatus, 10)
	t.subs[id] = append(t.subs[id], ch)
	return *job, ch, true
}

// Unsubscribe removes a channel from subscribers.
func (t *JobTracker) Unsubscribe(id string, ch chan JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subs[id]
	for i, s := range subs {
		if s == ch {
			t.subs[id] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(t.subs[id]) == 0 {
		delete(t.subs, id)
	}
	close(ch)
}

// Prune drops finished jobs that completed more than maxAge ago and returns how many were removed.
func (t *JobTracker) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, job := range t.jobs {
		if job.done() && job.CompletedAt.Before(cutoff) && len(t.subs[id]) == 0 {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	tracker *JobTracker
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(tracker *JobTracker) *JobsHandler {
	return &JobsHandler{tracker: tracker}
}

// Register sets up job routes.
func (h *JobsHandler) Register(router fiber.Router) {
	jobs := router.Group("/jobs")
	jobs.Get("/:id", h.GetStatus)
	jobs.Get("/:id/stream", h.StreamSSE)
}

// GetStatus returns the current job status.
func (h *JobsHandler) GetStatus(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return unauthorized(c)
	}
	job, err := h.tracker.GetOwnedJob(uc.UserID, c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(job)
}

// StreamSSE streams job updates via Server-Sent Events.
func (h *JobsHandler) StreamSSE(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return unauthorized(c)
	}
	id := c.Params("id")
	if _, err := h.tracker.GetOwnedJob(uc.UserID, id); err != nil {
		return sendError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	job, ch, ok := h.tracker.Subscribe(id)
	if !ok {
		return sendError(c, port.ErrJobNotFound)
	}

	// If already complete, just return the final status
	if job.done() {
		h.tracker.Unsubscribe(id, ch)
		return c.SendString(formatEvent(job.Status, job))
	}

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.tracker.Unsubscribe(id, ch)

		// Send initial status
		fmt.Fprint(w, formatEvent("progress", job))
		if err := w.Flush(); err != nil {
			return
		}

		timeout := time.After(5 * time.Minute)
		for {
			select {
			case update, ok := <-ch:
				if !ok {
					return
				}
				eventType := "progress"
				if update.done() {
					eventType = update.Status
				}
				fmt.Fprint(w, formatEvent(eventType, update))
				if err := w.Flush(); err != nil {
					slog.Debug("SSE client gone", "job_id", id)
					return
				}
				if update.done() {
					return
				}
			case <-timeout:
				slog.Warn("SSE timeout", "job_id", id)
				return
			}
		}
	})
}

func formatEvent(event string, job JobStatus) string {
	data, _ := json.Marshal(job)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, string(data))
}
