package queue

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Task is one queued request to produce a comparison report.
// Immutable after creation; consumed exactly once by the worker.
type Task struct {
	ID               uuid.UUID
	UserID           int64
	ChatID           int64
	Articles         []int64
	ReportID         int64 // persisted report row, 0 when none
	LoadingMessageID int   // transient "processing" indicator, 0 when none
}

// NewTask creates a task with a fresh collision-free id.
func NewTask(userID, chatID int64, articles []int64, reportID int64, loadingMessageID int) Task {
	return Task{
		ID:               uuid.New(),
		UserID:           userID,
		ChatID:           chatID,
		Articles:         articles,
		ReportID:         reportID,
		LoadingMessageID: loadingMessageID,
	}
}

// Result is the terminal outcome record for exactly one Task.
type Result struct {
	TaskID           uuid.UUID
	UserID           int64
	ChatID           int64
	ReportID         int64
	Success          bool
	FilePath         string
	Error            string
	LoadingMessageID int
}

// ReportQueue is a pair of independent FIFO channels: inbound tasks and
// outbound results. Result delivery never blocks task intake and vice
// versa. Nothing is persisted; a restart loses queued work.
type ReportQueue struct {
	tasks   chan Task
	results chan Result
}

func New(buffer int) *ReportQueue {
	if buffer <= 0 {
		buffer = 1024
	}
	return &ReportQueue{
		tasks:   make(chan Task, buffer),
		results: make(chan Result, buffer),
	}
}

// AddTask appends a task to the inbound channel.
func (q *ReportQueue) AddTask(ctx context.Context, t Task) error {
	select {
	case q.tasks <- t:
		slog.Info("task added to queue", "task_id", t.ID, "articles", len(t.Articles))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextTask blocks until a task is available, in strict submission order.
func (q *ReportQueue) NextTask(ctx context.Context) (Task, error) {
	select {
	case t := <-q.tasks:
		return t, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// AddResult appends a result to the outbound channel.
func (q *ReportQueue) AddResult(ctx context.Context, r Result) error {
	select {
	case q.results <- r:
		slog.Info("result added", "task_id", r.TaskID, "success", r.Success)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextResult blocks until a result is available.
func (q *ReportQueue) NextResult(ctx context.Context) (Result, error) {
	select {
	case r := <-q.results:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Pending returns the current number of queued tasks. Advisory only:
// it races with concurrent dequeues and is used for the "queue position"
// message at submission time.
func (q *ReportQueue) Pending() int {
	return len(q.tasks)
}
