package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sellerlab/wbcompare/internal/queue"
)

// Pipeline is the three-stage automation driver. Stage order is fixed:
// each stage's success is a precondition for the next.
type Pipeline interface {
	CompareCards(ctx context.Context, articles []int64) error
	ProcessFilters(ctx context.Context) (uniqueID int64, count int, err error)
	DownloadDocuments(ctx context.Context, uniqueID int64, expectedCount int) (string, error)
}

// Flags supplies the per-job mock switch. Re-read on every job.
type Flags interface {
	UseMockPipeline(ctx context.Context) bool
}

// Worker pulls tasks one at a time and always produces exactly one
// result per task, success or failure. Single consumer: the browser
// cannot safely run two jobs concurrently, and this loop is the only
// thing that calls into the pipeline.
type Worker struct {
	queue     *queue.ReportQueue
	pipeline  Pipeline
	flags     Flags
	mockFile  string
	pollEvery time.Duration
}

func New(q *queue.ReportQueue, pipeline Pipeline, flags Flags, mockFile string, pollEvery time.Duration) *Worker {
	if pollEvery <= 0 {
		pollEvery = 10 * time.Second
	}
	return &Worker{
		queue:     q,
		pipeline:  pipeline,
		flags:     flags,
		mockFile:  mockFile,
		pollEvery: pollEvery,
	}
}

// Run processes tasks until ctx is cancelled. The dequeue wait is
// bounded by the poll interval so shutdown is observed promptly even
// when no tasks arrive. A task that has been dequeued always runs to
// completion before the loop exits.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("queue worker started")

	for {
		pollCtx, cancel := context.WithTimeout(ctx, w.pollEvery)
		task, err := w.queue.NextTask(pollCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue // poll timeout, re-check shutdown
		}

		slog.Info("processing task", "task_id", task.ID)
		result := w.execute(ctx, task)

		// The result must never be dropped, even mid-shutdown; the
		// buffered result channel makes the detached context safe.
		if err := w.queue.AddResult(context.Background(), result); err != nil {
			slog.Error("queue worker bookkeeping error", "task_id", task.ID, "err", err)
			time.Sleep(time.Second)
		}
	}

	slog.Info("queue worker stopped")
}

// execute runs one task through the pipeline and synthesizes exactly one
// result. Errors and panics from any stage are contained here; they must
// never terminate the worker loop.
func (w *Worker) execute(ctx context.Context, task queue.Task) queue.Result {
	filePath, err := w.runPipeline(ctx, task)

	result := queue.Result{
		TaskID:           task.ID,
		UserID:           task.UserID,
		ChatID:           task.ChatID,
		ReportID:         task.ReportID,
		LoadingMessageID: task.LoadingMessageID,
	}
	if err != nil {
		slog.Error("error processing task", "task_id", task.ID, "err", err)
		result.Error = err.Error()
		return result
	}

	slog.Info("task completed", "task_id", task.ID, "file", filePath)
	result.Success = true
	result.FilePath = filePath
	return result
}

func (w *Worker) runPipeline(ctx context.Context, task queue.Task) (filePath string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	if w.flags.UseMockPipeline(ctx) {
		slog.Info("using mock mode", "task_id", task.ID)
		return w.processMock(ctx, task.Articles)
	}
	slog.Info("using real browser mode", "task_id", task.ID)
	return w.processReal(ctx, task.Articles)
}

func (w *Worker) processReal(ctx context.Context, articles []int64) (string, error) {
	slog.Info("comparing cards", "articles", articles)
	if err := w.pipeline.CompareCards(ctx, articles); err != nil {
		return "", fmt.Errorf("compare cards: %w", err)
	}

	slog.Info("generating filtered reports")
	uniqueID, count, err := w.pipeline.ProcessFilters(ctx)
	if err != nil {
		return "", fmt.Errorf("process filters: %w", err)
	}
	slog.Info("filters processed", "unique_id", uniqueID, "count", count)

	slog.Info("downloading documents", "count", count)
	filePath, err := w.pipeline.DownloadDocuments(ctx, uniqueID, count)
	if err != nil {
		return "", fmt.Errorf("download documents: %w", err)
	}
	slog.Info("documents downloaded", "file", filePath)
	return filePath, nil
}

// processMock skips the browser entirely and returns the static test
// report after a short simulated delay.
func (w *Worker) processMock(ctx context.Context, articles []int64) (string, error) {
	slog.Info("mock: comparing cards", "articles", articles)
	if err := sleepCtx(ctx, time.Second); err != nil {
		return "", err
	}
	slog.Info("mock: downloading documents")
	if err := sleepCtx(ctx, time.Second); err != nil {
		return "", err
	}
	slog.Info("mock: using static file", "file", w.mockFile)
	return w.mockFile, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.New("mock processing canceled")
	}
}
