package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAddTask_NextTask_FIFO(t *testing.T) {
	q := New(10)
	ctx := context.Background()

	first := NewTask(1, 100, []int64{111, 222}, 0, 0)
	second := NewTask(2, 200, []int64{333, 444}, 0, 0)

	if err := q.AddTask(ctx, first); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}
	if err := q.AddTask(ctx, second); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}

	got, err := q.NextTask(ctx)
	if err != nil {
		t.Fatalf("NextTask error: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected first task %s, got %s", first.ID, got.ID)
	}

	got, err = q.NextTask(ctx)
	if err != nil {
		t.Fatalf("NextTask error: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("expected second task %s, got %s", second.ID, got.ID)
	}
}

func TestNewTask_UniqueIDs(t *testing.T) {
	a := NewTask(1, 1, nil, 0, 0)
	b := NewTask(1, 1, nil, 0, 0)
	if a.ID == b.ID {
		t.Fatalf("expected distinct task ids, both are %s", a.ID)
	}
}

func TestPending_CountsQueuedTasks(t *testing.T) {
	q := New(10)
	ctx := context.Background()

	if q.Pending() != 0 {
		t.Fatalf("expected empty queue, pending=%d", q.Pending())
	}

	for i := 0; i < 3; i++ {
		if err := q.AddTask(ctx, NewTask(int64(i), 1, []int64{1, 2}, 0, 0)); err != nil {
			t.Fatalf("AddTask error: %v", err)
		}
	}
	if q.Pending() != 3 {
		t.Fatalf("expected pending=3, got %d", q.Pending())
	}

	if _, err := q.NextTask(ctx); err != nil {
		t.Fatalf("NextTask error: %v", err)
	}
	if q.Pending() != 2 {
		t.Fatalf("expected pending=2, got %d", q.Pending())
	}
}

func TestNextTask_ContextCancelled(t *testing.T) {
	q := New(10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.NextTask(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestResults_IndependentOfTasks(t *testing.T) {
	q := New(10)
	ctx := context.Background()

	task := NewTask(1, 100, []int64{111, 222}, 5, 42)
	if err := q.AddTask(ctx, task); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}

	res := Result{
		TaskID:           task.ID,
		UserID:           task.UserID,
		ChatID:           task.ChatID,
		ReportID:         task.ReportID,
		Success:          true,
		FilePath:         "/tmp/report.zip",
		LoadingMessageID: task.LoadingMessageID,
	}
	if err := q.AddResult(ctx, res); err != nil {
		t.Fatalf("AddResult error: %v", err)
	}

	// The result is available even though the task was never consumed.
	got, err := q.NextResult(ctx)
	if err != nil {
		t.Fatalf("NextResult error: %v", err)
	}
	if got.TaskID != task.ID {
		t.Fatalf("expected result for task %s, got %s", task.ID, got.TaskID)
	}
	if !got.Success || got.FilePath != "/tmp/report.zip" {
		t.Fatalf("result fields lost: %+v", got)
	}
}
