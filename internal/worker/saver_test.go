package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSaver struct {
	calls atomic.Int32
	err   error
}

func (c *countingSaver) SaveCurrentState() error {
	c.calls.Add(1)
	return c.err
}

func TestRunStateSaver_SavesOnInterval(t *testing.T) {
	saver := &countingSaver{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		RunStateSaver(ctx, saver, 20*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for saver.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 2 saves, got %d", saver.calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("saver did not stop after cancel")
	}
}

func TestRunStateSaver_ContinuesAfterFailure(t *testing.T) {
	saver := &countingSaver{err: errors.New("browser gone")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go RunStateSaver(ctx, saver, 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for saver.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected saves to continue after errors, got %d", saver.calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
