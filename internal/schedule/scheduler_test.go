package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"stride/internal/logging"
)

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := New(logging.NewNop())
	if err := s.Register("refresh", time.Minute, func(context.Context) {}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("refresh", time.Minute, func(context.Context) {}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestRegisterAfterStartFails(t *testing.T) {
	s := New(logging.NewNop())
	s.Start(context.Background())
	defer s.Stop()
	if err := s.Register("late", time.Minute, func(context.Context) {}); err == nil {
		t.Fatal("registration after start should fail")
	}
}

func TestZeroIntervalDisablesTask(t *testing.T) {
	s := New(logging.NewNop())
	if err := s.Register("disabled", 0, func(context.Context) {}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()
	if _, err := s.Trigger("disabled"); err == nil {
		t.Fatal("disabled task should not be triggerable")
	}
}

func TestTriggerRunsOnce(t *testing.T) {
	s := New(logging.NewNop())
	var runs atomic.Int32
	release := make(chan struct{})
	err := s.Register("sync", time.Hour, func(context.Context) {
		runs.Add(1)
		<-release
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()

	started, err := s.Trigger("sync")
	if err != nil || !started {
		t.Fatalf("Trigger: started=%v err=%v", started, err)
	}
	waitFor(t, func() bool { return s.Running("sync") })

	// Second trigger while the first run holds the slot is a skip.
	started, err = s.Trigger("sync")
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if started {
		t.Fatal("overlapping trigger should be skipped")
	}

	close(release)
	waitFor(t, func() bool { return !s.Running("sync") })
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
}

func TestScheduledTaskFires(t *testing.T) {
	s := New(logging.NewNop())
	var runs atomic.Int32
	if err := s.Register("tick", 50*time.Millisecond, func(context.Context) {
		runs.Add(1)
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool { return runs.Load() >= 1 })
}

func TestStopCancelsTaskContext(t *testing.T) {
	s := New(logging.NewNop())
	cancelled := make(chan struct{})
	if err := s.Register("long", time.Hour, func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	s.Start(context.Background())

	if started, err := s.Trigger("long"); err != nil || !started {
		t.Fatalf("Trigger: started=%v err=%v", started, err)
	}
	waitFor(t, func() bool { return s.Running("long") })

	s.Stop()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("task context not cancelled on Stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
