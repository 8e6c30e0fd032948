package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy(maxRestarts int) SupervisorPolicy {
	return SupervisorPolicy{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
		MaxRestarts:    maxRestarts,
		RestartWindow:  time.Minute,
	}
}

func TestSupervisorRestartsFailingTask(t *testing.T) {
	var restarts atomic.Int32
	s := NewSupervisor(fastPolicy(5), SupervisorHooks{
		OnRestart: func(_ string, _ error, _ int) { restarts.Add(1) },
	})
	defer s.StopAll()

	var attempts atomic.Int32
	err := s.Start("flappy", func(ctx context.Context) error {
		if attempts.Add(1) <= 2 {
			return errors.New("boom")
		}
		<-ctx.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for restarts.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("restarts: got=%d want>=2", restarts.Load())
		}
		time.Sleep(time.Millisecond)
	}
	if !s.Running("flappy") {
		t.Fatal("task not running after recovery")
	}
}

func TestSupervisorPermanentFailureAfterBudget(t *testing.T) {
	failed := make(chan int, 1)
	s := NewSupervisor(fastPolicy(2), SupervisorHooks{
		OnPermanentFailure: func(_ string, _ error, restartCount int) { failed <- restartCount },
	})
	defer s.StopAll()

	if err := s.Start("doomed", func(context.Context) error {
		return errors.New("always fails")
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case count := <-failed:
		if count != 2 {
			t.Fatalf("restart count at failure: got=%d want=2", count)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("permanent failure hook never fired")
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Running("doomed") {
		if time.Now().After(deadline) {
			t.Fatal("failed task still listed as running")
		}
		time.Sleep(time.Millisecond)
	}

	status, ok := s.Status("doomed")
	if !ok {
		t.Fatal("no status recorded for failed task")
	}
	if !status.PermanentFailed {
		t.Fatal("status not marked permanently failed")
	}
	if status.LastError == "" {
		t.Fatal("status carries no error")
	}
}

func TestSupervisorCleanExitLeavesNoStatus(t *testing.T) {
	s := NewSupervisor(fastPolicy(5), SupervisorHooks{})
	defer s.StopAll()

	if err := s.Start("oneshot", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Running("oneshot") {
		if time.Now().After(deadline) {
			t.Fatal("clean task never finished")
		}
		time.Sleep(time.Millisecond)
	}
	if _, ok := s.Status("oneshot"); ok {
		t.Fatal("clean exit left a status record")
	}
}

func TestSupervisorRejectsDuplicateName(t *testing.T) {
	s := NewSupervisor(fastPolicy(5), SupervisorHooks{})
	defer s.StopAll()

	run := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}
	if err := s.Start("dup", run); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := s.Start("dup", run); err == nil {
		t.Fatal("expected duplicate start to fail")
	}
	if err := s.Start("", run); err == nil {
		t.Fatal("expected empty name to fail")
	}
}

func TestSupervisorStopCancelsTask(t *testing.T) {
	s := NewSupervisor(fastPolicy(5), SupervisorHooks{})

	cancelled := make(chan struct{})
	if err := s.Start("stoppable", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Stop("stoppable")

	select {
	case <-cancelled:
	default:
		t.Fatal("stop returned before the task observed cancellation")
	}
	if s.Running("stoppable") {
		t.Fatal("task still running after stop")
	}

	// Stopping an unknown task is a no-op.
	s.Stop("nothing")
}

func TestSupervisorChildrenSorted(t *testing.T) {
	s := NewSupervisor(fastPolicy(5), SupervisorHooks{})
	defer s.StopAll()

	run := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}
	for _, name := range []string{"gamma", "alpha", "beta"} {
		if err := s.Start(name, run); err != nil {
			t.Fatalf("start %s: %v", name, err)
		}
	}

	children := s.Children()
	if len(children) != 3 {
		t.Fatalf("children: got=%d want=3", len(children))
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if children[i].Name != want {
			t.Fatalf("children[%d]: got=%s want=%s", i, children[i].Name, want)
		}
	}
}
