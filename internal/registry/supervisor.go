package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SupervisorPolicy bounds how often a supervised cluster may be restarted.
// Restarts are counted inside a sliding window; exceeding MaxRestarts within
// RestartWindow marks the task permanently failed and leaves it down.
type SupervisorPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	MaxRestarts    int
	RestartWindow  time.Duration
}

func defaultSupervisorPolicy() SupervisorPolicy {
	return SupervisorPolicy{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		BackoffFactor:  2.0,
		MaxRestarts:    5,
		RestartWindow:  30 * time.Second,
	}
}

func normalizeSupervisorPolicy(policy SupervisorPolicy) SupervisorPolicy {
	def := defaultSupervisorPolicy()
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = def.BackoffFactor
	}
	if policy.MaxRestarts <= 0 {
		policy.MaxRestarts = def.MaxRestarts
	}
	if policy.RestartWindow <= 0 {
		policy.RestartWindow = def.RestartWindow
	}
	return policy
}

type SupervisorChildStatus struct {
	Name            string `json:"name"`
	RestartCount    int    `json:"restart_count"`
	LastError       string `json:"last_error,omitempty"`
	PermanentFailed bool   `json:"permanent_failed"`
}

type SupervisorHooks struct {
	OnRestart          func(name string, err error, restartCount int)
	OnPermanentFailure func(name string, err error, restartCount int)
}

// Supervisor runs each cluster lifecycle in its own goroutine and restarts
// it on failure, one_for_one: a cluster exceeding its restart budget stays
// down without touching any sibling.
type Supervisor struct {
	policy SupervisorPolicy
	hooks  SupervisorHooks

	mu       sync.Mutex
	tasks    map[string]*supervisedTask
	finished map[string]SupervisorChildStatus
}

type supervisedTask struct {
	cancel context.CancelFunc
	done   chan struct{}

	restartCount    int
	windowStart     time.Time
	lastErr         error
	permanentFailed bool
}

func NewSupervisor(policy SupervisorPolicy, hooks SupervisorHooks) *Supervisor {
	return &Supervisor{
		policy:   normalizeSupervisorPolicy(policy),
		hooks:    hooks,
		tasks:    make(map[string]*supervisedTask),
		finished: make(map[string]SupervisorChildStatus),
	}
}

func (s *Supervisor) Start(name string, run func(ctx context.Context) error) error {
	if name == "" {
		return errors.New("task name is required")
	}
	if run == nil {
		return errors.New("task runner is required")
	}

	s.mu.Lock()
	if _, exists := s.tasks[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task already running: %s", name)
	}
	delete(s.finished, name)
	ctx, cancel := context.WithCancel(context.Background())
	task := &supervisedTask{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.tasks[name] = task
	s.mu.Unlock()

	go s.runTask(ctx, name, task, run)
	return nil
}

func (s *Supervisor) runTask(ctx context.Context, name string, task *supervisedTask, run func(ctx context.Context) error) {
	defer func() {
		s.mu.Lock()
		if current, ok := s.tasks[name]; ok && current == task {
			if task.permanentFailed || task.restartCount > 0 || task.lastErr != nil {
				s.finished[name] = SupervisorChildStatus{
					Name:            name,
					RestartCount:    task.restartCount,
					LastError:       errString(task.lastErr),
					PermanentFailed: task.permanentFailed,
				}
			}
			delete(s.tasks, name)
		}
		s.mu.Unlock()
		close(task.done)
	}()

	backoff := s.policy.InitialBackoff

	for {
		err := run(ctx)
		if ctx.Err() != nil || err == nil {
			return
		}

		now := time.Now()
		s.mu.Lock()
		task.lastErr = err
		if task.windowStart.IsZero() || now.Sub(task.windowStart) > s.policy.RestartWindow {
			task.windowStart = now
			task.restartCount = 0
		}
		task.restartCount++
		restarts := task.restartCount
		if restarts > s.policy.MaxRestarts {
			task.permanentFailed = true
			s.mu.Unlock()
			if s.hooks.OnPermanentFailure != nil {
				s.hooks.OnPermanentFailure(name, err, restarts-1)
			}
			return
		}
		s.mu.Unlock()

		if s.hooks.OnRestart != nil {
			s.hooks.OnRestart(name, err, restarts)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		next := time.Duration(float64(backoff) * s.policy.BackoffFactor)
		if next > s.policy.MaxBackoff {
			next = s.policy.MaxBackoff
		}
		backoff = next
	}
}

func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	task, ok := s.tasks[name]
	delete(s.finished, name)
	s.mu.Unlock()
	if !ok {
		return
	}
	task.cancel()
	<-task.done
}

func (s *Supervisor) StopAll() {
	s.mu.Lock()
	tasks := make([]*supervisedTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.finished = make(map[string]SupervisorChildStatus)
	s.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
	for _, task := range tasks {
		<-task.done
	}
}

func (s *Supervisor) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

func (s *Supervisor) Status(name string) (SupervisorChildStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[name]; ok {
		return SupervisorChildStatus{
			Name:            name,
			RestartCount:    task.restartCount,
			LastError:       errString(task.lastErr),
			PermanentFailed: task.permanentFailed,
		}, true
	}
	status, ok := s.finished[name]
	return status, ok
}

func (s *Supervisor) Children() []SupervisorChildStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks)+len(s.finished))
	for name := range s.tasks {
		names = append(names, name)
	}
	for name := range s.finished {
		if _, active := s.tasks[name]; active {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]SupervisorChildStatus, 0, len(names))
	for _, name := range names {
		if task, ok := s.tasks[name]; ok {
			out = append(out, SupervisorChildStatus{
				Name:            name,
				RestartCount:    task.restartCount,
				LastError:       errString(task.lastErr),
				PermanentFailed: task.permanentFailed,
			})
			continue
		}
		out = append(out, s.finished[name])
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
