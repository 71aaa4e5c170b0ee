package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SupervisorPolicy bounds how supervised tasks restart: exponential backoff
// between attempts, an optional restart budget per task, and the sibling
// strategy applied when a task fails.
type SupervisorPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// MaxRestarts caps restarts per task; zero means unbounded.
	MaxRestarts int
	Strategy    SupervisorStrategy
}

type SupervisorStrategy string

const (
	SupervisorStrategyOneForOne SupervisorStrategy = "one_for_one"
	SupervisorStrategyOneForAll SupervisorStrategy = "one_for_all"
)

// SupervisorRestartPolicy controls when a finished task runs again:
// permanent restarts always, transient only after an error, temporary never.
type SupervisorRestartPolicy string

const (
	SupervisorRestartPermanent SupervisorRestartPolicy = "permanent"
	SupervisorRestartTransient SupervisorRestartPolicy = "transient"
	SupervisorRestartTemporary SupervisorRestartPolicy = "temporary"
)

type SupervisorChildSpec struct {
	Name    string
	Group   string
	Restart SupervisorRestartPolicy
}

type SupervisorChildStatus struct {
	Name            string                  `json:"name"`
	Group           string                  `json:"group,omitempty"`
	RestartPolicy   SupervisorRestartPolicy `json:"restart_policy"`
	RestartCount    int                     `json:"restart_count"`
	LastError       string                  `json:"last_error,omitempty"`
	PermanentFailed bool                    `json:"permanent_failed"`
}

// SupervisorHooks observe restart activity. Hooks run outside the supervisor
// lock and must not block for long.
type SupervisorHooks struct {
	OnTaskRestart          func(name string, err error, restartCount int)
	OnTaskPermanentFailure func(name string, err error, restartCount int)
}

func defaultPolicy() SupervisorPolicy {
	return SupervisorPolicy{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2.0,
		MaxRestarts:    0,
		Strategy:       SupervisorStrategyOneForOne,
	}
}

func normalizePolicy(policy SupervisorPolicy) SupervisorPolicy {
	def := defaultPolicy()
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
	switch policy.Strategy {
	case SupervisorStrategyOneForOne, SupervisorStrategyOneForAll:
	default:
		policy.Strategy = def.Strategy
	}
	return policy
}

// Supervisor keeps named background tasks running according to their restart
// policies. A task runs until its runner returns and its policy declines a
// restart, its restart budget is exhausted, or Stop cancels it.
type Supervisor struct {
	policy SupervisorPolicy
	hooks  SupervisorHooks

	mu       sync.Mutex
	tasks    map[string]*supervisedTask
	finished map[string]SupervisorChildStatus
}

type supervisedTask struct {
	spec   SupervisorChildSpec
	run    func(ctx context.Context) error
	cancel context.CancelFunc
	done   chan struct{}

	restartCount    int
	lastErr         error
	permanentFailed bool
}

func NewSupervisor(policy SupervisorPolicy) *Supervisor {
	return NewSupervisorWithHooks(policy, SupervisorHooks{})
}

func NewSupervisorWithHooks(policy SupervisorPolicy, hooks SupervisorHooks) *Supervisor {
	return &Supervisor{
		policy:   normalizePolicy(policy),
		hooks:    hooks,
		tasks:    make(map[string]*supervisedTask),
		finished: make(map[string]SupervisorChildStatus),
	}
}

// Start runs the task under the permanent restart policy.
func (s *Supervisor) Start(name string, run func(ctx context.Context) error) error {
	return s.StartSpec(SupervisorChildSpec{Name: name, Restart: SupervisorRestartPermanent}, run)
}

// StartSpec runs the task under the given child spec. An unset or unknown
// restart policy defaults to permanent. Starting a name that is already
// running fails.
func (s *Supervisor) StartSpec(spec SupervisorChildSpec, run func(ctx context.Context) error) error {
	if spec.Name == "" {
		return errors.New("task name is required")
	}
	if run == nil {
		return errors.New("task runner is required")
	}
	switch spec.Restart {
	case SupervisorRestartPermanent, SupervisorRestartTransient, SupervisorRestartTemporary:
	default:
		spec.Restart = SupervisorRestartPermanent
	}

	s.mu.Lock()
	if _, exists := s.tasks[spec.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task already running: %s", spec.Name)
	}
	delete(s.finished, spec.Name)
	ctx, cancel := context.WithCancel(context.Background())
	task := &supervisedTask{
		spec:   spec,
		run:    run,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.tasks[spec.Name] = task
	s.mu.Unlock()

	go s.loop(ctx, task)
	return nil
}

func (s *Supervisor) loop(ctx context.Context, task *supervisedTask) {
	name := task.spec.Name
	defer s.retire(name, task)

	backoff := s.policy.InitialBackoff
	for {
		err := task.run(ctx)
		if ctx.Err() != nil {
			return
		}
		if !shouldRestart(task.spec.Restart, err) {
			return
		}

		s.mu.Lock()
		task.lastErr = err
		restarts := task.restartCount
		exhausted := s.policy.MaxRestarts > 0 && restarts >= s.policy.MaxRestarts
		if exhausted {
			task.permanentFailed = true
		} else {
			restarts++
			task.restartCount = restarts
		}
		s.mu.Unlock()

		if exhausted {
			if s.hooks.OnTaskPermanentFailure != nil {
				go s.hooks.OnTaskPermanentFailure(name, err, restarts)
			}
			if s.policy.Strategy == SupervisorStrategyOneForAll {
				s.haltSiblings(name)
			}
			return
		}

		if s.policy.Strategy == SupervisorStrategyOneForAll {
			s.restartSiblings(name, err)
		}
		if s.hooks.OnTaskRestart != nil {
			s.hooks.OnTaskRestart(name, err, restarts)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = nextBackoff(backoff, s.policy)
	}
}

// retire unregisters a task whose loop ended, keeping its status visible
// when there is anything worth reporting.
func (s *Supervisor) retire(name string, task *supervisedTask) {
	s.mu.Lock()
	if current, ok := s.tasks[name]; ok && current == task {
		if task.permanentFailed || task.restartCount > 0 || task.lastErr != nil {
			s.finished[name] = statusOf(task)
		}
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	close(task.done)
}

func nextBackoff(current time.Duration, policy SupervisorPolicy) time.Duration {
	next := time.Duration(float64(current) * policy.BackoffFactor)
	if next > policy.MaxBackoff {
		next = policy.MaxBackoff
	}
	return next
}

func shouldRestart(policy SupervisorRestartPolicy, err error) bool {
	switch policy {
	case SupervisorRestartTransient:
		return err != nil
	case SupervisorRestartTemporary:
		return false
	default:
		return true
	}
}

type siblingSnapshot struct {
	name     string
	previous *supervisedTask
	spec     SupervisorChildSpec
	run      func(ctx context.Context) error
	restarts int
}

// restartSiblings implements the one_for_all strategy: cancel every other
// task, wait for the loops to drain, then relaunch the ones whose restart
// policy accepts the triggering error.
func (s *Supervisor) restartSiblings(trigger string, cause error) {
	s.mu.Lock()
	siblings := make([]siblingSnapshot, 0, len(s.tasks))
	for name, task := range s.tasks {
		if name == trigger {
			continue
		}
		siblings = append(siblings, siblingSnapshot{
			name:     name,
			previous: task,
			spec:     task.spec,
			run:      task.run,
			restarts: task.restartCount,
		})
		task.cancel()
	}
	s.mu.Unlock()

	for _, sibling := range siblings {
		<-sibling.previous.done
	}

	if cause == nil {
		cause = errors.New("one_for_all restart")
	}
	for _, sibling := range siblings {
		if !shouldRestart(sibling.spec.Restart, cause) {
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		next := &supervisedTask{
			spec:         sibling.spec,
			run:          sibling.run,
			cancel:       cancel,
			done:         make(chan struct{}),
			restartCount: sibling.restarts + 1,
			lastErr:      cause,
		}
		s.mu.Lock()
		if current, exists := s.tasks[sibling.name]; exists && current != sibling.previous {
			s.mu.Unlock()
			cancel()
			continue
		}
		s.tasks[sibling.name] = next
		s.mu.Unlock()
		if s.hooks.OnTaskRestart != nil {
			s.hooks.OnTaskRestart(sibling.name, cause, next.restartCount)
		}
		go s.loop(ctx, next)
	}
}

// haltSiblings cancels every task except the trigger and waits for their
// loops to drain. Used when a one_for_all sibling fails permanently.
func (s *Supervisor) haltSiblings(trigger string) {
	s.mu.Lock()
	halted := make([]*supervisedTask, 0, len(s.tasks))
	for name, task := range s.tasks {
		if name == trigger {
			continue
		}
		halted = append(halted, task)
	}
	s.mu.Unlock()

	for _, task := range halted {
		task.cancel()
	}
	for _, task := range halted {
		<-task.done
	}
}

// Stop cancels the named task and waits for its loop to drain. Stopping an
// unknown name is a no-op.
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

// StopAll cancels every task, waits for the loops to drain, and clears the
// retained statuses.
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

// Tasks returns the names of running tasks in sorted order.
func (s *Supervisor) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Children returns the status of every running task plus retained statuses
// of tasks that ended after restarts or failures, in sorted name order.
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
			out = append(out, statusOf(task))
			continue
		}
		if status, ok := s.finished[name]; ok {
			out = append(out, status)
		}
	}
	return out
}

func statusOf(task *supervisedTask) SupervisorChildStatus {
	return SupervisorChildStatus{
		Name:            task.spec.Name,
		Group:           task.spec.Group,
		RestartPolicy:   task.spec.Restart,
		RestartCount:    task.restartCount,
		LastError:       errString(task.lastErr),
		PermanentFailed: task.permanentFailed,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
