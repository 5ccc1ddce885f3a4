package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultPoolSize caps the number of tasks executing at once.
const DefaultPoolSize = 10

// DefaultParallelLimit bounds ExecuteParallel when the caller gives none.
const DefaultParallelLimit = 5

// Orchestrator schedules tasks across registered executors. Tasks become
// runnable when every dependency completed; a failed, cancelled or missing-
// executor dependency fails the task without running it.
type Orchestrator struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	executors []Executor
	byType    map[string][]Executor
	callbacks []func(*TaskSnapshot)

	pool          chan struct{}
	taskTimeout   time.Duration
	parallelLimit int
	logger        *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTaskTimeout overrides the default per-task execution budget.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.taskTimeout = d
		}
	}
}

// WithParallelLimit overrides the default ExecuteParallel bound.
func WithParallelLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallelLimit = n
		}
	}
}

// New creates an orchestrator with the given concurrency cap.
func New(poolSize int, logger *zap.Logger, opts ...Option) *Orchestrator {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	o := &Orchestrator{
		tasks:         make(map[string]*Task),
		byType:        make(map[string][]Executor),
		pool:          make(chan struct{}, poolSize),
		taskTimeout:   DefaultTaskTimeout,
		parallelLimit: DefaultParallelLimit,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterExecutor adds an executor. When several executors declare the
// same agent type, the first registered one wins.
func (o *Orchestrator) RegisterExecutor(e Executor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.executors = append(o.executors, e)
	o.byType[e.AgentType()] = append(o.byType[e.AgentType()], e)
	o.logger.Info("executor registered",
		zap.String("executor_id", e.ID()),
		zap.String("agent_type", e.AgentType()))
}

// Executors lists registered executors in registration order.
func (o *Orchestrator) Executors() []Executor {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Executor(nil), o.executors...)
}

// OnTaskDone registers a callback fired on every terminal transition.
// Callbacks run outside the scheduler lock and receive a detached snapshot.
func (o *Orchestrator) OnTaskDone(fn func(*TaskSnapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callbacks = append(o.callbacks, fn)
}

// SubmitGoal creates and submits a dependency-free task for the goal.
func (o *Orchestrator) SubmitGoal(description, agentType string) *Task {
	t := NewTask(description, agentType)
	// A fresh task cannot collide or carry bad dependencies.
	_ = o.Submit(t)
	return t
}

// Submit registers a task and starts it as soon as its dependencies allow.
// The task id must be unique; dependencies on ids the orchestrator has
// never seen count as met.
func (o *Orchestrator) Submit(t *Task) error {
	o.mu.Lock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if _, exists := o.tasks[t.ID]; exists {
		o.mu.Unlock()
		return fmt.Errorf("task %q already submitted", t.ID)
	}
	if t.done == nil {
		t.done = make(chan struct{})
	}
	if t.MaxDuration <= 0 {
		t.MaxDuration = o.taskTimeout
	}
	t.Status = TaskPending
	o.tasks[t.ID] = t
	o.mu.Unlock()

	o.logger.Info("task submitted",
		zap.String("task_id", t.ID),
		zap.String("agent_type", t.AgentType),
		zap.Int("dependencies", len(t.Dependencies)))

	o.scanReady()
	return nil
}

// ExecuteWorkflow validates a task graph, submits every node and returns
// the created tasks keyed by id. Execution proceeds in the background.
func (o *Orchestrator) ExecuteWorkflow(configs []TaskConfig) (map[string]*Task, error) {
	if _, err := validateWorkflow(configs); err != nil {
		return nil, err
	}
	tasks := buildWorkflowTasks(configs)

	o.mu.Lock()
	for _, t := range tasks {
		if _, exists := o.tasks[t.ID]; exists {
			o.mu.Unlock()
			return nil, fmt.Errorf("task %q already submitted", t.ID)
		}
	}
	out := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		if t.MaxDuration <= 0 {
			t.MaxDuration = o.taskTimeout
		}
		o.tasks[t.ID] = t
		out[t.ID] = t
	}
	o.mu.Unlock()

	o.logger.Info("workflow submitted", zap.Int("tasks", len(tasks)))
	o.scanReady()
	return out, nil
}

// ExecuteParallel runs one task per goal with at most maxParallel in
// flight, returning results in goal order. It blocks until every goal
// finished or ctx is done.
func (o *Orchestrator) ExecuteParallel(ctx context.Context, goals []string, agentType string, maxParallel int) ([]*TaskResult, error) {
	if maxParallel <= 0 {
		maxParallel = o.parallelLimit
	}
	results := make([]*TaskResult, len(goals))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, goal := range goals {
		i, goal := i, goal
		g.Go(func() error {
			t := o.SubmitGoal(goal, agentType)
			r, err := o.Wait(ctx, t.ID)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Cancel marks a non-terminal task cancelled. In-flight executions are not
// interrupted, but their late result is discarded. Returns false when the
// task is unknown or already terminal.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	t, ok := o.tasks[id]
	if !ok || t.Terminal() {
		o.mu.Unlock()
		return false
	}
	now := time.Now()
	t.Status = TaskCancelled
	t.CompletedAt = &now
	close(t.done)
	snap := t.snapshot()
	o.mu.Unlock()

	o.logger.Info("task cancelled", zap.String("task_id", id))
	o.notify(snap)
	o.scanReady()
	return true
}

// GetTaskStatus returns a snapshot of the task, or false if unknown.
func (o *Orchestrator) GetTaskStatus(id string) (*TaskSnapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	if !ok {
		return nil, false
	}
	return t.snapshot(), true
}

// ListTasks returns snapshots of all tasks, optionally filtered by status.
func (o *Orchestrator) ListTasks(status TaskStatus) []*TaskSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*TaskSnapshot, 0, len(o.tasks))
	for _, t := range o.tasks {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t.snapshot())
	}
	return out
}

// Wait blocks until the task reaches a terminal status or ctx is done.
// Cancelled tasks yield a failed result rather than an error.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*TaskResult, error) {
	o.mu.Lock()
	t, ok := o.tasks[id]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown task %q", id)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if t.Result != nil {
		r := *t.Result
		return &r, nil
	}
	return ResultError("task cancelled", nil), nil
}

// ExecutorStats aggregates terminal task counts per executor.
type ExecutorStats struct {
	ExecutorID string `json:"executor_id"`
	Name       string `json:"name"`
	AgentType  string `json:"agent_type"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
}

// Stats reports per-executor completion counts, attributed through result
// metadata.
func (o *Orchestrator) Stats() []ExecutorStats {
	o.mu.Lock()
	defer o.mu.Unlock()

	byID := make(map[string]*ExecutorStats, len(o.executors))
	out := make([]ExecutorStats, len(o.executors))
	for i, e := range o.executors {
		out[i] = ExecutorStats{ExecutorID: e.ID(), Name: e.Name(), AgentType: e.AgentType()}
		byID[e.ID()] = &out[i]
	}
	for _, t := range o.tasks {
		if t.Result == nil {
			continue
		}
		s, ok := byID[t.Result.Metadata["executor_id"]]
		if !ok {
			continue
		}
		if t.Status == TaskCompleted {
			s.Completed++
		} else if t.Status == TaskFailed {
			s.Failed++
		}
	}
	return out
}

// scanReady claims every runnable pending task and fails every pending
// task with a terminal-failed dependency. The scan repeats until no
// status changes, so failure propagates through dependency chains in one
// pass.
func (o *Orchestrator) scanReady() {
	o.mu.Lock()
	var claimed []*Task
	var failed []*TaskSnapshot
	for changed := true; changed; {
		changed = false
		for _, t := range o.tasks {
			if t.Status != TaskPending {
				continue
			}
			ready := true
			failedDep := ""
			for _, dep := range t.Dependencies {
				d, ok := o.tasks[dep]
				if !ok {
					continue // unknown ids count as met
				}
				switch d.Status {
				case TaskCompleted:
				case TaskFailed, TaskCancelled:
					failedDep = dep
				default:
					ready = false
				}
			}
			now := time.Now()
			if failedDep != "" {
				t.Status = TaskFailed
				t.CompletedAt = &now
				t.Result = ResultError("failed dependency: "+failedDep, nil)
				close(t.done)
				failed = append(failed, t.snapshot())
				changed = true
				continue
			}
			if ready {
				t.Status = TaskRunning
				t.StartedAt = &now
				claimed = append(claimed, t)
				changed = true
			}
		}
	}
	o.mu.Unlock()

	for _, snap := range failed {
		o.logger.Warn("task failed before start",
			zap.String("task_id", snap.ID),
			zap.String("error", snap.Result.Error))
		o.notify(snap)
	}
	for _, t := range claimed {
		go o.dispatch(t)
	}
}

// dispatch runs one claimed task through its matched executor. The pool
// channel bounds how many dispatches execute concurrently.
func (o *Orchestrator) dispatch(t *Task) {
	o.pool <- struct{}{}
	defer func() { <-o.pool }()

	o.mu.Lock()
	if t.Status != TaskRunning { // cancelled while queued for a slot
		o.mu.Unlock()
		return
	}
	exec := o.matchExecutor(t.AgentType)
	timeout := t.MaxDuration
	o.mu.Unlock()

	if exec == nil {
		o.applyResult(t, ResultError("no executor registered for agent type: "+t.AgentType, nil))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	result := exec.Execute(ctx, t)
	if result == nil {
		result = ResultError("executor returned no result", nil)
	}
	if ctx.Err() == context.DeadlineExceeded {
		result = ResultError(fmt.Sprintf("task timed out after %s", timeout), result.Metadata)
	}
	result.Duration = time.Since(start)

	o.applyResult(t, result)
}

// matchExecutor picks the first registered executor for the agent type.
// Caller holds the lock.
func (o *Orchestrator) matchExecutor(agentType string) Executor {
	if list := o.byType[agentType]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// applyResult records a terminal result unless the task was cancelled in
// the meantime, then rescans for newly runnable dependents.
func (o *Orchestrator) applyResult(t *Task, r *TaskResult) {
	o.mu.Lock()
	if t.Status != TaskRunning {
		o.mu.Unlock()
		o.logger.Debug("discarding result for cancelled task", zap.String("task_id", t.ID))
		return
	}
	now := time.Now()
	t.CompletedAt = &now
	t.Result = r
	if r.Success {
		t.Status = TaskCompleted
	} else {
		t.Status = TaskFailed
	}
	close(t.done)
	snap := t.snapshot()
	o.mu.Unlock()

	if r.Success {
		o.logger.Info("task completed",
			zap.String("task_id", t.ID),
			zap.Duration("duration", r.Duration))
	} else {
		o.logger.Warn("task failed",
			zap.String("task_id", t.ID),
			zap.String("error", r.Error))
	}

	o.notify(snap)
	o.scanReady()
}

func (o *Orchestrator) notify(snap *TaskSnapshot) {
	o.mu.Lock()
	cbs := append(([]func(*TaskSnapshot))(nil), o.callbacks...)
	o.mu.Unlock()
	for _, fn := range cbs {
		fn(snap)
	}
}
