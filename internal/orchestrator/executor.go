package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/astro/internal/provider"
	"github.com/nidhogg/astro/internal/react"
)

// Executor performs a single task. Implementations report failure through
// the result, never by panicking out of Execute.
type Executor interface {
	ID() string
	Name() string
	AgentType() string
	Execute(ctx context.Context, task *Task) *TaskResult
}

// Completer is the slice of the reasoning gateway executors need.
type Completer interface {
	Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error)
}

// SubAgentConfig describes one capability-tagged worker.
type SubAgentConfig struct {
	Name         string
	AgentType    string
	SystemPrompt string
	// Tools enables the ReAct loop for this agent; without it the agent
	// answers from a single completion.
	Tools bool
	// MaxConcurrent caps tasks this agent runs at once, on top of the
	// orchestrator's global pool. Zero means DefaultAgentConcurrency.
	MaxConcurrent int
}

// DefaultAgentConcurrency is the per-agent in-flight task cap.
const DefaultAgentConcurrency = 3

// SubAgent is an executor backed by the reasoning gateway. Agents with
// tool access run the full reason-act loop; plain agents do one completion
// over their system prompt.
type SubAgent struct {
	id           string
	name         string
	agentType    string
	systemPrompt string
	gateway      Completer
	loop         *react.Loop
	slots        chan struct{}
	logger       *zap.Logger
}

// NewSubAgent builds an executor. loop may be nil for agents without
// tool access.
func NewSubAgent(cfg SubAgentConfig, gateway Completer, loop *react.Loop, logger *zap.Logger) *SubAgent {
	if !cfg.Tools {
		loop = nil
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultAgentConcurrency
	}
	return &SubAgent{
		id:           "agent-" + strings.ToLower(strings.ReplaceAll(cfg.Name, " ", "-")),
		name:         cfg.Name,
		agentType:    cfg.AgentType,
		systemPrompt: cfg.SystemPrompt,
		gateway:      gateway,
		loop:         loop,
		slots:        make(chan struct{}, cfg.MaxConcurrent),
		logger:       logger.With(zap.String("agent", cfg.Name)),
	}
}

func (a *SubAgent) ID() string        { return a.id }
func (a *SubAgent) Name() string      { return a.name }
func (a *SubAgent) AgentType() string { return a.agentType }

// Execute runs the task to completion or failure. A panic in the
// underlying stack is converted into a failed result.
func (a *SubAgent) Execute(ctx context.Context, task *Task) (result *TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("executor panic", zap.String("task_id", task.ID), zap.Any("panic", r))
			result = ResultError(fmt.Sprintf("executor panic: %v", r), a.metadata())
		}
	}()

	select {
	case a.slots <- struct{}{}:
		defer func() { <-a.slots }()
	case <-ctx.Done():
		return ResultError("task timed out waiting for agent capacity", a.metadata())
	}

	a.logger.Info("executing task",
		zap.String("task_id", task.ID),
		zap.String("agent_type", a.agentType))

	if a.loop != nil {
		res, err := a.loop.Run(ctx, task.Description)
		if err != nil {
			return ResultError(err.Error(), a.metadata())
		}
		meta := a.metadata()
		meta["steps"] = fmt.Sprintf("%d", len(res.Steps))
		return ResultOK(res.Answer, meta)
	}

	resp, err := a.gateway.Complete(ctx, &provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "system", Content: a.prompt()},
			{Role: "user", Content: a.goal(task)},
		},
	})
	if err != nil {
		return ResultError(err.Error(), a.metadata())
	}
	return ResultOK(resp.Content, a.metadata())
}

func (a *SubAgent) prompt() string {
	if a.systemPrompt != "" {
		return a.systemPrompt
	}
	return fmt.Sprintf("You are %s, a focused %s agent. Complete the given task directly and concisely.", a.name, a.agentType)
}

func (a *SubAgent) goal(task *Task) string {
	var b strings.Builder
	b.WriteString(task.Description)
	if len(task.Inputs) > 0 {
		b.WriteString("\n\nInputs:")
		for k, v := range task.Inputs {
			fmt.Fprintf(&b, "\n- %s: %s", k, v)
		}
	}
	return b.String()
}

func (a *SubAgent) metadata() map[string]string {
	return map[string]string{
		"executor_id": a.id,
		"agent_type":  a.agentType,
	}
}
