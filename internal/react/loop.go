package react

import (
	"context"
	"fmt"

	"github.com/nidhogg/astro/internal/provider"
	"github.com/nidhogg/astro/internal/sandbox"
	"go.uber.org/zap"
)

// DefaultMaxSteps bounds backend calls per goal.
const DefaultMaxSteps = 6

const systemPrompt = `You are an autonomous assistant with access to the local environment.
You can execute shell commands, read/write files, and search, to complete the user's goal.

Work step by step:
1. THOUGHT: What do I need to do? What information do I need?
2. ACTION: Execute a tool to gather info or make changes
3. OBSERVATION: Review the result
4. Repeat until you can give a final ANSWER

Available tools:
- run-command(cmd): Execute a shell command
- read-file(path): Read file contents
- write-file("path", "content"): Write to a file
- search(pattern, path): Search for a pattern in files

Respond in this format:
THOUGHT: <your reasoning>
ACTION: <tool>(<args>)

Or when done:
THOUGHT: <final reasoning>
ANSWER: <your response to the user>

Be concise. Execute commands to verify things rather than guessing.`

// Terminal responses for the two explicit non-answer outcomes.
const (
	insufficientResponse = "insufficient information: no action or answer was produced. Please rephrase the goal."
	budgetResponse       = "step budget exceeded before reaching a conclusion. Please try a simpler goal."
)

// Completer is the slice of the reasoning gateway the loop needs.
type Completer interface {
	Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error)
}

// Loop runs one goal through a bounded reason→act→observe state machine.
// Each goal gets its own Run call with a private message history; independent
// goals may run loop instances concurrently.
type Loop struct {
	gateway  Completer
	sandbox  *sandbox.Sandbox
	maxSteps int
	logger   *zap.Logger
}

// LoopOption customizes loop behavior.
type LoopOption func(*Loop)

// WithMaxSteps overrides the step budget.
func WithMaxSteps(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxSteps = n
		}
	}
}

// NewLoop creates a ReAct loop over a gateway and sandbox.
func NewLoop(gateway Completer, sb *sandbox.Sandbox, logger *zap.Logger, opts ...LoopOption) *Loop {
	l := &Loop{
		gateway:  gateway,
		sandbox:  sb,
		maxSteps: DefaultMaxSteps,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result is the outcome of one loop run.
type Result struct {
	Answer string `json:"answer"`
	Steps  []Step `json:"steps"`
}

// Run drives the loop for one goal until an answer, an explicit non-answer
// outcome, or the step budget. The only error return is total gateway
// failure; every other outcome is expressed in the Result.
func (l *Loop) Run(ctx context.Context, goal string) (*Result, error) {
	messages := []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Working directory: %s\n\nGoal: %s", l.sandbox.WorkDir(), goal)},
	}

	result := &Result{}

	for i := 0; i < l.maxSteps; i++ {
		resp, err := l.gateway.Complete(ctx, &provider.CompletionRequest{Messages: messages})
		if err != nil {
			return nil, fmt.Errorf("reasoning step %d: %w", i+1, err)
		}

		step := ParseStep(resp.Content)

		if step.Thought != "" {
			l.logger.Debug("thought", zap.Int("step", i+1), zap.String("text", step.Thought))
		}

		if step.Answer != "" {
			result.Steps = append(result.Steps, step)
			result.Answer = step.Answer
			return result, nil
		}

		if step.Action == nil {
			result.Steps = append(result.Steps, step)
			result.Answer = insufficientResponse
			return result, nil
		}

		observation := l.executeAction(ctx, step.Action)
		step.Observation = observation
		result.Steps = append(result.Steps, step)

		l.logger.Debug("action",
			zap.Int("step", i+1),
			zap.String("tool", step.Action.Tool),
			zap.String("observation", preview(observation, 200)))

		messages = append(messages,
			provider.Message{Role: "assistant", Content: resp.Content},
			provider.Message{Role: "user", Content: "OBSERVATION: " + observation},
		)
	}

	result.Answer = budgetResponse
	return result, nil
}

// executeAction dispatches a validated action through the sandbox. Anything
// off-shape comes back as an observation so the loop can reason about it.
func (l *Loop) executeAction(ctx context.Context, a *Action) string {
	switch a.Tool {
	case ToolRunCommand:
		return l.sandbox.RunCommand(ctx, a.Args["cmd"])
	case ToolReadFile:
		return l.sandbox.ReadFile(a.Args["path"])
	case ToolWriteFile:
		return l.sandbox.WriteFile(a.Args["path"], a.Args["content"])
	case ToolSearch:
		return l.sandbox.Search(ctx, a.Args["pattern"], a.Args["path"])
	}
	return fmt.Sprintf("(unknown tool: %s)", a.Tool)
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
