package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/astro/internal/provider"
	"github.com/nidhogg/astro/internal/react"
	"github.com/nidhogg/astro/internal/sandbox"
)

type stubCompleter struct {
	reply string
	err   error
	delay time.Duration

	inFlight int32
	maxSeen  int32
}

func (s *stubCompleter) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	cur := atomic.AddInt32(&s.inFlight, 1)
	for {
		max := atomic.LoadInt32(&s.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&s.maxSeen, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&s.inFlight, -1)

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &provider.CompletionResponse{Content: s.reply}, nil
}

func TestSubAgentCompletes(t *testing.T) {
	gw := &stubCompleter{reply: "the capital is Paris"}
	agent := NewSubAgent(SubAgentConfig{Name: "Scout", AgentType: "research"}, gw, nil, zap.NewNop())

	task := NewTask("capital of France?", "research")
	task.Inputs = map[string]string{"country": "France"}
	res := agent.Execute(context.Background(), task)
	if !res.Success {
		t.Fatalf("execute failed: %s", res.Error)
	}
	if res.Output != "the capital is Paris" {
		t.Errorf("output = %q", res.Output)
	}
	if res.Metadata["executor_id"] != "agent-scout" {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestSubAgentGatewayError(t *testing.T) {
	gw := &stubCompleter{err: errors.New("all reasoning backends failed")}
	agent := NewSubAgent(SubAgentConfig{Name: "Scout", AgentType: "research"}, gw, nil, zap.NewNop())

	res := agent.Execute(context.Background(), NewTask("anything", "research"))
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "backends failed") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestSubAgentConcurrencyCap(t *testing.T) {
	gw := &stubCompleter{reply: "ok", delay: 20 * time.Millisecond}
	agent := NewSubAgent(SubAgentConfig{Name: "Solo", AgentType: "general", MaxConcurrent: 1}, gw, nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := agent.Execute(context.Background(), NewTask("busy work", "general")); !res.Success {
				t.Errorf("execute failed: %s", res.Error)
			}
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&gw.maxSeen); max > 1 {
		t.Errorf("observed %d concurrent completions, cap was 1", max)
	}
}

func TestSubAgentWithToolLoop(t *testing.T) {
	gw := &stubCompleter{reply: "THOUGHT: nothing to do.\nANSWER: finished"}
	box, err := sandbox.New(sandbox.Config{WorkDir: t.TempDir()}, zap.NewNop())
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	loop := react.NewLoop(gw, box, zap.NewNop())
	agent := NewSubAgent(SubAgentConfig{Name: "Builder", AgentType: "coder", Tools: true}, gw, loop, zap.NewNop())

	res := agent.Execute(context.Background(), NewTask("do the thing", "coder"))
	if !res.Success {
		t.Fatalf("execute failed: %s", res.Error)
	}
	if res.Output != "finished" {
		t.Errorf("output = %q", res.Output)
	}
	if res.Metadata["steps"] != "1" {
		t.Errorf("steps metadata = %q", res.Metadata["steps"])
	}
}
