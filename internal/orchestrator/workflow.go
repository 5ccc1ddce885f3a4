package orchestrator

import (
	"fmt"
	"time"

	"github.com/gammazero/toposort"
)

// TaskConfig declares one node of a workflow graph. IDs are caller-chosen
// so dependencies can reference them.
type TaskConfig struct {
	ID           string            `json:"id"`
	Description  string            `json:"description"`
	AgentType    string            `json:"agent_type"`
	Inputs       map[string]string `json:"inputs,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	MaxDuration  time.Duration     `json:"max_duration,omitempty"`
}

// validateWorkflow checks the graph for duplicate ids, unknown dependency
// references and cycles, and returns a topological order of the ids.
func validateWorkflow(configs []TaskConfig) ([]string, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("workflow has no tasks")
	}

	ids := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("workflow task with empty id")
		}
		if ids[cfg.ID] {
			return nil, fmt.Errorf("duplicate task id %q", cfg.ID)
		}
		ids[cfg.ID] = true
	}
	for _, cfg := range configs {
		for _, dep := range cfg.Dependencies {
			if !ids[dep] {
				return nil, fmt.Errorf("task %q depends on unknown task %q", cfg.ID, dep)
			}
		}
	}

	var edges []toposort.Edge
	for _, cfg := range configs {
		if len(cfg.Dependencies) == 0 {
			edges = append(edges, toposort.Edge{nil, cfg.ID})
			continue
		}
		for _, dep := range cfg.Dependencies {
			edges = append(edges, toposort.Edge{dep, cfg.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("workflow contains cycle: %w", err)
	}

	order := make([]string, 0, len(configs))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// buildWorkflowTasks materializes configs into pending tasks.
func buildWorkflowTasks(configs []TaskConfig) []*Task {
	out := make([]*Task, 0, len(configs))
	for _, cfg := range configs {
		t := NewTask(cfg.Description, cfg.AgentType)
		t.ID = cfg.ID
		t.Inputs = cfg.Inputs
		t.Dependencies = append([]string(nil), cfg.Dependencies...)
		if cfg.MaxDuration > 0 {
			t.MaxDuration = cfg.MaxDuration
		}
		out = append(out, t)
	}
	return out
}
