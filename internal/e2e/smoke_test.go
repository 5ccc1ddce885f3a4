//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("ASTRO_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

type goalRequest struct {
	Goal      string `json:"goal"`
	AgentType string `json:"agent_type,omitempty"`
	Wait      bool   `json:"wait"`
}

type taskResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result *struct {
		Success bool   `json:"success"`
		Output  string `json:"output"`
		Error   string `json:"error"`
	} `json:"result"`
}

// runGoal POSTs a goal with wait=true and returns the finished task.
func runGoal(t *testing.T, goal string) taskResponse {
	t.Helper()

	body, err := json.Marshal(goalRequest{Goal: goal, Wait: true})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Post(baseURL+"/api/goals", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/goals: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var task taskResponse
	if err := json.Unmarshal(raw, &task); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
	}
	return task
}

func TestListAgents(t *testing.T) {
	resp, err := http.Get(baseURL + "/api/agents")
	if err != nil {
		t.Fatalf("GET /api/agents: %v", err)
	}
	defer resp.Body.Close()

	var agents []map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(agents) == 0 {
		t.Fatal("expected at least one registered agent")
	}
	t.Logf("agents: %v", agents)
}

func TestSimpleGoal(t *testing.T) {
	task := runGoal(t, "Reply with a one-sentence greeting.")
	if task.Status != "completed" {
		t.Fatalf("status = %s", task.Status)
	}
	if task.Result == nil || len(task.Result.Output) <= 10 {
		t.Errorf("expected meaningful output, got: %+v", task.Result)
	}
	t.Logf("output: %.300s", task.Result.Output)
}

func TestGoalWithToolUse(t *testing.T) {
	task := runGoal(t, "Create a file named smoke.txt containing the word ready, then read it back and report its contents.")
	if task.Status != "completed" {
		t.Fatalf("status = %s", task.Status)
	}
	if task.Result == nil || !strings.Contains(strings.ToLower(task.Result.Output), "ready") {
		t.Errorf("expected output to mention file contents, got: %+v", task.Result)
	}
	t.Logf("output: %.300s", task.Result.Output)
}

func TestTaskLookup(t *testing.T) {
	task := runGoal(t, "Say done.")

	resp, err := http.Get(baseURL + "/api/tasks/" + task.ID)
	if err != nil {
		t.Fatalf("GET /api/tasks/%s: %v", task.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	resp, err := http.Get(baseURL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
