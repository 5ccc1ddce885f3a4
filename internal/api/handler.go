package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/astro/internal/orchestrator"
	"github.com/nidhogg/astro/internal/store"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	orch    *orchestrator.Orchestrator
	journal *store.Store
	logger  *zap.Logger
}

// NewHandler creates a new API handler. journal may be nil when history
// persistence is disabled.
func NewHandler(orch *orchestrator.Orchestrator, journal *store.Store, logger *zap.Logger) *Handler {
	return &Handler{orch: orch, journal: journal, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/agents", h.listAgents)
		r.Get("/stats", h.getStats)

		r.Post("/goals", h.submitGoal)
		r.Post("/goals/parallel", h.executeParallel)
		r.Post("/workflows", h.executeWorkflow)

		r.Get("/tasks", h.listTasks)
		r.Get("/tasks/{id}", h.getTask)
		r.Post("/tasks/{id}/cancel", h.cancelTask)
		r.Get("/history", h.listHistory)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type agentInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AgentType string `json:"agent_type"`
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	execs := h.orch.Executors()
	out := make([]agentInfo, 0, len(execs))
	for _, e := range execs {
		out = append(out, agentInfo{ID: e.ID(), Name: e.Name(), AgentType: e.AgentType()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Stats())
}

type goalRequest struct {
	Goal      string `json:"goal"`
	AgentType string `json:"agent_type"`
	// Wait blocks the request until the task finishes.
	Wait bool `json:"wait"`
}

func (h *Handler) submitGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Goal == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal is required"})
		return
	}

	task := h.orch.SubmitGoal(req.Goal, req.AgentType)
	if !req.Wait {
		snap, _ := h.orch.GetTaskStatus(task.ID)
		writeJSON(w, http.StatusAccepted, snap)
		return
	}

	if _, err := h.orch.Wait(r.Context(), task.ID); err != nil {
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
		return
	}
	snap, _ := h.orch.GetTaskStatus(task.ID)
	writeJSON(w, http.StatusOK, snap)
}

type parallelRequest struct {
	Goals       []string `json:"goals"`
	AgentType   string   `json:"agent_type"`
	MaxParallel int      `json:"max_parallel"`
}

func (h *Handler) executeParallel(w http.ResponseWriter, r *http.Request) {
	var req parallelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(req.Goals) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goals are required"})
		return
	}

	results, err := h.orch.ExecuteParallel(r.Context(), req.Goals, req.AgentType, req.MaxParallel)
	if err != nil {
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type workflowRequest struct {
	Tasks []orchestrator.TaskConfig `json:"tasks"`
}

func (h *Handler) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	tasks, err := h.orch.ExecuteWorkflow(req.Tasks)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	out := make([]*orchestrator.TaskSnapshot, 0, len(tasks))
	for id := range tasks {
		if snap, ok := h.orch.GetTaskStatus(id); ok {
			out = append(out, snap)
		}
	}
	writeJSON(w, http.StatusAccepted, out)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	status := orchestrator.TaskStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, h.orch.ListTasks(status))
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := h.orch.GetTaskStatus(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.orch.Cancel(id) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "task not found or already finished"})
		return
	}
	snap, _ := h.orch.GetTaskStatus(id)
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history not enabled"})
		return
	}
	records, err := h.journal.ListTasks(r.URL.Query().Get("status"))
	if err != nil {
		h.logger.Error("list history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		records = []store.TaskRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
