package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/Reassign/internal/agents"
	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

type AgentsHandler struct {
	dispatcher *agents.Dispatcher
}

func NewAgentsHandler(d *agents.Dispatcher) *AgentsHandler {
	return &AgentsHandler{dispatcher: d}
}

type AgentInfo struct {
	agents.Agent
	Health agents.Health `json:"health"`
}

// List returns every registered agent with a fresh health probe.
func (h *AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	health := h.dispatcher.HealthCheck(r.Context())
	byName := make(map[string]agents.Health, len(health))
	for _, hc := range health {
		byName[hc.Agent] = hc
	}

	list := h.dispatcher.Registry().List()
	out := make([]AgentInfo, 0, len(list))
	for _, a := range list {
		out = append(out, AgentInfo{Agent: a, Health: byName[a.Name]})
	}
	writeJSON(w, http.StatusOK, out)
}

type SubmitTaskRequest struct {
	TaskType string                 `json:"task_type"`
	Input    map[string]interface{} `json:"input,omitempty"`
}

// Submit runs a task synchronously. A task the agent failed is still returned,
// with 502 so callers can tell it apart from a completed one.
func (h *AgentsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TaskType == "" {
		writeError(w, http.StatusBadRequest, "task_type required")
		return
	}

	task, err := h.dispatcher.Submit(r.Context(), chi.URLParam(r, "name"), req.TaskType, req.Input)
	switch {
	case errors.Is(err, agents.ErrUnknownAgent):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, agents.ErrUnsupportedTask):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if task.Status == store.AgentTaskFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, task)
}

func (h *AgentsHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	task, err := h.dispatcher.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}
