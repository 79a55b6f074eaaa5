package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Reassign/internal/scheduler"
	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

type ActionsHandler struct {
	store     store.Store
	scheduler *scheduler.Scheduler
}

func NewActionsHandler(s store.Store, sched *scheduler.Scheduler) *ActionsHandler {
	return &ActionsHandler{store: s, scheduler: sched}
}

type CreateActionRequest struct {
	CompanyID    string                 `json:"company_id"`
	LeadID       string                 `json:"lead_id,omitempty"`
	Kind         string                 `json:"kind"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	ScheduledFor *time.Time             `json:"scheduled_for,omitempty"`
}

func (h *ActionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company_id")
		return
	}

	action := &store.ScheduledAction{
		CompanyID: companyID,
		Kind:      store.ActionKind(req.Kind),
		Payload:   req.Payload,
	}
	if req.LeadID != "" {
		lid, err := uuid.Parse(req.LeadID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lead_id")
			return
		}
		action.LeadID = &lid
	}
	if req.ScheduledFor != nil {
		action.ScheduledFor = req.ScheduledFor.UTC()
	}

	if err := h.scheduler.Schedule(r.Context(), action); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, action)
}

func (h *ActionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	action, err := h.store.GetScheduledAction(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if action == nil {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (h *ActionsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	action, err := h.scheduler.Complete(r.Context(), id)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (h *ActionsHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Error == "" {
		body.Error = "failed by caller"
	}

	action, err := h.scheduler.Fail(r.Context(), id, body.Error)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrActionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
