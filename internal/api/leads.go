package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Reassign/internal/reassign"
	"github.com/MikeSquared-Agency/Reassign/internal/scoring"
	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

type LeadsHandler struct {
	store   store.Store
	service *reassign.Service
	tiers   scoring.Tiers
}

func NewLeadsHandler(s store.Store, svc *reassign.Service, tiers scoring.Tiers) *LeadsHandler {
	return &LeadsHandler{store: s, service: svc, tiers: tiers}
}

type ReassignRequest struct {
	CompanyID string `json:"company_id"`
	Trigger   string `json:"trigger"`
}

// Reassign responds 200 with the applied result, or 204 when the lead stays put.
func (h *LeadsHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	leadID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company_id")
		return
	}
	if req.Trigger == "" {
		writeError(w, http.StatusBadRequest, "trigger required")
		return
	}

	result, err := h.service.EvaluateReassignment(r.Context(), leadID, companyID, req.Trigger)
	if errors.Is(err, store.ErrVersionConflict) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *LeadsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	leadID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	companyID, err := uuid.Parse(r.URL.Query().Get("company_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company_id")
		return
	}

	preview, err := h.service.Preview(r.Context(), leadID, companyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if preview == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type RepView struct {
	*store.RepMetrics
	Availability scoring.Availability `json:"availability"`
}

// Reps lists the company roster with each rep's availability tier.
func (h *LeadsHandler) Reps(w http.ResponseWriter, r *http.Request) {
	companyID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	rows, err := h.store.ListRepMetrics(r.Context(), companyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]RepView, 0, len(rows))
	for _, m := range rows {
		out = append(out, RepView{RepMetrics: m, Availability: h.tiers.Classify(m.Workload)})
	}
	writeJSON(w, http.StatusOK, out)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
