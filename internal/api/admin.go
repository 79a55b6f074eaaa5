package api

import (
	"net/http"

	"github.com/MikeSquared-Agency/Reassign/internal/reassign"
	"github.com/MikeSquared-Agency/Reassign/internal/scheduler"
)

type AdminHandler struct {
	service   *reassign.Service
	scheduler *scheduler.Scheduler
}

func NewAdminHandler(svc *reassign.Service, sched *scheduler.Scheduler) *AdminHandler {
	return &AdminHandler{service: svc, scheduler: sched}
}

// Sweep runs one stale-lead pass immediately.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.SweepOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// DispatchActions publishes due actions and redelivers stale ones without
// waiting for the scheduler ticks.
func (h *AdminHandler) DispatchActions(w http.ResponseWriter, r *http.Request) {
	requeued, failed, err := h.scheduler.Requeue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dispatched, err := h.scheduler.DispatchDue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"dispatched": dispatched,
		"requeued":   requeued,
		"failed":     failed,
	})
}
