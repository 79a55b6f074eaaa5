package reassign

import (
	"context"
	"errors"
	"time"

	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

// SweepReport summarises one pass over stale leads.
type SweepReport struct {
	Examined   int `json:"examined"`
	Reassigned int `json:"reassigned"`
	Declined   int `json:"declined"`
	Conflicts  int `json:"conflicts"`
	Errors     int `json:"errors"`
}

// Start runs the stale-lead sweep on the configured interval. It is a no-op
// when the interval is zero.
func (s *Service) Start(ctx context.Context) {
	interval := s.cfg.SweepInterval()
	if interval <= 0 {
		s.logger.Info("stale lead sweep disabled")
		return
	}
	s.wg.Add(1)
	go s.sweepLoop(ctx, interval)
}

// Stop ends the sweep loop and waits for in-flight audit mirrors.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.mirrorWG.Wait()
}

func (s *Service) sweepLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("stale lead sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce evaluates every open lead with no contact within the stale window,
// using the stale trigger.
func (s *Service) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	cutoff := time.Now().Add(-s.cfg.StaleAfter())
	leads, err := s.store.ListStaleLeads(ctx, cutoff, s.cfg.Reassignment.SweepBatchSize)
	if err != nil {
		return report, err
	}
	s.metrics.SweepLeads(len(leads))

	for _, lead := range leads {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Examined++
		result, err := s.EvaluateReassignment(ctx, lead.ID, lead.CompanyID, TriggerStale)
		switch {
		case errors.Is(err, store.ErrVersionConflict):
			report.Conflicts++
		case err != nil:
			report.Errors++
			s.logger.Warn("stale lead evaluation failed", "lead_id", lead.ID, "error", err)
		case result == nil:
			report.Declined++
		default:
			report.Reassigned++
		}
	}

	s.logger.Info("stale lead sweep complete", "examined", report.Examined, "reassigned", report.Reassigned,
		"declined", report.Declined, "conflicts", report.Conflicts, "errors", report.Errors)
	return report, nil
}
