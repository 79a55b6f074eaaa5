package reassign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Reassign/internal/audit"
	"github.com/MikeSquared-Agency/Reassign/internal/config"
	"github.com/MikeSquared-Agency/Reassign/internal/hermes"
	"github.com/MikeSquared-Agency/Reassign/internal/metrics"
	"github.com/MikeSquared-Agency/Reassign/internal/scoring"
	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

// Known triggers. Any other string is accepted and gets a generic reason.
const (
	TriggerUnresponsive        = "unresponsive"
	TriggerStale               = "stale"
	TriggerIncorrectAssignment = "incorrect_assignment"
)

const (
	ActionLeadReassigned = "lead_reassigned"

	NotificationLeadAssigned   = "lead_assigned"
	NotificationLeadReassigned = "lead_reassigned"
)

// ReassignmentResult is the decision applied to a lead.
type ReassignmentResult struct {
	LeadID              uuid.UUID              `json:"lead_id"`
	CompanyID           uuid.UUID              `json:"company_id"`
	FromRepID           *uuid.UUID             `json:"from_rep_id,omitempty"`
	ToRepID             uuid.UUID              `json:"to_rep_id"`
	ToRepName           string                 `json:"to_rep_name"`
	Trigger             string                 `json:"trigger"`
	Reason              string                 `json:"reason"`
	Confidence          float64                `json:"confidence"`
	ImprovementEstimate string                 `json:"improvement_estimate"`
	Score               float64                `json:"score"`
	Factors             []scoring.FactorResult `json:"factors"`
	Version             int                    `json:"version"`
}

// Service evaluates and applies lead reassignments.
type Service struct {
	store   store.Store
	hermes  hermes.Client
	audit   audit.Sink
	scorer  *scoring.Scorer
	metrics *metrics.Metrics
	cfg     *config.Config
	logger  *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mirrorSlots chan struct{}
	mirrorWG    sync.WaitGroup
}

// Bounds on the Kafka mirror, which runs off the request path.
const (
	maxMirrorsInFlight = 16
	mirrorTimeout      = 30 * time.Second
)

// New builds a Service. h may be nil to run without events and a may be nil
// to skip the Kafka mirror.
func New(s store.Store, h hermes.Client, a audit.Sink, sc *scoring.Scorer, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *Service {
	if a == nil {
		a = audit.NopSink{}
	}
	return &Service{
		store:   s,
		hermes:  h,
		audit:   a,
		scorer:  sc,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),

		mirrorSlots: make(chan struct{}, maxMirrorsInFlight),
	}
}

// FindBestRep ranks the company's sales reps for lead. The winner is nil when
// no rep is eligible.
func (s *Service) FindBestRep(ctx context.Context, companyID uuid.UUID, lead *store.Lead) (*scoring.ScoringResult, []scoring.ScoringResult, error) {
	eval, _, err := s.evaluate(ctx, companyID, lead)
	if err != nil {
		return nil, nil, err
	}
	return eval.Winner, eval.Candidates, nil
}

func (s *Service) evaluate(ctx context.Context, companyID uuid.UUID, lead *store.Lead) (scoring.Evaluation, []scoring.RepPerformance, error) {
	rows, err := s.store.ListRepMetrics(ctx, companyID)
	if err != nil {
		return scoring.Evaluation{}, nil, fmt.Errorf("list rep metrics: %w", err)
	}
	reps := make([]scoring.RepPerformance, 0, len(rows))
	for _, r := range rows {
		reps = append(reps, scoring.FromMetrics(r, s.scorer.Tiers()))
	}
	eval := s.scorer.Evaluate(reps, lead)
	s.metrics.Ranked(len(eval.Candidates), eval.Confidence)
	return eval, reps, nil
}

// loadLead returns nil when the lead is missing, belongs to another company or is closed.
func (s *Service) loadLead(ctx context.Context, leadID, companyID uuid.UUID) (*store.Lead, string, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, "", fmt.Errorf("get lead: %w", err)
	}
	if lead == nil || lead.CompanyID != companyID {
		return nil, metrics.OutcomeNoLead, nil
	}
	if lead.Status.Terminal() {
		return nil, metrics.OutcomeTerminal, nil
	}
	return lead, "", nil
}

// EvaluateReassignment scores the roster for a lead and, if confident enough,
// moves it to the best rep. It returns nil with no error when the lead is not
// reassigned. A concurrent change to the lead yields store.ErrVersionConflict.
func (s *Service) EvaluateReassignment(ctx context.Context, leadID, companyID uuid.UUID, trigger string) (*ReassignmentResult, error) {
	lead, outcome, err := s.loadLead(ctx, leadID, companyID)
	if err != nil {
		s.metrics.Evaluation(metrics.OutcomeError, triggerLabel(trigger))
		return nil, err
	}
	if lead == nil {
		s.metrics.Evaluation(outcome, triggerLabel(trigger))
		s.logger.Info("lead not eligible for reassignment", "lead_id", leadID, "outcome", outcome)
		return nil, nil
	}

	eval, reps, err := s.evaluate(ctx, companyID, lead)
	if err != nil {
		s.metrics.Evaluation(metrics.OutcomeError, triggerLabel(trigger))
		return nil, err
	}

	if eval.Winner == nil {
		s.decline(lead, trigger, metrics.OutcomeNoCandidate, eval)
		return nil, nil
	}
	if lead.AssignedTo != nil && *lead.AssignedTo == eval.Winner.RepID {
		s.decline(lead, trigger, metrics.OutcomeSameRep, eval)
		return nil, nil
	}
	if !eval.Reassign {
		s.decline(lead, trigger, metrics.OutcomeLowConfidence, eval)
		return nil, nil
	}

	result := buildResult(lead, trigger, eval, reps)

	updated, err := s.store.ReassignLead(ctx, lead.ID, lead.Version, result.ToRepID)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			s.metrics.Evaluation(metrics.OutcomeConflict, triggerLabel(trigger))
			s.logger.Warn("lead changed during evaluation", "lead_id", lead.ID, "version", lead.Version)
		} else {
			s.metrics.Evaluation(metrics.OutcomeError, triggerLabel(trigger))
		}
		return nil, fmt.Errorf("reassign lead %s: %w", lead.ID, err)
	}
	result.Version = updated.Version

	entry := &store.BrainLog{
		CompanyID: companyID,
		LeadID:    &lead.ID,
		Action:    ActionLeadReassigned,
		Payload:   toPayload(result),
	}
	if err := s.store.CreateBrainLog(ctx, entry); err != nil {
		s.metrics.Evaluation(metrics.OutcomeError, triggerLabel(trigger))
		return nil, fmt.Errorf("write audit log: %w", err)
	}

	s.notify(ctx, lead, result)

	if s.hermes != nil {
		from := ""
		if result.FromRepID != nil {
			from = result.FromRepID.String()
		}
		_ = s.hermes.Publish(hermes.SubjectLeadReassigned(lead.ID.String()), hermes.LeadReassignedEvent{
			LeadID:      lead.ID.String(),
			CompanyID:   companyID.String(),
			FromRepID:   from,
			ToRepID:     result.ToRepID.String(),
			Trigger:     trigger,
			Reason:      result.Reason,
			Confidence:  result.Confidence,
			Improvement: result.ImprovementEstimate,
			Version:     result.Version,
		})
	}

	s.mirror(ctx, entry)

	s.metrics.Evaluation(metrics.OutcomeReassigned, triggerLabel(trigger))
	s.logger.Info("lead reassigned", "lead_id", lead.ID, "to_rep", result.ToRepID,
		"confidence", result.Confidence, "score", result.Score, "trigger", trigger)
	return result, nil
}

// mirror hands entry to the audit sink in the background. The ai_brain_logs
// row is already committed, so when every slot is busy the entry is dropped
// rather than holding up the caller.
func (s *Service) mirror(ctx context.Context, entry *store.BrainLog) {
	select {
	case s.mirrorSlots <- struct{}{}:
	default:
		s.logger.Warn("audit mirror busy, dropping entry", "brain_log_id", entry.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	s.mirrorWG.Add(1)
	go func() {
		defer s.mirrorWG.Done()
		defer func() { <-s.mirrorSlots }()
		defer cancel()
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("failed to mirror audit log", "brain_log_id", entry.ID, "error", err)
		}
	}()
}

func (s *Service) decline(lead *store.Lead, trigger, cause string, eval scoring.Evaluation) {
	s.metrics.Evaluation(cause, triggerLabel(trigger))
	s.logger.Info("reassignment declined", "lead_id", lead.ID, "cause", cause,
		"confidence", eval.Confidence, "candidates", len(eval.Candidates))
	if s.hermes == nil {
		return
	}
	evt := hermes.LeadReassignDeclinedEvent{
		LeadID:     lead.ID.String(),
		CompanyID:  lead.CompanyID.String(),
		Trigger:    trigger,
		Cause:      cause,
		Confidence: eval.Confidence,
	}
	if eval.Winner != nil {
		evt.BestRepID = eval.Winner.RepID.String()
	}
	_ = s.hermes.Publish(hermes.SubjectLeadReassignDeclined(lead.ID.String()), evt)
}

// notify queues notifications for the new rep and the company's managers.
// Failures are logged and do not undo the reassignment.
func (s *Service) notify(ctx context.Context, lead *store.Lead, result *ReassignmentResult) {
	notes := []*store.Notification{{
		UserID:    result.ToRepID,
		CompanyID: lead.CompanyID,
		Kind:      NotificationLeadAssigned,
		Title:     "New lead assigned: " + lead.CompanyName,
		Body:      result.Reason,
		Payload:   map[string]interface{}{"lead_id": lead.ID.String(), "confidence": result.Confidence},
	}}

	if s.cfg.Reassignment.NotifyManagers {
		managers, err := s.store.ListProfilesByRole(ctx, lead.CompanyID, store.RoleManager)
		if err != nil {
			s.logger.Warn("failed to list managers", "company_id", lead.CompanyID, "error", err)
		}
		for _, m := range managers {
			notes = append(notes, &store.Notification{
				UserID:    m.ID,
				CompanyID: lead.CompanyID,
				Kind:      NotificationLeadReassigned,
				Title:     fmt.Sprintf("Lead reassigned: %s to %s", lead.CompanyName, result.ToRepName),
				Body:      result.Reason,
				Payload:   toPayload(result),
			})
		}
	}

	for _, n := range notes {
		if err := s.store.CreateNotification(ctx, n); err != nil {
			s.logger.Warn("failed to create notification", "user_id", n.UserID, "lead_id", lead.ID, "error", err)
			continue
		}
		if s.hermes != nil {
			_ = s.hermes.Publish(hermes.SubjectNotificationCreated(n.UserID.String()), hermes.NotificationCreatedEvent{
				NotificationID: n.ID.String(),
				UserID:         n.UserID.String(),
				Kind:           n.Kind,
				Title:          n.Title,
			})
		}
	}
}

func buildResult(lead *store.Lead, trigger string, eval scoring.Evaluation, reps []scoring.RepPerformance) *ReassignmentResult {
	w := eval.Winner
	improvement := w.CloseRate
	if lead.AssignedTo != nil {
		for _, r := range reps {
			if r.RepID == *lead.AssignedTo {
				improvement = w.CloseRate - r.CloseRate
				break
			}
		}
	}
	return &ReassignmentResult{
		LeadID:              lead.ID,
		CompanyID:           lead.CompanyID,
		FromRepID:           lead.AssignedTo,
		ToRepID:             w.RepID,
		ToRepName:           w.DisplayName,
		Trigger:             trigger,
		Reason:              reasonFor(trigger, lead, w),
		Confidence:          eval.Confidence,
		ImprovementEstimate: fmt.Sprintf("Expected close rate improvement: %.1f%%", improvement),
		Score:               w.TotalScore,
		Factors:             w.Factors,
	}
}

func reasonFor(trigger string, lead *store.Lead, w *scoring.ScoringResult) string {
	switch trigger {
	case TriggerUnresponsive:
		return fmt.Sprintf("Current rep unresponsive; %s is %s with a %.0f%% close rate", w.DisplayName, w.Availability, w.CloseRate)
	case TriggerStale:
		return fmt.Sprintf("Lead went stale; %s is %s and can re-engage %s", w.DisplayName, w.Availability, lead.CompanyName)
	case TriggerIncorrectAssignment:
		if w.SpecialtyMatch {
			return fmt.Sprintf("%s specialises in %s's industry", w.DisplayName, lead.CompanyName)
		}
		return fmt.Sprintf("%s is a better fit for %s", w.DisplayName, lead.CompanyName)
	default:
		return fmt.Sprintf("%s scored highest (%.1f) for this lead", w.DisplayName, w.TotalScore)
	}
}

// triggerLabel bounds the metric label to the known triggers; free-text
// triggers are counted as "other".
func triggerLabel(trigger string) string {
	switch trigger {
	case TriggerUnresponsive, TriggerStale, TriggerIncorrectAssignment:
		return trigger
	default:
		return "other"
	}
}

func toPayload(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	_ = json.Unmarshal(data, &m)
	return m
}
