package reassign

import (
	"context"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Reassign/internal/metrics"
	"github.com/MikeSquared-Agency/Reassign/internal/scoring"
	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

// Preview is a dry run of EvaluateReassignment.
type Preview struct {
	LeadID       uuid.UUID           `json:"lead_id"`
	CurrentRepID *uuid.UUID          `json:"current_rep_id,omitempty"`
	Evaluation   scoring.Evaluation  `json:"evaluation"`
	Threshold    float64             `json:"threshold"`
	Decision     string              `json:"decision"`
	Proposed     *ReassignmentResult `json:"proposed,omitempty"`
}

// Preview ranks the roster for a lead without writing anything. It returns nil
// when the lead does not exist in the company.
func (s *Service) Preview(ctx context.Context, leadID, companyID uuid.UUID) (*Preview, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead == nil || lead.CompanyID != companyID {
		return nil, nil
	}

	eval, reps, err := s.evaluate(ctx, companyID, lead)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		LeadID:       lead.ID,
		CurrentRepID: lead.AssignedTo,
		Evaluation:   eval,
		Threshold:    s.scorer.Threshold(),
		Decision:     decisionFor(lead, eval),
	}
	if p.Decision == metrics.OutcomeReassigned {
		p.Proposed = buildResult(lead, "preview", eval, reps)
	}
	return p, nil
}

func decisionFor(lead *store.Lead, eval scoring.Evaluation) string {
	switch {
	case lead.Status.Terminal():
		return metrics.OutcomeTerminal
	case eval.Winner == nil:
		return metrics.OutcomeNoCandidate
	case lead.AssignedTo != nil && *lead.AssignedTo == eval.Winner.RepID:
		return metrics.OutcomeSameRep
	case !eval.Reassign:
		return metrics.OutcomeLowConfidence
	default:
		return metrics.OutcomeReassigned
	}
}
