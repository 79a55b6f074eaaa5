package scoring

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

// ScoringResult captures the complete scoring output for a single rep–lead pair.
type ScoringResult struct {
	RepID               uuid.UUID      `json:"rep_id"`
	DisplayName         string         `json:"display_name"`
	TotalScore          float64        `json:"total_score"`
	Factors             []FactorResult `json:"factors"`
	CloseRate           float64        `json:"close_rate"`
	ResponseTimeSeconds float64        `json:"response_time_seconds"`
	Workload            int            `json:"workload"`
	Availability        Availability   `json:"availability"`
	SpecialtyMatch      bool           `json:"specialty_match"`
	Eligible            bool           `json:"eligible"`
}

// Evaluation is the ranked outcome of scoring a roster against one lead.
type Evaluation struct {
	Candidates    []ScoringResult `json:"candidates"`
	Excluded      []ScoringResult `json:"excluded,omitempty"`
	Frontier      []ScoringResult `json:"frontier,omitempty"`
	Winner        *ScoringResult  `json:"winner,omitempty"`
	MeanCloseRate float64         `json:"mean_close_rate"`
	Confidence    float64         `json:"confidence"`
	Reassign      bool            `json:"reassign"`
}

// Config bundles everything the scorer is parameterised by.
type Config struct {
	Weights    WeightSet
	Confidence ConfidenceWeights
	Tiers      Tiers
	Threshold  float64
}

func DefaultConfig() Config {
	return Config{
		Weights:    DefaultWeights(),
		Confidence: DefaultConfidenceWeights(),
		Tiers:      DefaultTiers(),
		Threshold:  0.7,
	}
}

func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Confidence.Validate(); err != nil {
		return err
	}
	if c.Tiers.Busy < 0 || c.Tiers.Overloaded < c.Tiers.Busy {
		return fmt.Errorf("invalid tiers: busy %d, overloaded %d", c.Tiers.Busy, c.Tiers.Overloaded)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold %.2f outside [0, 1]", c.Threshold)
	}
	return nil
}

// Scorer ranks reps for a lead with the additive four-factor model.
type Scorer struct {
	cfg    Config
	logger *slog.Logger
}

func NewScorer(cfg Config, logger *slog.Logger) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	return &Scorer{cfg: cfg, logger: logger}, nil
}

func (s *Scorer) Tiers() Tiers { return s.cfg.Tiers }

// Threshold is the minimum confidence at which a reassignment is applied.
func (s *Scorer) Threshold() float64 { return s.cfg.Threshold }

// ScoreRep computes the full scoring result for one rep against a lead.
// Overloaded reps are scored but marked ineligible.
func (s *Scorer) ScoreRep(rep RepPerformance, lead *store.Lead) ScoringResult {
	factors := []FactorResult{
		CloseRateFactor(rep, s.cfg.Weights),
		AvailabilityFactor(rep, s.cfg.Weights),
		SpecialtyFactor(rep, lead, s.cfg.Weights),
		ResponsivenessFactor(rep, s.cfg.Weights),
	}

	var total float64
	for _, f := range factors {
		total += f.Weighted
	}

	return ScoringResult{
		RepID:               rep.RepID,
		DisplayName:         rep.DisplayName,
		TotalScore:          total,
		Factors:             factors,
		CloseRate:           rep.CloseRate,
		ResponseTimeSeconds: rep.ResponseTimeSeconds,
		Workload:            rep.Workload,
		Availability:        rep.Availability,
		SpecialtyMatch:      factors[2].Score > 0,
		Eligible:            rep.Availability != Overloaded,
	}
}

// Rank scores every non-overloaded rep and orders them best first.
// Ties break on lower workload, then ascending rep id.
func (s *Scorer) Rank(reps []RepPerformance, lead *store.Lead) []ScoringResult {
	var ranked []ScoringResult
	for _, rep := range reps {
		if rep.Availability == Overloaded {
			continue
		}
		ranked = append(ranked, s.ScoreRep(rep, lead))
	}
	sortRanked(ranked)
	return ranked
}

func sortRanked(ranked []ScoringResult) {
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}
		if ranked[i].Workload != ranked[j].Workload {
			return ranked[i].Workload < ranked[j].Workload
		}
		return ranked[i].RepID.String() < ranked[j].RepID.String()
	})
}

// Confidence estimates how sure the scorer is that winner should take the lead.
// candidates are the eligible reps the winner was picked from. Always in [0, 1].
func (s *Scorer) Confidence(winner ScoringResult, candidates []ScoringResult) float64 {
	c := s.cfg.Confidence
	confidence := c.Base

	if mean := meanCloseRate(candidates); winner.CloseRate > mean*c.CloseRateMultiple {
		confidence += c.CloseRateBonus
	}
	if winner.Availability == Available {
		confidence += c.AvailableBonus
	}
	if winner.SpecialtyMatch {
		confidence += c.SpecialtyBonus
	}
	return clamp(confidence, 0, 1)
}

func (s *Scorer) ShouldReassign(confidence float64) bool {
	return confidence >= s.cfg.Threshold
}

// Evaluate ranks the roster, picks the winner and computes its confidence.
// Winner is nil when every rep is overloaded or the roster is empty.
func (s *Scorer) Evaluate(reps []RepPerformance, lead *store.Lead) Evaluation {
	var eval Evaluation
	for _, rep := range reps {
		if rep.Availability == Overloaded {
			eval.Excluded = append(eval.Excluded, s.ScoreRep(rep, lead))
		}
	}
	eval.Candidates = s.Rank(reps, lead)
	if len(eval.Candidates) == 0 {
		s.logger.Debug("no eligible reps", "lead_id", lead.ID, "excluded", len(eval.Excluded))
		return eval
	}

	winner := eval.Candidates[0]
	eval.Winner = &winner
	eval.MeanCloseRate = meanCloseRate(eval.Candidates)
	eval.Confidence = s.Confidence(winner, eval.Candidates)
	eval.Reassign = s.ShouldReassign(eval.Confidence)
	eval.Frontier = ComputeFrontier(eval.Candidates)
	return eval
}

func meanCloseRate(candidates []ScoringResult) float64 {
	if len(candidates) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candidates {
		sum += c.CloseRate
	}
	return sum / float64(len(candidates))
}
