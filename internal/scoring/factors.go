package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

// Availability is the workload-derived capacity tier of a rep.
type Availability string

const (
	Available  Availability = "available"
	Busy       Availability = "busy"
	Overloaded Availability = "overloaded"
)

// Tiers holds the workload thresholds separating the availability tiers.
type Tiers struct {
	Busy       int
	Overloaded int
}

func DefaultTiers() Tiers {
	return Tiers{Busy: 25, Overloaded: 50}
}

// Classify maps an open-lead count to a tier: above Overloaded is overloaded,
// above Busy is busy, anything else is available.
func (t Tiers) Classify(workload int) Availability {
	switch {
	case workload > t.Overloaded:
		return Overloaded
	case workload > t.Busy:
		return Busy
	default:
		return Available
	}
}

// FactorResult captures one factor's contribution to a rep's score.
type FactorResult struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
	Reason   string  `json:"reason"`
}

// RepPerformance is the scorer's view of one candidate rep.
type RepPerformance struct {
	RepID               uuid.UUID    `json:"rep_id"`
	DisplayName         string       `json:"display_name"`
	CloseRate           float64      `json:"close_rate"`
	ResponseTimeSeconds float64      `json:"response_time_seconds"`
	Workload            int          `json:"workload"`
	Availability        Availability `json:"availability"`
	Specialties         []string     `json:"specialties"`
}

// FromMetrics builds a RepPerformance from a rep_metrics row, deriving the tier.
func FromMetrics(m *store.RepMetrics, tiers Tiers) RepPerformance {
	return RepPerformance{
		RepID:               m.RepID,
		DisplayName:         m.DisplayName,
		CloseRate:           m.CloseRate,
		ResponseTimeSeconds: m.ResponseTimeSeconds,
		Workload:            m.Workload,
		Availability:        tiers.Classify(m.Workload),
		Specialties:         m.Specialties,
	}
}

// --- Individual factor calculators ---

// CloseRateFactor is linear in the rep's close rate.
func CloseRateFactor(rep RepPerformance, w WeightSet) FactorResult {
	return FactorResult{
		Name:     "close_rate",
		Score:    rep.CloseRate,
		Weight:   w.CloseRate,
		Weighted: rep.CloseRate * w.CloseRate,
		Reason:   fmt.Sprintf("close rate %.1f%%", rep.CloseRate),
	}
}

// AvailabilityFactor awards the bonus for the rep's tier.
func AvailabilityFactor(rep RepPerformance, w WeightSet) FactorResult {
	var bonus float64
	switch rep.Availability {
	case Available:
		bonus = w.AvailableBonus
	case Busy:
		bonus = w.BusyBonus
	}
	return FactorResult{
		Name:     "availability",
		Score:    1,
		Weight:   bonus,
		Weighted: bonus,
		Reason:   string(rep.Availability),
	}
}

// SpecialtyFactor awards the bonus when any specialty appears in the lead's company name.
func SpecialtyFactor(rep RepPerformance, lead *store.Lead, w WeightSet) FactorResult {
	match := SpecialtyMatch(rep.Specialties, lead.CompanyName)
	if match == "" {
		return FactorResult{Name: "specialty", Score: 0, Weight: w.SpecialtyBonus, Reason: "no industry match"}
	}
	return FactorResult{
		Name:     "specialty",
		Score:    1,
		Weight:   w.SpecialtyBonus,
		Weighted: w.SpecialtyBonus,
		Reason:   "matches " + match,
	}
}

// ResponsivenessFactor decays by one point per ResponseUnitSeconds of average response time.
func ResponsivenessFactor(rep RepPerformance, w WeightSet) FactorResult {
	points := math.Max(0, w.ResponseMax-rep.ResponseTimeSeconds/w.ResponseUnitSeconds)
	return FactorResult{
		Name:     "responsiveness",
		Score:    points,
		Weight:   1,
		Weighted: points,
		Reason:   fmt.Sprintf("avg response %.0fs", rep.ResponseTimeSeconds),
	}
}

// SpecialtyMatch returns the first specialty that is a case-insensitive substring
// of companyName, or "" when none is. Blank specialties never match.
func SpecialtyMatch(specialties []string, companyName string) string {
	name := strings.ToLower(companyName)
	for _, s := range specialties {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		if strings.Contains(name, strings.ToLower(trimmed)) {
			return trimmed
		}
	}
	return ""
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
