package scoring

import (
	"fmt"
)

// WeightSet defines the points each scoring factor contributes.
type WeightSet struct {
	CloseRate           float64
	AvailableBonus      float64
	BusyBonus           float64
	SpecialtyBonus      float64
	ResponseMax         float64
	ResponseUnitSeconds float64
}

// DefaultWeights returns the production weight distribution.
func DefaultWeights() WeightSet {
	return WeightSet{
		CloseRate:           0.4,
		AvailableBonus:      30,
		BusyBonus:           15,
		SpecialtyBonus:      20,
		ResponseMax:         10,
		ResponseUnitSeconds: 60,
	}
}

// Validate checks that no weight is negative and the response unit is positive.
func (w WeightSet) Validate() error {
	for name, v := range map[string]float64{
		"close_rate":      w.CloseRate,
		"available_bonus": w.AvailableBonus,
		"busy_bonus":      w.BusyBonus,
		"specialty_bonus": w.SpecialtyBonus,
		"response_max":    w.ResponseMax,
	} {
		if v < 0 {
			return fmt.Errorf("negative weight %s: %f", name, v)
		}
	}
	if w.ResponseUnitSeconds <= 0 {
		return fmt.Errorf("response_unit_seconds must be positive, got %f", w.ResponseUnitSeconds)
	}
	return nil
}

// ConfidenceWeights parameterises the reassignment confidence heuristic.
type ConfidenceWeights struct {
	Base              float64
	CloseRateBonus    float64
	CloseRateMultiple float64
	AvailableBonus    float64
	SpecialtyBonus    float64
}

func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Base:              0.5,
		CloseRateBonus:    0.3,
		CloseRateMultiple: 1.5,
		AvailableBonus:    0.2,
		SpecialtyBonus:    0.2,
	}
}

func (c ConfidenceWeights) Validate() error {
	for name, v := range map[string]float64{
		"base":                c.Base,
		"close_rate_bonus":    c.CloseRateBonus,
		"close_rate_multiple": c.CloseRateMultiple,
		"available_bonus":     c.AvailableBonus,
		"specialty_bonus":     c.SpecialtyBonus,
	} {
		if v < 0 {
			return fmt.Errorf("negative confidence weight %s: %f", name, v)
		}
	}
	return nil
}
