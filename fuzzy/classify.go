package fuzzy

import (
	"math"

	"github.com/teranos/scholar/errors"
)

// Tier is the discrete priority bucket derived from a score.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierVeryHigh Tier = "very-high"
)

// Label returns the human-readable label for the tier.
func (t Tier) Label() string {
	switch t {
	case TierVeryHigh:
		return "Very High Priority"
	case TierHigh:
		return "High Priority"
	case TierMedium:
		return "Medium Priority"
	default:
		return "Low Priority"
	}
}

// Tiers lists all tiers from lowest to highest.
func Tiers() []Tier {
	return []Tier{TierLow, TierMedium, TierHigh, TierVeryHigh}
}

// Thresholds are inclusive lower bounds of the upper three tiers.
type Thresholds struct {
	VeryHigh float64 `json:"very_high" toml:"very_high" mapstructure:"very_high"`
	High     float64 `json:"high" toml:"high" mapstructure:"high"`
	Medium   float64 `json:"medium" toml:"medium" mapstructure:"medium"`
}

// DefaultThresholds returns the 85 / 65 / 40 convention.
func DefaultThresholds() Thresholds {
	return Thresholds{VeryHigh: 85, High: 65, Medium: 40}
}

// Validate requires 0 <= Medium < High < VeryHigh <= 100.
func (th Thresholds) Validate() error {
	for _, v := range []float64{th.Medium, th.High, th.VeryHigh} {
		if math.IsNaN(v) {
			return errors.New("thresholds must be numbers")
		}
	}
	if th.Medium < 0 || th.VeryHigh > 100 {
		return errors.Newf("thresholds must lie within [0, 100], got medium=%g very_high=%g", th.Medium, th.VeryHigh)
	}
	if !(th.Medium < th.High && th.High < th.VeryHigh) {
		return errors.Newf("thresholds must be strictly increasing, got medium=%g high=%g very_high=%g",
			th.Medium, th.High, th.VeryHigh)
	}
	return nil
}

// Classify maps a score to its tier and label.
func (th Thresholds) Classify(score float64) (Tier, string) {
	var tier Tier
	switch {
	case score >= th.VeryHigh:
		tier = TierVeryHigh
	case score >= th.High:
		tier = TierHigh
	case score >= th.Medium:
		tier = TierMedium
	default:
		tier = TierLow
	}
	return tier, tier.Label()
}

// Classify maps a score using DefaultThresholds.
func Classify(score float64) (Tier, string) {
	return DefaultThresholds().Classify(score)
}
