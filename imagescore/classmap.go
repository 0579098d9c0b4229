package imagescore

import (
	"math"

	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/internal/util"
)

// Class is a house class predicted by the classifier and its score range.
type Class struct {
	Name string  `json:"name" mapstructure:"name"`
	Min  float64 `json:"min" mapstructure:"min"`
	Max  float64 `json:"max" mapstructure:"max"`
}

// ClassMap turns classifier probabilities into a financial score. Classes
// are listed in the classifier's output order.
type ClassMap struct {
	Classes []Class
	// UseRanges maps the top class to the midpoint of its range. Otherwise
	// the score is the top probability scaled to 0-100.
	UseRanges bool
}

// DefaultClassMap is simple (0-55), moderate (56-80), luxury (81-100).
func DefaultClassMap() ClassMap {
	return ClassMap{
		Classes: []Class{
			{Name: "simple", Min: 0, Max: 55},
			{Name: "moderate", Min: 56, Max: 80},
			{Name: "luxury", Min: 81, Max: 100},
		},
		UseRanges: true,
	}
}

// Prediction is the mapped classifier output.
type Prediction struct {
	Class      string  `json:"class"`
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"score"`
}

// Map picks the most probable class (first on ties) and scores it.
func (m ClassMap) Map(probabilities []float64) (Prediction, error) {
	if len(m.Classes) == 0 {
		return Prediction{}, errors.New("class map is empty")
	}
	if len(probabilities) != len(m.Classes) {
		return Prediction{}, errors.Newf("classifier returned %d probabilities for %d classes",
			len(probabilities), len(m.Classes))
	}

	best := 0
	for i, p := range probabilities {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return Prediction{}, errors.Newf("invalid probability %g at index %d", p, i)
		}
		if p > probabilities[best] {
			best = i
		}
	}

	cls := m.Classes[best]
	pred := Prediction{Class: cls.Name, Index: best, Confidence: probabilities[best]}
	if m.UseRanges {
		pred.Score = (cls.Min + cls.Max) / 2
	} else {
		pred.Score = util.Round(math.Min(probabilities[best], 1)*100, 2)
	}
	return pred, nil
}

// Validate checks class ranges lie within 0-100.
func (m ClassMap) Validate() error {
	if len(m.Classes) == 0 {
		return errors.New("class map needs at least one class")
	}
	for _, c := range m.Classes {
		if c.Name == "" {
			return errors.New("class name is required")
		}
		if c.Min < 0 || c.Max > 100 || c.Min > c.Max {
			return errors.Newf("class %s range [%g, %g] must lie within [0, 100]", c.Name, c.Min, c.Max)
		}
	}
	return nil
}
