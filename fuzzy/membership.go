// Package fuzzy implements Mamdani fuzzy inference: triangular membership
// functions, AND/OR rule expressions, max aggregation and centroid
// defuzzification over a sampled output domain.
//
// An Engine is built once from variables and rules and is immutable
// afterwards, so a single instance can serve concurrent requests.
package fuzzy

import (
	"math"

	"github.com/teranos/scholar/errors"
)

// Triangle is a triangular membership function with breakpoints A <= B <= C.
// A == B gives a left shoulder, B == C a right shoulder.
type Triangle struct {
	A float64 `json:"a" toml:"a"`
	B float64 `json:"b" toml:"b"`
	C float64 `json:"c" toml:"c"`
}

// Degree returns the membership degree of x, always in [0, 1].
func (t Triangle) Degree(x float64) float64 {
	switch {
	case x == t.B:
		return 1
	case x > t.A && x < t.B:
		return (x - t.A) / (t.B - t.A)
	case x > t.B && x < t.C:
		return (t.C - x) / (t.C - t.B)
	default:
		return 0
	}
}

// Validate checks breakpoint ordering.
func (t Triangle) Validate() error {
	for _, v := range []float64{t.A, t.B, t.C} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Newf("breakpoints must be finite, got (%g, %g, %g)", t.A, t.B, t.C)
		}
	}
	if t.A > t.B || t.B > t.C {
		return errors.Newf("breakpoints must satisfy a <= b <= c, got (%g, %g, %g)", t.A, t.B, t.C)
	}
	return nil
}

// Term is a named linguistic term ("low", "high") of a variable.
type Term struct {
	Name  string   `json:"name"`
	Shape Triangle `json:"shape"`
}

// Variable is a linguistic variable: a closed domain and its ordered terms.
type Variable struct {
	Name  string  `json:"name"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Terms []Term  `json:"terms"`
}

// Term returns the named term.
func (v Variable) Term(name string) (Term, bool) {
	for _, t := range v.Terms {
		if t.Name == name {
			return t, true
		}
	}
	return Term{}, false
}

// Membership returns the degree of x in the named term.
func (v Variable) Membership(term string, x float64) (float64, error) {
	t, ok := v.Term(term)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownTerm, "%s.%s", v.Name, term)
	}
	return t.Shape.Degree(x), nil
}

// Fuzzify returns the degree of x in every term of v.
func (v Variable) Fuzzify(x float64) map[string]float64 {
	out := make(map[string]float64, len(v.Terms))
	for _, t := range v.Terms {
		out[t.Name] = t.Shape.Degree(x)
	}
	return out
}

// Clamp limits x to the variable's domain.
func (v Variable) Clamp(x float64) float64 {
	return math.Max(v.Min, math.Min(v.Max, x))
}

// Validate checks the domain and every term.
func (v Variable) Validate() error {
	if v.Name == "" {
		return errors.New("variable name is required")
	}
	if !(v.Min < v.Max) {
		return errors.Newf("variable %s: domain [%g, %g] is empty", v.Name, v.Min, v.Max)
	}
	if len(v.Terms) == 0 {
		return errors.Newf("variable %s has no terms", v.Name)
	}

	seen := make(map[string]bool, len(v.Terms))
	for _, t := range v.Terms {
		if t.Name == "" {
			return errors.Newf("variable %s: term name is required", v.Name)
		}
		if seen[t.Name] {
			return errors.Newf("variable %s: duplicate term %q", v.Name, t.Name)
		}
		seen[t.Name] = true
		if err := t.Shape.Validate(); err != nil {
			return errors.Wrapf(err, "variable %s term %s", v.Name, t.Name)
		}
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate an engine's variables.
func (v Variable) clone() Variable {
	terms := make([]Term, len(v.Terms))
	copy(terms, v.Terms)
	v.Terms = terms
	return v
}
