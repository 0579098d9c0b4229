package fuzzy

import (
	"math"

	"github.com/teranos/scholar/errors"
)

// Rule maps an antecedent to a term of the output variable.
type Rule struct {
	Name string
	If   Expr
	Then string
	// Weight scales the firing strength. Zero means 1.
	Weight float64
}

// weight returns the effective weight.
func (r Rule) weight() float64 {
	if r.Weight == 0 {
		return 1
	}
	return r.Weight
}

// Strength evaluates the rule against fuzzified inputs.
func (r Rule) Strength(d Degrees) float64 {
	return r.If.Eval(d) * r.weight()
}

func (r Rule) String() string {
	s := "if " + r.If.String() + " then " + r.Then
	if r.Weight != 0 && r.Weight != 1 {
		s += " (weight " + formatFloat(r.Weight) + ")"
	}
	return s
}

// validate checks that every reference resolves against the engine's
// variables and that the consequent is an output term.
func (r Rule) validate(inputs map[string]Variable, output Variable) error {
	if r.If == nil {
		return errors.New("rule has no antecedent")
	}
	if r.Weight < 0 || r.Weight > 1 || math.IsNaN(r.Weight) {
		return errors.Newf("weight must be within [0, 1], got %g", r.Weight)
	}
	if err := checkOperands(r.If); err != nil {
		return err
	}
	for _, ref := range r.If.Refs() {
		v, ok := inputs[ref.Variable]
		if !ok {
			return errors.Wrapf(ErrUnknownVariable, "%q", ref.Variable)
		}
		if _, ok := v.Term(ref.Term); !ok {
			return errors.Wrapf(ErrUnknownTerm, "%s.%s", ref.Variable, ref.Term)
		}
	}
	if _, ok := output.Term(r.Then); !ok {
		return errors.Wrapf(ErrUnknownTerm, "%s.%s", output.Name, r.Then)
	}
	return nil
}

// checkOperands rejects empty conjunctions and disjunctions anywhere in the tree.
func checkOperands(e Expr) error {
	switch n := e.(type) {
	case And:
		if len(n) == 0 {
			return errors.New("empty and-expression")
		}
		for _, op := range n {
			if err := checkOperands(op); err != nil {
				return err
			}
		}
	case Or:
		if len(n) == 0 {
			return errors.New("empty or-expression")
		}
		for _, op := range n {
			if err := checkOperands(op); err != nil {
				return err
			}
		}
	}
	return nil
}
