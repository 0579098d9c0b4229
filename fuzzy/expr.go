package fuzzy

import (
	"math"
	"strings"
)

// Degrees holds fuzzified inputs: variable -> term -> degree.
type Degrees map[string]map[string]float64

// Expr is a rule antecedent: a tree of term references joined by AND (min)
// and OR (max).
type Expr interface {
	// Eval returns the expression's truth degree for the fuzzified inputs.
	Eval(d Degrees) float64
	// Refs returns every term reference in the expression, left to right.
	Refs() []Ref
	String() string
}

// Ref is a leaf: "<variable> is <term>".
type Ref struct {
	Variable string
	Term     string
}

// Is builds a term reference.
func Is(variable, term string) Ref {
	return Ref{Variable: variable, Term: term}
}

// Eval returns the degree recorded for the reference, 0 when absent.
func (r Ref) Eval(d Degrees) float64 {
	return d[r.Variable][r.Term]
}

func (r Ref) Refs() []Ref { return []Ref{r} }

func (r Ref) String() string {
	return r.Variable + " is " + r.Term
}

// And is a conjunction; it evaluates to the minimum of its operands.
type And []Expr

// AllOf builds a conjunction.
func AllOf(operands ...Expr) And { return And(operands) }

func (a And) Eval(d Degrees) float64 {
	if len(a) == 0 {
		return 0
	}
	v := 1.0
	for _, e := range a {
		v = math.Min(v, e.Eval(d))
	}
	return v
}

func (a And) Refs() []Ref { return collectRefs(a) }

func (a And) String() string { return join(a, " and ") }

// Or is a disjunction; it evaluates to the maximum of its operands.
type Or []Expr

// AnyOf builds a disjunction.
func AnyOf(operands ...Expr) Or { return Or(operands) }

func (o Or) Eval(d Degrees) float64 {
	v := 0.0
	for _, e := range o {
		v = math.Max(v, e.Eval(d))
	}
	return v
}

func (o Or) Refs() []Ref { return collectRefs(o) }

func (o Or) String() string { return join(o, " or ") }

func collectRefs(operands []Expr) []Ref {
	var refs []Ref
	for _, e := range operands {
		refs = append(refs, e.Refs()...)
	}
	return refs
}

func join(operands []Expr, sep string) string {
	parts := make([]string, len(operands))
	for i, e := range operands {
		s := e.String()
		// and binds tighter than or, so only a nested or needs parentheses
		if or, ok := e.(Or); ok && sep == " and " && len(or) > 1 {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}
