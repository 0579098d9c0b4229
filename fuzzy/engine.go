package fuzzy

import (
	"math"
	"sort"
	"strconv"

	"github.com/teranos/scholar/errors"
)

// DefaultResolution is the output domain sampling step.
const DefaultResolution = 1.0

// Options tunes defuzzification.
type Options struct {
	// Resolution is the sampling step over the output domain (default 1).
	Resolution float64
	// Fallback is returned when no rule fires and the aggregated set is empty.
	Fallback float64
}

// Engine evaluates a fixed rule base. It is immutable after NewEngine and
// safe for concurrent use.
type Engine struct {
	inputs     []Variable
	byName     map[string]Variable
	output     Variable
	rules      []Rule
	resolution float64
	fallback   float64

	// samples and curves are the output domain and each output term's
	// membership at every sample, precomputed once.
	samples []float64
	curves  map[string][]float64
}

// RuleFiring records how strongly one rule fired.
type RuleFiring struct {
	Name     string  `json:"name"`
	Rule     string  `json:"rule"`
	Then     string  `json:"then"`
	Strength float64 `json:"strength"`
}

// Result is the outcome of one inference.
type Result struct {
	Score float64 `json:"score"`
	// Fired is false when no rule had positive strength and Score is the fallback.
	Fired   bool               `json:"fired"`
	Inputs  map[string]float64 `json:"inputs"`
	Degrees Degrees            `json:"degrees"`
	Rules   []RuleFiring       `json:"rules"`
	// Terms is the aggregated (max) strength of each output term.
	Terms map[string]float64 `json:"terms"`
}

// NewEngine validates the model and precomputes the output domain samples.
func NewEngine(inputs []Variable, output Variable, rules []Rule, opts Options) (*Engine, error) {
	if len(inputs) == 0 {
		return nil, errors.New("engine needs at least one input variable")
	}
	if len(rules) == 0 {
		return nil, errors.New("engine needs at least one rule")
	}

	e := &Engine{
		byName:     make(map[string]Variable, len(inputs)),
		resolution: opts.Resolution,
		fallback:   opts.Fallback,
	}
	if e.resolution == 0 {
		e.resolution = DefaultResolution
	}

	for _, v := range inputs {
		if err := v.Validate(); err != nil {
			return nil, errors.Wrap(err, "input variable")
		}
		if _, dup := e.byName[v.Name]; dup {
			return nil, errors.Newf("duplicate input variable %q", v.Name)
		}
		c := v.clone()
		e.inputs = append(e.inputs, c)
		e.byName[c.Name] = c
	}

	if err := output.Validate(); err != nil {
		return nil, errors.Wrap(err, "output variable")
	}
	if _, clash := e.byName[output.Name]; clash {
		return nil, errors.Newf("output variable %q shadows an input", output.Name)
	}
	e.output = output.clone()

	if !(e.resolution > 0) || math.IsInf(e.resolution, 0) {
		return nil, errors.Newf("resolution must be positive, got %g", opts.Resolution)
	}
	if e.resolution > e.output.Max-e.output.Min {
		return nil, errors.Newf("resolution %g exceeds output domain width", e.resolution)
	}
	if math.IsNaN(e.fallback) || e.fallback < e.output.Min || e.fallback > e.output.Max {
		return nil, errors.Newf("fallback %g outside output domain [%g, %g]", e.fallback, e.output.Min, e.output.Max)
	}

	for i, r := range rules {
		if err := r.validate(e.byName, e.output); err != nil {
			return nil, errors.Wrapf(err, "rule %d (%s)", i+1, r.Name)
		}
		if r.Name == "" {
			r.Name = "R" + strconv.Itoa(i+1)
		}
		e.rules = append(e.rules, r)
	}

	e.samples = sampleDomain(e.output.Min, e.output.Max, e.resolution)
	e.curves = make(map[string][]float64, len(e.output.Terms))
	for _, t := range e.output.Terms {
		curve := make([]float64, len(e.samples))
		for i, x := range e.samples {
			curve[i] = t.Shape.Degree(x)
		}
		e.curves[t.Name] = curve
	}

	return e, nil
}

// sampleDomain returns min, min+step, ... up to and including max when it
// lies on the grid.
func sampleDomain(lo, hi, step float64) []float64 {
	n := int(math.Floor((hi-lo)/step+1e-9)) + 1
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = lo + float64(i)*step
	}
	return samples
}

// Inputs returns copies of the input variables in declaration order.
func (e *Engine) Inputs() []Variable {
	out := make([]Variable, len(e.inputs))
	for i, v := range e.inputs {
		out[i] = v.clone()
	}
	return out
}

// Input returns the named input variable.
func (e *Engine) Input(name string) (Variable, bool) {
	v, ok := e.byName[name]
	if !ok {
		return Variable{}, false
	}
	return v.clone(), true
}

// Output returns a copy of the output variable.
func (e *Engine) Output() Variable { return e.output.clone() }

// Rules returns a copy of the rule base.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Resolution returns the output sampling step.
func (e *Engine) Resolution() float64 { return e.resolution }

// Fallback returns the score used when no rule fires.
func (e *Engine) Fallback() float64 { return e.fallback }

// Infer runs fuzzification, rule evaluation, max aggregation, clipping,
// union and centroid defuzzification. Every input variable must be present
// and finite; unknown keys are rejected.
func (e *Engine) Infer(inputs map[string]float64) (Result, error) {
	if err := e.checkInputs(inputs); err != nil {
		return Result{}, err
	}

	res := Result{
		Inputs:  make(map[string]float64, len(inputs)),
		Degrees: make(Degrees, len(e.inputs)),
		Rules:   make([]RuleFiring, len(e.rules)),
		Terms:   make(map[string]float64, len(e.output.Terms)),
	}

	for _, v := range e.inputs {
		x := inputs[v.Name]
		res.Inputs[v.Name] = x
		res.Degrees[v.Name] = v.Fuzzify(x)
	}

	for _, t := range e.output.Terms {
		res.Terms[t.Name] = 0
	}
	for i, r := range e.rules {
		s := r.Strength(res.Degrees)
		res.Rules[i] = RuleFiring{Name: r.Name, Rule: r.String(), Then: r.Then, Strength: s}
		if s > res.Terms[r.Then] {
			res.Terms[r.Then] = s
		}
	}

	res.Score, res.Fired = e.defuzzify(res.Terms)
	return res, nil
}

// defuzzify computes the centroid of the union of clipped output terms.
func (e *Engine) defuzzify(strengths map[string]float64) (float64, bool) {
	var weighted, mass float64
	for i, x := range e.samples {
		mu := 0.0
		for _, t := range e.output.Terms {
			clipped := math.Min(e.curves[t.Name][i], strengths[t.Name])
			if clipped > mu {
				mu = clipped
			}
		}
		weighted += x * mu
		mass += mu
	}

	if mass <= 0 {
		return e.fallback, false
	}
	return e.output.Clamp(weighted / mass), true
}

func (e *Engine) checkInputs(inputs map[string]float64) error {
	for _, v := range e.inputs {
		x, ok := inputs[v.Name]
		if !ok {
			return errors.Wrapf(ErrInvalidInput, "missing %s", v.Name)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.Wrapf(ErrInvalidInput, "%s must be finite, got %g", v.Name, x)
		}
	}
	if len(inputs) != len(e.inputs) {
		var unknown []string
		for name := range inputs {
			if _, ok := e.byName[name]; !ok {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		return errors.Wrapf(ErrInvalidInput, "unknown inputs %v", unknown)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
