package rulebook

import (
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/fuzzy"
)

// Settings supply inference parameters a rulebook file leaves unset.
type Settings struct {
	Fallback   float64
	Resolution float64
	Thresholds fuzzy.Thresholds
}

// DefaultSettings returns fallback 50, resolution 1 and the 85/65/40 thresholds.
func DefaultSettings() Settings {
	return Settings{
		Fallback:   50,
		Resolution: fuzzy.DefaultResolution,
		Thresholds: fuzzy.DefaultThresholds(),
	}
}

// Model is a compiled rulebook ready to score applicants.
type Model struct {
	Name       string
	Version    string
	Source     string
	Engine     *fuzzy.Engine
	Thresholds fuzzy.Thresholds
	File       *File
}

// Outcome is an inference result with its tier.
type Outcome struct {
	fuzzy.Result
	Tier  fuzzy.Tier `json:"tier"`
	Label string     `json:"label"`
}

// requiredInputs are the variables the applicant form feeds.
var requiredInputs = []string{fuzzy.VarGPA, fuzzy.VarIncome, fuzzy.VarAchievement, fuzzy.VarFinancial}

// Build compiles a rulebook into a Model. source names where the rulebook
// came from ("builtin" or a file path).
func Build(f *File, settings Settings, source string) (*Model, error) {
	if f == nil {
		return nil, errors.New("nil rulebook")
	}
	if err := CheckSchema(f.Schema); err != nil {
		return nil, err
	}

	inputs := make([]fuzzy.Variable, 0, len(f.Inputs))
	for _, vs := range f.Inputs {
		v, err := vs.variable()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, v)
	}
	for _, name := range requiredInputs {
		found := false
		for _, v := range inputs {
			if v.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.WithHintf(errors.Newf("rulebook is missing input variable %q", name),
				"declare [[input]] blocks for %v", requiredInputs)
		}
	}

	output, err := f.Output.variable()
	if err != nil {
		return nil, err
	}

	rules := make([]fuzzy.Rule, 0, len(f.Rules))
	for i, rs := range f.Rules {
		expr, err := fuzzy.ParseExpr(rs.If)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d", i+1)
		}
		weight := 1.0
		if rs.Weight != nil {
			weight = *rs.Weight
			if !(weight > 0 && weight <= 1) {
				return nil, errors.WithHint(errors.Newf("rule %d: weight must be within (0, 1], got %g", i+1, weight),
					"remove the rule instead of giving it weight 0")
			}
		}
		rules = append(rules, fuzzy.Rule{Name: rs.Name, If: expr, Then: rs.Then, Weight: weight})
	}

	opts := fuzzy.Options{Fallback: settings.Fallback, Resolution: settings.Resolution}
	if f.Fallback != nil {
		opts.Fallback = *f.Fallback
	}
	if f.Resolution != nil {
		opts.Resolution = *f.Resolution
	}
	thresholds := settings.Thresholds
	if f.Thresholds != nil {
		thresholds = *f.Thresholds
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	engine, err := fuzzy.NewEngine(inputs, output, rules, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "rulebook %q", f.Name)
	}

	return &Model{
		Name:       f.Name,
		Version:    f.Version,
		Source:     source,
		Engine:     engine,
		Thresholds: thresholds,
		File:       f,
	}, nil
}

// DefaultModel compiles the built-in rulebook. It panics only if the
// built-in definition itself is invalid.
func DefaultModel() *Model {
	m, err := Build(Default(), DefaultSettings(), "builtin")
	if err != nil {
		panic(err)
	}
	return m
}

// Evaluate scores one applicant and classifies the score.
func (m *Model) Evaluate(gpa, income, achievement, financial float64) (Outcome, error) {
	res, err := m.Engine.Infer(fuzzy.PriorityInputs(gpa, income, achievement, financial))
	if err != nil {
		return Outcome{}, err
	}
	tier, label := m.Thresholds.Classify(res.Score)
	return Outcome{Result: res, Tier: tier, Label: label}, nil
}

// IncomeCeiling is the upper bound of the income domain.
func (m *Model) IncomeCeiling() float64 {
	v, _ := m.Engine.Input(fuzzy.VarIncome)
	return v.Max
}

func (vs VariableSpec) variable() (fuzzy.Variable, error) {
	v := fuzzy.Variable{Name: vs.Name, Min: vs.Min, Max: vs.Max}
	for _, ts := range vs.Terms {
		if len(ts.Points) != 3 {
			return fuzzy.Variable{}, errors.Newf("term %s.%s needs 3 points, got %d", vs.Name, ts.Name, len(ts.Points))
		}
		v.Terms = append(v.Terms, fuzzy.Term{
			Name:  ts.Name,
			Shape: fuzzy.Triangle{A: ts.Points[0], B: ts.Points[1], C: ts.Points[2]},
		})
	}
	if err := v.Validate(); err != nil {
		return fuzzy.Variable{}, err
	}
	return v, nil
}
