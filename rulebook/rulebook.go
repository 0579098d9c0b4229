// Package rulebook holds the scholarship model definition: linguistic
// variables, rules written as text, tier thresholds and inference settings.
// A rulebook is either the built-in default or a TOML file, and is compiled
// into an immutable fuzzy.Engine by Build.
package rulebook

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/fuzzy"
)

// SchemaVersion is written into new rulebook files.
const SchemaVersion = "1.0.0"

// supportedSchema is the range of rulebook schema versions this build reads.
const supportedSchema = "^1"

// File is the on-disk rulebook.
type File struct {
	Schema     string            `toml:"schema" json:"schema"`
	Name       string            `toml:"name" json:"name"`
	Version    string            `toml:"version,omitempty" json:"version,omitempty"`
	Fallback   *float64          `toml:"fallback,omitempty" json:"fallback,omitempty"`
	Resolution *float64          `toml:"resolution,omitempty" json:"resolution,omitempty"`
	Thresholds *fuzzy.Thresholds `toml:"thresholds,omitempty" json:"thresholds,omitempty"`
	Inputs     []VariableSpec    `toml:"input" json:"inputs"`
	Output     VariableSpec      `toml:"output" json:"output"`
	Rules      []RuleSpec        `toml:"rule" json:"rules"`
}

// VariableSpec declares a linguistic variable.
type VariableSpec struct {
	Name  string     `toml:"name" json:"name"`
	Min   float64    `toml:"min" json:"min"`
	Max   float64    `toml:"max" json:"max"`
	Terms []TermSpec `toml:"term" json:"terms"`
}

// TermSpec declares a triangular term by its three breakpoints.
type TermSpec struct {
	Name   string    `toml:"name" json:"name"`
	Points []float64 `toml:"points" json:"points"`
}

// RuleSpec is a rule in textual form, e.g.
// if = "income is high or financial is strong", then = "low".
// An absent weight means 1; an explicit weight must lie in (0, 1].
type RuleSpec struct {
	Name   string   `toml:"name,omitempty" json:"name,omitempty"`
	If     string   `toml:"if" json:"if"`
	Then   string   `toml:"then" json:"then"`
	Weight *float64 `toml:"weight,omitempty" json:"weight,omitempty"`
}

// Parse decodes a rulebook from TOML. Unknown keys are rejected so typos
// do not silently fall back to defaults.
func Parse(data []byte) (*File, error) {
	var f File
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode rulebook")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.WithHintf(
			errors.Newf("rulebook has unknown keys: %s", strings.Join(keys, ", ")),
			"check spelling against `scholar rulebook init` output")
	}
	return &f, nil
}

// Load reads and decodes a rulebook file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read rulebook %s", path)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "rulebook %s", path)
	}
	return f, nil
}

// Encode writes the rulebook as TOML.
func Encode(w io.Writer, f *File) error {
	enc := toml.NewEncoder(w)
	enc.Indent = ""
	return errors.Wrap(enc.Encode(f), "failed to encode rulebook")
}

// CheckSchema verifies the rulebook schema version is one this build reads.
func CheckSchema(schema string) error {
	if schema == "" {
		return errors.WithHint(errors.New("rulebook schema version is missing"),
			"add schema = \""+SchemaVersion+"\" at the top of the file")
	}
	v, err := semver.NewVersion(schema)
	if err != nil {
		return errors.Wrapf(err, "invalid rulebook schema version %q", schema)
	}
	c, err := semver.NewConstraint(supportedSchema)
	if err != nil {
		return errors.Wrap(err, "invalid schema constraint")
	}
	if !c.Check(v) {
		return errors.Newf("rulebook schema %s is not supported (want %s)", v, supportedSchema)
	}
	return nil
}

// Default returns the built-in scholarship rulebook.
func Default() *File {
	fallback := 50.0
	resolution := fuzzy.DefaultResolution
	thresholds := fuzzy.DefaultThresholds()

	return &File{
		Schema:     SchemaVersion,
		Name:       "scholarship",
		Version:    "1",
		Fallback:   &fallback,
		Resolution: &resolution,
		Thresholds: &thresholds,
		Inputs: []VariableSpec{
			{
				Name: fuzzy.VarGPA, Min: 0, Max: 4,
				Terms: []TermSpec{
					{Name: "low", Points: []float64{0, 2, 3}},
					{Name: "medium", Points: []float64{2.5, 3.2, 3.6}},
					{Name: "high", Points: []float64{3.3, 4, 4}},
				},
			},
			{
				Name: fuzzy.VarIncome, Min: 0, Max: 15_000_000,
				Terms: []TermSpec{
					{Name: "low", Points: []float64{0, 0, 4_000_000}},
					{Name: "medium", Points: []float64{3_000_000, 6_000_000, 9_000_000}},
					{Name: "high", Points: []float64{7_000_000, 15_000_000, 15_000_000}},
				},
			},
			{
				Name: fuzzy.VarAchievement, Min: 0, Max: 100,
				Terms: []TermSpec{
					{Name: "poor", Points: []float64{0, 0, 60}},
					{Name: "good", Points: []float64{50, 70, 85}},
					{Name: "excellent", Points: []float64{75, 100, 100}},
				},
			},
			{
				Name: fuzzy.VarFinancial, Min: 0, Max: 100,
				Terms: []TermSpec{
					{Name: "weak", Points: []float64{0, 0, 60}},
					{Name: "moderate", Points: []float64{50, 70, 85}},
					{Name: "strong", Points: []float64{75, 100, 100}},
				},
			},
		},
		Output: VariableSpec{
			Name: fuzzy.VarPriority, Min: 0, Max: 100,
			Terms: []TermSpec{
				{Name: "low", Points: []float64{0, 10, 40}},
				{Name: "medium", Points: []float64{30, 50, 70}},
				{Name: "high", Points: []float64{60, 80, 90}},
				{Name: "very_high", Points: []float64{85, 95, 100}},
			},
		},
		Rules: []RuleSpec{
			{
				Name: "R1",
				If:   "gpa is high and income is low and achievement is excellent and financial is weak",
				Then: "very_high",
			},
			{
				Name: "R2",
				If:   "gpa is medium and income is low and achievement is good and financial is weak",
				Then: "high",
			},
			{
				Name: "R3",
				If:   "gpa is high and income is medium and achievement is excellent and financial is moderate",
				Then: "high",
			},
			{
				Name: "R4",
				If:   "income is high or financial is strong",
				Then: "low",
			},
			{
				Name: "R5",
				If:   "gpa is medium and income is medium and achievement is good and financial is moderate",
				Then: "medium",
			},
			{
				Name: "R6",
				If:   "gpa is low and income is low and achievement is poor and financial is weak",
				Then: "medium",
			},
			// R7-R10 cover the cells one notch below R1, so that leaving
			// R1's peak degrades to high instead of dropping to the fallback.
			{
				Name: "R7",
				If:   "gpa is medium and income is low and achievement is excellent and financial is weak",
				Then: "high",
			},
			{
				Name: "R8",
				If:   "gpa is high and income is low and achievement is good and financial is weak",
				Then: "high",
			},
			{
				Name: "R9",
				If:   "gpa is high and income is medium and achievement is excellent and financial is weak",
				Then: "high",
			},
			{
				Name: "R10",
				If:   "gpa is high and income is low and achievement is excellent and financial is moderate",
				Then: "high",
			},
		},
	}
}
