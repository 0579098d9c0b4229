package commands

import (
	"fmt"
	"math"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/scholar/display"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/fuzzy"
	"github.com/teranos/scholar/rulebook"
)

// SweepCmd prints the score curve for one indicator
var SweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Print the score curve for one indicator",
	Long: `Vary one indicator across a range while the others stay fixed and
print the resulting priority scores. Useful for checking that a rulebook
edit keeps scores moving in the expected direction.

--from and --to default to the indicator's domain.`,
	Example: `  scholar sweep --var income --from 0 --to 10000000 --step 1000000
  scholar sweep --var gpa --step 0.5 --income 2000000`,
	RunE: runSweep,
}

var (
	sweepVar      string
	sweepFrom     float64
	sweepTo       float64
	sweepStep     float64
	sweepFixed    = map[string]*float64{}
	sweepRulebook string
)

// maxSweepPoints bounds the output of one sweep.
const maxSweepPoints = 10000

func init() {
	f := SweepCmd.Flags()
	f.StringVar(&sweepVar, "var", fuzzy.VarIncome, "Indicator to vary: gpa, income, achievement, financial")
	f.Float64Var(&sweepFrom, "from", 0, "Start of the range")
	f.Float64Var(&sweepTo, "to", 0, "End of the range")
	f.Float64Var(&sweepStep, "step", 0, "Step size (default: a tenth of the range)")
	for _, fixed := range []struct {
		name  string
		value float64
		usage string
	}{
		{fuzzy.VarGPA, 3.5, "Fixed GPA"},
		{fuzzy.VarIncome, 3_000_000, "Fixed income"},
		{fuzzy.VarAchievement, 80, "Fixed achievement score"},
		{fuzzy.VarFinancial, 50, "Fixed financial score"},
	} {
		v := fixed.value
		sweepFixed[fixed.name] = &v
		f.Float64Var(sweepFixed[fixed.name], fixed.name, fixed.value, fixed.usage)
	}
	f.Bool("json", false, "Print points as JSON")
	f.StringVar(&sweepRulebook, "rulebook", "", "Rulebook file (overrides config)")
}

// sweepPoint is one sample of a sweep.
type sweepPoint struct {
	Value float64    `json:"value"`
	Score float64    `json:"score"`
	Tier  fuzzy.Tier `json:"tier"`
	Fired bool       `json:"fired"`
}

// sweep evaluates model at from, from+step, ... up to and including to.
// Samples are computed from an index so the endpoint is not lost to float drift.
func sweep(model *rulebook.Model, variable string, from, to, step float64, fixed map[string]float64) ([]sweepPoint, error) {
	if _, ok := model.Engine.Input(variable); !ok {
		return nil, errors.WithHintf(errors.Newf("unknown indicator %q", variable),
			"--var must be one of %s, %s, %s, %s", fuzzy.VarGPA, fuzzy.VarIncome, fuzzy.VarAchievement, fuzzy.VarFinancial)
	}
	if step <= 0 || math.IsNaN(step) {
		return nil, errors.WithHint(errors.Newf("step %g is not positive", step), "--step must be greater than zero")
	}
	if to < from {
		return nil, errors.WithHint(errors.Newf("range [%g, %g] is empty", from, to), "--to must not be below --from")
	}
	n := int(math.Floor((to-from)/step + 1e-9))
	if n+1 > maxSweepPoints {
		return nil, errors.WithHintf(errors.Newf("sweep would produce %d points", n+1),
			"use a larger --step, at most %d points are printed", maxSweepPoints)
	}

	inputs := map[string]float64{}
	for k, v := range fixed {
		inputs[k] = v
	}
	points := make([]sweepPoint, 0, n+1)
	for i := 0; i <= n; i++ {
		x := from + float64(i)*step
		inputs[variable] = x
		out, err := model.Evaluate(inputs[fuzzy.VarGPA], inputs[fuzzy.VarIncome], inputs[fuzzy.VarAchievement], inputs[fuzzy.VarFinancial])
		if err != nil {
			return nil, err
		}
		points = append(points, sweepPoint{Value: x, Score: out.Score, Tier: out.Tier, Fired: out.Fired})
	}
	return points, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	model, err := loadModel(cfg, sweepRulebook)
	if err != nil {
		return err
	}

	v, ok := model.Engine.Input(sweepVar)
	if !ok {
		return errors.Newf("unknown indicator %q (use gpa, income, achievement or financial)", sweepVar)
	}
	from, to, step := v.Min, v.Max, sweepStep
	if cmd.Flags().Changed("from") {
		from = sweepFrom
	}
	if cmd.Flags().Changed("to") {
		to = sweepTo
	}
	if step == 0 {
		step = (to - from) / 10
	}

	fixed := map[string]float64{}
	for name, value := range sweepFixed {
		fixed[name] = *value
	}
	points, err := sweep(model, sweepVar, from, to, step, fixed)
	if err != nil {
		return errors.New(errors.UserMessage(err))
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), points)
	}

	pterm.DefaultSection.Printf("%s from %g to %g", sweepVar, from, to)
	rows := pterm.TableData{{sweepVar, "Score", "Tier", ""}}
	for _, p := range points {
		bar := strings.Repeat("█", int(math.Round(p.Score/5)))
		if !p.Fired {
			bar += " (fallback)"
		}
		rows = append(rows, []string{fmt.Sprintf("%g", p.Value), fmt.Sprintf("%.2f", p.Score), string(p.Tier), bar})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
