package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/scholar/achievement"
	"github.com/teranos/scholar/assess"
	"github.com/teranos/scholar/display"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/fuzzy"
	"github.com/teranos/scholar/logger"
	"github.com/teranos/scholar/rulebook"
	"github.com/teranos/scholar/storage"
)

// ScoreCmd scores one applicant
var ScoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one applicant",
	Long: `Score one applicant and print the priority, tier and rule trace.

Achievement comes from --achievement, or from the certificate flags
(--level, --nomination, --placement), or defaults to 50. Financial
condition comes from --photo when a classifier is configured, then
--financial, then defaults to 50.`,
	Example: `  scholar score --gpa 3.8 --income 1500000 --achievement 90 --financial 20
  scholar score --gpa 3.1 --income 4000000 --level national --placement 2
  scholar score --gpa 3.5 --income 3000000 --photo house.jpg --save`,
	RunE: runScore,
}

var (
	scoreGPA         float64
	scoreIncome      float64
	scoreAchievement float64
	scoreFinancial   float64
	scoreCert        achievement.Certificate
	scorePhoto       string
	scoreSave        bool
	scoreRulebook    string
	scoreDBPath      string
)

func init() {
	f := ScoreCmd.Flags()
	f.Float64Var(&scoreGPA, "gpa", 0, "Grade point average, 0-4")
	f.Float64Var(&scoreIncome, "income", 0, "Parents' monthly income")
	f.Float64Var(&scoreAchievement, "achievement", 0, "Manual achievement score, 0-100")
	f.StringVar(&scoreCert.Level, "level", "", "Certificate level: "+optionList(achievement.Levels))
	f.StringVar(&scoreCert.Nomination, "nomination", "", "Certificate nomination: "+optionList(achievement.Nominations))
	f.StringVar(&scoreCert.Placement, "placement", "", "Certificate placement: "+optionList(achievement.Placements))
	f.Float64Var(&scoreFinancial, "financial", 0, "Manual financial score, 0-100 (higher is better off)")
	f.StringVar(&scorePhoto, "photo", "", "House photo (png or jpeg) for the configured classifier")
	f.BoolVar(&scoreSave, "save", false, "Store the assessment in the history database")
	f.Bool("json", false, "Print the assessment as JSON")
	f.StringVar(&scoreRulebook, "rulebook", "", "Rulebook file (overrides config)")
	f.StringVar(&scoreDBPath, "db-path", "", "Database path for --save (overrides config)")
	_ = ScoreCmd.MarkFlagRequired("gpa")
	_ = ScoreCmd.MarkFlagRequired("income")
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	model, err := loadModel(cfg, scoreRulebook)
	if err != nil {
		return err
	}

	req := assess.Request{GPA: scoreGPA, Income: scoreIncome, Certificate: scoreCert}
	if cmd.Flags().Changed("achievement") {
		req.Achievement = &scoreAchievement
	}
	if cmd.Flags().Changed("financial") {
		req.Financial = &scoreFinancial
	}
	if scorePhoto != "" {
		data, err := os.ReadFile(scorePhoto)
		if err != nil {
			return errors.Wrapf(err, "failed to read photo %s", scorePhoto)
		}
		req.Photo = &assess.Upload{Filename: filepath.Base(scorePhoto), Data: data}
	}

	scorer, err := newScorer(cfg, logger.Logger.Named("classifier"))
	if err != nil {
		return err
	}
	opts := assess.Options{
		Models: rulebook.NewHolder(model),
		Scorer: scorer,
		Logger: logger.Logger.Named("assess"),
	}
	if scoreSave {
		database, err := openDatabase(cfg, scoreDBPath)
		if err != nil {
			return err
		}
		if database == nil {
			return errors.WithHint(errors.New("no database configured"),
				"set database.path or pass --db-path to use --save")
		}
		defer database.Close()
		opts.Store = storage.NewAssessmentStore(database)
		opts.UploadDir = cfg.Uploads.Dir
	}
	service, err := assess.NewService(opts)
	if err != nil {
		return err
	}

	res, err := service.Assess(cmd.Context(), req)
	if err != nil {
		if errors.IsInvalidRequestError(err) {
			return errors.New(errors.UserMessage(err))
		}
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), res)
	}
	return printAssessment(res)
}

func printAssessment(res *assess.Result) error {
	pterm.DefaultSection.Printf("%.2f  %s", res.Score, res.Label)

	income := fmt.Sprintf("%g", res.Income)
	if res.IncomeClamped {
		income += " (capped)"
	}
	rows := pterm.TableData{
		{"Indicator", "Value", "Source"},
		{"GPA", fmt.Sprintf("%g", res.GPA), ""},
		{"Income", income, ""},
		{"Achievement", fmt.Sprintf("%.2f", res.Achievement), string(res.AchievementSource)},
		{"Financial", fmt.Sprintf("%.2f", res.Financial), res.FinancialSource},
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}
	if res.ScorerError != "" {
		pterm.Warning.Printf("Photo not scored: %s\n", res.ScorerError)
	}

	if !res.Fired {
		pterm.Warning.Printf("No rule fired, fallback score %.2f used\n", res.Score)
	} else {
		trace := pterm.TableData{{"Rule", "If", "Then", "Strength"}}
		rules := append([]fuzzy.RuleFiring(nil), res.Rules...)
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].Strength > rules[j].Strength })
		for _, r := range rules {
			trace = append(trace, []string{r.Name, r.Rule, r.Then, fmt.Sprintf("%.3f", r.Strength)})
		}
		fmt.Println()
		if err := pterm.DefaultTable.WithHasHeader().WithData(trace).Render(); err != nil {
			return err
		}
	}

	footer := fmt.Sprintf("Rulebook %s", res.Rulebook)
	if res.RulebookVersion != "" {
		footer += " v" + res.RulebookVersion
	}
	pterm.Info.Println(footer)
	if res.Saved {
		pterm.Success.Printf("Saved as %s\n", res.ID)
	}
	return nil
}

func optionList(table map[string]float64) string {
	return strings.Join(achievement.Options(table), ", ")
}
