package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/scholar/display"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/fuzzy"
	"github.com/teranos/scholar/storage"
)

// HistoryCmd lists stored assessments
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored assessments",
	Long: `List assessments stored by 'scholar serve' and 'scholar score --save',
newest first.`,
	Example: `  scholar history                  # Last 50 assessments
  scholar history --tier very-high --limit 10
  scholar history --stats          # Counts per tier and mean score`,
	RunE: runHistory,
}

var (
	historyLimit  int
	historyTier   string
	historyStats  bool
	historyDBPath string
)

func init() {
	HistoryCmd.Flags().IntVar(&historyLimit, "limit", storage.DefaultListLimit, "Maximum number of assessments")
	HistoryCmd.Flags().StringVar(&historyTier, "tier", "", "Only this tier: low, medium, high, very-high")
	HistoryCmd.Flags().BoolVar(&historyStats, "stats", false, "Show totals instead of a list")
	HistoryCmd.Flags().Bool("json", false, "Print as JSON")
	HistoryCmd.Flags().StringVar(&historyDBPath, "db-path", "", "Database path (overrides config)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg, historyDBPath)
	if err != nil {
		return err
	}
	if database == nil {
		return errors.WithHint(errors.New("no database configured"), "set database.path or pass --db-path")
	}
	defer database.Close()
	store := storage.NewAssessmentStore(database)

	if historyStats {
		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(cmd.OutOrStdout(), stats)
		}
		return printStats(stats)
	}

	opts := storage.ListOptions{Limit: historyLimit}
	if historyTier != "" {
		for _, t := range fuzzy.Tiers() {
			if string(t) == historyTier {
				opts.Tier = t
			}
		}
		if opts.Tier == "" {
			return errors.Newf("unknown tier %q (use low, medium, high or very-high)", historyTier)
		}
	}
	list, err := store.List(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), list)
	}
	if len(list) == 0 {
		pterm.Info.Println("No assessments stored yet")
		return nil
	}

	rows := pterm.TableData{{"ID", "When", "Score", "Tier", "GPA", "Income", "Achievement", "Financial", "Rulebook"}}
	for _, a := range list {
		rows = append(rows, []string{
			shortID(a.ID),
			a.CreatedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%.2f", a.Score),
			string(a.Tier),
			fmt.Sprintf("%g", a.GPA),
			fmt.Sprintf("%g", a.Income),
			fmt.Sprintf("%.1f %s", a.Achievement, a.AchievementSource),
			fmt.Sprintf("%.1f %s", a.Financial, a.FinancialSource),
			a.Rulebook,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func printStats(stats *storage.Stats) error {
	pterm.DefaultSection.Printf("%d assessments, mean score %.2f", stats.Total, stats.MeanScore)
	rows := pterm.TableData{{"Tier", "Count"}}
	tiers := fuzzy.Tiers()
	for i := len(tiers) - 1; i >= 0; i-- {
		rows = append(rows, []string{tiers[i].Label(), fmt.Sprintf("%d", stats.ByTier[tiers[i]])})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
