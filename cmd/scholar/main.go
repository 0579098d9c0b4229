package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/scholar/cmd/scholar/commands"
	"github.com/teranos/scholar/logger"
)

var rootCmd = &cobra.Command{
	Use:   "scholar",
	Short: "scholar - fuzzy scholarship priority scoring",
	Long: `scholar - fuzzy scholarship priority scoring.

Scores scholarship applicants from GPA, parents' income, achievement and
financial condition with a Mamdani fuzzy rulebook, and classifies the score
into a priority tier.

Available commands:
  serve     - Start the applicant form and JSON API
  score     - Score one applicant from the command line
  sweep     - Print the score curve for one indicator
  history   - List stored assessments
  rulebook  - Show, validate or create a rulebook
  am        - Manage scholar configuration ("I am")
  version   - Show version information

Examples:
  scholar serve -v                                 # Serve on :5000 with info logs
  scholar score --gpa 3.6 --income 2500000 --achievement 85
  scholar sweep --var income --from 0 --to 10000000 --step 1000000
  scholar rulebook init rulebook.toml              # Start a custom rulebook`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(logger.Options{JSON: jsonLogs, Verbosity: verbosity}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ScoreCmd)
	rootCmd.AddCommand(commands.SweepCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.RulebookCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
