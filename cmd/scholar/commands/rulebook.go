package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/scholar/am"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/rulebook"
)

// RulebookCmd groups rulebook subcommands
var RulebookCmd = &cobra.Command{
	Use:   "rulebook",
	Short: "Show, validate or create a rulebook",
	Long: `A rulebook is a TOML file holding the fuzzy variables, their terms and
the rules that combine them. Without rulebook.path the built-in
scholarship rulebook is used.

Examples:
  scholar rulebook show                   # Print the active rulebook
  scholar rulebook validate my.toml       # Check a rulebook compiles
  scholar rulebook init my.toml           # Write the built-in rulebook to edit`,
}

var rulebookShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Print the active rulebook",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRulebookShow,
}

var rulebookValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check that a rulebook parses and compiles",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRulebookValidate,
}

var rulebookInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the built-in rulebook to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulebookInit,
}

var (
	rulebookFormat string
	rulebookForce  bool
)

func init() {
	rulebookShowCmd.Flags().StringVar(&rulebookFormat, "format", am.FormatTOML, "Output format: toml, json")
	rulebookInitCmd.Flags().BoolVar(&rulebookForce, "force", false, "Overwrite an existing file")

	RulebookCmd.AddCommand(rulebookShowCmd)
	RulebookCmd.AddCommand(rulebookValidateCmd)
	RulebookCmd.AddCommand(rulebookInitCmd)
}

func pathArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func runRulebookShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	model, err := loadModel(cfg, pathArg(args))
	if err != nil {
		return err
	}

	switch rulebookFormat {
	case am.FormatTOML:
		fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", model.Source)
		return rulebook.Encode(cmd.OutOrStdout(), model.File)
	case am.FormatJSON:
		out, err := json.MarshalIndent(model.File, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode rulebook")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json)", rulebookFormat)
	}
}

func runRulebookValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	model, err := loadModel(cfg, pathArg(args))
	if err != nil {
		if hint := errors.UserMessage(err); hint != err.Error() {
			return fmt.Errorf("%w\n  hint: %s", err, hint)
		}
		return err
	}

	rows := pterm.TableData{{"Variable", "Domain", "Terms"}}
	for _, v := range append(model.Engine.Inputs(), model.Engine.Output()) {
		terms := ""
		for i, t := range v.Terms {
			if i > 0 {
				terms += ", "
			}
			terms += t.Name
		}
		rows = append(rows, []string{v.Name, fmt.Sprintf("[%g, %g]", v.Min, v.Max), terms})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}
	pterm.Success.Printf("Rulebook %s is valid: %d rules (%s)\n", model.Name, len(model.Engine.Rules()), model.Source)
	return nil
}

func runRulebookInit(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err == nil && !rulebookForce {
		return errors.WithHint(errors.Newf("%s already exists", path), "pass --force to overwrite it")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, am.DefaultFilePermissions)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()
	if err := rulebook.Encode(f, rulebook.Default()); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", path)
	pterm.Info.Printf("Point rulebook.path at it (or pass --rulebook) to use it\n")
	return nil
}
