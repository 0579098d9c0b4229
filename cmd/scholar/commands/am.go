package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/scholar/am"
	"github.com/teranos/scholar/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage scholar configuration",
	Long: `am: Manage scholar configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/scholar/am.toml)
3. User config (~/.scholar/am.toml)
4. Project config (./am.toml, searched up from the working directory)
5. Environment variables (SCHOLAR_* prefix, e.g. SCHOLAR_SERVER_PORT)

Examples:
  scholar am show                    # Show current configuration
  scholar am show --format json      # Show configuration in JSON format
  scholar am show --sources          # Show where each value came from
  scholar am get engine.thresholds   # Get specific config value
  scholar am validate                # Validate current configuration
  scholar am init                    # Write the defaults to ./am.toml`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., server.port, classifier.endpoint)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Long:  "Write the default configuration as TOML (default ./am.toml). An existing file is kept as a numbered backup.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmInit,
}

var (
	configFormat  string
	configSources bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", am.FormatTOML, "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&configSources, "sources", false, "Show the source of each setting")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if configSources {
		return showSources()
	}

	settings, err := am.Settings()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	data, err := am.Marshal(settings, configFormat)
	if err != nil {
		return err
	}
	if configFormat != am.FormatJSON {
		fmt.Fprintln(cmd.OutOrStdout(), "# scholar configuration")
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func showSources() error {
	settings, err := am.Introspect()
	if err != nil {
		return fmt.Errorf("failed to get config introspection: %w", err)
	}

	rows := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range settings {
		value := fmt.Sprintf("%v", s.Value)
		// Truncate long values
		if len(value) > 50 {
			value = value[:47] + "..."
		}
		rows = append(rows, []string{s.Key, value, string(s.Source), s.SourcePath})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runAmGet(cmd *cobra.Command, args []string) error {
	value, err := am.Get(args[0])
	if err != nil {
		if errors.IsNotFoundError(err) {
			return fmt.Errorf("configuration key %q not found", args[0])
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %s", errors.UserMessage(err))
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := "am.toml"
	if len(args) > 0 {
		path = args[0]
	}
	if err := am.WriteDefaults(path); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote default configuration to %s\n", path)
	return nil
}
