package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/scholar/logger"
	"github.com/teranos/scholar/rulebook"
	"github.com/teranos/scholar/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(verbosity int, addr, dbPath string, model *rulebook.Model, scorer string) {
	versionInfo := version.Get()

	lines := []string{
		fmt.Sprintf("Version:    %s (commit %s)", versionInfo.Version, versionInfo.Short()),
		fmt.Sprintf("Built:      %s", versionInfo.BuildTime),
		fmt.Sprintf("Verbosity:  %s", logger.LevelName(verbosity)),
		fmt.Sprintf("Listening:  http://%s", displayAddr(addr)),
		fmt.Sprintf("Rulebook:   %s (%s)", model.Name, model.Source),
		fmt.Sprintf("Thresholds: very-high %g · high %g · medium %g",
			model.Thresholds.VeryHigh, model.Thresholds.High, model.Thresholds.Medium),
		fmt.Sprintf("Classifier: %s", scorer),
	}
	if dbPath != "" {
		lines = append(lines, fmt.Sprintf("Database:   %s", dbPath))
	} else {
		lines = append(lines, "Database:   disabled")
	}

	fmt.Println()
	pterm.DefaultBox.WithTitle(pterm.LightGreen("scholar")).Println(strings.Join(lines, "\n"))
	fmt.Println()
	pterm.Info.Println("Open the form in a browser or POST JSON to /api/assess")
	pterm.Info.Println("Press Ctrl+C to stop")
	fmt.Println()
}

// displayAddr turns ":5000" into "localhost:5000"
func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
