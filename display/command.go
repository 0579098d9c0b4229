package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// OutputEnv selects machine output for every command when set to "json".
const OutputEnv = "SCHOLAR_OUTPUT"

// ShouldOutputJSON determines if a command should output JSON based on its
// --json flag, falling back to SCHOLAR_OUTPUT
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd != nil && cmd.Flags().Lookup("json") != nil && cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}
	return machineOutput()
}

// OutputJSON marshals v with MarshalJSON and writes it to w
func OutputJSON(w io.Writer, v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func machineOutput() bool {
	return strings.EqualFold(os.Getenv(OutputEnv), "json")
}
