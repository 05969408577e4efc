package cmd

import (
	"fmt"
	"os"

	"github.com/nekoruri/ward/internal/hook"
	"github.com/nekoruri/ward/internal/model"
	"github.com/spf13/cobra"
)

// runHook is the root command's default action: it reads one
// PreToolUse payload from stdin and writes the decision JSON to
// stdout. A panic anywhere in the pipeline is recovered here and
// converted into a deny decision, matching
// original_source/src/main.rs's panic-hook fail-safe.
func runHook(cmd *cobra.Command, args []string) {
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("ward: internal error (panic). Blocking for safety. Please report this issue: %v", r)
			fmt.Println(hook.FormatOutput(model.DenyDecision(reason)))
		}
	}()

	result := hook.ProcessWithResult(os.Stdin)
	if result.Output != "" {
		fmt.Println(result.Output)
	}
}
