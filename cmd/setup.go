package cmd

import (
	"os"

	"github.com/nekoruri/ward/internal/setup"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:                "setup",
	Short:              "Install the wrapper-mode symlink",
	DisableFlagParsing: true, // forwarded to internal/setup.Run verbatim
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(setup.Run(args))
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
