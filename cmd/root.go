// Package cmd implements ward's cobra command tree: the root command
// (hook mode by default), plus setup/check-config/completion
// subcommands. Wrapper mode bypasses this tree entirely: main.go
// detects it from argv before cobra ever sees the arguments, since
// wrapper mode's argv is an arbitrary container-CLI invocation that
// cobra's own flag parser must never touch.
package cmd

import (
	"os"

	"github.com/nekoruri/ward/internal/audit"
	"github.com/nekoruri/ward/internal/config"
	"github.com/nekoruri/ward/internal/constants"
	"github.com/nekoruri/ward/internal/logger"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	noAuditLog bool
)

var rootCmd = &cobra.Command{
	Use:   "ward",
	Short: "A pre-execution policy guard for container CLI commands",
	Long: `ward guards container CLI invocations (docker, docker compose) against
dangerous flags, host-path mounts, and compose-file settings, in two
modes:

  echo '{{...}}' | ward                      Hook mode (coding agent PreToolUse)
  ward setup                                Install the wrapper-mode symlink
  ward check-config [--config PATH]         Validate configuration

Wrapper mode (ward invoked as "docker", or with container-CLI
arguments directly) is handled before this command tree runs; see
"ward setup".`,
	Run:          runHook,
	SilenceUsage: true,
}

// Execute runs the command tree. Invoked by main.go when argv didn't
// already dispatch to wrapper mode.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initApp)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&noAuditLog, "no-audit-log", false, "Disable audit logging")
}

// initApp wires up the logger and configuration, then opens the audit
// sink per config; --no-audit-log turns it off and WARD_AUDIT=1 turns it
// on regardless of config.
func initApp() {
	logger.Init(logger.Options{Verbose: verbose})

	config.Init()
	cfg := config.Get()

	auditCfg := cfg.Audit
	if noAuditLog {
		auditCfg.Enabled = false
	} else if v := os.Getenv(constants.EnvAudit); v == "1" {
		auditCfg.Enabled = true
	}
	if err := audit.Init(auditCfg); err != nil {
		logger.Debug("failed to initialize audit sink", "error", err)
	}
}

// IsVerbose reports whether --verbose was passed.
func IsVerbose() bool {
	return verbose
}
