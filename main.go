// ward is a pre-execution policy guard for container CLI commands.
//
// It runs in two modes:
//
//	echo '{...}' | ward           hook mode: read a coding agent's PreToolUse
//	                               payload from stdin, emit an allow/ask/deny
//	                               decision as JSON
//	ward run -v ~/x:/y ubuntu     wrapper mode: evaluate argv directly and,
//	                               on allow, exec the real docker binary
//
// Wrapper mode is also entered transparently when ward is invoked under
// the name "docker" or "docker-compose" (see "ward setup", which
// installs the symlink that makes this happen). Mode is decided before
// cobra ever parses argv, since wrapper mode's argv is an arbitrary
// container-CLI invocation that must reach the policy engine unparsed.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nekoruri/ward/cmd"
	"github.com/nekoruri/ward/internal/audit"
	"github.com/nekoruri/ward/internal/config"
	"github.com/nekoruri/ward/internal/constants"
	"github.com/nekoruri/ward/internal/logger"
	"github.com/nekoruri/ward/internal/wrapper"
)

// cobraSubcommands lists the first-argument tokens that stay on the
// cobra dispatch path instead of being treated as a wrapper-mode
// container-CLI invocation.
var cobraSubcommands = map[string]bool{
	"setup":        true,
	"check-config": true,
	"completion":   true,
	"help":         true,
	"--help":       true,
	"-h":           true,
	"--version":    true,
}

func main() {
	args := os.Args

	if wrapperArgs, ok := detectImplicitWrapperMode(args); ok {
		os.Exit(runWrapperMode(wrapperArgs))
	}

	if len(args) == 2 && args[1] == "--version" {
		fmt.Println("ward " + version)
		return
	}

	if len(args) > 1 && !cobraSubcommands[args[1]] {
		os.Exit(runWrapperMode(args[1:]))
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// version is ward's release version, reported by --version.
const version = "0.1.0"

// detectImplicitWrapperMode reports whether argv[0]'s base name is the
// wrapped CLI's own name, in which case every remaining argument is
// forwarded as wrapper-mode argv (docker-compose gets "compose"
// prepended so it lands on the same subcommand dispatch as
// "docker compose").
func detectImplicitWrapperMode(args []string) ([]string, bool) {
	if len(args) == 0 {
		return nil, false
	}
	switch filepath.Base(args[0]) {
	case constants.WrappedBinaryName:
		return args[1:], true
	case constants.WrappedComposeBinaryName:
		return append([]string{"compose"}, args[1:]...), true
	default:
		return nil, false
	}
}

// runWrapperMode loads configuration, opens the audit sink (forced on by
// WARD_AUDIT=1), recovers from any panic as a denial (matching hook
// mode's fail-safe posture), and hands off to wrapper.Run.
func runWrapperMode(args []string) int {
	exitCode := 1
	func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "ward: internal error (panic). Blocking for safety. Please report this issue: %v\n", r)
			}
		}()

		logger.Init(logger.Options{Verbose: contains(args, "--verbose")})

		cfg := config.Get()
		source := config.Source()

		auditCfg := cfg.Audit
		if os.Getenv(constants.EnvAudit) == "1" {
			auditCfg.Enabled = true
		}
		if err := audit.Init(auditCfg); err != nil {
			logger.Debug("failed to initialize audit sink", "error", err)
		}
		defer audit.Close()

		exitCode = wrapper.Run(args, cfg, source)
	}()
	return exitCode
}

func contains(args []string, target string) bool {
	for _, a := range args {
		if a == target {
			return true
		}
	}
	return false
}
