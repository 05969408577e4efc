package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/nekoruri/ward/internal/config"
	"github.com/spf13/cobra"
)

var checkConfigPath string

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration and show the resolved policy",
	Long: `check-config loads ward's configuration, prints a summary of every
policy field, and runs it through ward's validation rules (only this
command applies them; normal runs load the file unvalidated): absolute allowed_paths,
relative sensitive_paths, "--"-prefixed blocked_flags, upper-case
blocked_capabilities, and duplicate-entry warnings.`,
	RunE: runCheckConfig,
}

func init() {
	checkConfigCmd.Flags().StringVar(&checkConfigPath, "config", "", "Path to a config.toml to validate instead of the active config")
	rootCmd.AddCommand(checkConfigCmd)
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	var cfg config.PolicyConfig
	var source string

	if checkConfigPath != "" {
		data, err := os.ReadFile(checkConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", checkConfigPath, err)
		}
		loaded, err := config.Load(data)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", checkConfigPath, err)
		}
		cfg = loaded
		source = checkConfigPath
	} else {
		cfg = *config.Get()
		source = config.Source()
	}

	fmt.Fprintf(os.Stderr, "Config source: %s\n\n", source)
	printConfigSummary(cfg)

	issues := config.Validate(cfg)
	if len(issues) == 0 {
		fmt.Fprintln(os.Stderr, "Validation: OK (no issues found)")
		return nil
	}

	fmt.Fprintln(os.Stderr, "Validation issues:")
	hasErrors := false
	for _, issue := range issues {
		level := "WARNING"
		if issue.Fatal {
			level = "ERROR"
			hasErrors = true
		}
		fmt.Fprintf(os.Stderr, "  %s: %s: %s\n", level, issue.Field, issue.Message)
	}

	if hasErrors {
		os.Exit(1)
	}
	return nil
}

func printConfigSummary(cfg config.PolicyConfig) {
	fmt.Fprintln(os.Stderr, "Current configuration:")
	fmt.Fprintf(os.Stderr, "  allowed_paths:        [%s]\n", joinOrNone(cfg.AllowedPaths, "none"))
	fmt.Fprintf(os.Stderr, "  sensitive_paths:      [%s]\n", strings.Join(cfg.SensitivePaths, ", "))
	fmt.Fprintf(os.Stderr, "  blocked_flags:        [%s]\n", strings.Join(cfg.BlockedFlags, ", "))
	fmt.Fprintf(os.Stderr, "  blocked_capabilities: [%s]\n", strings.Join(cfg.BlockedCapabilities, ", "))
	fmt.Fprintf(os.Stderr, "  allowed_images:       [%s]\n", joinOrNone(cfg.AllowedImages, "any"))
	fmt.Fprintf(os.Stderr, "  block_docker_socket:  %v\n", cfg.BlockDockerSocket)
	fmt.Fprintf(os.Stderr, "  audit.enabled:        %v\n", cfg.Audit.Enabled)
	if cfg.Audit.Enabled {
		fmt.Fprintf(os.Stderr, "  audit.format:         %s\n", cfg.Audit.Format)
		fmt.Fprintf(os.Stderr, "  audit.jsonl_path:     %s\n", cfg.Audit.JSONLPath)
		fmt.Fprintf(os.Stderr, "  audit.otlp_path:      %s\n", cfg.Audit.OTLPPath)
	}
	fmt.Fprintln(os.Stderr)
}

func joinOrNone(values []string, empty string) string {
	if len(values) == 0 {
		return "(" + empty + ")"
	}
	return strings.Join(values, ", ")
}
