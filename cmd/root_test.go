package cmd

import "testing"

func TestRootCmdUseIsWard(t *testing.T) {
	if rootCmd.Use != "ward" {
		t.Errorf("Use = %q, want ward", rootCmd.Use)
	}
}

func TestRootCmdHasExpectedSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"setup", "check-config", "completion"} {
		if !names[want] {
			t.Errorf("expected rootCmd to have a %q subcommand, got %v", want, names)
		}
	}
}

func TestIsVerboseDefaultsFalse(t *testing.T) {
	verbose = false
	if IsVerbose() {
		t.Error("expected IsVerbose() to be false by default")
	}
}

func TestIsVerboseReflectsFlag(t *testing.T) {
	verbose = true
	defer func() { verbose = false }()
	if !IsVerbose() {
		t.Error("expected IsVerbose() to be true after setting verbose")
	}
}
