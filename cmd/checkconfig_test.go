package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestJoinOrNoneEmpty(t *testing.T) {
	if got := joinOrNone(nil, "none"); got != "(none)" {
		t.Errorf("got %q", got)
	}
}

func TestJoinOrNoneWithValues(t *testing.T) {
	if got := joinOrNone([]string{"a", "b"}, "none"); got != "a, b" {
		t.Errorf("got %q", got)
	}
}

func TestRunCheckConfigValidCustomFileReturnsNoError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`allowed_paths = ["/tmp/project"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	checkConfigPath = path
	defer func() { checkConfigPath = "" }()

	if err := runCheckConfig(checkConfigCmd, nil); err != nil {
		t.Fatalf("runCheckConfig() error = %v", err)
	}
}

func TestRunCheckConfigMissingFileReturnsError(t *testing.T) {
	checkConfigPath = filepath.Join(t.TempDir(), "missing.toml")
	defer func() { checkConfigPath = "" }()

	if err := runCheckConfig(checkConfigCmd, nil); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestRunCheckConfigInvalidTOMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("not valid toml [[["), 0o644); err != nil {
		t.Fatal(err)
	}

	checkConfigPath = path
	defer func() { checkConfigPath = "" }()

	if err := runCheckConfig(checkConfigCmd, nil); err == nil {
		t.Fatal("expected an error for invalid TOML")
	}
}
