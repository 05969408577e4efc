// Package testutil provides shared test utilities for ward's test suite.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nekoruri/ward/internal/audit"
	"github.com/nekoruri/ward/internal/config"
	"github.com/nekoruri/ward/internal/constants"
)

// SetupTestConfig creates a temporary config directory with the given
// TOML content (or the embedded default when configContent is empty)
// and points WARD_CONFIG at it. Returns a cleanup function that should
// be deferred.
func SetupTestConfig(t *testing.T, configContent string) func() {
	t.Helper()

	tmpDir := t.TempDir()
	os.Setenv(constants.EnvConfigDir, tmpDir)

	if configContent != "" {
		configPath := filepath.Join(tmpDir, constants.ConfigFileName)
		if err := os.WriteFile(configPath, []byte(configContent), constants.FileMode); err != nil {
			t.Fatal(err)
		}
	}

	config.Reset()
	config.Init()

	return func() {
		os.Unsetenv(constants.EnvConfigDir)
		config.Reset()
	}
}

// SetupTestAudit opens the jsonl audit sink at a temporary path and
// returns the log path alongside a cleanup function that closes the
// sink. Mirrors SetupTestConfig's cleanup-closure shape, passing the
// temporary path straight to audit.Init so tests that exercise
// audit.Log don't write to the
// real ~/.local/share/ward/audit.log.
func SetupTestAudit(t *testing.T) (string, func()) {
	t.Helper()

	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, constants.AuditFileName)

	if err := audit.Init(config.AuditConfig{
		Enabled:   true,
		Format:    config.AuditFormatJSONL,
		JSONLPath: logPath,
	}); err != nil {
		t.Fatal(err)
	}

	return logPath, func() {
		audit.Reset()
	}
}

// MinimalTestConfig is a minimal PolicyConfig TOML document for tests
// that need a non-default but still deterministic configuration.
const MinimalTestConfig = `
allowed_paths = ["/tmp/ward-test"]
sensitive_paths = [".ssh"]
blocked_flags = ["--privileged"]
blocked_capabilities = ["SYS_ADMIN"]
block_docker_socket = true
`
