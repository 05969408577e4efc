// Package config handles loading and validating ward's PolicyConfig.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nekoruri/ward/internal/constants"
	"github.com/nekoruri/ward/internal/logger"
)

//go:embed config.toml
var defaultConfig []byte

// AuditFormat selects the audit sink's on-disk encoding.
type AuditFormat string

const (
	AuditFormatJSONL AuditFormat = "jsonl"
	AuditFormatOTLP  AuditFormat = "otlp"
	AuditFormatBoth  AuditFormat = "both"
)

// NonInteractiveAsk resolves an Ask decision when the wrapper has no
// controlling terminal to prompt on.
type NonInteractiveAsk string

const (
	AskDeny  NonInteractiveAsk = "deny"
	AskAllow NonInteractiveAsk = "allow"
)

// AuditConfig is the audit sub-section of PolicyConfig.
type AuditConfig struct {
	Enabled  bool        `toml:"enabled"`
	Format   AuditFormat `toml:"format"`
	JSONLPath string     `toml:"jsonl_path"`
	OTLPPath  string     `toml:"otlp_path"`
}

// WrapperConfig is the wrapper sub-section of PolicyConfig.
type WrapperConfig struct {
	DockerPath        string            `toml:"docker_path"`
	NonInteractiveAsk NonInteractiveAsk `toml:"non_interactive_ask"`
}

// PolicyConfig is ward's configuration model (spec.md §3).
type PolicyConfig struct {
	AllowedPaths        []string      `toml:"allowed_paths"`
	SensitivePaths       []string      `toml:"sensitive_paths"`
	BlockedFlags         []string      `toml:"blocked_flags"`
	BlockedCapabilities  []string      `toml:"blocked_capabilities"`
	AllowedImages        []string      `toml:"allowed_images"`
	BlockDockerSocket    bool          `toml:"block_docker_socket"`
	Wrapper              WrapperConfig `toml:"wrapper"`
	Audit                AuditConfig   `toml:"audit"`
}

// ConfigIssue is a single validation finding.
type ConfigIssue struct {
	Field   string
	Message string
	Fatal   bool
}

func (i ConfigIssue) String() string {
	level := "warning"
	if i.Fatal {
		level = "error"
	}
	return fmt.Sprintf("%s: %s: %s", level, i.Field, i.Message)
}

var (
	globalConfig       *PolicyConfig
	configInitialized  bool
	configSource       string
)

// Default returns the built-in default PolicyConfig.
func Default() PolicyConfig {
	cfg, err := Load(defaultConfig)
	if err != nil {
		// The embedded default must always parse; a failure here is a
		// packaging bug, not a runtime condition to recover from
		// gracefully.
		panic("ward: embedded default config.toml is invalid: " + err.Error())
	}
	return cfg
}

// GetConfigDir returns the config directory path. Uses WARD_CONFIG env
// var if set, otherwise ~/.config/ward.
func GetConfigDir() (string, error) {
	if dir := os.Getenv(constants.EnvConfigDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, constants.XDGConfigSubdir, constants.AppName), nil
}

// EnsureConfigFiles creates the config directory and writes the default
// config file if it doesn't exist yet.
func EnsureConfigFiles(configDir string) error {
	if err := os.MkdirAll(configDir, constants.DirMode); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	configPath := filepath.Join(configDir, constants.ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, defaultConfig, constants.FileMode); err != nil {
			return fmt.Errorf("failed to write config.toml: %w", err)
		}
	}
	return nil
}

// Load parses TOML data into a PolicyConfig. Only three unset fields get
// a default: block_docker_socket (true), wrapper.non_interactive_ask
// ("deny") and audit.format ("jsonl"). Every other unset field keeps its
// zero value; lists such as sensitive_paths and blocked_capabilities are
// not taken from Default(), and audit stays disabled.
func Load(data []byte) (PolicyConfig, error) {
	cfg := PolicyConfig{BlockDockerSocket: true}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return PolicyConfig{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if cfg.Wrapper.NonInteractiveAsk == "" {
		cfg.Wrapper.NonInteractiveAsk = AskDeny
	}
	if cfg.Audit.Format == "" {
		cfg.Audit.Format = AuditFormatJSONL
	}
	return cfg, nil
}

// Init loads the configuration from disk, creating defaults if
// necessary. On any failure it falls back to the embedded default and
// records the error for diagnostics, but never returns without a usable
// globalConfig (fail-safe: a broken config file must not crash ward).
func Init() error {
	if configInitialized {
		return nil
	}

	configDir, err := GetConfigDir()
	if err != nil {
		logger.Debug("failed to get config dir, using embedded defaults", "error", err)
		fallback()
		return err
	}

	if err := EnsureConfigFiles(configDir); err != nil {
		logger.Debug("failed to ensure config files, using embedded defaults", "error", err)
		fallback()
		return err
	}

	configPath := filepath.Join(configDir, constants.ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		logger.Debug("failed to read config file, using embedded defaults", "path", configPath, "error", err)
		fallback()
		return fmt.Errorf("failed to read config.toml: %w", err)
	}

	cfg, err := Load(data)
	if err != nil {
		logger.Debug("failed to parse config, using embedded defaults", "error", err)
		fallback()
		return fmt.Errorf("failed to load config: %w", err)
	}

	globalConfig = &cfg
	configSource = configPath
	configInitialized = true
	logger.Debug("config loaded", "path", configPath, "allowed_paths", len(cfg.AllowedPaths))
	return nil
}

func fallback() {
	cfg := Default()
	globalConfig = &cfg
	configSource = "embedded default"
	configInitialized = true
}

// Get returns the current configuration, initializing with defaults if
// Init has not been called yet.
func Get() *PolicyConfig {
	if !configInitialized {
		Init()
	}
	return globalConfig
}

// Source returns a human-readable description of where the active
// config was loaded from (a path, or "embedded default").
func Source() string {
	if !configInitialized {
		Init()
	}
	return configSource
}

// Reset resets the configuration state. Used for testing.
func Reset() {
	configInitialized = false
	globalConfig = nil
	configSource = ""
}

// GetDefaultConfig returns the embedded default configuration bytes.
func GetDefaultConfig() []byte {
	return defaultConfig
}

// Validate checks a PolicyConfig against the rules from
// original_source/src/config.rs: allowed_paths must be absolute,
// sensitive_paths must be relative, blocked_flags must start with "--",
// blocked_capabilities must be upper-case, and duplicate entries in any
// list are flagged as non-fatal warnings.
func Validate(cfg PolicyConfig) []ConfigIssue {
	var issues []ConfigIssue

	for _, p := range cfg.AllowedPaths {
		if !filepath.IsAbs(p) {
			issues = append(issues, ConfigIssue{"allowed_paths", fmt.Sprintf("%q must be an absolute path", p), true})
		}
	}
	issues = append(issues, dupeWarnings("allowed_paths", cfg.AllowedPaths)...)

	for _, p := range cfg.SensitivePaths {
		if filepath.IsAbs(p) {
			issues = append(issues, ConfigIssue{"sensitive_paths", fmt.Sprintf("%q must be relative to $HOME", p), true})
		}
	}
	issues = append(issues, dupeWarnings("sensitive_paths", cfg.SensitivePaths)...)

	for _, f := range cfg.BlockedFlags {
		if !strings.HasPrefix(f, "--") {
			issues = append(issues, ConfigIssue{"blocked_flags", fmt.Sprintf("%q must start with \"--\"", f), true})
		}
	}
	issues = append(issues, dupeWarnings("blocked_flags", cfg.BlockedFlags)...)

	for _, c := range cfg.BlockedCapabilities {
		if c != strings.ToUpper(c) {
			issues = append(issues, ConfigIssue{"blocked_capabilities", fmt.Sprintf("%q must be upper-case", c), true})
		}
	}
	issues = append(issues, dupeWarnings("blocked_capabilities", cfg.BlockedCapabilities)...)

	if cfg.Audit.Enabled {
		if (cfg.Audit.Format == AuditFormatJSONL || cfg.Audit.Format == AuditFormatBoth) && cfg.Audit.JSONLPath == "" {
			issues = append(issues, ConfigIssue{"audit.jsonl_path", "required when audit.enabled and format includes jsonl", true})
		}
		if (cfg.Audit.Format == AuditFormatOTLP || cfg.Audit.Format == AuditFormatBoth) && cfg.Audit.OTLPPath == "" {
			issues = append(issues, ConfigIssue{"audit.otlp_path", "required when audit.enabled and format includes otlp", true})
		}
	}

	return issues
}

func dupeWarnings(field string, values []string) []ConfigIssue {
	seen := map[string]bool{}
	var issues []ConfigIssue
	for _, v := range values {
		if seen[v] {
			issues = append(issues, ConfigIssue{field, fmt.Sprintf("duplicate entry %q", v), false})
		}
		seen[v] = true
	}
	return issues
}

// IsPathAllowed reports whether p (already normalised) matches an
// allowed_paths entry.
func IsPathAllowed(cfg *PolicyConfig, normalized string) bool {
	for _, a := range cfg.AllowedPaths {
		if normalized == a || strings.HasPrefix(normalized, a+"/") {
			return true
		}
	}
	return false
}

// IsFlagBlocked reports whether flag appears in blocked_flags.
func IsFlagBlocked(cfg *PolicyConfig, flag string) bool {
	for _, f := range cfg.BlockedFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// IsCapabilityBlocked reports whether capability name cap (case folded
// to upper, matching Docker's own convention) appears in
// blocked_capabilities.
func IsCapabilityBlocked(cfg *PolicyConfig, cap string) bool {
	upper := strings.ToUpper(cap)
	for _, c := range cfg.BlockedCapabilities {
		if c == upper {
			return true
		}
	}
	return false
}
