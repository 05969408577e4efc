// Package compose analyses a container-compose YAML file (and its
// sibling .env file) into a model.ComposeAnalysis, following the same
// fact shape the argument parser produces for a single CLI invocation.
// Grounded on original_source/src/compose.rs.
package compose

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/nekoruri/ward/internal/model"
	"gopkg.in/yaml.v3"
)

// discoveryNames is the priority order find-compose-file searches in,
// after an explicit -f/--file override.
var discoveryNames = []string{"compose.yml", "compose.yaml", "docker-compose.yml", "docker-compose.yaml"}

// FindComposeFile resolves the compose file to analyse: an explicit
// path wins; otherwise discoveryNames are tried in order starting at
// dir and walking upward.
func FindComposeFile(explicit, dir string) (string, bool) {
	if explicit != "" {
		p := explicit
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
		return p, false
	}
	for d := dir; ; {
		for _, name := range discoveryNames {
			p := filepath.Join(d, name)
			if _, err := os.Stat(p); err == nil {
				return p, true
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			return "", false
		}
		d = parent
	}
}

type composeFile struct {
	Include  []yaml.Node            `yaml:"include"`
	Services map[string]composeSvc  `yaml:"services"`
}

type composeSvc struct {
	Volumes      []yaml.Node `yaml:"volumes"`
	Privileged   bool        `yaml:"privileged"`
	NetworkMode  string      `yaml:"network_mode"`
	Pid          string      `yaml:"pid"`
	UsernsMode   string      `yaml:"userns_mode"`
	Ipc          string      `yaml:"ipc"`
	Uts          string      `yaml:"uts"`
	CapAdd       []string    `yaml:"cap_add"`
	SecurityOpt  []string    `yaml:"security_opt"`
	Devices      []string    `yaml:"devices"`
	ExtraHosts   yaml.Node   `yaml:"extra_hosts"`
	Sysctls      yaml.Node   `yaml:"sysctls"`
	EnvFile      yaml.Node   `yaml:"env_file"`
}

// Analyze reads and parses the compose file at path (joined against
// composeDir for relative bind sources), loads a sibling .env file if
// present, and produces the aggregated ComposeAnalysis fact shape.
func Analyze(path string) (model.ComposeAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ComposeAnalysis{}, err
	}
	composeDir := filepath.Dir(path)
	env := loadEnvFile(filepath.Join(composeDir, ".env"))

	var doc composeFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return model.ComposeAnalysis{}, err
	}

	var analysis model.ComposeAnalysis

	for _, node := range doc.Include {
		for _, p := range extractIncludePaths(node) {
			analysis.IncludePaths = append(analysis.IncludePaths, resolvePath(p, composeDir))
		}
	}

	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		svc := doc.Services[name]
		analysis.HostPaths = append(analysis.HostPaths, extractServiceVolumes(svc, composeDir, env)...)
		analysis.DangerousFlags = append(analysis.DangerousFlags, extractServiceDangerousSettings(svc)...)
		analysis.EnvFilePaths = append(analysis.EnvFilePaths, extractServiceEnvFilePaths(svc, composeDir)...)
	}

	return analysis, nil
}

func extractIncludePaths(node yaml.Node) []string {
	switch node.Kind {
	case yaml.ScalarNode:
		return []string{node.Value}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "path" {
				return []string{node.Content[i+1].Value}
			}
		}
	case yaml.SequenceNode:
		var out []string
		for _, c := range node.Content {
			out = append(out, extractIncludePaths(*c)...)
		}
		return out
	}
	return nil
}

// extractServiceVolumes handles both short ("SRC:DST[:MODE]") and long
// mapping ({type, source, target, bind: {...}}) volume syntax, including
// the driver_opts.device bind-mount masquerade used by some compose
// files to express a bind mount under the "volume" driver.
func extractServiceVolumes(svc composeSvc, composeDir string, env map[string]string) []string {
	var paths []string
	for _, node := range svc.Volumes {
		switch node.Kind {
		case yaml.ScalarNode:
			if src := parseShortVolume(expandVariables(node.Value, env)); src != "" {
				paths = append(paths, resolvePath(src, composeDir))
			}
		case yaml.MappingNode:
			if src := parseLongVolume(node); src != "" {
				paths = append(paths, resolvePath(expandVariables(src, env), composeDir))
			}
		}
	}
	return paths
}

// parseShortVolume extracts the host source from "SRC:DST[:MODE]",
// returning "" for a bare named volume (no leading '.', '/', or '~').
func parseShortVolume(spec string) string {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return ""
	}
	src := parts[0]
	if strings.HasPrefix(src, "/") || strings.HasPrefix(src, ".") || strings.HasPrefix(src, "~") {
		return src
	}
	return ""
}

func parseLongVolume(node yaml.Node) string {
	m := mapOf(node)
	if m["type"] != "" && m["type"] != "bind" {
		// Could still be a "volume" type masquerading as a bind via
		// driver_opts.device, either at the top level or under volume:.
		if device := nestedValue(node, "driver_opts", "device"); device != "" {
			return device
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "volume" {
				if device := nestedValue(*node.Content[i+1], "driver_opts", "device"); device != "" {
					return device
				}
			}
		}
		return ""
	}
	if src := m["source"]; src != "" {
		return src
	}
	return nestedValue(node, "driver_opts", "device")
}

func mapOf(node yaml.Node) map[string]string {
	out := map[string]string{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i+1].Kind == yaml.ScalarNode {
			out[node.Content[i].Value] = node.Content[i+1].Value
		}
	}
	return out
}

func nestedValue(node yaml.Node, key, subkey string) string {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return mapOf(*node.Content[i+1])[subkey]
		}
	}
	return ""
}

func extractServiceDangerousSettings(svc composeSvc) []model.DangerousFlag {
	var flags []model.DangerousFlag

	if svc.Privileged {
		flags = append(flags, model.DangerousFlag{Kind: model.FlagPrivileged})
	}
	switch svc.NetworkMode {
	case "host":
		flags = append(flags, model.DangerousFlag{Kind: model.FlagNetworkHost})
	default:
		if ref, ok := strings.CutPrefix(svc.NetworkMode, "service:"); ok {
			flags = append(flags, model.DangerousFlag{Kind: model.FlagNetworkContainer, Value: ref})
		} else if ref, ok := strings.CutPrefix(svc.NetworkMode, "container:"); ok {
			flags = append(flags, model.DangerousFlag{Kind: model.FlagNetworkContainer, Value: ref})
		}
	}
	switch svc.Pid {
	case "host":
		flags = append(flags, model.DangerousFlag{Kind: model.FlagPidHost})
	default:
		if ref, ok := strings.CutPrefix(svc.Pid, "service:"); ok {
			flags = append(flags, model.DangerousFlag{Kind: model.FlagPidContainer, Value: ref})
		} else if ref, ok := strings.CutPrefix(svc.Pid, "container:"); ok {
			flags = append(flags, model.DangerousFlag{Kind: model.FlagPidContainer, Value: ref})
		}
	}
	switch svc.Ipc {
	case "host":
		flags = append(flags, model.DangerousFlag{Kind: model.FlagIpcHost})
	default:
		if ref, ok := strings.CutPrefix(svc.Ipc, "service:"); ok {
			flags = append(flags, model.DangerousFlag{Kind: model.FlagIpcContainer, Value: ref})
		} else if ref, ok := strings.CutPrefix(svc.Ipc, "container:"); ok {
			flags = append(flags, model.DangerousFlag{Kind: model.FlagIpcContainer, Value: ref})
		}
	}
	if svc.Uts == "host" {
		flags = append(flags, model.DangerousFlag{Kind: model.FlagUtsHost})
	}
	if svc.UsernsMode == "host" {
		flags = append(flags, model.DangerousFlag{Kind: model.FlagUsernsHost})
	}
	for _, cap := range svc.CapAdd {
		flags = append(flags, model.DangerousFlag{Kind: model.FlagCapAdd, Value: cap})
	}
	for _, opt := range svc.SecurityOpt {
		flags = append(flags, model.DangerousFlag{Kind: model.FlagSecurityOpt, Value: opt})
	}
	for _, dev := range svc.Devices {
		flags = append(flags, model.DangerousFlag{Kind: model.FlagDevice, Value: dev})
	}
	for _, host := range extraHosts(svc.ExtraHosts) {
		flags = append(flags, model.DangerousFlag{Kind: model.FlagAddHost, Value: host})
	}
	for k, v := range sysctls(svc.Sysctls) {
		flags = append(flags, model.DangerousFlag{Kind: model.FlagSysctl, Key: k, Value: v})
	}

	return flags
}

// extraHosts supports both the list ("host:ip") and map ({host: ip})
// forms.
func extraHosts(node yaml.Node) []string {
	var out []string
	switch node.Kind {
	case yaml.SequenceNode:
		for _, c := range node.Content {
			out = append(out, c.Value)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			out = append(out, node.Content[i].Value+":"+node.Content[i+1].Value)
		}
	}
	return out
}

// sysctls supports list ("key=value") and map ({key: value|number})
// forms, coercing numeric map values to strings.
func sysctls(node yaml.Node) map[string]string {
	out := map[string]string{}
	switch node.Kind {
	case yaml.SequenceNode:
		for _, c := range node.Content {
			k, v, ok := strings.Cut(c.Value, "=")
			if ok {
				out[k] = v
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			out[node.Content[i].Value] = node.Content[i+1].Value
		}
	}
	return out
}

// extractServiceEnvFilePaths supports the string, list-of-strings, and
// list-of-{path,required} env_file forms.
func extractServiceEnvFilePaths(svc composeSvc, composeDir string) []string {
	node := svc.EnvFile
	var paths []string
	switch node.Kind {
	case yaml.ScalarNode:
		paths = append(paths, node.Value)
	case yaml.SequenceNode:
		for _, c := range node.Content {
			switch c.Kind {
			case yaml.ScalarNode:
				paths = append(paths, c.Value)
			case yaml.MappingNode:
				if p := mapOf(*c)["path"]; p != "" {
					paths = append(paths, p)
				}
			}
		}
	}
	resolved := make([]string, len(paths))
	for i, p := range paths {
		resolved[i] = resolvePath(p, composeDir)
	}
	return resolved
}

func resolvePath(p, composeDir string) string {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "~") || strings.HasPrefix(p, "$") {
		return p
	}
	return filepath.Join(composeDir, p)
}

// loadEnvFile loads a sibling .env file's KEY=VALUE pairs, which
// variable expansion in volume/env_file values can reference alongside
// the process environment.
func loadEnvFile(path string) map[string]string {
	env := map[string]string{}
	data, err := os.ReadFile(path)
	if err != nil {
		return env
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		env[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"'`)
	}
	return env
}

var composeVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandVariables resolves "${VAR}", "${VAR:-default}", and "$VAR"
// against the sibling .env file first, falling back to the process
// environment, matching docker compose's own resolution order.
func expandVariables(value string, envFile map[string]string) string {
	return composeVarPattern.ReplaceAllStringFunc(value, func(m string) string {
		sub := composeVarPattern.FindStringSubmatch(m)
		name := sub[1]
		def := strings.TrimPrefix(sub[2], ":-")
		if name == "" {
			name = sub[3]
		}
		if v, ok := envFile[name]; ok {
			return v
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return def
	})
}
