// Package dockerargs parses a container-CLI argument vector (the
// argv ward sees after shell segmentation, or the argv wrapper mode
// receives directly) into a model.ParsedCommand: subcommand, image
// reference, host paths, and dangerous flags.
package dockerargs

import (
	"strings"

	"github.com/nekoruri/ward/internal/model"
)

// valueFlags is the set of flags that consume the following token as
// their value, widened per SPEC_FULL.md §4.2 past the narrower table
// the original implementation carried: naming, publishing, labelling,
// environment, resource, networking, health, namespace/security,
// file-carrying and BuildKit-secret flags are all represented.
var valueFlags = map[string]bool{
	"--name": true, "--hostname": true, "-h": true,
	"-p": true, "--publish": true, "--expose": true,
	"-l": true, "--label": true, "--label-file": true,
	"-e": true, "--env": true, "--env-file": true,
	"-m": true, "--memory": true, "--cpus": true, "--cpuset-cpus": true,
	"--network": true, "--net": true, "--ip": true, "--dns": true,
	"--add-host": true,
	"--health-cmd": true, "--health-interval": true, "--health-retries": true,
	"--health-start-period": true, "--health-timeout": true,
	"--cap-add": true, "--cap-drop": true, "--security-opt": true,
	"--device": true, "--sysctl": true, "--userns": true, "--ipc": true,
	"--pid": true, "--cgroupns": true, "--uts": true,
	"-v": true, "--volume": true, "--mount": true, "--tmpfs": true,
	"--volumes-from": true,
	"--secret": true, "--ssh": true, "--build-arg": true,
	"--entrypoint": true, "--restart": true,
	"--log-driver": true, "--log-opt": true,
	"--platform": true, "--pull": true,
	"-w": true, "--workdir": true, "-u": true, "--user": true,
	"--stop-signal": true, "--stop-timeout": true,
	"-f": true, "--file": true,
}

// pathFlags is the subset of valueFlags whose value (or part of it)
// names a host path ward must pass through the validator.
var pathFlags = map[string]bool{
	"--env-file": true, "--label-file": true,
}

var secretBuildArgPattern = []string{"SECRET", "TOKEN", "PASSWORD", "PASSWD", "APIKEY", "API_KEY", "CREDENTIAL"}

// keyLooksLikeKey reports whether upper (already uppercased) matches the
// bare KEY rule: the whole name, a "_KEY" suffix, or a "_KEY_" infix.
func keyLooksLikeKey(upper string) bool {
	return upper == "KEY" || strings.HasSuffix(upper, "_KEY") || strings.Contains(upper, "_KEY_")
}

// ParseArgs parses a single container-CLI invocation's argv (argv[0] is
// the subcommand, e.g. ["run", "-v", "/etc:/data", "ubuntu"]).
func ParseArgs(args []string) model.ParsedCommand {
	cmd := model.ParsedCommand{Subcommand: model.SubOther}
	if len(args) == 0 {
		return cmd
	}

	rest := args[1:]
	assignSubcommand(&cmd, args[0], rest)

	i := 0
	var positionals []string
	for i < len(rest) {
		arg := rest[i]
		name, inlineValue, hasInline := splitFlag(arg)

		if !strings.HasPrefix(arg, "-") {
			positionals = append(positionals, arg)
			i++
			continue
		}

		if arg == "--privileged" {
			cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagPrivileged})
			i++
			continue
		}

		var value string
		consumed := 1
		if valueFlags[name] {
			if hasInline {
				value = inlineValue
			} else if i+1 < len(rest) {
				value = rest[i+1]
				consumed = 2
			}
		}

		applyFlag(&cmd, name, value)
		i += consumed
	}

	if len(positionals) > 0 {
		cmd.Image = positionals[0]
	}

	return cmd
}

// splitFlag splits "--flag=value" into ("--flag", "value", true); a
// flag with no "=" returns (flag, "", false).
func splitFlag(arg string) (name, value string, hasInline bool) {
	if idx := strings.Index(arg, "="); idx >= 0 && strings.HasPrefix(arg, "-") {
		return arg[:idx], arg[idx+1:], true
	}
	return arg, "", false
}

func assignSubcommand(cmd *model.ParsedCommand, name string, rest []string) {
	switch name {
	case "run":
		cmd.Subcommand = model.SubRun
	case "create":
		cmd.Subcommand = model.SubCreate
	case "exec":
		cmd.Subcommand = model.SubExec
	case "cp":
		cmd.Subcommand = model.SubCp
		cmd.HostPaths = append(cmd.HostPaths, extractCpPaths(rest)...)
	case "build":
		cmd.Subcommand = model.SubBuild
		cmd.HostPaths = append(cmd.HostPaths, extractBuildContext(rest)...)
	case "buildx":
		if len(rest) > 0 && rest[0] == "build" {
			cmd.Subcommand = model.SubBuildxBuild
			cmd.HostPaths = append(cmd.HostPaths, extractBuildContext(rest[1:])...)
		} else {
			cmd.Subcommand = model.SubOther
			cmd.OtherName = "buildx"
		}
	case "login":
		cmd.Subcommand = model.SubLogin
	case "compose":
		assignComposeSubcommand(cmd, rest)
	default:
		cmd.Subcommand = model.SubOther
		cmd.OtherName = name
	}
}

func assignComposeSubcommand(cmd *model.ParsedCommand, rest []string) {
	// Compose's own subcommand is the first non-flag, non-value token.
	i := 0
	for i < len(rest) {
		arg := rest[i]
		if !strings.HasPrefix(arg, "-") {
			break
		}
		name, _, hasInline := splitFlag(arg)
		if name == "-f" || name == "--file" {
			if hasInline {
				i++
				continue
			}
			if i+1 < len(rest) {
				cmd.ComposeFile = rest[i+1]
				i += 2
				continue
			}
		}
		i++
	}
	sub := ""
	if i < len(rest) {
		sub = rest[i]
	}
	switch sub {
	case "up":
		cmd.Subcommand = model.SubComposeUp
	case "run":
		cmd.Subcommand = model.SubComposeRun
	case "create":
		cmd.Subcommand = model.SubComposeCreate
	case "exec":
		cmd.Subcommand = model.SubComposeExec
	default:
		cmd.Subcommand = model.SubOther
		cmd.OtherName = "compose " + sub
	}
}

func extractCpPaths(rest []string) []string {
	var paths []string
	for _, a := range rest {
		if strings.HasPrefix(a, "-") {
			continue
		}
		// cp SRC DEST: the container side ("container:PATH", see
		// stripContainerPrefix) is dropped; only host paths are kept.
		if p := stripContainerPrefix(a); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// stripContainerPrefix returns the host-relevant portion of a cp
// argument of the form "container:/path" (returns "") or a bare host
// path (returned unchanged).
func stripContainerPrefix(a string) string {
	if idx := strings.Index(a, ":"); idx >= 0 {
		// Heuristic shared with the original: a '/' or '.' right
		// after ':' means "container:path"; anything else
		// (e.g. a Windows drive letter or no slash) is a host path.
		if idx+1 < len(a) && (a[idx+1] == '/' || a[idx+1] == '.') {
			return ""
		}
	}
	return a
}

func extractBuildContext(rest []string) []string {
	for i := len(rest) - 1; i >= 0; i-- {
		a := rest[i]
		if strings.HasPrefix(a, "-") {
			continue
		}
		if i > 0 && valueFlags[rest[i-1]] {
			continue
		}
		if strings.Contains(a, "://") {
			return nil // remote context (git/http), not a host path
		}
		return []string{a}
	}
	return nil
}

func applyFlag(cmd *model.ParsedCommand, name, value string) {
	switch name {
	case "--cap-add":
		cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagCapAdd, Value: value})
	case "--security-opt":
		cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagSecurityOpt, Value: value})
	case "--device":
		cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagDevice, Value: value})
	case "--volumes-from":
		cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagVolumesFrom, Value: value})
	case "--add-host":
		cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagAddHost, Value: value})
	case "--sysctl":
		key, val, _ := strings.Cut(value, "=")
		cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagSysctl, Key: key, Value: val})
	case "--network", "--net":
		applyNamespaceValue(cmd, value, model.FlagNetworkHost, model.FlagNetworkContainer)
	case "--pid":
		applyNamespaceValue(cmd, value, model.FlagPidHost, model.FlagPidContainer)
	case "--ipc":
		applyNamespaceValue(cmd, value, model.FlagIpcHost, model.FlagIpcContainer)
	case "--uts":
		if value == "host" {
			cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagUtsHost})
		}
	case "--userns":
		if value == "host" {
			cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagUsernsHost})
		}
	case "--cgroupns":
		if value == "host" {
			cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagCgroupnsHost})
		}
	case "--build-arg":
		key, _, _ := strings.Cut(value, "=")
		if looksLikeSecretKey(key) {
			cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagBuildArgSecret, Key: key})
		}
	case "-v", "--volume":
		if src := bindMountSource(value); src != "" {
			cmd.HostPaths = append(cmd.HostPaths, src)
		}
	case "--mount":
		mountHostPaths(cmd, value)
	case "--tmpfs":
		// tmpfs has no host source; nothing to validate.
	case "--env-file", "--label-file":
		if value != "" {
			cmd.HostPaths = append(cmd.HostPaths, value)
		}
	case "--secret", "--ssh":
		if src := secretSource(value); src != "" {
			cmd.HostPaths = append(cmd.HostPaths, src)
		}
	case "-f", "--file":
		switch cmd.Subcommand {
		case model.SubBuild, model.SubBuildxBuild:
			if value != "" {
				cmd.HostPaths = append(cmd.HostPaths, value)
			}
		default:
			cmd.ComposeFile = value
		}
	}
}

func applyNamespaceValue(cmd *model.ParsedCommand, value string, hostKind, containerKind model.DangerousFlagKind) {
	switch {
	case value == "host":
		cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: hostKind})
	case strings.HasPrefix(value, "container:"):
		ref := strings.TrimPrefix(value, "container:")
		cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: containerKind, Value: ref})
	}
}

// bindMountSource extracts the host-side source from a -v/--volume
// spec. Returns "" for a named volume (no leading '/', '.', '~' or '$').
func bindMountSource(spec string) string {
	parts := strings.Split(spec, ":")
	if len(parts) == 0 {
		return ""
	}
	src := parts[0]
	if strings.HasPrefix(src, "/") || strings.HasPrefix(src, ".") || strings.HasPrefix(src, "~") || strings.HasPrefix(src, "$") {
		return src
	}
	return ""
}

// mountHostPaths extracts the src=... component and any
// bind-propagation dangerous flag from a --mount spec.
func mountHostPaths(cmd *model.ParsedCommand, spec string) {
	fields := strings.Split(spec, ",")
	mountType := ""
	src := ""
	propagation := ""
	for _, f := range fields {
		k, v, _ := strings.Cut(f, "=")
		switch k {
		case "type":
			mountType = v
		case "src", "source":
			src = v
		case "bind-propagation":
			propagation = v
		}
	}
	if mountType == "" || mountType == "bind" {
		if src != "" {
			cmd.HostPaths = append(cmd.HostPaths, src)
		}
	}
	if propagation == "shared" || propagation == "rshared" {
		cmd.DangerousFlags = append(cmd.DangerousFlags, model.DangerousFlag{Kind: model.FlagMountPropagation, Value: propagation})
	}
}

func secretSource(value string) string {
	for _, f := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		if k == "src" || k == "source" {
			return v
		}
	}
	return ""
}

func looksLikeSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	if keyLooksLikeKey(upper) {
		return true
	}
	for _, pat := range secretBuildArgPattern {
		if strings.Contains(upper, pat) {
			return true
		}
	}
	return false
}
