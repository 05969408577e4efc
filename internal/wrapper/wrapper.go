// Package wrapper implements ward's wrapper-mode entry point: it is
// invoked directly under the wrapped CLI's name (or its arguments), so
// it skips shell segmentation entirely and evaluates argv straight
// through the argument parser and policy engine, then either execs the
// real binary, prints a denial, or resolves an ask. Grounded on
// original_source/src/wrapper.rs.
package wrapper

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nekoruri/ward/internal/audit"
	"github.com/nekoruri/ward/internal/compose"
	"github.com/nekoruri/ward/internal/config"
	"github.com/nekoruri/ward/internal/constants"
	"github.com/nekoruri/ward/internal/dockerargs"
	"github.com/nekoruri/ward/internal/model"
	"github.com/nekoruri/ward/internal/policy"
	"golang.org/x/term"
)

// Resolution is the result of locating the real wrapped-CLI binary.
type Resolution struct {
	Path string
	// Source identifies which lookup step found it: the override env
	// var, the config file, or a PATH search.
	Source string
}

// Run is wrapper mode's entry point. It never returns when it execs the
// real binary on allow; otherwise it returns the process exit code.
func Run(args []string, cfg *config.PolicyConfig, configSource string) int {
	if os.Getenv(constants.EnvActive) == "1" || os.Getenv(constants.EnvBypass) == "1" {
		res, tried := ResolveRealBinaryDetailed(cfg)
		if res == nil {
			printNotFound(tried)
			return 1
		}
		execReal(res.Path, args) // never returns on success
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	dryRun := contains(args, "--dry-run")
	verbose := contains(args, "--verbose")
	forwardArgs := filterOut(args, "--dry-run", "--verbose")

	if verbose {
		fmt.Fprintf(os.Stderr, "[ward] Config: %s\n", configSource)
		if res, tried := ResolveRealBinaryDetailed(cfg); res != nil {
			fmt.Fprintf(os.Stderr, "[ward] %s: %s (via %s)\n", constants.WrappedBinaryName, res.Path, res.Source)
		} else {
			fmt.Fprintf(os.Stderr, "[ward] %s: not found\n", constants.WrappedBinaryName)
			for _, t := range tried {
				fmt.Fprintf(os.Stderr, "[ward]   %s\n", t)
			}
		}
	}

	decision := EvaluateArgs(forwardArgs, cfg, cwd)

	audit.Log(audit.Entry{
		Mode:     "wrapper",
		Command:  constants.WrappedBinaryName + " " + strings.Join(forwardArgs, " "),
		Decision: string(decision.Kind),
		Reasons:  decision.Reasons,
		Cwd:      cwd,
	})

	reason := model.FormatReason(decision)

	switch decision.Kind {
	case model.Allow:
		if dryRun {
			path := constants.WrappedBinaryName
			if res, _ := ResolveRealBinaryDetailed(cfg); res != nil {
				path = res.Path
			}
			fmt.Fprintf(os.Stderr, "[ward] Decision: allow (would execute: %s %s)\n", path, strings.Join(forwardArgs, " "))
			return 0
		}
		res, tried := ResolveRealBinaryDetailed(cfg)
		if res == nil {
			printNotFound(tried)
			return 1
		}
		execReal(res.Path, forwardArgs) // never returns on success
		return 1

	case model.Deny:
		fmt.Fprintln(os.Stderr, reason)
		if verbose {
			for _, tip := range GenerateTips(reason) {
				fmt.Fprintf(os.Stderr, "  Tip: %s\n", tip)
			}
		}
		if dryRun {
			fmt.Fprintln(os.Stderr, "[ward] Decision: deny")
		}
		return 1

	default: // model.Ask
		if dryRun {
			fmt.Fprintln(os.Stderr, reason)
			fmt.Fprintln(os.Stderr, "[ward] Decision: ask")
			return 0
		}
		return handleAsk(reason, forwardArgs, cfg, verbose)
	}
}

// EvaluateArgs runs the policy engine directly over a wrapped-CLI argv,
// attaching compose-file analysis when the subcommand calls for it.
func EvaluateArgs(args []string, cfg *config.PolicyConfig, cwd string) model.Decision {
	parsed := dockerargs.ParseArgs(args)
	home, _ := os.UserHomeDir()

	var analysis *model.ComposeAnalysis
	decision := model.AllowDecision()
	if composeFileRelevant(parsed.Subcommand) {
		path, found := compose.FindComposeFile(parsed.ComposeFile, cwd)
		switch {
		case found:
			if a, err := compose.Analyze(path); err == nil {
				analysis = &a
			} else {
				decision = model.AskDecision("compose file could not be read: " + err.Error())
			}
		case parsed.ComposeFile == "":
			decision = model.AskDecision("no compose file found")
		default:
			decision = model.AskDecision("compose file " + parsed.ComposeFile + " was not found")
		}
	}

	return model.Merge(decision, policy.Evaluate(parsed, analysis, cfg, home, cwd))
}

func composeFileRelevant(sub model.Subcommand) bool {
	switch sub {
	case model.SubComposeUp, model.SubComposeRun, model.SubComposeCreate:
		return true
	default:
		return false
	}
}

// handleAsk resolves an Ask decision interactively on a TTY, or via
// WARD_ASK / config.Wrapper.NonInteractiveAsk otherwise.
func handleAsk(reason string, forwardArgs []string, cfg *config.PolicyConfig, verbose bool) int {
	fmt.Fprintln(os.Stderr, reason)

	if !term.IsTerminal(int(os.Stderr.Fd())) {
		askPolicy := cfg.Wrapper.NonInteractiveAsk
		if v := os.Getenv(constants.EnvAsk); v == "allow" || v == "deny" {
			askPolicy = config.NonInteractiveAsk(v)
		}

		if askPolicy == config.AskAllow {
			fmt.Fprintf(os.Stderr, "[ward] Non-interactive: proceeding (%s=allow)\n", constants.EnvAsk)
			res, tried := ResolveRealBinaryDetailed(cfg)
			if res == nil {
				printNotFound(tried)
				return 1
			}
			execReal(res.Path, forwardArgs) // never returns on success
			return 1
		}
		fmt.Fprintf(os.Stderr, "[ward] Non-interactive: blocked (set %s=allow to override)\n", constants.EnvAsk)
		return 1
	}

	fmt.Fprint(os.Stderr, "[ward] Proceed? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ward] Failed to read input, blocking for safety")
		return 1
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer != "y" && answer != "yes" {
		if verbose {
			fmt.Fprintln(os.Stderr, "[ward] Aborted by user")
		}
		return 1
	}
	res, tried := ResolveRealBinaryDetailed(cfg)
	if res == nil {
		printNotFound(tried)
		return 1
	}
	execReal(res.Path, forwardArgs) // never returns on success
	return 1
}

// ResolveRealBinaryDetailed finds the real wrapped-CLI binary: env
// override, then config.Wrapper.DockerPath, then a PATH search
// excluding ward itself. Returns nil plus the list of tried locations
// on failure. Exported so "ward setup" can report what it would find.
func ResolveRealBinaryDetailed(cfg *config.PolicyConfig) (*Resolution, []string) {
	var tried []string

	if path := os.Getenv(constants.EnvDockerPath); path != "" {
		if _, err := os.Stat(path); err == nil {
			return &Resolution{Path: path, Source: constants.EnvDockerPath}, nil
		}
		tried = append(tried, fmt.Sprintf("%s=%s (file not found)", constants.EnvDockerPath, path))
	}

	if cfg.Wrapper.DockerPath != "" {
		if _, err := os.Stat(cfg.Wrapper.DockerPath); err == nil {
			return &Resolution{Path: cfg.Wrapper.DockerPath, Source: "wrapper.docker_path"}, nil
		}
		tried = append(tried, fmt.Sprintf("wrapper.docker_path=%s (file not found)", cfg.Wrapper.DockerPath))
	}

	if p := findInPath(); p != "" {
		return &Resolution{Path: p, Source: "PATH"}, nil
	}
	tried = append(tried, "PATH search (no "+constants.WrappedBinaryName+" binary found)")

	return nil, tried
}

// findInPath walks $PATH for constants.WrappedBinaryName, skipping any
// candidate that resolves (after symlink evaluation) to ward's own
// executable so a PATH shadowed by the setup symlink doesn't recurse.
func findInPath() string {
	self, selfErr := os.Executable()
	if selfErr == nil {
		if resolved, err := filepath.EvalSymlinks(self); err == nil {
			self = resolved
		}
	}

	for _, dir := range strings.Split(os.Getenv("PATH"), string(os.PathListSeparator)) {
		candidate := filepath.Join(dir, constants.WrappedBinaryName)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if selfErr == nil {
			if resolved, err := filepath.EvalSymlinks(candidate); err == nil && resolved == self {
				continue
			}
		}
		return candidate
	}
	return ""
}

func printNotFound(tried []string) {
	fmt.Fprintf(os.Stderr, "[ward] Error: could not find the real %s binary\n", constants.WrappedBinaryName)
	for _, t := range tried {
		fmt.Fprintf(os.Stderr, "  Tried: %s\n", t)
	}
	fmt.Fprintf(os.Stderr, "  Tip: Set %s or wrapper.docker_path in config.toml to specify the binary\n", constants.EnvDockerPath)
}

// execReal replaces the current process with the real wrapped binary,
// setting the recursion sentinel so a subsequent invocation of ward
// under the same name (e.g. a setup symlink shadowing PATH) skips
// straight to exec instead of re-evaluating policy.
func execReal(path string, args []string) {
	argv := append([]string{path}, args...)
	env := append(filterEnv(os.Environ(), constants.EnvActive+"="), constants.EnvActive+"=1")
	err := syscall.Exec(path, argv, env)
	fmt.Fprintf(os.Stderr, "[ward] Error: failed to exec %s: %v\n", path, err)
	os.Exit(1)
}

// filterEnv drops any existing entry with the given "KEY=" prefix so a
// forced override via append can't be shadowed by an earlier duplicate.
func filterEnv(env []string, prefix string) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func contains(args []string, target string) bool {
	for _, a := range args {
		if a == target {
			return true
		}
	}
	return false
}

func filterOut(args []string, exclude ...string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		skip := false
		for _, e := range exclude {
			if a == e {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, a)
		}
	}
	return out
}

// GenerateTips maps a formatted decision reason to concrete remediation
// suggestions, substring-matched like original_source/src/wrapper.rs's
// generate_tips.
func GenerateTips(reason string) []string {
	var tips []string
	add := func(cond bool, tip string) {
		if cond {
			tips = append(tips, tip)
		}
	}

	add(strings.Contains(reason, "outside $HOME"),
		"To allow this path, add it to allowed_paths in ~/.config/ward/config.toml")
	add(strings.Contains(reason, "Docker socket") || strings.Contains(reason, "socket is blocked"),
		"To allow socket access, set block_docker_socket = false in config.toml")
	add(strings.Contains(reason, "sensitive path") || strings.Contains(reason, "credentials or keys"),
		"Sensitive paths trigger a confirmation prompt. Consider using read-only mounts (:ro)")
	add(strings.Contains(reason, "--privileged"),
		"Instead of --privileged, grant only the specific capabilities needed with --cap-add")
	add(strings.Contains(reason, "--cap-add"),
		"To allow this capability, remove it from blocked_capabilities in config.toml")
	add(strings.Contains(reason, "--security-opt"),
		"Avoid disabling security profiles in production environments")
	add(strings.Contains(reason, "=host shares the host's"),
		"Host namespace sharing is always blocked; no config.toml setting allows it")
	add(strings.Contains(reason, "--device"),
		"Direct device access is blocked for security. Consider using a volume mount instead")
	add(strings.Contains(reason, "cross-container"),
		"Container namespace sharing allows cross-container access and is blocked by default")
	add(strings.Contains(reason, "bind-propagation="),
		"shared/rshared propagation allows mount changes to reach the host. Use private (default) instead")
	add(strings.Contains(reason, "sysctl"),
		"kernel.* sysctls are blocked because they affect the host kernel directly. Use container-safe net.* sysctls only")
	add(strings.Contains(reason, "metadata endpoint") || strings.Contains(reason, "169.254.169.254"),
		"The cloud metadata endpoint (169.254.169.254) is commonly targeted in SSRF attacks to steal credentials")
	add(strings.Contains(reason, "label=disable") || strings.Contains(reason, "label:disable"),
		"Disabling SELinux/AppArmor labels removes mandatory access control protection")
	add(strings.Contains(reason, "--build-arg") && strings.Contains(reason, "secret"),
		"Build args are stored in image layers and visible via '"+constants.WrappedBinaryName+" history'. Use BuildKit --secret for sensitive values")
	add(strings.Contains(reason, "Compose env_file"),
		"Compose env_file reads host files into the container environment. Ensure the file is within $HOME or add its path to allowed_paths")
	add(strings.Contains(reason, "Compose include"),
		"Compose include references external files that may carry dangerous settings. Verify the included file is safe")
	add(strings.Contains(reason, "not in allowed_images"),
		"Add the image to allowed_images in config.toml, or clear the list to allow any image")
	add(strings.Contains(reason, "no compose file found") || strings.Contains(reason, "was not found"),
		"Create compose.yml or docker-compose.yml, or specify the file with -f")

	if len(tips) == 0 {
		tips = append(tips, "Check ~/.config/ward/config.toml to adjust the security policy")
	}
	return tips
}
