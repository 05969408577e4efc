// Package policy evaluates a model.ParsedCommand (plus any compose
// analysis attached to it) against a config.PolicyConfig and produces a
// final model.Decision, following the precedence rules from
// SPEC_FULL.md §4.4: dangerous flags first, then compose-derived mounts
// and flags, then bind-mount path validation, then the image whitelist.
// Aggregation is deny > ask > allow.
package policy

import (
	"fmt"
	"net"
	"strings"

	"github.com/nekoruri/ward/internal/config"
	"github.com/nekoruri/ward/internal/model"
	"github.com/nekoruri/ward/internal/pathvalidator"
)

// metadataAddresses are the cloud instance-metadata endpoints
// --add-host is most often abused to pin or shadow: AWS/Azure/GCP's
// shared IPv4 link-local address, AWS IMDSv6's address, and GCP's
// metadata hostname.
var metadataAddresses = []string{"169.254.169.254", "fd00:ec2::254"}
var metadataHostnames = []string{"metadata.google.internal"}

// isMetadataEndpoint reports whether an --add-host "host:ip" value's
// address half resolves to a known cloud metadata endpoint. It strips
// any IPv6 brackets and lowercases before comparing, and compares IP
// literals by parsed value rather than string so abbreviated and
// expanded IPv6 forms of the same address both match.
func isMetadataEndpoint(value string) bool {
	_, addr, ok := strings.Cut(value, ":")
	if !ok {
		addr = value
	}
	addr = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	addr = strings.ToLower(strings.TrimSpace(addr))

	if ip := net.ParseIP(addr); ip != nil {
		for _, m := range metadataAddresses {
			if mip := net.ParseIP(m); mip != nil && mip.Equal(ip) {
				return true
			}
		}
		return false
	}
	for _, h := range metadataHostnames {
		if addr == h {
			return true
		}
	}
	return false
}

// dangerousSecurityOptValues are the --security-opt values that always
// deny. This includes "no-new-privileges=false", which
// original_source/src/policy.rs's own test suite treats as benign but
// spec.md §4.2 explicitly lists as dangerous; SPEC_FULL.md §4.4 resolves
// the divergence in favour of spec.md. See DESIGN.md Open Question 2.
var dangerousSecurityOptValues = []string{
	"apparmor=unconfined", "apparmor:unconfined",
	"seccomp=unconfined", "seccomp:unconfined",
	"label=disable", "label:disable",
	"no-new-privileges=false", "no-new-privileges:false",
	"systempaths=unconfined", "systempaths:unconfined",
}

// Evaluate is the policy evaluator's entry point for one parsed
// container-CLI invocation. cwd is used to resolve relative host paths;
// compose is the caller's analysis of the compose file (nil when there
// is none) and is only consulted for up/run/create.
func Evaluate(cmd model.ParsedCommand, compose *model.ComposeAnalysis, cfg *config.PolicyConfig, home, cwd string) model.Decision {
	var decisions []model.Decision

	for _, flag := range cmd.DangerousFlags {
		decisions = append(decisions, evaluateFlag(flag, cfg))
	}

	hostPaths := append([]string{}, cmd.HostPaths...)

	if compose != nil && composeFileRelevant(cmd.Subcommand) {
		for _, flag := range compose.DangerousFlags {
			decisions = append(decisions, evaluateFlag(flag, cfg))
		}
		hostPaths = append(hostPaths, compose.HostPaths...)

		for _, p := range compose.EnvFilePaths {
			decisions = append(decisions, evaluatePath(p, home, cwd, cfg, true, "Compose env_file"))
		}
		for _, p := range compose.IncludePaths {
			decisions = append(decisions, evaluatePath(p, home, cwd, cfg, false, "Compose include"))
		}
	}

	for _, p := range hostPaths {
		decisions = append(decisions, evaluatePath(p, home, cwd, cfg, true, "mount"))
	}

	if cmd.Image != "" && len(cfg.AllowedImages) > 0 {
		if !imageAllowed(cmd.Image, cfg.AllowedImages) {
			decisions = append(decisions, model.AskDecision(
				fmt.Sprintf("image %q is not in allowed_images", cmd.Image)))
		}
	}

	return model.MergeAll(decisions)
}

// composeFileRelevant mirrors the original's exclusion of
// ComposeExec from file analysis: an exec into an already-running
// service doesn't create new mounts.
func composeFileRelevant(sub model.Subcommand) bool {
	switch sub {
	case model.SubComposeUp, model.SubComposeRun, model.SubComposeCreate:
		return true
	default:
		return false
	}
}

func evaluateFlag(flag model.DangerousFlag, cfg *config.PolicyConfig) model.Decision {
	switch flag.Kind {
	case model.FlagPrivileged:
		return model.DenyDecision("--privileged grants the container full access to the host")

	case model.FlagCapAdd:
		if flag.Value == "ALL" || config.IsCapabilityBlocked(cfg, flag.Value) || config.IsFlagBlocked(cfg, "--cap-add") {
			return model.DenyDecision(fmt.Sprintf("--cap-add=%s is a blocked capability", flag.Value))
		}
		return model.AskDecision(fmt.Sprintf("--cap-add=%s grants an additional Linux capability", flag.Value))

	case model.FlagSecurityOpt:
		if isDangerousSecurityOpt(flag.Value) || config.IsFlagBlocked(cfg, "--security-opt") {
			return model.DenyDecision(fmt.Sprintf("--security-opt=%s disables a security protection", flag.Value))
		}
		return model.AllowDecision()

	case model.FlagNetworkHost:
		return model.DenyDecision("--network=host shares the host's network namespace")
	case model.FlagPidHost:
		return model.DenyDecision("--pid=host shares the host's process namespace")
	case model.FlagIpcHost:
		return model.DenyDecision("--ipc=host shares the host's IPC namespace")
	case model.FlagUtsHost:
		return model.DenyDecision("--uts=host shares the host's UTS namespace")
	case model.FlagUsernsHost:
		return model.DenyDecision("--userns=host shares the host's user namespace")
	case model.FlagCgroupnsHost:
		return model.DenyDecision("--cgroupns=host shares the host's cgroup namespace")

	case model.FlagNetworkContainer:
		return model.DenyDecision(fmt.Sprintf("--network=container:%s allows cross-container network access", flag.Value))
	case model.FlagPidContainer:
		return model.DenyDecision(fmt.Sprintf("--pid=container:%s allows cross-container process visibility", flag.Value))
	case model.FlagIpcContainer:
		return model.DenyDecision(fmt.Sprintf("--ipc=container:%s allows cross-container IPC access", flag.Value))

	case model.FlagDevice:
		return model.DenyDecision(fmt.Sprintf("--device=%s grants direct host device access", flag.Value))

	case model.FlagVolumesFrom:
		return model.AskDecision(fmt.Sprintf("--volumes-from=%s inherits another container's mounts", flag.Value))

	case model.FlagMountPropagation:
		return model.DenyDecision(fmt.Sprintf("bind-propagation=%s lets mount changes reach the host", flag.Value))

	case model.FlagSysctl:
		if strings.HasPrefix(flag.Key, "kernel.") {
			return model.DenyDecision(fmt.Sprintf("--sysctl %s=%s affects the host kernel directly", flag.Key, flag.Value))
		}
		return model.AskDecision(fmt.Sprintf("--sysctl %s=%s", flag.Key, flag.Value))

	case model.FlagAddHost:
		if isMetadataEndpoint(flag.Value) {
			return model.AskDecision(fmt.Sprintf("--add-host=%s targets the cloud metadata endpoint", flag.Value))
		}
		return model.AllowDecision()

	case model.FlagBuildArgSecret:
		return model.AskDecision(fmt.Sprintf("--build-arg %s looks like a secret baked into the image layer", flag.Key))

	default:
		// Fixed-match policy: every Kind above is handled explicitly.
		// Reaching here means a new variant was added to model without
		// a corresponding case; fail-safe to ask rather than silently
		// allowing an unrecognised risk.
		return model.AskDecision(fmt.Sprintf("unrecognised dangerous flag %q", flag.Kind))
	}
}

func isDangerousSecurityOpt(value string) bool {
	for _, v := range dangerousSecurityOptValues {
		if value == v {
			return true
		}
	}
	return false
}

func evaluatePath(rawPath, home, cwd string, cfg *config.PolicyConfig, strictOutside bool, context string) model.Decision {
	if rawPath == "" {
		return model.AllowDecision()
	}
	classification := pathvalidator.Classify(rawPath, home, cwd, cfg.AllowedPaths, cfg.SensitivePaths, cfg.BlockDockerSocket)
	switch classification.Kind {
	case model.PathInsideHome:
		return model.AllowDecision()
	case model.PathSensitiveWithinHome:
		return model.AskDecision(fmt.Sprintf("%s references sensitive path ~/%s (credentials or keys)", context, classification.Detail))
	case model.PathDockerSocket:
		return model.DenyDecision(fmt.Sprintf("%s mounts the Docker socket, which is blocked", context))
	case model.PathUnexpandable:
		return model.AskDecision(fmt.Sprintf("%s references %s", context, classification.Detail))
	case model.PathOutsideHome:
		if strictOutside {
			return model.DenyDecision(fmt.Sprintf("%s path %s is outside $HOME", context, classification.Detail))
		}
		return model.AskDecision(fmt.Sprintf("%s path %s is outside $HOME", context, classification.Detail))
	default:
		return model.AskDecision(fmt.Sprintf("could not classify path %q", rawPath))
	}
}

func imageAllowed(image string, allowed []string) bool {
	for _, a := range allowed {
		if image == a || strings.HasPrefix(image, a+":") {
			return true
		}
	}
	return false
}
