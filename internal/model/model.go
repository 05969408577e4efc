// Package model defines the core data types shared by the argument
// parser, path validator, compose analyser, and policy evaluator:
// ParsedCommand, DangerousFlag, PathClassification and Decision.
package model

// Subcommand identifies the recognised container-CLI subcommand shape of
// a ParsedCommand.
type Subcommand string

const (
	SubRun           Subcommand = "run"
	SubCreate        Subcommand = "create"
	SubExec          Subcommand = "exec"
	SubCp             Subcommand = "cp"
	SubBuild          Subcommand = "build"
	SubBuildxBuild    Subcommand = "buildx_build"
	SubComposeUp      Subcommand = "compose_up"
	SubComposeRun     Subcommand = "compose_run"
	SubComposeCreate  Subcommand = "compose_create"
	SubComposeExec    Subcommand = "compose_exec"
	SubLogin          Subcommand = "login"
	SubOther          Subcommand = "other"
)

// ParsedCommand is the structured view of one container CLI invocation.
type ParsedCommand struct {
	Subcommand Subcommand
	// OtherName holds the literal subcommand text when Subcommand is
	// SubOther (e.g. "ps", "logs", "images").
	OtherName string
	// Image is the resolved image reference, if any.
	Image string
	// HostPaths is the ordered list of strings the command would
	// read/write on the host filesystem.
	HostPaths []string
	// DangerousFlags is the ordered list of risk-bearing flags found.
	DangerousFlags []DangerousFlag
	// ComposeFile is the path passed via -f/--file, if any.
	ComposeFile string
}

// DangerousFlagKind enumerates the closed set of risk-bearing flag
// categories a container CLI invocation can carry.
type DangerousFlagKind string

const (
	FlagPrivileged       DangerousFlagKind = "privileged"
	FlagCapAdd           DangerousFlagKind = "cap_add"
	FlagSecurityOpt      DangerousFlagKind = "security_opt"
	FlagNetworkHost      DangerousFlagKind = "network_host"
	FlagPidHost          DangerousFlagKind = "pid_host"
	FlagIpcHost          DangerousFlagKind = "ipc_host"
	FlagUtsHost          DangerousFlagKind = "uts_host"
	FlagUsernsHost       DangerousFlagKind = "userns_host"
	FlagCgroupnsHost     DangerousFlagKind = "cgroupns_host"
	FlagNetworkContainer DangerousFlagKind = "network_container"
	FlagPidContainer     DangerousFlagKind = "pid_container"
	FlagIpcContainer     DangerousFlagKind = "ipc_container"
	FlagDevice           DangerousFlagKind = "device"
	FlagVolumesFrom      DangerousFlagKind = "volumes_from"
	FlagMountPropagation DangerousFlagKind = "mount_propagation"
	FlagSysctl           DangerousFlagKind = "sysctl"
	FlagAddHost          DangerousFlagKind = "add_host"
	FlagBuildArgSecret   DangerousFlagKind = "build_arg_secret"
)

// DangerousFlag carries a Kind plus whatever payload (capability name,
// container reference, device path, key/value...) the reason message
// needs. Most variants carry at most one free-form string; Sysctl alone
// needs a key and a value, so it gets its own field rather than forcing
// every variant through an interface.
type DangerousFlag struct {
	Kind  DangerousFlagKind
	Value string // capability name, container ref, device path, mode...
	Key   string // sysctl key only; empty otherwise
}

// PathClassificationKind enumerates the closed set of outcomes the host
// path validator can return for one candidate path.
type PathClassificationKind string

const (
	PathInsideHome           PathClassificationKind = "inside_home"
	PathSensitiveWithinHome  PathClassificationKind = "sensitive_within_home"
	PathOutsideHome          PathClassificationKind = "outside_home"
	PathDockerSocket         PathClassificationKind = "docker_socket"
	PathUnexpandable         PathClassificationKind = "unexpandable"
)

// PathClassification is the result of validating one host path.
type PathClassification struct {
	Kind PathClassificationKind
	// Detail holds the sensitive subpath, the normalised outside-home
	// path, or the reason a variable could not be expanded, depending
	// on Kind.
	Detail string
}

// ComposeAnalysis is the fact shape produced from a compose YAML file,
// mirroring ParsedCommand's shape closely enough that policy evaluation
// can fold both into the same aggregation path.
type ComposeAnalysis struct {
	HostPaths      []string
	DangerousFlags []DangerousFlag
	// EnvFilePaths get stricter deny-on-outside-home treatment.
	EnvFilePaths []string
	// IncludePaths get ask-on-outside-home treatment.
	IncludePaths []string
}

// DecisionKind is the terminal outcome of policy evaluation.
type DecisionKind string

const (
	Allow DecisionKind = "allow"
	Ask   DecisionKind = "ask"
	Deny  DecisionKind = "deny"
)

// Decision is the terminal value produced by the policy evaluator.
// Allow carries no reasons; Ask and Deny carry at least one.
type Decision struct {
	Kind    DecisionKind
	Reasons []string
}

// AllowDecision is the canonical zero-reason allow value.
func AllowDecision() Decision {
	return Decision{Kind: Allow}
}

// DenyDecision builds a deny with a single reason.
func DenyDecision(reason string) Decision {
	return Decision{Kind: Deny, Reasons: []string{reason}}
}

// AskDecision builds an ask with a single reason.
func AskDecision(reason string) Decision {
	return Decision{Kind: Ask, Reasons: []string{reason}}
}

// rank orders decision kinds for the deny > ask > allow aggregation
// rule used throughout the policy evaluator.
func rank(k DecisionKind) int {
	switch k {
	case Deny:
		return 2
	case Ask:
		return 1
	default:
		return 0
	}
}

// Merge combines two decisions using deny > ask > allow precedence. The
// higher-ranked decision is returned unchanged and the other's reasons
// are dropped; when both sides carry the same non-allow kind, their
// reasons are concatenated.
func Merge(a, b Decision) Decision {
	if rank(b.Kind) > rank(a.Kind) {
		return b
	}
	if rank(a.Kind) > rank(b.Kind) {
		return a
	}
	if a.Kind == Allow {
		return a
	}
	return Decision{Kind: a.Kind, Reasons: append(append([]string{}, a.Reasons...), b.Reasons...)}
}

// MergeAll folds a slice of decisions down to one with Merge,
// accumulating every reason from every decision of the winning kind
// (deny keeps only deny reasons, ask keeps only ask reasons) so a
// single deny does not hide ten other independent deny reasons.
func MergeAll(decisions []Decision) Decision {
	result := AllowDecision()
	for _, d := range decisions {
		result = Merge(result, d)
	}
	return result
}

// FormatReason renders a Decision's reasons as the single human-readable
// string surfaced in hook output, wrapper stderr, and audit events.
func FormatReason(d Decision) string {
	if len(d.Reasons) == 0 {
		return ""
	}
	if len(d.Reasons) == 1 {
		return "ward: " + d.Reasons[0]
	}
	out := "ward: multiple issues found:\n"
	for _, r := range d.Reasons {
		out += "  - " + r + "\n"
	}
	return out[:len(out)-1]
}
