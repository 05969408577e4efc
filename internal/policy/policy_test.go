package policy

import (
	"testing"

	"github.com/nekoruri/ward/internal/config"
	"github.com/nekoruri/ward/internal/model"
)

const testHome = "/home/tester"

func TestEvaluatePrivilegedDenies(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		Subcommand:     model.SubRun,
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagPrivileged}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateCapAddBlockedListDenies(t *testing.T) {
	cfg := config.Default()
	cfg.BlockedCapabilities = []string{"SYS_ADMIN"}
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagCapAdd, Value: "SYS_ADMIN"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateCapAddUnlistedAsks(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagCapAdd, Value: "NET_BIND_SERVICE"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Ask {
		t.Fatalf("Kind = %v, want ask", got.Kind)
	}
}

func TestEvaluateCapAddAllAlwaysDenies(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagCapAdd, Value: "ALL"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateSecurityOptUnconfinedDenies(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagSecurityOpt, Value: "seccomp=unconfined"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateSecurityOptNoNewPrivilegesFalseDenies(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagSecurityOpt, Value: "no-new-privileges=false"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateSecurityOptBenignAllows(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagSecurityOpt, Value: "label=type:container_t"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Allow {
		t.Fatalf("Kind = %v, want allow", got.Kind)
	}
}

func TestEvaluateNetworkHostDenies(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{DangerousFlags: []model.DangerousFlag{{Kind: model.FlagNetworkHost}}}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateVolumesFromAsks(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagVolumesFrom, Value: "other"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Ask {
		t.Fatalf("Kind = %v, want ask", got.Kind)
	}
}

func TestEvaluateSysctlKernelPrefixDenies(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagSysctl, Key: "kernel.shmmax", Value: "1"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateSysctlOtherAsks(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagSysctl, Key: "net.core.somaxconn", Value: "1024"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Ask {
		t.Fatalf("Kind = %v, want ask", got.Kind)
	}
}

func TestEvaluateAddHostMetadataEndpointAsks(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagAddHost, Value: "metadata:169.254.169.254"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Ask {
		t.Fatalf("Kind = %v, want ask", got.Kind)
	}
}

func TestEvaluateAddHostMetadataIPv6Asks(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagAddHost, Value: "metadata:[FD00:EC2:0:0:0:0:0:254]"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Ask {
		t.Fatalf("Kind = %v, want ask", got.Kind)
	}
}

func TestEvaluateAddHostMetadataGoogleHostnameAsks(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagAddHost, Value: "gce-metadata:Metadata.Google.Internal"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Ask {
		t.Fatalf("Kind = %v, want ask", got.Kind)
	}
}

func TestEvaluateAddHostOtherAllows(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		DangerousFlags: []model.DangerousFlag{{Kind: model.FlagAddHost, Value: "db:10.0.0.5"}},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Allow {
		t.Fatalf("Kind = %v, want allow", got.Kind)
	}
}

func TestEvaluateHostPathInsideHomeAllows(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{Subcommand: model.SubRun, HostPaths: []string{testHome + "/project"}}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Allow {
		t.Fatalf("Kind = %v, want allow", got.Kind)
	}
}

func TestEvaluateHostPathOutsideHomeDenies(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{Subcommand: model.SubRun, HostPaths: []string{"/srv/shared"}}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateDockerSocketMountDenies(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{Subcommand: model.SubRun, HostPaths: []string{"/var/run/docker.sock"}}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateSensitivePathWithinHomeAsks(t *testing.T) {
	cfg := config.Default()
	cfg.SensitivePaths = []string{".ssh"}
	cmd := model.ParsedCommand{Subcommand: model.SubRun, HostPaths: []string{testHome + "/.ssh/id_rsa"}}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Ask {
		t.Fatalf("Kind = %v, want ask", got.Kind)
	}
}

func TestEvaluateComposeHostPathsOnlyConsideredForRelevantSubcommands(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{Subcommand: model.SubComposeExec}
	compose := &model.ComposeAnalysis{HostPaths: []string{"/etc/shadow"}}
	got := Evaluate(cmd, compose, &cfg, testHome, "/tmp")
	if got.Kind != model.Allow {
		t.Fatalf("Kind = %v, want allow (compose exec shouldn't inspect file mounts)", got.Kind)
	}
}

func TestEvaluateComposeUpHostPathsAreConsidered(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{Subcommand: model.SubComposeUp}
	compose := &model.ComposeAnalysis{HostPaths: []string{"/etc/shadow"}}
	got := Evaluate(cmd, compose, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateComposeEnvFileIsStrictOutside(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{Subcommand: model.SubComposeUp}
	compose := &model.ComposeAnalysis{EnvFilePaths: []string{"/etc/secrets.env"}}
	got := Evaluate(cmd, compose, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
}

func TestEvaluateImageAllowlistBlocksUnlisted(t *testing.T) {
	cfg := config.Default()
	cfg.AllowedImages = []string{"ubuntu"}
	cmd := model.ParsedCommand{Subcommand: model.SubRun, Image: "alpine"}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Ask {
		t.Fatalf("Kind = %v, want ask", got.Kind)
	}
}

func TestEvaluateImageAllowlistAllowsTaggedMatch(t *testing.T) {
	cfg := config.Default()
	cfg.AllowedImages = []string{"ubuntu"}
	cmd := model.ParsedCommand{Subcommand: model.SubRun, Image: "ubuntu:22.04"}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Allow {
		t.Fatalf("Kind = %v, want allow", got.Kind)
	}
}

func TestEvaluateMultipleDangersAggregateToWorstAndKeepReasons(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{
		Subcommand: model.SubRun,
		DangerousFlags: []model.DangerousFlag{
			{Kind: model.FlagVolumesFrom, Value: "other"},
			{Kind: model.FlagPrivileged},
		},
	}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Deny {
		t.Fatalf("Kind = %v, want deny", got.Kind)
	}
	if len(got.Reasons) != 1 {
		t.Fatalf("expected only the deny reason to survive aggregation, got %v", got.Reasons)
	}
}

func TestEvaluateNoDangersNoPathsNoImageAllowlistAllows(t *testing.T) {
	cfg := config.Default()
	cmd := model.ParsedCommand{Subcommand: model.SubOther, OtherName: "ps"}
	got := Evaluate(cmd, nil, &cfg, testHome, "/tmp")
	if got.Kind != model.Allow {
		t.Fatalf("Kind = %v, want allow", got.Kind)
	}
}
