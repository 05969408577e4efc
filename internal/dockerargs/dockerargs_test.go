package dockerargs

import (
	"testing"

	"github.com/nekoruri/ward/internal/model"
)

func TestParseArgsRunImage(t *testing.T) {
	cmd := ParseArgs([]string{"run", "-v", "/etc:/data", "ubuntu", "echo", "hi"})
	if cmd.Subcommand != model.SubRun {
		t.Fatalf("Subcommand = %v, want run", cmd.Subcommand)
	}
	if cmd.Image != "ubuntu" {
		t.Fatalf("Image = %q, want ubuntu", cmd.Image)
	}
	if len(cmd.HostPaths) != 1 || cmd.HostPaths[0] != "/etc" {
		t.Fatalf("HostPaths = %v, want [/etc]", cmd.HostPaths)
	}
}

func TestParseArgsPrivileged(t *testing.T) {
	cmd := ParseArgs([]string{"run", "--privileged", "ubuntu"})
	if len(cmd.DangerousFlags) != 1 || cmd.DangerousFlags[0].Kind != model.FlagPrivileged {
		t.Fatalf("DangerousFlags = %v, want [privileged]", cmd.DangerousFlags)
	}
}

func TestParseArgsCapAdd(t *testing.T) {
	cmd := ParseArgs([]string{"run", "--cap-add", "SYS_ADMIN", "ubuntu"})
	if len(cmd.DangerousFlags) != 1 {
		t.Fatalf("DangerousFlags = %v", cmd.DangerousFlags)
	}
	f := cmd.DangerousFlags[0]
	if f.Kind != model.FlagCapAdd || f.Value != "SYS_ADMIN" {
		t.Errorf("got %+v", f)
	}
}

func TestParseArgsNamedVolumeIsNotHostPath(t *testing.T) {
	cmd := ParseArgs([]string{"run", "-v", "myvolume:/data", "ubuntu"})
	if len(cmd.HostPaths) != 0 {
		t.Errorf("expected named volume to produce no host paths, got %v", cmd.HostPaths)
	}
}

func TestParseArgsNetworkHost(t *testing.T) {
	cmd := ParseArgs([]string{"run", "--network=host", "ubuntu"})
	if len(cmd.DangerousFlags) != 1 || cmd.DangerousFlags[0].Kind != model.FlagNetworkHost {
		t.Fatalf("got %v", cmd.DangerousFlags)
	}
}

func TestParseArgsPidContainer(t *testing.T) {
	cmd := ParseArgs([]string{"run", "--pid", "container:abc123", "ubuntu"})
	if len(cmd.DangerousFlags) != 1 {
		t.Fatalf("got %v", cmd.DangerousFlags)
	}
	f := cmd.DangerousFlags[0]
	if f.Kind != model.FlagPidContainer || f.Value != "abc123" {
		t.Errorf("got %+v", f)
	}
}

func TestParseArgsSysctl(t *testing.T) {
	cmd := ParseArgs([]string{"run", "--sysctl", "kernel.shmmax=1", "ubuntu"})
	if len(cmd.DangerousFlags) != 1 {
		t.Fatalf("got %v", cmd.DangerousFlags)
	}
	f := cmd.DangerousFlags[0]
	if f.Kind != model.FlagSysctl || f.Key != "kernel.shmmax" || f.Value != "1" {
		t.Errorf("got %+v", f)
	}
}

func TestParseArgsBuildArgSecretDetection(t *testing.T) {
	cmd := ParseArgs([]string{"build", "--build-arg", "DB_PASSWORD=x", "."})
	if len(cmd.DangerousFlags) != 1 || cmd.DangerousFlags[0].Kind != model.FlagBuildArgSecret {
		t.Fatalf("got %v", cmd.DangerousFlags)
	}
}

func TestParseArgsBuildContextPath(t *testing.T) {
	cmd := ParseArgs([]string{"build", "-t", "myapp", "/srv/app"})
	if cmd.Subcommand != model.SubBuild {
		t.Fatalf("Subcommand = %v", cmd.Subcommand)
	}
	if len(cmd.HostPaths) != 1 || cmd.HostPaths[0] != "/srv/app" {
		t.Fatalf("HostPaths = %v", cmd.HostPaths)
	}
}

func TestParseArgsBuildRemoteContextIsNotHostPath(t *testing.T) {
	cmd := ParseArgs([]string{"build", "git://example.com/repo.git"})
	if len(cmd.HostPaths) != 0 {
		t.Errorf("expected remote context to produce no host paths, got %v", cmd.HostPaths)
	}
}

func TestParseArgsMountBind(t *testing.T) {
	cmd := ParseArgs([]string{"run", "--mount", "type=bind,source=/etc,target=/data", "ubuntu"})
	if len(cmd.HostPaths) != 1 || cmd.HostPaths[0] != "/etc" {
		t.Fatalf("HostPaths = %v", cmd.HostPaths)
	}
}

func TestParseArgsMountSharedPropagation(t *testing.T) {
	cmd := ParseArgs([]string{"run", "--mount", "type=bind,source=/etc,target=/data,bind-propagation=shared", "ubuntu"})
	found := false
	for _, f := range cmd.DangerousFlags {
		if f.Kind == model.FlagMountPropagation && f.Value == "shared" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a mount_propagation dangerous flag, got %v", cmd.DangerousFlags)
	}
}

func TestParseArgsComposeUpWithFile(t *testing.T) {
	cmd := ParseArgs([]string{"compose", "-f", "/srv/compose.yml", "up"})
	if cmd.Subcommand != model.SubComposeUp {
		t.Fatalf("Subcommand = %v, want compose_up", cmd.Subcommand)
	}
	if cmd.ComposeFile != "/srv/compose.yml" {
		t.Fatalf("ComposeFile = %q", cmd.ComposeFile)
	}
}

func TestParseArgsComposeExecExcluded(t *testing.T) {
	cmd := ParseArgs([]string{"compose", "exec", "web", "bash"})
	if cmd.Subcommand != model.SubComposeExec {
		t.Fatalf("Subcommand = %v, want compose_exec", cmd.Subcommand)
	}
}

func TestParseArgsCpStripsContainerPrefix(t *testing.T) {
	cmd := ParseArgs([]string{"cp", "myctr:/etc/passwd", "/tmp/out"})
	if len(cmd.HostPaths) != 1 || cmd.HostPaths[0] != "/tmp/out" {
		t.Fatalf("HostPaths = %v", cmd.HostPaths)
	}
}

func TestParseArgsEnvFileIsHostPath(t *testing.T) {
	cmd := ParseArgs([]string{"run", "--env-file", "/etc/secrets.env", "ubuntu"})
	if len(cmd.HostPaths) != 1 || cmd.HostPaths[0] != "/etc/secrets.env" {
		t.Fatalf("HostPaths = %v", cmd.HostPaths)
	}
}

func TestParseArgsUtsHostSpaceForm(t *testing.T) {
	cmd := ParseArgs([]string{"run", "--uts", "host", "ubuntu"})
	if len(cmd.DangerousFlags) != 1 || cmd.DangerousFlags[0].Kind != model.FlagUtsHost {
		t.Fatalf("DangerousFlags = %v, want [uts_host]", cmd.DangerousFlags)
	}
	if cmd.Image != "ubuntu" {
		t.Fatalf("Image = %q, want ubuntu", cmd.Image)
	}
}

func TestParseArgsUtsHostInlineForm(t *testing.T) {
	cmd := ParseArgs([]string{"run", "--uts=host", "ubuntu"})
	if len(cmd.DangerousFlags) != 1 || cmd.DangerousFlags[0].Kind != model.FlagUtsHost {
		t.Fatalf("DangerousFlags = %v, want [uts_host]", cmd.DangerousFlags)
	}
	if cmd.Image != "ubuntu" {
		t.Fatalf("Image = %q, want ubuntu", cmd.Image)
	}
}

func TestParseArgsBuildDockerfilePathIsHostPath(t *testing.T) {
	cmd := ParseArgs([]string{"build", "-f", "/etc/passwd", "."})
	found := false
	for _, p := range cmd.HostPaths {
		if p == "/etc/passwd" {
			found = true
		}
	}
	if !found {
		t.Fatalf("HostPaths = %v, want /etc/passwd included", cmd.HostPaths)
	}
	if cmd.ComposeFile != "" {
		t.Fatalf("ComposeFile = %q, want empty for a build subcommand", cmd.ComposeFile)
	}
}

func TestParseArgsBuildxBuildDockerfilePathIsHostPath(t *testing.T) {
	cmd := ParseArgs([]string{"buildx", "build", "--file", "/etc/passwd", "."})
	found := false
	for _, p := range cmd.HostPaths {
		if p == "/etc/passwd" {
			found = true
		}
	}
	if !found {
		t.Fatalf("HostPaths = %v, want /etc/passwd included", cmd.HostPaths)
	}
}

func TestParseArgsBuildArgSecretKeySuffixDetection(t *testing.T) {
	cmd := ParseArgs([]string{"build", "--build-arg", "DEPLOY_KEY=x", "."})
	if len(cmd.DangerousFlags) != 1 || cmd.DangerousFlags[0].Kind != model.FlagBuildArgSecret {
		t.Fatalf("got %v", cmd.DangerousFlags)
	}
}

func TestParseArgsBuildArgSecretKeyExactDetection(t *testing.T) {
	cmd := ParseArgs([]string{"build", "--build-arg", "KEY=x", "."})
	if len(cmd.DangerousFlags) != 1 || cmd.DangerousFlags[0].Kind != model.FlagBuildArgSecret {
		t.Fatalf("got %v", cmd.DangerousFlags)
	}
}

func TestParseArgsBuildArgSecretKeyInfixDetection(t *testing.T) {
	cmd := ParseArgs([]string{"build", "--build-arg", "SSH_KEY_ROTATED=x", "."})
	if len(cmd.DangerousFlags) != 1 || cmd.DangerousFlags[0].Kind != model.FlagBuildArgSecret {
		t.Fatalf("got %v", cmd.DangerousFlags)
	}
}

func TestParseArgsBuildArgUnrelatedKeyNotFlagged(t *testing.T) {
	cmd := ParseArgs([]string{"build", "--build-arg", "MONKEY=x", "."})
	if len(cmd.DangerousFlags) != 0 {
		t.Fatalf("got %v, want no dangerous flags for an unrelated KEY substring", cmd.DangerousFlags)
	}
}

func TestParseArgsEmptyReturnsOther(t *testing.T) {
	cmd := ParseArgs(nil)
	if cmd.Subcommand != model.SubOther {
		t.Fatalf("Subcommand = %v, want other", cmd.Subcommand)
	}
}
