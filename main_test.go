package main

import "testing"

func TestDetectImplicitWrapperModeDockerArgv0(t *testing.T) {
	args, ok := detectImplicitWrapperMode([]string{"/usr/local/bin/docker", "ps", "-a"})
	if !ok {
		t.Fatal("expected docker argv[0] to trigger implicit wrapper mode")
	}
	want := []string{"ps", "-a"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args = %v, want %v", args, want)
		}
	}
}

func TestDetectImplicitWrapperModeComposeArgv0(t *testing.T) {
	args, ok := detectImplicitWrapperMode([]string{"/usr/local/bin/docker-compose", "up", "-d"})
	if !ok {
		t.Fatal("expected docker-compose argv[0] to trigger implicit wrapper mode")
	}
	want := []string{"compose", "up", "-d"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args = %v, want %v", args, want)
		}
	}
}

func TestDetectImplicitWrapperModeWardArgv0IsNotWrapped(t *testing.T) {
	_, ok := detectImplicitWrapperMode([]string{"/usr/local/bin/ward", "setup"})
	if ok {
		t.Error("expected ward's own argv[0] to not trigger implicit wrapper mode")
	}
}

func TestDetectImplicitWrapperModeEmptyArgs(t *testing.T) {
	_, ok := detectImplicitWrapperMode(nil)
	if ok {
		t.Error("expected empty args to not trigger implicit wrapper mode")
	}
}

func TestContainsFindsTarget(t *testing.T) {
	if !contains([]string{"run", "--verbose", "ubuntu"}, "--verbose") {
		t.Error("expected to find --verbose in args")
	}
	if contains([]string{"run", "ubuntu"}, "--verbose") {
		t.Error("expected not to find --verbose when absent")
	}
}
