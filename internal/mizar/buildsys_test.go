package mizar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectBuildSystem(t *testing.T) {
	tests := []struct {
		name    string
		markers []string
		want    string
	}{
		{"autotools", []string{"configure"}, SystemAutotools},
		{"autotools beats make", []string{"configure", "Makefile"}, SystemAutotools},
		{"cmake", []string{"CMakeLists.txt"}, SystemCMake},
		{"cargo", []string{"Cargo.toml"}, SystemCargo},
		{"python setup.py", []string{"setup.py"}, SystemPython},
		{"python pyproject", []string{"pyproject.toml"}, SystemPython},
		{"node", []string{"package.json"}, SystemNode},
		{"make", []string{"Makefile"}, SystemMake},
		{"gnumakefile", []string{"GNUmakefile"}, SystemMake},
		{"nothing", nil, SystemUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, m := range tt.markers {
				if err := os.WriteFile(filepath.Join(dir, m), nil, 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if got := DetectBuildSystem(dir); got != tt.want {
				t.Errorf("DetectBuildSystem = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveBuildSystem(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "CMakeLists.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	d := &Descriptor{Build: BuildConfig{System: "auto"}}
	if got := resolveBuildSystem(d, dir); got != SystemCMake {
		t.Errorf("auto should defer to detection, got %q", got)
	}

	d.Build.System = SystemMake
	if got := resolveBuildSystem(d, dir); got != SystemMake {
		t.Errorf("explicit system should win over detection, got %q", got)
	}
}

func TestResolveStageCommand(t *testing.T) {
	d := &Descriptor{Build: BuildConfig{Build: "cargo build --features extra"}}

	if got := resolveStageCommand(d, SystemCargo, "build"); got != "cargo build --features extra" {
		t.Errorf("descriptor override not used: %q", got)
	}
	if got := resolveStageCommand(d, SystemCargo, "check"); got != "cargo test --release --locked" {
		t.Errorf("toolchain default not used: %q", got)
	}
	// Cargo has no configure stage and no override was given.
	if got := resolveStageCommand(d, SystemCargo, "configure"); got != "" {
		t.Errorf("expected empty command, got %q", got)
	}
	if got := resolveStageCommand(&Descriptor{}, SystemUnknown, "build"); got != "" {
		t.Errorf("unknown system with no override should yield no command, got %q", got)
	}
}

func TestExpandStageCommand(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs = 8

	d := &Descriptor{Build: BuildConfig{Prefix: "/opt/pkg", Options: "--static"}}
	got := expandStageCommand(cfg, d, "./configure --prefix=${PREFIX} -j${JOBS} ${OPTIONS} DESTDIR=${DESTDIR}", "/tmp/out")
	want := "./configure --prefix=/opt/pkg -j8 --static DESTDIR=/tmp/out"
	if got != want {
		t.Errorf("expanded = %q, want %q", got, want)
	}

	// Prefix defaults to /usr when the descriptor leaves it empty.
	got = expandStageCommand(cfg, &Descriptor{}, "${PREFIX}", "")
	if got != "/usr" {
		t.Errorf("default prefix = %q, want /usr", got)
	}
}

func TestRunStageCommand(t *testing.T) {
	cfg := testConfig(t)
	execCtx := NewExecutor(context.Background())
	workDir := t.TempDir()
	destDir := t.TempDir()

	d := &Descriptor{
		Name:    "pkg",
		Version: "1.0",
		Build:   BuildConfig{Build: "echo built > marker && echo dest=$DESTDIR >> marker"},
	}
	if err := runStageCommand(cfg, d, execCtx, SystemUnknown, "build", workDir, destDir); err != nil {
		t.Fatalf("runStageCommand: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(workDir, "marker"))
	if err != nil {
		t.Fatalf("stage command did not run in workDir: %v", err)
	}
	want := "built\ndest=" + destDir + "\n"
	if string(data) != want {
		t.Errorf("marker = %q, want %q", data, want)
	}
}

func TestRunStageCommandEmptyIsNoop(t *testing.T) {
	cfg := testConfig(t)
	execCtx := NewExecutor(context.Background())
	// No command resolves for this stage, so the missing workDir is never
	// even consulted.
	err := runStageCommand(cfg, &Descriptor{}, execCtx, SystemUnknown, "build",
		filepath.Join(t.TempDir(), "absent"), t.TempDir())
	if err != nil {
		t.Errorf("empty stage should be a no-op, got %v", err)
	}
}

func TestRunStageCommandMissingWorkdir(t *testing.T) {
	cfg := testConfig(t)
	execCtx := NewExecutor(context.Background())
	d := &Descriptor{Build: BuildConfig{Build: "true"}}
	err := runStageCommand(cfg, d, execCtx, SystemUnknown, "build",
		filepath.Join(t.TempDir(), "absent"), t.TempDir())
	if !errors.Is(err, errMissingWorkdir) {
		t.Errorf("err = %v, want errMissingWorkdir", err)
	}
}
