package mizar

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestExecutorOutputRouting(t *testing.T) {
	var out, errOut bytes.Buffer
	e := &Executor{Context: context.Background(), Stdout: &out, Stderr: &errOut}

	if err := e.RunShell("echo visible && echo hidden >&2", t.TempDir(), nil); err != nil {
		t.Fatalf("RunShell: %v", err)
	}
	if out.String() != "visible\n" {
		t.Errorf("stdout = %q, want %q", out.String(), "visible\n")
	}
	if errOut.String() != "hidden\n" {
		t.Errorf("stderr = %q, want %q", errOut.String(), "hidden\n")
	}
}

func TestExecutorRunPreservesCommandEnv(t *testing.T) {
	var out bytes.Buffer
	e := &Executor{Context: context.Background(), Stdout: &out, Stderr: &out}

	cmd := exec.Command("sh", "-c", "echo $MARKER")
	cmd.Env = []string{"PATH=/usr/bin:/bin", "MARKER=set"}
	if err := e.Run(cmd); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "set\n" {
		t.Errorf("output = %q, want %q", out.String(), "set\n")
	}
}

func TestExecutorCancellationKillsCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	e := &Executor{Context: ctx, Stdout: &out, Stderr: &out}

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := e.RunShell("sleep 30", t.TempDir(), nil)
	if err == nil {
		t.Fatal("cancelled command should report an error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("command survived cancellation for %s", elapsed)
	}
}

func TestExecutorCommandFailure(t *testing.T) {
	e := NewExecutor(context.Background())
	var out bytes.Buffer
	e.Stdout = &out
	e.Stderr = &out
	if err := e.RunShell("exit 7", t.TempDir(), nil); err == nil {
		t.Error("non-zero exit should be reported")
	}
}
