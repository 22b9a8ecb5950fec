package mizar

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requirePatchTool(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("patch"); err != nil {
		t.Skip("patch tool not installed")
	}
}

const helloPatch = `--- a/hello.txt
+++ b/hello.txt
@@ -1 +1 @@
-hello
+goodbye
`

func TestApplyPatches(t *testing.T) {
	requirePatchTool(t)

	pkgDir := t.TempDir()
	workDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workDir, "hello.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "greeting.patch"), []byte(helloPatch), 0o644); err != nil {
		t.Fatal(err)
	}

	d := &Descriptor{Name: "pkg", Version: "1.0", Dir: pkgDir, Patches: []string{"greeting.patch"}}
	execCtx := NewExecutor(context.Background())
	execCtx.Stdout = os.Stderr
	execCtx.Stderr = os.Stderr

	if err := ApplyPatches(d, workDir, execCtx); err != nil {
		t.Fatalf("ApplyPatches: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(workDir, "hello.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "goodbye\n" {
		t.Errorf("patched content = %q, want %q", data, "goodbye\n")
	}
}

func TestApplyPatchesNoPatches(t *testing.T) {
	// An empty patch list succeeds without even requiring the work tree.
	d := &Descriptor{Name: "pkg", Version: "1.0"}
	if err := ApplyPatches(d, filepath.Join(t.TempDir(), "absent"), NewExecutor(context.Background())); err != nil {
		t.Errorf("ApplyPatches with no patches: %v", err)
	}
}

func TestApplyPatchesMissingWorkdir(t *testing.T) {
	d := &Descriptor{Name: "pkg", Version: "1.0", Dir: t.TempDir(), Patches: []string{"x.patch"}}
	err := ApplyPatches(d, filepath.Join(t.TempDir(), "absent"), NewExecutor(context.Background()))
	if !errors.Is(err, errMissingWorkdir) {
		t.Errorf("err = %v, want errMissingWorkdir", err)
	}
}

func TestApplyPatchesMissingPatchFile(t *testing.T) {
	d := &Descriptor{Name: "pkg", Version: "1.0", Dir: t.TempDir(), Patches: []string{"absent.patch"}}
	err := ApplyPatches(d, t.TempDir(), NewExecutor(context.Background()))
	if !errors.Is(err, errPatchFailed) {
		t.Errorf("err = %v, want errPatchFailed", err)
	}
}

func TestApplyPatchesRejectsGarbage(t *testing.T) {
	requirePatchTool(t)

	pkgDir := t.TempDir()
	workDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(pkgDir, "bad.patch"), []byte("this is not a patch\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := &Descriptor{Name: "pkg", Version: "1.0", Dir: pkgDir, Patches: []string{"bad.patch"}}
	execCtx := NewExecutor(context.Background())
	execCtx.Stdout = os.Stderr
	execCtx.Stderr = os.Stderr

	err := ApplyPatches(d, workDir, execCtx)
	if !errors.Is(err, errPatchFailed) {
		t.Errorf("err = %v, want errPatchFailed", err)
	}
}
