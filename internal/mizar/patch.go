package mizar

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ApplyPatches applies the descriptor's patch list, in declared order,
// against workDir. Patch files are resolved relative to the descriptor
// directory. Each patch gets a strict attempt first and a fuzzy fallback
// second; only when both fail is the patch reported, with its index, as
// failed - a patch is never silently skipped.
func ApplyPatches(d *Descriptor, workDir string, execCtx *Executor) error {
	if len(d.Patches) == 0 {
		return nil
	}
	if _, err := os.Stat(workDir); err != nil {
		return fmt.Errorf("cannot patch %s: %w", workDir, errMissingWorkdir)
	}

	for i, ref := range d.Patches {
		patchFile := ref
		if !filepath.IsAbs(patchFile) {
			patchFile = filepath.Join(d.Dir, ref)
		}
		if _, err := os.Stat(patchFile); err != nil {
			return fmt.Errorf("patch %d (%s): file missing: %w", i, ref, errPatchFailed)
		}

		infof("Applying patch %s\n", ref)

		strict := exec.Command("patch", "-Np1", "--forward", "-i", patchFile)
		strict.Dir = workDir
		if err := execCtx.Run(strict); err == nil {
			continue
		}
		debugf("Strict apply of %s failed, retrying with fuzz\n", ref)

		fuzzy := exec.Command("patch", "-Np0", "--forward", "--fuzz=3", "-i", patchFile)
		fuzzy.Dir = workDir
		if err := execCtx.Run(fuzzy); err != nil {
			return fmt.Errorf("patch %d (%s): %v: %w", i, ref, err, errPatchFailed)
		}
	}
	return nil
}
