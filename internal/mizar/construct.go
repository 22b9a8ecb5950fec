package mizar

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Canonical stage order. Requested subsets filter this sequence, they never
// reorder it.
var canonicalStages = []string{"prepare", "configure", "build", "check", "install"}

// ConstructOptions controls one construction run.
type ConstructOptions struct {
	Stages []string // subset of stages to run; empty means all
	From   string   // resume from this stage, trusting earlier artifacts
	Force  bool     // re-fetch sources even when cached
}

// planStages filters the canonical sequence down to the requested subset.
// Unknown stage names are warned about and skipped; the rest still run.
func planStages(opts ConstructOptions) []string {
	requested := make(map[string]bool)
	if len(opts.Stages) == 0 {
		for _, s := range canonicalStages {
			requested[s] = true
		}
	} else {
		known := make(map[string]bool, len(canonicalStages))
		for _, s := range canonicalStages {
			known[s] = true
		}
		for _, s := range opts.Stages {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if !known[s] {
				warnf("Unknown stage %q, skipping\n", s)
				continue
			}
			requested[s] = true
		}
	}

	started := opts.From == ""
	var plan []string
	for _, s := range canonicalStages {
		if !started {
			if s == opts.From {
				started = true
			} else {
				continue
			}
		}
		if requested[s] {
			plan = append(plan, s)
		}
	}
	if !started {
		warnf("Unknown resume stage %q, running from the beginning\n", opts.From)
		for _, s := range canonicalStages {
			if requested[s] {
				plan = append(plan, s)
			}
		}
	}
	return plan
}

// runHook executes an optional user hook script next to the descriptor
// (hooks/pre-build, hooks/post-install, ...). Hooks are observational: a
// failing hook is logged and ignored, never fatal.
func runHook(d *Descriptor, execCtx *Executor, name, workDir string) {
	script := filepath.Join(d.Dir, "hooks", name)
	info, err := os.Stat(script)
	if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
		return
	}
	debugf("Running hook %s\n", name)
	if err := execCtx.RunShell(script, workDir, nil); err != nil {
		warnf("Hook %s failed: %v\n", name, err)
	}
}

// prepareWorkTree materializes every fetched source into the work tree:
// git clones are copied in, archives extracted, plain files copied.
func prepareWorkTree(cfg *Config, d *Descriptor, workDir string) error {
	cacheDir := d.SourceCacheDir(cfg)

	for _, spec := range d.Sources {
		switch spec.Kind {
		case SourceGit:
			repoName := strings.TrimSuffix(filepath.Base(spec.URL), ".git")
			clonePath := filepath.Join(cacheDir, repoName)
			info, err := os.Stat(clonePath)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("git source %s listed but not fetched: %w", spec.Raw, errMissingWorkdir)
			}
			if err := copyDir(clonePath, workDir); err != nil {
				return fmt.Errorf("failed to copy git source %s: %w", spec.Raw, err)
			}
		case SourceLocal:
			src := spec.URL
			if !filepath.IsAbs(src) {
				src = filepath.Join(d.Dir, src)
			}
			dest := filepath.Join(workDir, filepath.Base(src))
			if err := copyFile(src, dest); err != nil {
				return fmt.Errorf("failed to copy local source %s: %w", spec.Raw, err)
			}
		default:
			filename := urlBasename(spec.URL)
			srcPath := filepath.Join(cacheDir, filename)
			if _, err := os.Stat(srcPath); err != nil {
				return fmt.Errorf("source %s listed but not fetched: %w", spec.Raw, errMissingWorkdir)
			}
			switch {
			case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"),
				strings.HasSuffix(filename, ".tar.xz"), strings.HasSuffix(filename, ".tar.bz2"),
				strings.HasSuffix(filename, ".tar.zst"), strings.HasSuffix(filename, ".tar.lz"),
				strings.HasSuffix(filename, ".tar"):
				if err := extractTar(srcPath, workDir); err != nil {
					return fmt.Errorf("failed to extract %s: %w", filename, err)
				}
			case strings.HasSuffix(filename, ".zip"):
				if err := unzipGo(srcPath, workDir); err != nil {
					return fmt.Errorf("failed to unzip %s: %w", filename, err)
				}
			default:
				if err := copyFile(srcPath, filepath.Join(workDir, filename)); err != nil {
					return fmt.Errorf("failed to copy %s: %w", filename, err)
				}
			}
		}
	}
	return nil
}

// Construct drives the staged build state machine for one package:
// prepare, configure, build, check, install. Fatal stage failures halt the
// run; a failing check is advisory and only warns. The whole run holds the
// package's build lock - two builds mutating one work tree would not be
// self-correcting the way duplicate downloads are.
func Construct(cfg *Config, d *Descriptor, execCtx *Executor, opts ConstructOptions) error {
	pkgTmp := filepath.Join(cfg.TmpDir, "mizar", d.ID())
	workDir := filepath.Join(pkgTmp, "build")
	destDir := filepath.Join(pkgTmp, "output")

	// Preflight: fail fast before any work when the build filesystem is
	// too full to bother starting.
	if cfg.MinFreeMB > 0 {
		free, err := freeSpaceMB(cfg.TmpDir)
		if err != nil {
			return fmt.Errorf("could not stat build filesystem: %w", err)
		}
		if free < cfg.MinFreeMB {
			return fmt.Errorf("%d MB free on %s, %d MB required: %w",
				free, cfg.TmpDir, cfg.MinFreeMB, errDiskSpace)
		}
	}

	lock, err := AcquireLock(cfg, d.Name, d.Version, "build")
	if err != nil {
		return fmt.Errorf("another build of %s is in progress: %w", d.ID(), errLockBusy)
	}
	defer lock.Release()

	plan := planStages(opts)
	if len(plan) == 0 {
		warnf("No stages to run for %s\n", d.ID())
		return nil
	}
	debugf("Stage plan for %s: %s\n", d.ID(), strings.Join(plan, ", "))

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}
	logFile, err := os.Create(d.BuildLogPath(cfg))
	if err != nil {
		return fmt.Errorf("failed to create build log: %w", err)
	}
	defer logFile.Close()

	// Stage output goes to the build log; the terminal only sees it in
	// verbose mode.
	stageExec := &Executor{Context: execCtx.Context, Stdout: logFile, Stderr: logFile}
	if Verbose {
		stageExec.Stdout = io.MultiWriter(os.Stdout, logFile)
		stageExec.Stderr = io.MultiWriter(os.Stderr, logFile)
	}

	resumed := plan[0] != "prepare"
	if resumed {
		if _, err := os.Stat(workDir); err != nil {
			return fmt.Errorf("resume requested but %s does not exist: %w", workDir, errMissingWorkdir)
		}
	}

	start := time.Now()
	system := ""
	installed := false

	for _, stage := range plan {
		runHook(d, stageExec, "pre-"+stage, workDir)

		switch stage {
		case "prepare":
			if err := os.RemoveAll(pkgTmp); err != nil {
				return fmt.Errorf("failed to clean %s: %w", pkgTmp, err)
			}
			for _, dir := range []string{workDir, destDir} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create %s: %w", dir, err)
				}
			}
			if err := FetchSources(cfg, d, opts.Force); err != nil {
				return err
			}
			if err := prepareWorkTree(cfg, d, workDir); err != nil {
				return err
			}
			if err := ApplyPatches(d, workDir, stageExec); err != nil {
				return err
			}

		case "configure", "build":
			if system == "" {
				system = resolveBuildSystem(d, workDir)
				infof("Build system for %s: %s\n", d.ID(), system)
			}
			if err := runStageCommand(cfg, d, stageExec, system, stage, workDir, destDir); err != nil {
				return fmt.Errorf("stage %s: %v: %w", stage, err, errBuildFailed)
			}

		case "check":
			if system == "" {
				system = resolveBuildSystem(d, workDir)
			}
			// Test suites are advisory in this pipeline, not gating.
			if err := runStageCommand(cfg, d, stageExec, system, stage, workDir, destDir); err != nil {
				warnf("Check stage failed for %s (continuing): %v\n", d.ID(), err)
			}

		case "install":
			if system == "" {
				system = resolveBuildSystem(d, workDir)
			}
			if err := os.MkdirAll(destDir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", destDir, err)
			}
			if err := runStageCommand(cfg, d, stageExec, system, stage, workDir, destDir); err != nil {
				return fmt.Errorf("stage install: %v: %w", err, errInstallFailed)
			}
			if err := WriteManifest(cfg, d, destDir); err != nil {
				return fmt.Errorf("%v: %w", err, errInstallFailed)
			}
			// Package the staged tree so the artifact can be published
			// to a binary mirror later.
			if err := os.MkdirAll(cfg.BinDir, 0o755); err == nil {
				artifact := filepath.Join(cfg.BinDir, d.ID()+".tar.gz")
				if err := createWorktreeTarball(destDir, artifact); err != nil {
					warnf("Could not create artifact tarball for %s: %v\n", d.ID(), err)
				}
			}
			installed = true
		}

		runHook(d, stageExec, "post-"+stage, workDir)
	}

	// The meta record and the stored log assert "this package was built and
	// installed". A partial stage run must not leave that claim behind.
	if installed {
		if err := WriteMetaRecord(cfg, d); err != nil {
			return err
		}
		logFile.Close()
		storeBuildLog(cfg, d)
	}

	infof("Constructed %s in %s\n", d.ID(), time.Since(start).Round(time.Second))
	return nil
}
