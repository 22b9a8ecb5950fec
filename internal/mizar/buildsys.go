package mizar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Build systems the dispatcher can drive.
const (
	SystemAutotools = "autotools"
	SystemCMake     = "cmake"
	SystemCargo     = "cargo"
	SystemPython    = "python"
	SystemNode      = "node"
	SystemMake      = "make"
	SystemUnknown   = "unknown"
)

// DetectBuildSystem inspects the top level of workDir for toolchain marker
// files. A configure script wins over a Makefile since autotools trees ship
// both.
func DetectBuildSystem(workDir string) string {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(workDir, name))
		return err == nil
	}
	switch {
	case exists("configure"):
		return SystemAutotools
	case exists("CMakeLists.txt"):
		return SystemCMake
	case exists("Cargo.toml"):
		return SystemCargo
	case exists("setup.py") || exists("pyproject.toml"):
		return SystemPython
	case exists("package.json"):
		return SystemNode
	case exists("Makefile") || exists("makefile") || exists("GNUmakefile"):
		return SystemMake
	default:
		return SystemUnknown
	}
}

// resolveBuildSystem applies the descriptor override: "auto" defers to
// detection, anything else wins.
func resolveBuildSystem(d *Descriptor, workDir string) string {
	if d.Build.System != "" && d.Build.System != "auto" {
		return d.Build.System
	}
	return DetectBuildSystem(workDir)
}

// stageDefaults holds the per-toolchain command templates. ${DESTDIR},
// ${PREFIX}, ${JOBS} and ${OPTIONS} are expanded at execution time.
var stageDefaults = map[string]map[string]string{
	SystemAutotools: {
		"configure": "./configure --prefix=${PREFIX} ${OPTIONS}",
		"build":     "make -j${JOBS}",
		"check":     "make check",
		"install":   "make DESTDIR=${DESTDIR} install",
	},
	SystemCMake: {
		"configure": "cmake -S . -B build -DCMAKE_INSTALL_PREFIX=${PREFIX} -DCMAKE_BUILD_TYPE=Release ${OPTIONS}",
		"build":     "cmake --build build -j ${JOBS}",
		"check":     "ctest --test-dir build --output-on-failure",
		"install":   "DESTDIR=${DESTDIR} cmake --install build",
	},
	SystemCargo: {
		"build":   "cargo build --release --locked ${OPTIONS}",
		"check":   "cargo test --release --locked",
		"install": "cargo install --path . --locked --root ${DESTDIR}${PREFIX}",
	},
	SystemPython: {
		"build":   "python3 -m build --wheel --no-isolation",
		"check":   "python3 -m pytest",
		"install": "python3 -m installer --destdir=${DESTDIR} dist/*.whl",
	},
	SystemNode: {
		"configure": "npm ci ${OPTIONS}",
		"build":     "npm run build --if-present",
		"check":     "npm test --if-present",
		"install":   "npm install -g --prefix ${DESTDIR}${PREFIX} .",
	},
	SystemMake: {
		"build":   "make -j${JOBS}",
		"check":   "make check",
		"install": "make DESTDIR=${DESTDIR} PREFIX=${PREFIX} install",
	},
}

// resolveStageCommand picks the descriptor override when present, otherwise
// the toolchain default. An empty result means the stage has nothing to do.
func resolveStageCommand(d *Descriptor, system, stage string) string {
	switch stage {
	case "configure":
		if d.Build.Configure != "" {
			return d.Build.Configure
		}
	case "build":
		if d.Build.Build != "" {
			return d.Build.Build
		}
	case "check":
		if d.Build.Check != "" {
			return d.Build.Check
		}
	case "install":
		if d.Build.Install != "" {
			return d.Build.Install
		}
	}
	if defaults, ok := stageDefaults[system]; ok {
		return defaults[stage]
	}
	return ""
}

// expandStageCommand substitutes the template variables.
func expandStageCommand(cfg *Config, d *Descriptor, command, destDir string) string {
	prefix := d.Build.Prefix
	if prefix == "" {
		prefix = "/usr"
	}
	r := strings.NewReplacer(
		"${DESTDIR}", destDir,
		"${PREFIX}", prefix,
		"${JOBS}", fmt.Sprintf("%d", cfg.Jobs),
		"${OPTIONS}", d.Build.Options,
	)
	return strings.TrimSpace(r.Replace(command))
}

// runStageCommand executes one resolved stage command in workDir, with the
// template variables also exported in the environment for hand-written
// override commands.
func runStageCommand(cfg *Config, d *Descriptor, execCtx *Executor, system, stage, workDir, destDir string) error {
	command := resolveStageCommand(d, system, stage)
	if command == "" {
		debugf("Nothing to do for stage %s (%s)\n", stage, system)
		return nil
	}
	expanded := expandStageCommand(cfg, d, command, destDir)
	if expanded == "" {
		return nil
	}
	if _, err := os.Stat(workDir); err != nil {
		return fmt.Errorf("stage %s: %s: %w", stage, workDir, errMissingWorkdir)
	}

	prefix := d.Build.Prefix
	if prefix == "" {
		prefix = "/usr"
	}
	env := append(os.Environ(),
		"DESTDIR="+destDir,
		"PREFIX="+prefix,
		fmt.Sprintf("JOBS=%d", cfg.Jobs),
		fmt.Sprintf("MAKEFLAGS=-j%d", cfg.Jobs),
	)

	debugf("Stage %s: %s\n", stage, expanded)
	return execCtx.RunShell(expanded, workDir, env)
}
