package mizar

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// listInstalledFiles walks destDir and returns every regular file and
// symlink as a path relative to the install destination, sorted.
func listInstalledFiles(destDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(destDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && info.Mode()&os.ModeSymlink == 0 {
			return nil
		}
		rel, err := filepath.Rel(destDir, path)
		if err != nil {
			return err
		}
		files = append(files, "/"+rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list installed files under %s: %w", destDir, err)
	}
	sort.Strings(files)
	return files, nil
}

// WriteManifest records the installed-file list for a package in the
// package database. The write is atomic so a rebuild can overwrite a
// previous manifest without a reader ever seeing a torn file.
func WriteManifest(cfg *Config, d *Descriptor, destDir string) error {
	files, err := listInstalledFiles(destDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.PkgDB, 0o755); err != nil {
		return fmt.Errorf("failed to create package db dir: %w", err)
	}
	data := strings.Join(files, "\n")
	if data != "" {
		data += "\n"
	}
	if err := atomicWriteFile(d.ManifestPath(cfg), []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	debugf("Wrote manifest with %d entries for %s\n", len(files), d.ID())
	return nil
}

// WriteMetaRecord persists the small build metadata record. All-or-nothing:
// the temp-and-rename write guarantees no consumer observes a half-written
// meta file.
func WriteMetaRecord(cfg *Config, d *Descriptor) error {
	if err := os.MkdirAll(cfg.PkgDB, 0o755); err != nil {
		return fmt.Errorf("failed to create package db dir: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "name = %s\n", d.Name)
	fmt.Fprintf(&b, "version = %s\n", d.Version)
	fmt.Fprintf(&b, "build_date = %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "origin = %s\n", d.MetaPath)
	if err := atomicWriteFile(d.MetaRecordPath(cfg), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write meta record: %w", err)
	}
	return nil
}

// storeBuildLog compresses the build log into the package database next to
// the manifest. Best-effort: a failed compression never fails the build.
func storeBuildLog(cfg *Config, d *Descriptor) {
	src, err := os.Open(d.BuildLogPath(cfg))
	if err != nil {
		debugf("No build log to store for %s: %v\n", d.ID(), err)
		return
	}
	defer src.Close()

	dest := filepath.Join(cfg.PkgDB, d.ID()+".log.xz")
	out, err := os.Create(dest + ".part")
	if err != nil {
		debugf("Could not create %s: %v\n", dest, err)
		return
	}
	xw, err := xz.NewWriter(out)
	if err != nil {
		out.Close()
		os.Remove(dest + ".part")
		return
	}
	if _, err := io.Copy(xw, src); err == nil && xw.Close() == nil && out.Close() == nil {
		os.Rename(dest+".part", dest)
	} else {
		out.Close()
		os.Remove(dest + ".part")
	}
}

// loadBuildLog decompresses a stored build log for display.
func loadBuildLog(cfg *Config, id string) ([]string, error) {
	path := filepath.Join(cfg.PkgDB, id+".log.xz")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("no build log stored for %s", id)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data, err := io.ReadAll(xr)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n"), nil
}

// loadManifest reads an installed-file manifest for display.
func loadManifest(cfg *Config, id string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(cfg.PkgDB, id+".files"))
	if err != nil {
		return nil, fmt.Errorf("no manifest for %s: %w", id, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n"), nil
}
