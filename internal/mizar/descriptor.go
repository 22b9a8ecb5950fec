package mizar

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SourceKind tags the variants of the source specifier grammar.
// The string prefix is matched exactly once, at descriptor load time.
type SourceKind int

const (
	SourceURL SourceKind = iota
	SourceGit
	SourceLocal
	SourceMirror
)

// SourceSpec is one entry of a descriptor's source list.
type SourceSpec struct {
	Kind SourceKind
	URL  string // remote URL, repository URI, or local path
	Ref  string // git only, optional
	Raw  string // the specifier exactly as written
}

func (s SourceSpec) String() string { return s.Raw }

// parseSourceSpec classifies a single source specifier:
//
//	git::<uri>[@<ref>] | http(s)/ftp/file ://<rest> | mirror::<url> | local path
func parseSourceSpec(raw string) SourceSpec {
	switch {
	case strings.HasPrefix(raw, "git::"):
		uri := strings.TrimPrefix(raw, "git::")
		ref := ""
		// A ref separator is only valid after the last path element, so
		// ssh-style user@host URIs are left alone.
		if at := strings.LastIndex(uri, "@"); at > strings.LastIndex(uri, "/") {
			ref = uri[at+1:]
			uri = uri[:at]
		}
		return SourceSpec{Kind: SourceGit, URL: uri, Ref: ref, Raw: raw}
	case strings.HasPrefix(raw, "mirror::"):
		return SourceSpec{Kind: SourceMirror, URL: strings.TrimPrefix(raw, "mirror::"), Raw: raw}
	case strings.HasPrefix(raw, "http://"),
		strings.HasPrefix(raw, "https://"),
		strings.HasPrefix(raw, "ftp://"),
		strings.HasPrefix(raw, "file://"):
		return SourceSpec{Kind: SourceURL, URL: raw, Raw: raw}
	default:
		return SourceSpec{Kind: SourceLocal, URL: raw, Raw: raw}
	}
}

// BuildConfig holds the [build] section of a descriptor.
type BuildConfig struct {
	System    string // toolchain name or "auto"
	Configure string
	Build     string
	Check     string
	Install   string
	Prefix    string
	Options   string
}

// Descriptor is the loaded build recipe for one package.
// It is immutable after LoadDescriptor returns.
type Descriptor struct {
	Name    string
	Version string

	Sources   []SourceSpec
	Checksums []string // index-aligned with Sources; "" means none supplied
	Patches   []string

	Build BuildConfig

	DependsBuild    map[string]struct{}
	DependsRuntime  map[string]struct{}
	DependsOptional map[string]struct{}
	DependsVirtual  map[string]struct{}

	// Dir is the directory holding the descriptor file; patches and hooks
	// are resolved relative to it.
	Dir      string
	MetaPath string
}

// ID is the package's unique key, used in lock names, cache directories,
// log files and manifest names.
func (d *Descriptor) ID() string { return d.Name + "-" + d.Version }

// SourceCacheDir is the per-package cache directory for fetched sources.
func (d *Descriptor) SourceCacheDir(cfg *Config) string {
	return filepath.Join(cfg.SourcesDir, d.ID())
}

// LogPath is the per-package operation log.
func (d *Descriptor) LogPath(cfg *Config) string {
	return filepath.Join(cfg.LogDir, d.ID()+".log")
}

// BuildLogPath captures stage command output.
func (d *Descriptor) BuildLogPath(cfg *Config) string {
	return filepath.Join(cfg.LogDir, d.ID()+".build.log")
}

// ManifestPath is the installed-file list in the package database.
func (d *Descriptor) ManifestPath(cfg *Config) string {
	return filepath.Join(cfg.PkgDB, d.ID()+".files")
}

// MetaRecordPath is the build metadata record in the package database.
func (d *Descriptor) MetaRecordPath(cfg *Config) string {
	return filepath.Join(cfg.PkgDB, d.ID()+".meta")
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(val string) []string {
	var out []string
	for _, f := range strings.Split(val, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// splitAligned splits a comma-separated value keeping empty entries, so a
// missing checksum stays aligned with its source index.
func splitAligned(val string) []string {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func splitSet(val string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, name := range splitList(val) {
		set[name] = struct{}{}
	}
	return set
}

// LoadDescriptor parses a descriptor file into an immutable Descriptor.
// Top-level keys carry the package identity and source lists; named sections
// carry build configuration and dependency lists.
func LoadDescriptor(path string) (*Descriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read descriptor %s: %w", path, err)
	}
	defer file.Close()

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	d := &Descriptor{
		Dir:             filepath.Dir(absPath),
		MetaPath:        absPath,
		DependsBuild:    make(map[string]struct{}),
		DependsRuntime:  make(map[string]struct{}),
		DependsOptional: make(map[string]struct{}),
		DependsVirtual:  make(map[string]struct{}),
	}

	section := ""
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		switch section {
		case "":
			switch key {
			case "name":
				d.Name = val
			case "version":
				d.Version = val
			case "sources":
				for _, raw := range splitList(val) {
					d.Sources = append(d.Sources, parseSourceSpec(raw))
				}
			case "checksums":
				d.Checksums = splitAligned(val)
			case "patches":
				d.Patches = splitList(val)
			}
		case "build":
			switch key {
			case "system":
				d.Build.System = val
			case "configure":
				d.Build.Configure = val
			case "build":
				d.Build.Build = val
			case "check":
				d.Build.Check = val
			case "install":
				d.Build.Install = val
			case "prefix":
				d.Build.Prefix = val
			case "options":
				d.Build.Options = val
			}
		case "depends.build":
			if key == "packages" {
				d.DependsBuild = splitSet(val)
			}
		case "depends.runtime":
			if key == "packages" {
				d.DependsRuntime = splitSet(val)
			}
		case "depends.optional":
			if key == "packages" {
				d.DependsOptional = splitSet(val)
			}
		case "depends.virtual":
			if key == "packages" {
				d.DependsVirtual = splitSet(val)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading descriptor %s: %w", path, err)
	}

	if d.Name == "" {
		return nil, fmt.Errorf("%s: name: %w", path, errMissingField)
	}
	if d.Version == "" {
		return nil, fmt.Errorf("%s: version: %w", path, errMissingField)
	}
	// Identity strings compose filesystem paths.
	if strings.ContainsAny(d.Name, "/\\") || strings.ContainsAny(d.Version, "/\\") {
		return nil, fmt.Errorf("%s: name/version must not contain path separators: %w", path, errMissingField)
	}

	if d.Build.System == "" {
		d.Build.System = "auto"
	}
	// Pad the checksum list so every source index has a (possibly empty) slot.
	for len(d.Checksums) < len(d.Sources) {
		d.Checksums = append(d.Checksums, "")
	}

	return d, nil
}
