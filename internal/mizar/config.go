package mizar

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Config struct
type Config struct {
	Values map[string]string

	// Derived paths. Kept on the config value rather than in package
	// globals so two descriptors can be processed in one process without
	// stepping on each other.
	RootDir    string
	CacheDir   string
	SourcesDir string
	BinDir     string
	LockDir    string
	LogDir     string
	PkgDB      string
	TmpDir     string

	MirrorBase       string // mirror:: base URL, no trailing slash
	RequireChecksums bool
	NativeHTTP       bool
	DownloadRetries  int
	RetryDelaySec    int
	MinFreeMB        int64
	Jobs             int
}

// Load /etc/mizar.conf and apply defaults
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	// Merge MIZAR_* env overrides
	mergeEnvOverrides(cfg)

	// Ensure TMPDIR has a default
	if tmp := cfg.Values["TMPDIR"]; tmp == "" {
		cfg.Values["TMPDIR"] = "/tmp"
	}

	initConfig(cfg)
	return cfg, nil
}

// Merge MIZAR_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "MIZAR_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

func intValue(cfg *Config, key string, def int) int {
	if v := cfg.Values[key]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
		warnf("Ignoring invalid %s=%q\n", key, cfg.Values[key])
	}
	return def
}

func initConfig(cfg *Config) {
	cfg.RootDir = cfg.Values["MIZAR_ROOT"]
	if cfg.RootDir == "" {
		cfg.RootDir = "/"
	}

	cfg.CacheDir = cfg.Values["MIZAR_CACHE_DIR"]
	if cfg.CacheDir == "" {
		cfg.CacheDir = "/var/cache/mizar"
	}

	Debug = cfg.Values["MIZAR_DEBUG"] == "1"

	cfg.TmpDir = cfg.Values["TMPDIR"]
	if cfg.TmpDir == "" {
		cfg.TmpDir = "/tmp"
	}

	cfg.SourcesDir = filepath.Join(cfg.CacheDir, "sources")
	cfg.BinDir = filepath.Join(cfg.CacheDir, "bin")
	cfg.LockDir = filepath.Join(cfg.CacheDir, "locks")
	cfg.LogDir = filepath.Join(cfg.CacheDir, "log")
	cfg.PkgDB = filepath.Join(cfg.RootDir, "var/db/mizar/packages")

	if mirror, exists := cfg.Values["MIZAR_MIRROR"]; exists && mirror != "" {
		cfg.MirrorBase = strings.TrimRight(mirror, "/")
		debugf("=> Using source mirror: %s\n", cfg.MirrorBase)
	}

	cfg.RequireChecksums = cfg.Values["MIZAR_REQUIRE_CHECKSUMS"] == "1"

	// The native Go HTTP client is the last rung of the download ladder.
	// Disabling it makes "neither curl nor wget installed" a hard error.
	cfg.NativeHTTP = cfg.Values["MIZAR_NATIVE_HTTP"] != "0"

	cfg.DownloadRetries = intValue(cfg, "MIZAR_DOWNLOAD_RETRIES", 3)
	cfg.RetryDelaySec = intValue(cfg, "MIZAR_RETRY_DELAY", 3)
	cfg.MinFreeMB = int64(intValue(cfg, "MIZAR_MIN_FREE_MB", 0))

	cfg.Jobs = intValue(cfg, "MIZAR_JOBS", 0)
	if cfg.Jobs == 0 {
		cfg.Jobs = runtime.NumCPU()
	}
}
