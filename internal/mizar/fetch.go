package mizar

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Slow mirrors stall on the handshake more often than on the transfer.
	transport.TLSHandshakeTimeout = 30 * time.Second
	return &http.Client{
		Transport: transport,
		Timeout:   300 * time.Second, // 5 min total timeout for large downloads
	}
}

// urlBasename derives the destination filename for a download.
func urlBasename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return filepath.Base(u.Path)
	}
	return filepath.Base(rawURL)
}

// copyLocalAtomic copies src to dest through a temp sibling so a partial
// copy never becomes visible at the final path.
func copyLocalAtomic(src, dest string) error {
	part := dest + ".part"
	if err := copyFile(src, part); err != nil {
		os.Remove(part)
		return err
	}
	return os.Rename(part, dest)
}

// downloadOnce transfers a URL to destPath via the first available tool:
// curl, then wget, then the native Go client when enabled. The download
// lands in a .part sibling and is renamed only on success.
func downloadOnce(cfg *Config, srcURL, destPath string) error {
	if strings.HasPrefix(srcURL, "file://") {
		return copyLocalAtomic(strings.TrimPrefix(srcURL, "file://"), destPath)
	}

	part := destPath + ".part"
	defer os.Remove(part)

	// A present-but-failing tool is a failed transfer, not an absent tool.
	// The two must stay distinct: only the latter is non-retryable.
	toolFound := false
	var toolErr error

	if _, err := exec.LookPath("curl"); err == nil {
		toolFound = true
		args := []string{"-L", "--fail", "--connect-timeout", "30", "-o", part}
		if Verbose {
			args = append(args, "-#")
		} else {
			args = append(args, "-sS")
		}
		args = append(args, srcURL)
		cmd := exec.Command("curl", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		runErr := cmd.Run()
		if runErr == nil {
			return os.Rename(part, destPath)
		}
		toolErr = fmt.Errorf("curl: %v", runErr)
		debugf("curl failed for %s, falling back to wget\n", srcURL)
	} else {
		debugf("curl not found, trying wget\n")
	}

	if _, err := exec.LookPath("wget"); err == nil {
		toolFound = true
		args := []string{"-q", "-T", "30", "-O", part, srcURL}
		cmd := exec.Command("wget", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		runErr := cmd.Run()
		if runErr == nil {
			return os.Rename(part, destPath)
		}
		toolErr = fmt.Errorf("wget: %v", runErr)
		debugf("wget failed for %s\n", srcURL)
	} else {
		debugf("wget not found\n")
	}

	if !cfg.NativeHTTP {
		if !toolFound {
			return fmt.Errorf("neither curl nor wget is installed: %w", errNoDownloadTool)
		}
		return fmt.Errorf("transfer of %s failed: %v", srcURL, toolErr)
	}

	// Native Go HTTP client, last rung of the ladder.
	out, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", part, err)
	}
	defer out.Close()

	resp, err := newHTTPClient().Get(srcURL)
	if err != nil {
		return fmt.Errorf("native http get failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	var w io.Writer = out
	if term.IsTerminal(int(os.Stdout.Fd())) {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(destPath))
		w = io.MultiWriter(out, bar)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to write to %s: %w", part, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(part, destPath)
}

// downloadWithRetry retries a bounded number of attempts with a fixed sleep
// in between. Tool absence is not retryable and is reported as-is.
func downloadWithRetry(cfg *Config, srcURL, destPath string) error {
	attempts := cfg.DownloadRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		lastErr = downloadOnce(cfg, srcURL, destPath)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errNoDownloadTool) {
			return lastErr
		}
		if i < attempts {
			warnf("Download attempt %d/%d for %s failed: %v\n", i, attempts, srcURL, lastErr)
			time.Sleep(time.Duration(cfg.RetryDelaySec) * time.Second)
		}
	}
	return fmt.Errorf("%s after %d attempts: %v: %w", srcURL, attempts, lastErr, errDownloadFailed)
}

// fetchGitSource materializes a git source: shallow multi-branch clone into
// the package cache, best-effort ref checkout, then a deterministic worktree
// tarball so a declared checksum has something stable to verify against.
func fetchGitSource(cfg *Config, d *Descriptor, spec SourceSpec, declared string, force bool) error {
	cacheDir := d.SourceCacheDir(cfg)
	repoName := strings.TrimSuffix(filepath.Base(spec.URL), ".git")
	clonePath := filepath.Join(cacheDir, repoName)

	if _, err := os.Stat(clonePath); err == nil && !force {
		debugf("Reusing cached clone %s\n", clonePath)
	} else {
		if err := os.RemoveAll(clonePath); err != nil {
			return fmt.Errorf("failed to clean stale clone %s: %w", clonePath, err)
		}
		infof("Cloning %s\n", spec.URL)
		cmd := exec.Command("git", "clone", "--depth", "1", "--no-single-branch", spec.URL, clonePath)
		if !Verbose {
			cmd.Stdout = io.Discard
			cmd.Stderr = io.Discard
		} else {
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
		}
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("git clone %s: %v: %w", spec.URL, err, errDownloadFailed)
		}
	}

	if spec.Ref != "" {
		// Tags are not part of a shallow clone; fetch them before the
		// checkout. The ref may also be a branch the clone already
		// resolved, so a failed checkout is logged, not fatal.
		exec.Command("git", "-C", clonePath, "config", "advice.detachedHead", "false").Run()
		fetchCmd := exec.Command("git", "-C", clonePath, "fetch", "--tags", "--depth", "1")
		fetchCmd.Stdout = io.Discard
		fetchCmd.Stderr = io.Discard
		fetchCmd.Run()
		coCmd := exec.Command("git", "-C", clonePath, "checkout", spec.Ref)
		coCmd.Stdout = io.Discard
		coCmd.Stderr = io.Discard
		if err := coCmd.Run(); err != nil {
			warnf("Could not check out ref %s in %s: %v\n", spec.Ref, repoName, err)
		}
	}

	tarball := filepath.Join(cacheDir, repoName+".tar.gz")
	if err := createWorktreeTarball(clonePath, tarball); err != nil {
		// Without the tarball a declared checksum cannot be verified.
		if declared != "" {
			warnf("Could not archive %s for checksum verification: %v\n", repoName, err)
		} else {
			debugf("Skipping worktree tarball for %s: %v\n", repoName, err)
		}
		return nil
	}

	if declared != "" {
		return verifyChecksum(tarball, declared)
	}
	if cfg.RequireChecksums {
		warnf("No checksum declared for git source %s\n", spec.Raw)
	}
	return nil
}

// fetchFileSource handles the url, mirror and local variants for one index.
func fetchFileSource(cfg *Config, d *Descriptor, spec SourceSpec, declared string, force bool) error {
	cacheDir := d.SourceCacheDir(cfg)

	if spec.Kind == SourceLocal {
		src := spec.URL
		if !filepath.IsAbs(src) {
			src = filepath.Join(d.Dir, src)
		}
		info, err := os.Stat(src)
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%s is not a readable file: %w", spec.Raw, errUnknownSource)
		}
		// Cached copy is convenience, not correctness.
		dest := filepath.Join(cacheDir, filepath.Base(src))
		if err := copyLocalAtomic(src, dest); err != nil {
			debugf("Could not cache local source %s: %v\n", src, err)
		}
		if declared != "" {
			return verifyChecksum(src, declared)
		}
		if cfg.RequireChecksums {
			warnf("No checksum declared for local source %s\n", spec.Raw)
		}
		return nil
	}

	filename := urlBasename(spec.URL)
	dest := filepath.Join(cacheDir, filename)

	if _, err := os.Stat(dest); err == nil && !force {
		debugf("Already in cache: %s\n", dest)
	} else {
		infof("Fetching source: %s\n", filename)
		candidates := []string{spec.URL}
		if spec.Kind == SourceMirror && cfg.MirrorBase != "" {
			// Try the configured mirror first, fall back to upstream.
			candidates = []string{cfg.MirrorBase + "/" + filename, spec.URL}
		}
		var err error
		for _, cand := range candidates {
			if err = downloadWithRetry(cfg, cand, dest); err == nil {
				break
			}
			if len(candidates) > 1 && cand != candidates[len(candidates)-1] {
				warnf("Mirror download failed for %s, trying upstream\n", filename)
			}
		}
		if err != nil {
			return err
		}
	}

	if declared != "" {
		if err := verifyChecksum(dest, declared); err != nil {
			// A mismatched artifact must never look like a cache hit.
			os.Remove(dest)
			return err
		}
	} else if cfg.RequireChecksums {
		warnf("No checksum declared for %s\n", spec.Raw)
	}
	return nil
}

// FetchSources resolves and materializes every declared source, in
// declaration order, into the package's cache directory. The whole
// operation is bracketed by a best-effort download lock: a busy lock means
// redundant work at worst, so it warns instead of failing.
func FetchSources(cfg *Config, d *Descriptor, force bool) error {
	if err := os.MkdirAll(d.SourceCacheDir(cfg), 0o755); err != nil {
		return fmt.Errorf("failed to create source cache dir: %w", err)
	}

	lock, err := AcquireLock(cfg, d.Name, d.Version, "download")
	if err != nil {
		warnf("Another process is downloading %s, proceeding anyway\n", d.ID())
	}
	defer lock.Release()

	for i, spec := range d.Sources {
		declared := ""
		if i < len(d.Checksums) {
			declared = d.Checksums[i]
		}
		switch spec.Kind {
		case SourceGit:
			if err := fetchGitSource(cfg, d, spec, declared, force); err != nil {
				return fmt.Errorf("source %d (%s): %w", i, spec.Raw, err)
			}
		default:
			if err := fetchFileSource(cfg, d, spec, declared, force); err != nil {
				return fmt.Errorf("source %d (%s): %w", i, spec.Raw, err)
			}
		}
	}
	return nil
}
