package mizar

import "errors"

// Sentinel errors. Every fatal condition keeps its own identity so callers
// (and retry logic built on top of the CLI) can tell failures apart with
// errors.Is instead of string matching.
var (
	errMissingField     = errors.New("required descriptor field missing")
	errLockBusy         = errors.New("lock already held")
	errNoDownloadTool   = errors.New("no download tool available")
	errDownloadFailed   = errors.New("download failed")
	errChecksumMismatch = errors.New("checksum mismatch")
	errUnknownSource    = errors.New("unknown source format")
	errPatchFailed      = errors.New("patch failed to apply")
	errBuildFailed      = errors.New("build command failed")
	errInstallFailed    = errors.New("install failed")
	errDiskSpace        = errors.New("insufficient disk space")
	errMissingWorkdir   = errors.New("working directory missing")
)

// Exit codes, one per fatal condition from the taxonomy.
const (
	exitOK             = 0
	exitFailure        = 1
	exitUsage          = 2
	exitMissingField   = 3
	exitLockBusy       = 4
	exitNoDownloadTool = 5
	exitDownloadFailed = 6
	exitChecksum       = 7
	exitUnknownSource  = 8
	exitPatchFailed    = 9
	exitBuildFailed    = 10
	exitInstallFailed  = 11
	exitDiskSpace      = 12
	exitMissingWorkdir = 13
)

// exitCodeFor maps an error chain onto its distinct exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errMissingField):
		return exitMissingField
	case errors.Is(err, errLockBusy):
		return exitLockBusy
	case errors.Is(err, errNoDownloadTool):
		return exitNoDownloadTool
	case errors.Is(err, errDownloadFailed):
		return exitDownloadFailed
	case errors.Is(err, errChecksumMismatch):
		return exitChecksum
	case errors.Is(err, errUnknownSource):
		return exitUnknownSource
	case errors.Is(err, errPatchFailed):
		return exitPatchFailed
	case errors.Is(err, errBuildFailed):
		return exitBuildFailed
	case errors.Is(err, errInstallFailed):
		return exitInstallFailed
	case errors.Is(err, errDiskSpace):
		return exitDiskSpace
	case errors.Is(err, errMissingWorkdir):
		return exitMissingWorkdir
	default:
		return exitFailure
	}
}
