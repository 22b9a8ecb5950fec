package mizar

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"lukechampine.com/blake3"
)

// check if b3sum is installed on system
func hasB3sum() bool {
	_, err := exec.LookPath("b3sum")
	return err == nil
}

func hashString(s string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ComputeChecksum hashes one file, preferring the system b3sum tool and
// falling back to the internal BLAKE3 implementation.
func ComputeChecksum(path string) (string, error) {
	if hasB3sum() && !strings.Contains(path, "\\") {
		cmd := exec.Command("b3sum", path)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = io.Discard
		if err := cmd.Run(); err == nil {
			fields := strings.Fields(out.String())
			if len(fields) > 0 {
				return fields[0], nil
			}
		}
		debugf("b3sum failed for %s, using internal hasher\n", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// verifyChecksum compares a file against a declared digest. A mismatch is
// fatal: the artifact must never be treated as valid.
func verifyChecksum(path, want string) error {
	got, err := ComputeChecksum(path)
	if err != nil {
		return fmt.Errorf("could not checksum %s: %w", path, err)
	}
	if got != want {
		return fmt.Errorf("%s: expected %s, got %s: %w", path, want, got, errChecksumMismatch)
	}
	debugf("Checksum verified for %s\n", path)
	return nil
}
