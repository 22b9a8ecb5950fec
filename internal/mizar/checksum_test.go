package mizar

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestComputeChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("hello mizar\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The file hash must agree with hashing the same bytes directly,
	// whichever hasher (system b3sum or internal) ends up used.
	want := hashString("hello mizar\n")
	got, err := ComputeChecksum(path)
	if err != nil {
		t.Fatalf("ComputeChecksum: %v", err)
	}
	if got != want {
		t.Errorf("ComputeChecksum = %s, want %s", got, want)
	}
	if len(got) != 64 {
		t.Errorf("digest length = %d, want 64 hex characters", len(got))
	}

	other := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(other, []byte("different\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sum, err := ComputeChecksum(other)
	if err != nil {
		t.Fatal(err)
	}
	if sum == got {
		t.Error("different content produced the same digest")
	}
}

func TestComputeChecksumMissingFile(t *testing.T) {
	if _, err := ComputeChecksum(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestVerifyChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	sum, err := ComputeChecksum(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := verifyChecksum(path, sum); err != nil {
		t.Errorf("matching checksum rejected: %v", err)
	}
	if err := verifyChecksum(path, "0000"); !errors.Is(err, errChecksumMismatch) {
		t.Errorf("err = %v, want errChecksumMismatch", err)
	}
}
