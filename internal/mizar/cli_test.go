package mizar

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPrintChecksums(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.bin"), []byte("bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := &Descriptor{
		Name:    "pkg",
		Version: "1.0",
		Dir:     dir,
		Sources: []SourceSpec{parseSourceSpec("data.bin")},
	}
	if err := PrintChecksums(cfg, d); err != nil {
		t.Fatalf("PrintChecksums: %v", err)
	}
}

func TestPrintChecksumsUnfetchable(t *testing.T) {
	cfg := testConfig(t)
	d := &Descriptor{
		Name:    "pkg",
		Version: "1.0",
		Dir:     t.TempDir(),
		Sources: []SourceSpec{parseSourceSpec("absent.bin")},
	}
	if err := PrintChecksums(cfg, d); err == nil {
		t.Error("expected error for unfetchable source")
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !fileExists(path) {
		t.Error("fileExists = false for an existing file")
	}
	if fileExists(filepath.Join(dir, "absent")) {
		t.Error("fileExists = true for a missing file")
	}
}
