package mizar

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func populateDestDir(t *testing.T) string {
	t.Helper()
	dest := t.TempDir()
	for _, dir := range []string{"usr/bin", "usr/share/doc", "etc"} {
		if err := os.MkdirAll(filepath.Join(dest, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{"usr/bin/tool", "usr/share/doc/README", "etc/tool.conf"} {
		if err := os.WriteFile(filepath.Join(dest, f), []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink("tool", filepath.Join(dest, "usr/bin/tool-alias")); err != nil {
		t.Fatal(err)
	}
	return dest
}

func TestListInstalledFiles(t *testing.T) {
	dest := populateDestDir(t)
	files, err := listInstalledFiles(dest)
	if err != nil {
		t.Fatalf("listInstalledFiles: %v", err)
	}
	want := []string{
		"/etc/tool.conf",
		"/usr/bin/tool",
		"/usr/bin/tool-alias",
		"/usr/share/doc/README",
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("files = %q, want %q", files, want)
	}
}

func TestWriteAndLoadManifest(t *testing.T) {
	cfg := testConfig(t)
	d := &Descriptor{Name: "tool", Version: "1.0"}
	dest := populateDestDir(t)

	if err := WriteManifest(cfg, d, dest); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	data, err := os.ReadFile(d.ManifestPath(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("manifest should end with a newline")
	}

	lines, err := loadManifest(cfg, d.ID())
	if err != nil {
		t.Fatalf("loadManifest: %v", err)
	}
	if len(lines) != 4 || lines[1] != "/usr/bin/tool" {
		t.Errorf("loaded manifest = %q", lines)
	}
}

func TestWriteManifestEmptyTree(t *testing.T) {
	cfg := testConfig(t)
	d := &Descriptor{Name: "meta", Version: "1.0"}
	if err := WriteManifest(cfg, d, t.TempDir()); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	data, err := os.ReadFile(d.ManifestPath(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("empty install should produce an empty manifest, got %q", data)
	}
}

func TestWriteMetaRecord(t *testing.T) {
	cfg := testConfig(t)
	d := &Descriptor{Name: "tool", Version: "1.0", MetaPath: "/descriptors/tool.desc"}

	if err := WriteMetaRecord(cfg, d); err != nil {
		t.Fatalf("WriteMetaRecord: %v", err)
	}
	data, err := os.ReadFile(d.MetaRecordPath(cfg))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{
		"name = tool\n",
		"version = 1.0\n",
		"build_date = ",
		"origin = /descriptors/tool.desc\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("meta record missing %q:\n%s", want, content)
		}
	}
}

func TestStoreAndLoadBuildLog(t *testing.T) {
	cfg := testConfig(t)
	d := &Descriptor{Name: "tool", Version: "1.0"}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.PkgDB, 0o755); err != nil {
		t.Fatal(err)
	}
	logContent := "checking for gcc... yes\nmake[1]: done\n"
	if err := os.WriteFile(d.BuildLogPath(cfg), []byte(logContent), 0o644); err != nil {
		t.Fatal(err)
	}

	storeBuildLog(cfg, d)

	lines, err := loadBuildLog(cfg, d.ID())
	if err != nil {
		t.Fatalf("loadBuildLog: %v", err)
	}
	want := []string{"checking for gcc... yes", "make[1]: done"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestLoadBuildLogMissing(t *testing.T) {
	cfg := testConfig(t)
	if _, err := loadBuildLog(cfg, "ghost-1.0"); err == nil {
		t.Error("expected error for missing build log")
	}
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out")

	if err := atomicWriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := atomicWriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "v2" {
		t.Errorf("content = %q, err = %v", data, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}
