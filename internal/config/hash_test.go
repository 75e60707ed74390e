package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteChecksumsDryRun(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "service:\n  name: demo\n")

	manifest, err := WriteChecksums(path, true)
	if err != nil {
		t.Fatalf("WriteChecksums() failed: %v", err)
	}
	if manifest.Hashes[DefaultFilename] == "" {
		t.Fatal("expected a hash for config.yaml")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), ChecksumFilename)); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestLockedConfigLoads(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "service:\n  name: demo\n")

	if _, err := WriteChecksums(path, false); err != nil {
		t.Fatalf("WriteChecksums() failed: %v", err)
	}
	manifest, err := LoadChecksums(filepath.Dir(path))
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	if len(manifest.Hashes) != 1 {
		t.Fatalf("len(manifest.Hashes) = %d, want 1", len(manifest.Hashes))
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() on locked config failed: %v", err)
	}
}

func TestTamperedConfigFailsLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "service:\n  name: demo\n")
	if _, err := WriteChecksums(path, false); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("service:\n  name: evil\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("Load() error = %v, want hash mismatch", err)
	}
}

func TestHashBytesIsStable(t *testing.T) {
	a := HashBytes([]byte("wiring"))
	b := HashBytes([]byte("wiring"))
	if a != b || len(a) != 64 {
		t.Fatalf("unexpected digests %q %q", a, b)
	}
	if a == HashBytes([]byte("other")) {
		t.Fatal("different inputs produced the same digest")
	}
}
