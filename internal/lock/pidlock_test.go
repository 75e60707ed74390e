package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "nested", "tessera.pid")
	l, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	pid, ok := Holder(lockPath)
	if !ok || pid != os.Getpid() {
		t.Fatalf("Holder() = %d, %v; want %d", pid, ok, os.Getpid())
	}
	if l.Path() != lockPath {
		t.Errorf("Path() = %q", l.Path())
	}
}

func TestAcquirePIDLockIsExclusive(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "tessera.pid")
	first, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}

	// flock locks belong to the open file description, so a second open in
	// the same process conflicts too.
	if _, err := AcquirePIDLock(lockPath); !errors.Is(err, ErrLocked) {
		t.Fatalf("second AcquirePIDLock err = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock after release: %v", err)
	}
	_ = again.Release()
}

func TestPathFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		config, state, want string
	}{
		{"/etc/tessera/config.yaml", "/var/lib/tessera/runs.db", "/var/lib/tessera/runs.pid"},
		{"/etc/tessera/config.yaml", "", "/etc/tessera/.tessera.pid"},
	}
	for _, tt := range tests {
		if got := PathFor(tt.config, tt.state); got != tt.want {
			t.Errorf("PathFor(%q, %q) = %q, want %q", tt.config, tt.state, got, tt.want)
		}
	}
	if _, err := AcquirePIDLock(""); err == nil {
		t.Error("expected error for empty path")
	}
}
