package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var networkFilesystems = []string{"afpfs", "cifs", "nfs", "smbfs", "smb2", "webdav"}

// validateSQLiteFilesystem refuses journal paths on network mounts.
func validateSQLiteFilesystem(path string) error {
	return checkFilesystem(path, detectFilesystemType)
}

func checkFilesystem(path string, detect func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}

	existing, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve journal path %q: %w", path, err)
	}

	fsType, err := detect(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if isNetworkFilesystem(fsType) {
		return fmt.Errorf("run journal %q is on network filesystem %q; SQLite needs local locking, set state.path (or --state) to a local file", path, fsType)
	}
	return nil
}

// nearestExistingPath walks up from path to the first ancestor that exists.
func nearestExistingPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for candidate := abs; ; {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	return slices.Contains(networkFilesystems, strings.ToLower(strings.TrimSpace(fsType)))
}
