package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattjoyce/tessera/internal/log"
)

// VerifyIntegrity checks the config file against the .checksums manifest in
// its directory. A missing manifest only warns; a manifest that does not list
// the file, or lists a different hash, is a hard failure.
func VerifyIntegrity(configPath string) error {
	manifest, err := LoadChecksums(filepath.Dir(configPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.WithComponent("config").Debug("no checksum manifest, skipping integrity check", "path", configPath)
			return nil
		}
		return err
	}

	name := filepath.Base(configPath)
	expected, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("%s has no hash in %s (run 'tessera config lock')", name, ChecksumFilename)
	}
	if err := VerifyFileHash(configPath, expected); err != nil {
		return fmt.Errorf("config verification failed: %w\n"+
			"If you edited this file intentionally, run: tessera config lock", err)
	}
	return nil
}
