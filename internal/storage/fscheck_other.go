//go:build !darwin && !linux

package storage

// Platforms without statfs are assumed local.
func detectFilesystemType(string) (string, error) {
	return "unknown", nil
}
