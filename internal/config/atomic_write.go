package config

import (
	"os"
	"path/filepath"
)

// AtomicWrite writes data to path atomically, so a crash mid-write never
// leaves a partially-written config file for the loader to read. An
// existing file's permissions are preserved; a new file is created 0600.
func AtomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	perm := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	return atomicWriteFile(path, data, perm)
}
