package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrNoManifest means the directory has no .checksums file.
	ErrNoManifest = errors.New("checksums file not found (run 'agentgw config lock')")

	// ErrHashMismatch means a file changed since it was locked.
	ErrHashMismatch = errors.New("hash mismatch")

	// ErrNotLocked means a manifest exists but does not list the file.
	ErrNotLocked = errors.New("file not in checksums manifest")
)

// VerifyIntegrity checks path against the .checksums manifest in its
// directory. A directory without a manifest is unlocked and passes.
func VerifyIntegrity(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir, name := filepath.Dir(abs), filepath.Base(abs)

	manifest, err := LoadChecksums(dir)
	if errors.Is(err, ErrNoManifest) {
		return nil
	}
	if err != nil {
		return err
	}

	expected, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("%w: %s (run 'agentgw config lock')", ErrNotLocked, abs)
	}
	if err := VerifyFileHash(abs, expected); err != nil {
		return fmt.Errorf("integrity check failed for %s: %w\n"+
			"If you edited this file intentionally, run: agentgw config lock", abs, err)
	}
	return nil
}
