package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyIntegrity(t *testing.T) {
	dir := t.TempDir()
	locked := writeFile(t, dir, "profiles.yaml", "executors: {}\n")
	unlisted := writeFile(t, dir, "extra.yaml", "x: 1\n")

	// No manifest: unlocked directory passes.
	assert.NoError(t, VerifyIntegrity(locked))

	_, err := Lock(dir, []string{"profiles.yaml"}, false)
	require.NoError(t, err)

	assert.NoError(t, VerifyIntegrity(locked))
	assert.ErrorIs(t, VerifyIntegrity(unlisted), ErrNotLocked)

	require.NoError(t, os.WriteFile(locked, []byte("executors: {claude: {}}\n"), 0o600))
	assert.ErrorIs(t, VerifyIntegrity(locked), ErrHashMismatch)
}

func TestVerifyIntegrityCorruptManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "profiles.yaml", "executors: {}\n")
	writeFile(t, dir, ChecksumFile, "version: [\n")

	err := VerifyIntegrity(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoManifest)
	assert.Contains(t, err.Error(), "parse checksums")
}
