package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLimits(t *testing.T) {
	limits, err := loadLimits(writeTemp(t, "max_file_size: 1048576\nworkers: 8\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), limits.MaxFileSize)
	assert.Equal(t, 8, limits.Workers)
}

func TestLoadLimitsDefaults(t *testing.T) {
	limits, err := loadLimits("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), limits.MaxFileSize)
	assert.Equal(t, 0, limits.Workers)
}

func TestLoadLimitsRejectsNegative(t *testing.T) {
	_, err := loadLimits(writeTemp(t, "max_file_size: -1\n"))
	assert.Error(t, err)
}

func TestLoadLimitsMissingFile(t *testing.T) {
	_, err := loadLimits("/nonexistent/limits.yaml")
	assert.Error(t, err)
}

func TestLoadLimitsBadYAML(t *testing.T) {
	_, err := loadLimits(writeTemp(t, "workers: [not an int\n"))
	assert.Error(t, err)
}
