package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInspectParallelKeepsInputOrder(t *testing.T) {
	a := writeInput(t, "a.bin", "first input file")
	b := writeInput(t, "b.bin", "second input file")

	reports := inspectParallel([]string{b, a, b}, Limits{})
	require.Len(t, reports, 3)
	assert.Equal(t, b, reports[0].filename)
	assert.Equal(t, a, reports[1].filename)
	assert.Equal(t, b, reports[2].filename)
	for _, r := range reports {
		require.NoError(t, r.err)
		assert.NotEmpty(t, r.output)
	}
}

func TestInspectParallelDuplicateArgument(t *testing.T) {
	path := writeInput(t, "dup.bin", "same file twice")

	// The same path given twice yields two identical reports; a path
	// that cannot be read yields its own error slot.
	reports := inspectParallel([]string{path, "/nonexistent/dup.bin", path}, Limits{})
	require.Len(t, reports, 3)
	assert.Equal(t, reports[0], reports[2])
	assert.NoError(t, reports[0].err)
	assert.Error(t, reports[1].err)
}
