package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	paths, err := ScenarioFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, paths)

	_, err = ScenarioFiles(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestRunDir_Testdata(t *testing.T) {
	result, err := RunDir(context.Background(), filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 4, result.Passed)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Failures)
}

func TestRunDir_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	write("1_pass.yaml", `
name: pass
description: replicated order
steps:
  - op: submit
    order: {order_id: A1, items: [], total: 1, timestamp: t}
  - op: replicate
assertions:
  - type: converged
`)
	write("2_broken.yaml", "name: broken\n")
	write("3_fail.yaml", `
name: fail
description: nothing replicates
steps:
  - op: submit
    order: {order_id: A1, items: [], total: 1, timestamp: t}
assertions:
  - type: master_contains
    key: A1
`)

	result, err := RunDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)

	require.Len(t, result.Failures, 2)
	assert.Equal(t, filepath.Join(dir, "2_broken.yaml"), result.Failures[0].Path)
	assert.Empty(t, result.Failures[0].Name)
	assert.Contains(t, result.Failures[0].Errors[0], "failed to load scenario")

	assert.Equal(t, "fail", result.Failures[1].Name)
	require.Len(t, result.Failures[1].Errors, 1)
	assert.Contains(t, result.Failures[1].Errors[0], "row not found")
}
