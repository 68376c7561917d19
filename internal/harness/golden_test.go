package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	paths, err := ScenarioFiles(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, s.Name, "scenario name must match its file name")

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)
		})
	}
}

func TestSnapshot_Marshal(t *testing.T) {
	s := mustParse(t, `
name: snapshot
description: tombstones keep their sequence and drop the record
steps:
  - op: apply
    records:
      - {event: INSERT, seq: "0009", image: {order_id: A1, total: 1}}
      - {event: REMOVE, seq: "10", key: B2}
assertions:
  - type: master_count
    count: 1
`)
	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	data, err := (&Snapshot{ScenarioName: s.Name, Result: result}).Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"master":[{"deleted":false,"key":"A1","record":{"order_id":"A1","total":1},"sequence":"9","source":"pos:harness"},`+
			`{"deleted":true,"key":"B2","sequence":"10","source":"pos:harness"}],"scenario_name":"snapshot",`+
			`"steps":[{"index":0,"op":"apply","outcome":"applied:2 stale:0 failed:0"}]}`,
		string(data))
}
