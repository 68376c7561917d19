package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Defaults(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: minimal
description: one order
steps:
  - op: submit
    order: {order_id: A1, items: [], total: 1, timestamp: t}
assertions:
  - type: store_contains
    key: A1
`))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, DefaultRegion, s.Region)
	assert.Equal(t, []string{DefaultStore}, s.Stores)
	assert.Equal(t, "order_id", s.KeyAttribute)
	assert.False(t, s.DualWrite)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, OpSubmit, s.Steps[0].Op)
	assert.Equal(t, "A1", s.Steps[0].Order["order_id"])
}

func TestParseScenario_Records(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: records
description: hand-built feed
steps:
  - op: apply
    records:
      - {event: INSERT, seq: "7", image: {order_id: A1, total: 2.5}}
      - {event: REMOVE, seq: "8", key: A1}
assertions:
  - type: master_absent
    key: A1
`))
	require.NoError(t, err)

	recs := s.Steps[0].Records
	require.Len(t, recs, 2)
	assert.Equal(t, "INSERT", recs[0].Event)
	assert.Equal(t, "7", recs[0].Seq)
	assert.Equal(t, 2.5, recs[0].Image["total"])
	assert.Equal(t, "A1", recs[1].Key)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{op: replicate}]\nassertions: [{type: converged}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{op: replicate}]\nassertions: [{type: converged}]",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\nassertions: [{type: converged}]",
			wantErr: "steps list is required",
		},
		{
			name:    "no assertions",
			yaml:    "name: n\ndescription: d\nsteps: [{op: replicate}]",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nstep: []\nassertions: [{type: converged}]",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "unknown op",
			yaml:    "name: n\ndescription: d\nsteps: [{op: upsert}]\nassertions: [{type: converged}]",
			wantErr: `unknown op "upsert"`,
		},
		{
			name:    "missing op",
			yaml:    "name: n\ndescription: d\nsteps: [{store: store-1}]\nassertions: [{type: converged}]",
			wantErr: "op is required",
		},
		{
			name:    "submit without order",
			yaml:    "name: n\ndescription: d\nsteps: [{op: submit}]\nassertions: [{type: converged}]",
			wantErr: "order is required",
		},
		{
			name:    "delete without order_id",
			yaml:    "name: n\ndescription: d\nsteps: [{op: delete}]\nassertions: [{type: converged}]",
			wantErr: "order_id is required",
		},
		{
			name:    "apply without records",
			yaml:    "name: n\ndescription: d\nsteps: [{op: apply}]\nassertions: [{type: converged}]",
			wantErr: "records are required",
		},
		{
			name:    "unknown event",
			yaml:    "name: n\ndescription: d\nsteps: [{op: apply, records: [{event: UPSERT, seq: '1'}]}]\nassertions: [{type: converged}]",
			wantErr: `unknown event "UPSERT"`,
		},
		{
			name:    "remove without key",
			yaml:    "name: n\ndescription: d\nsteps: [{op: apply, records: [{event: REMOVE, seq: '1'}]}]\nassertions: [{type: converged}]",
			wantErr: "REMOVE needs key or old",
		},
		{
			name:    "unknown store in step",
			yaml:    "name: n\ndescription: d\nsteps: [{op: replicate, store: store-9}]\nassertions: [{type: converged}]",
			wantErr: `unknown store "store-9"`,
		},
		{
			name:    "duplicate store",
			yaml:    "name: n\ndescription: d\nstores: [a, a]\nsteps: [{op: replicate}]\nassertions: [{type: converged}]",
			wantErr: "duplicate store id",
		},
		{
			name:    "bad expect_error",
			yaml:    "name: n\ndescription: d\nsteps: [{op: submit, expect_error: storage}]\nassertions: [{type: converged}]",
			wantErr: "expect_error must be validation or not_found",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{op: replicate}]\nassertions: [{type: trace_contains}]",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "assertion without key",
			yaml:    "name: n\ndescription: d\nsteps: [{op: replicate}]\nassertions: [{type: master_contains}]",
			wantErr: "key is required for master_contains",
		},
		{
			name:    "sequence assertion without sequence",
			yaml:    "name: n\ndescription: d\nsteps: [{op: replicate}]\nassertions: [{type: master_sequence, key: A1}]",
			wantErr: "key and sequence are required",
		},
		{
			name:    "negative count",
			yaml:    "name: n\ndescription: d\nsteps: [{op: replicate}]\nassertions: [{type: master_count, count: -1}]",
			wantErr: "count must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "stale_replay.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "stale_replay", s.Name)
	assert.Len(t, s.Steps, 2)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: [unterminated"), 0o644))
	_, err = LoadScenario(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}
