package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_SubmitAndReplicate(t *testing.T) {
	s := mustParse(t, `
name: submit_replicate
description: a submitted order reaches the master only after replication
steps:
  - op: submit
    order: {order_id: A1, items: [], total: 4.20, timestamp: t}
  - op: replicate
assertions:
  - type: store_contains
    key: A1
    expect: {total: 4.2}
  - type: master_contains
    key: A1
    expect: {total: 4.2, items: []}
  - type: master_sequence
    key: A1
    sequence: "1"
  - type: converged
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepTrace{Index: 0, Op: OpSubmit, Store: "store-1", OrderID: "A1", Seq: "1", Outcome: "created"}, result.Steps[0])
	assert.Equal(t, StepTrace{Index: 1, Op: OpReplicate, Store: "store-1", Outcome: "delivered:1"}, result.Steps[1])

	require.Len(t, result.Master, 1)
	assert.Equal(t, "A1", result.Master[0].Key)
	assert.Equal(t, "1", result.Master[0].Sequence)
	assert.Equal(t, "arn:pos:local:store-1:table/orders/stream", result.Master[0].Source)
	assert.False(t, result.Master[0].Deleted)
}

func TestRun_WithoutReplicationMasterIsEmpty(t *testing.T) {
	s := mustParse(t, `
name: no_replication
description: without dual write or replication the master stays empty
steps:
  - op: submit
    order: {order_id: A1, items: [], total: 1, timestamp: t}
assertions:
  - type: master_absent
    key: A1
  - type: master_count
    count: 0
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Master)
}

func TestRun_DeleteBeforeReplicationLeavesTombstone(t *testing.T) {
	s := mustParse(t, `
name: delete_then_replicate
description: insert and remove delivered together end as a tombstone
steps:
  - op: submit
    order: {order_id: A1, items: [], total: 1, timestamp: t}
  - op: delete
    order_id: A1
  - op: replicate
    batch_size: 1
assertions:
  - type: master_absent
    key: A1
  - type: master_sequence
    key: A1
    sequence: "2"
  - type: store_absent
    key: A1
  - type: feed_count
    count: 2
  - type: converged
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "delivered:2", result.Steps[2].Outcome)

	require.Len(t, result.Master, 1)
	assert.True(t, result.Master[0].Deleted)
	assert.Nil(t, result.Master[0].Record)
}

func TestRun_ReplicateOnceThenConverge(t *testing.T) {
	s := mustParse(t, `
name: once
description: a single batch leaves the rest of the feed for later
steps:
  - op: submit
    order: {order_id: A1, items: [], total: 1, timestamp: t}
  - op: submit
    order: {order_id: B2, items: [], total: 2, timestamp: t}
  - op: replicate
    batch_size: 1
    once: true
assertions:
  - type: master_contains
    key: A1
  - type: master_absent
    key: B2
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "delivered:1", result.Steps[2].Outcome)
}

func TestRun_UnexpectedStepErrorFails(t *testing.T) {
	s := mustParse(t, `
name: unexpected_error
description: a step that fails without declaring it fails the scenario
steps:
  - op: submit
    order: {order_id: A1}
assertions:
  - type: master_count
    count: 0
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 0 (submit)")
	assert.Contains(t, result.Errors[0], "missing required fields")
	assert.Equal(t, "error", result.Steps[0].Outcome)
}

func TestRun_ExpectedErrorThatDoesNotHappenFails(t *testing.T) {
	s := mustParse(t, `
name: missing_error
description: expect_error must be met
steps:
  - op: submit
    order: {order_id: A1, items: [], total: 1, timestamp: t}
    expect_error: validation
assertions:
  - type: master_count
    count: 0
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected validation error, got none")
}

func TestRun_WrongErrorKindFails(t *testing.T) {
	s := mustParse(t, `
name: wrong_kind
description: expect_error must name the right kind
steps:
  - op: delete
    order_id: A1
    expect_error: validation
assertions:
  - type: master_count
    count: 0
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "rejected:not_found", result.Steps[0].Outcome)
	assert.Contains(t, result.Errors[0], "expected validation error")
}

func TestRun_UndeclaredRecordFailuresFail(t *testing.T) {
	s := mustParse(t, `
name: undeclared_failures
description: failed records must be declared with expect_failures
steps:
  - op: apply
    records:
      - {event: INSERT, seq: "1", image: {total: 1}}
assertions:
  - type: master_count
    count: 0
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "applied:0 stale:0 failed:1", result.Steps[0].Outcome)
	assert.Contains(t, result.Errors[0], "expected 0 failed record(s), got 1")
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	s := mustParse(t, `
name: failing_assertions
description: every failed assertion is reported
steps:
  - op: submit
    order: {order_id: A1, items: [], total: 1, timestamp: t}
assertions:
  - type: master_contains
    key: A1
  - type: store_contains
    key: A1
    expect: {total: 2}
  - type: feed_count
    count: 5
  - type: converged
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "row not found")
	assert.Contains(t, result.Errors[1], `field "total" = 2`)
	assert.Contains(t, result.Errors[2], "1 feed records")
	assert.Contains(t, result.Errors[3], "A1: in a store but not in master")
}

func TestRun_CustomKeyAttribute(t *testing.T) {
	s := mustParse(t, `
name: custom_key
description: the processor can key on another attribute
key_attribute: ref
steps:
  - op: apply
    records:
      - {event: INSERT, seq: "1", image: {ref: R-1, total: 1}}
      - {event: REMOVE, seq: "2", key: R-2}
assertions:
  - type: master_contains
    key: R-1
    expect: {total: 1}
  - type: master_sequence
    key: R-2
    sequence: "2"
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_IsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/insert_update_delete.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := (&Snapshot{ScenarioName: s.Name, Result: first}).Marshal()
	require.NoError(t, err)
	b, err := (&Snapshot{ScenarioName: s.Name, Result: second}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
