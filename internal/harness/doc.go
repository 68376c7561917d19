// Package harness runs replication scenarios against real stores.
//
// A scenario writes orders to one or more store nodes through the intake
// service, delivers their change feeds to a shared master with the relay,
// or hands the processor feed records built by hand, and then asserts on
// the resulting tables.
//
// # Scenario Format
//
//	name: delete_after_update
//	description: "A REMOVE replicated after a MODIFY leaves a tombstone"
//	stores: [store-1]
//	steps:
//	  - op: submit
//	    order: {order_id: A1, items: [], total: 5, timestamp: "t1"}
//	  - op: delete
//	    order_id: A1
//	  - op: replicate
//	  - op: apply
//	    records:
//	      - {event: INSERT, seq: "1", image: {order_id: A1, total: 5}}
//	assertions:
//	  - type: master_absent
//	    key: A1
//	  - type: master_sequence
//	    key: A1
//	    sequence: "2"
//
// Steps are submit, submit_raw, delete, replicate and apply. A step may
// declare expect_error (validation or not_found) or expect_failures (the
// number of records replicate or apply must report as failed).
//
// Assertion types: master_contains, master_absent, master_sequence,
// master_count, store_contains, store_absent, feed_count and converged.
// Field expectations are subset matches compared as canonical JSON.
//
// # Determinism
//
// Every run uses in-memory SQLite databases, a step clock starting at
// testutil.Epoch and fixed event ids, so the master table a scenario
// leaves is stable enough for golden files (see RunWithGolden).
package harness
