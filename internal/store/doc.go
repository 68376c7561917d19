// Package store provides SQLite persistence for a point-of-sale node.
//
// The orders table is the per-store table. Every change to it appends a
// row to change_feed inside the same transaction, so the feed never misses
// or reorders a write. ReadFeed renders feed rows as stream records that
// the replication processor consumes.
//
// The Master type is the consolidated master table. It resolves
// concurrent and replayed writes by sequence number, never by wall clock.
//
// raw_orders holds permissive submissions that have no natural key.
// replication_checkpoints records how far each relay has delivered.
package store
