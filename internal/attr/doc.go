// Package attr models the type-tagged attribute values carried by change
// feed images.
//
// A change record never carries bare JSON. Every attribute is wrapped in a
// single-key envelope naming its type:
//
//	{"order_id": {"S": "A1"}, "total": {"N": "9.99"}, "paid": {"BOOL": true}}
//
// Decode turns an envelope into a Value, Unwrap turns a Value into the bare
// value written to the master table, and Wrap goes the other way when the
// order store renders its own images.
//
// This package imports nothing internal. Numbers are held as their decimal
// text, never float64, so "9.99" or a 30-digit loyalty number survives a
// round trip unchanged. Strings are kept byte for byte; only ImageHash
// compares them under NFC.
package attr
