// Package stream defines the change records of the order change feed.
//
// Records use the wire shape of a table stream trigger: an eventName of
// INSERT, MODIFY or REMOVE and a "dynamodb" section carrying Keys,
// NewImage, OldImage and a SequenceNumber, all as type-tagged attribute
// maps (see package attr).
//
// Ordering is per key and is carried by SequenceNumber, a decimal string
// that may exceed int64. Normalize it before comparing or persisting.
package stream
