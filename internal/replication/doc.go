// Package replication applies change feed records to a master table.
//
// Processor is the stateless core: it walks a batch in order, unwraps each
// record's images and upserts or deletes under the key attribute. One bad
// record never stops the batch; failures are reported per record.
//
// Handler adapts Processor to the stream trigger contract (status 200 plus
// batchItemFailures). Relay tails a store's change feed from a checkpoint
// and hands batches to a Sink, either in process or over AMQP.
package replication
