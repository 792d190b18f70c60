// Package queue is the durable outbox of local mutations.
//
// The whole queue is one JSON document in the key/value store. Every change
// is a read-modify-write through kvstore.Store.Update, so concurrent callers
// never lose each other's writes. Records are decoded one by one: a record
// that no longer decodes is moved aside into the quarantine list instead of
// poisoning the rest of the queue.
package queue
