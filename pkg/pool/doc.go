// Package pool implements the storage-agnostic connection pool and
// transaction lifecycle engine behind every tidepool store.
//
// Architecture
//
// The engine is generic over the backing store B, which it treats as
// opaque and shares by reference with every connection it creates.
//
// Core Types:
//
//   - Pool[B]: bounded set of connections; queues requests at capacity
//   - Conn[B]: one checkout of a pooled session, holding at most one
//     transaction; every checkout gets a new Conn, so a closed Conn stays closed
//   - Txn: lifecycle of one transaction (open, then committed or rolled back)
//   - Stage: the store-specific staged view a Txn applies or discards
//   - Promise[T], Latch: the deferred results behind waiters and Close
//
// Acquisition
//
// Conn serves a request from the idle list, by creating a connection while
// under capacity, or by queueing it. Queued requests are served strictly in
// arrival order: a released connection goes straight to the oldest waiter
// and is never parked in the idle list while someone is waiting.
//
//	c, err := p.Conn(ctx)
//	if err != nil {
//		return err
//	}
//	defer c.Close(ctx)
//
// When ctx ends while a request is queued, the request is withdrawn and
// fails with context_canceled. If the pool granted it a connection at the
// same instant, that connection is released on the caller's behalf.
//
// Scoped Connections
//
// Do and BeginTxn check out a connection for a single operation or a
// single transaction. Do releases it when the callback returns; BeginTxn
// releases it when the transaction commits or rolls back.
//
// Transactions
//
// A Txn buffers operations in its Stage. Commit replays them on the shared
// store in order; Rollback drops them. Either call ends the transaction for
// good. A transaction begun with a context that can end is rolled back
// automatically when the context ends first.
//
// Closing a connection with an open transaction does not abandon it: the
// connection is released once the transaction ends, and Close blocks until
// then. Closing the pool closes every checked-out connection the same way
// and waits for all of them.
//
// Limitations
//
// Transactions on different connections are not ordered against each
// other beyond the store's own locking, and there is no isolation between
// them other than each keeping its writes private until commit. A
// connection runs one transaction at a time; a second BeginTxn fails with
// transaction_in_progress.
package pool
