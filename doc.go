// Package tidepool provides a storage-agnostic connection pool and
// transaction lifecycle engine, with in-memory key-value, stack and
// document stores built on it.
//
// Every store is reached through the same three handles:
//
//   - Pool: a bounded set of connections; callers queue in FIFO order at capacity
//   - Conn: one session on the store, returned to the pool by Close
//   - Txn: buffered work that Commit applies to the shared store and Rollback drops
//
// # Quick Start
//
// Run a transaction against a key-value pool:
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/tidepool/pkg/kv"
//	    "github.com/ajitpratap0/tidepool/pkg/storage"
//	)
//
//	p, _ := kv.NewPool(kv.NewStore(), 4)
//	defer p.Close(context.Background())
//
//	ctx := storage.WithAPI(context.Background(), p)
//	err := storage.RunTransaction(ctx, func(ctx context.Context, txn storage.Txn) error {
//	    t := txn.(*kv.Txn)
//	    if err := t.Set("balance:alice", 70); err != nil {
//	        return err
//	    }
//	    return t.Set("balance:bob", 30)
//	})
//
// A nil result commits both writes together; an error rolls both back.
// RunTransaction called again with the ctx it hands to the callback reuses
// the open transaction instead of starting a new one.
//
// # Key Packages
//
//	pkg/pool          - Generic pool, connection and transaction engine
//	pkg/storage       - Modes, kinds, isolation levels and RunTransaction
//	pkg/kv            - In-memory key-value store
//	pkg/stack         - In-memory LIFO stack store
//	pkg/document      - In-memory BSON document store
//	pkg/config        - YAML pool configuration with ${VAR} substitution
//	pkg/errors        - Typed errors
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus pool and transaction metrics
//	pkg/observability - OpenTelemetry tracing setup
//
// # Command Line
//
//	tidepool demo  -c tidepool.yaml   # walk every configured pool through a scenario
//	tidepool bench -w 32 --pool-size 4 # concurrent workers against a small pool
//	tidepool version
package tidepool
