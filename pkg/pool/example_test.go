package pool_test

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tidepool/pkg/pool"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

// ledger is a tiny shared store used by the examples.
type ledger struct {
	mu      sync.Mutex
	entries []string
}

func (l *ledger) append(e ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e...)
}

func (l *ledger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// ledgerStage buffers entries until the transaction ends.
type ledgerStage struct {
	l       *ledger
	pending []string
}

func (s *ledgerStage) Apply()   { s.l.append(s.pending...) }
func (s *ledgerStage) Discard() { s.pending = nil }

// Example shows checking out a connection and returning it.
func Example() {
	p, err := pool.New(&ledger{}, storage.CustomKind("ledger"), 2, pool.WithLogger(zap.NewNop()))
	if err != nil {
		panic(err)
	}
	ctx := context.Background()
	defer p.Close(ctx)

	c, err := p.Conn(ctx)
	if err != nil {
		panic(err)
	}
	_ = c.Exec(func(l *ledger) error {
		l.append("opened account")
		return nil
	})
	_ = c.Close(ctx)

	// Do scopes a connection to one callback.
	_ = p.Do(ctx, func(c *pool.Conn[*ledger]) error {
		return c.Exec(func(l *ledger) error {
			fmt.Println("entries:", l.len())
			return nil
		})
	})

	s := p.Stats()
	fmt.Printf("created=%d reused=%d idle=%d\n", s.Created, s.Reused, s.Idle)

	// Output:
	// entries: 1
	// created=1 reused=1 idle=1
}

// ExamplePool_BeginTxn shows that staged work reaches the store only on
// commit.
func ExamplePool_BeginTxn() {
	l := &ledger{}
	p, err := pool.New(l, storage.CustomKind("ledger"), 1, pool.WithLogger(zap.NewNop()))
	if err != nil {
		panic(err)
	}
	ctx := context.Background()
	defer p.Close(ctx)

	var st *ledgerStage
	txn, err := p.BeginTxn(ctx, storage.TxnOptions{}, func(l *ledger) pool.Stage {
		st = &ledgerStage{l: l}
		return st
	})
	if err != nil {
		panic(err)
	}
	st.pending = append(st.pending, "debit", "credit")
	fmt.Println("before commit:", l.len(), txn.State())

	if err := txn.Commit(ctx); err != nil {
		panic(err)
	}
	fmt.Println("after commit:", l.len(), txn.State())
	fmt.Println("active connections:", p.Stats().Active)

	// Output:
	// before commit: 0 open
	// after commit: 2 committed
	// active connections: 0
}
