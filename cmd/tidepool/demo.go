package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tidepool/pkg/config"
	"github.com/ajitpratap0/tidepool/pkg/document"
	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/kv"
	"github.com/ajitpratap0/tidepool/pkg/pool"
	"github.com/ajitpratap0/tidepool/pkg/stack"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

// demoStep is one line of a demo report.
type demoStep struct {
	Pool   string `json:"pool"`
	Step   string `json:"step"`
	Result string `json:"result"`
}

type demoReport struct {
	Steps []demoStep   `json:"steps"`
	Pools []pool.Stats `json:"pools"`
}

func (r *demoReport) add(pool, step, format string, args ...any) {
	r.Steps = append(r.Steps, demoStep{Pool: pool, Step: step, Result: fmt.Sprintf(format, args...)})
}

func newDemoCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted scenario against every configured pool",
		Long: `Demo opens every pool from the configuration and walks each through
connection hand-off, a committed transaction and a rolled back one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(flags)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(timeout)
			defer cancel()
			defer env.shutdown(context.Background())
			return env.runDemo(ctx)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall deadline for the demo")
	return cmd
}

func (e *runtimeEnv) runDemo(ctx context.Context) error {
	report := &demoReport{}

	for _, pc := range e.cfg.Pools {
		p, err := e.openPool(pc)
		if err != nil {
			if errors.IsType(err, errors.ErrorTypeCapability) {
				e.log.Warn("skipping pool", zap.String("pool", pc.Name), zap.Error(err))
				report.add(pc.Name, "open", "skipped: %v", err)
				continue
			}
			return err
		}

		runErr := e.demoPool(ctx, pc, p, report)
		report.Pools = append(report.Pools, p.Stats())
		if err := p.Close(ctx); err != nil && runErr == nil {
			runErr = err
		}
		if runErr != nil {
			return errors.Wrap(runErr, errors.ErrorTypeInternal, "demo failed on pool "+pc.Name)
		}
	}

	return e.print(report, func() {
		fmt.Println("Demo steps:")
		for _, s := range report.Steps {
			fmt.Printf("  [%s] %-22s %s\n", s.Pool, s.Step, s.Result)
		}
		fmt.Println("Pool stats:")
		for _, s := range report.Pools {
			printStats(s)
		}
	})
}

func (e *runtimeEnv) demoPool(ctx context.Context, pc config.PoolConfig, p managedPool, r *demoReport) error {
	opts, err := pc.TxnOptions()
	if err != nil {
		return err
	}
	e.log.Info("running demo", zap.String("pool", pc.Name), zap.String("kind", pc.Kind))

	switch p := p.(type) {
	case *kv.Pool:
		return demoKV(ctx, pc.Name, p, opts, r)
	case *stack.Pool:
		return demoStack(ctx, pc.Name, p, r)
	case *document.Pool:
		return demoDocument(ctx, pc.Name, p, opts, r)
	}
	return errors.Newf(errors.ErrorTypeCapability, "no demo for kind %q", pc.Kind)
}

var errDemoAbort = errors.New(errors.ErrorTypeValidation, "demo abort")

// expectAbort checks that an aborted transaction handed back its own error.
func expectAbort(err error) error {
	switch {
	case err == nil:
		return errors.New(errors.ErrorTypeInternal, "aborted transaction reported success")
	case err != error(errDemoAbort):
		return err
	}
	return nil
}

func demoKV(ctx context.Context, name string, p *kv.Pool, opts storage.TxnOptions, r *demoReport) error {
	// Hold one connection and show that a second caller reuses it once
	// released when the pool has a single slot.
	c, err := p.Conn(ctx)
	if err != nil {
		return err
	}
	if err := c.Set("greeting", "hello"); err != nil {
		return err
	}
	held := c.ID()
	if err := c.Close(ctx); err != nil {
		return err
	}
	c2, err := p.Conn(ctx)
	if err != nil {
		return err
	}
	r.add(name, "conn hand-off", "first=%s second=%s reused=%v", held, c2.ID(), held == c2.ID())
	if err := c2.Close(ctx); err != nil {
		return err
	}

	err = storage.RunTransactionWithOptions(storage.WithAPI(ctx, p), opts, func(ctx context.Context, txn storage.Txn) error {
		t := txn.(*kv.Txn)
		if err := t.Set("balance:alice", 70); err != nil {
			return err
		}
		return t.Set("balance:bob", 30)
	})
	if err != nil {
		return err
	}
	keys, err := p.Keys(ctx)
	if err != nil {
		return err
	}
	r.add(name, "commit", "keys=%v", keys)

	err = storage.RunTransaction(storage.WithAPI(ctx, p), func(ctx context.Context, txn storage.Txn) error {
		if err := txn.(*kv.Txn).Set("balance:alice", 0); err != nil {
			return err
		}
		return errDemoAbort
	})
	if err := expectAbort(err); err != nil {
		return err
	}
	v, _, err := p.Get(ctx, "balance:alice")
	if err != nil {
		return err
	}
	r.add(name, "rollback", "balance:alice=%v", v)
	return nil
}

func demoStack(ctx context.Context, name string, p *stack.Pool, r *demoReport) error {
	for _, v := range []string{"a", "b", "c"} {
		if err := p.Push(ctx, v); err != nil {
			return err
		}
	}
	n, err := p.Len(ctx)
	if err != nil {
		return err
	}
	r.add(name, "push", "len=%d", n)

	var popped []any
	err = storage.RunTransaction(storage.WithAPI(ctx, p), func(ctx context.Context, txn storage.Txn) error {
		t := txn.(*stack.Txn)
		for i := 0; i < 2; i++ {
			v, err := t.Pop()
			if err != nil {
				return err
			}
			popped = append(popped, v)
		}
		return nil
	})
	if err != nil {
		return err
	}
	top, err := p.Peek(ctx)
	if err != nil {
		return err
	}
	r.add(name, "commit", "popped=%v top=%v", popped, top)

	err = storage.RunTransaction(storage.WithAPI(ctx, p), func(ctx context.Context, txn storage.Txn) error {
		t := txn.(*stack.Txn)
		if err := t.Push("discarded"); err != nil {
			return err
		}
		return errDemoAbort
	})
	if err := expectAbort(err); err != nil {
		return err
	}
	if n, err = p.Len(ctx); err != nil {
		return err
	}
	r.add(name, "rollback", "len=%d", n)
	return nil
}

func demoDocument(ctx context.Context, name string, p *document.Pool, opts storage.TxnOptions, r *demoReport) error {
	id, err := p.InsertOne(ctx, "orders", bson.D{{Key: "item", Value: "widget"}, {Key: "qty", Value: 1}})
	if err != nil {
		return err
	}
	r.add(name, "insert", "id=%s", id.Hex())

	err = storage.RunTransactionWithOptions(storage.WithAPI(ctx, p), opts, func(ctx context.Context, txn storage.Txn) error {
		t := txn.(*document.Txn)
		if err := t.ReplaceOne("orders", id, bson.D{{Key: "item", Value: "widget"}, {Key: "qty", Value: 5}}); err != nil {
			return err
		}
		_, err := t.InsertOne("orders", bson.D{{Key: "item", Value: "gadget"}, {Key: "qty", Value: 2}})
		return err
	})
	if err != nil {
		return err
	}
	n, err := p.Count(ctx, "orders")
	if err != nil {
		return err
	}
	r.add(name, "commit", "orders=%d", n)

	err = storage.RunTransaction(storage.WithAPI(ctx, p), func(ctx context.Context, txn storage.Txn) error {
		if err := txn.(*document.Txn).DeleteOne("orders", id); err != nil {
			return err
		}
		return errDemoAbort
	})
	if err := expectAbort(err); err != nil {
		return err
	}
	var order struct {
		Item string `bson:"item"`
		Qty  int    `bson:"qty"`
	}
	if err := p.FindOne(ctx, "orders", id, &order); err != nil {
		return err
	}
	r.add(name, "rollback", "item=%s qty=%d", order.Item, order.Qty)

	out, err := p.ExportJSON(ctx, "orders")
	if err != nil {
		return err
	}
	r.add(name, "export", "%s", out)
	return nil
}
