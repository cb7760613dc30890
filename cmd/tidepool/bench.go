package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tidepool/pkg/config"
	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/kv"
	"github.com/ajitpratap0/tidepool/pkg/logger"
	"github.com/ajitpratap0/tidepool/pkg/pool"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

type benchOptions struct {
	workers   int
	ops       int
	poolSize  int
	txnEvery  int
	keySpace  int
	timeout   time.Duration
	acquireTO time.Duration
}

// BenchResult is the summary printed by the bench command.
type BenchResult struct {
	RunID       string        `json:"run_id"`
	Workers     int           `json:"workers"`
	Operations  int64         `json:"operations"`
	Commits     int64         `json:"commits"`
	Rollbacks   int64         `json:"rollbacks"`
	Duration    time.Duration `json:"duration_ns"`
	OpsPerSec   float64       `json:"ops_per_sec"`
	FinalKeys   int           `json:"final_keys"`
	PoolStats   pool.Stats    `json:"pool"`
	WaitSamples uint64        `json:"wait_samples"`
}

func newBenchCmd(flags *globalFlags) *cobra.Command {
	o := benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive a key-value pool with concurrent workers",
		Long: `Bench runs workers against a key-value pool smaller than the worker count,
mixing plain operations with transactions, and reports throughput and pool stats.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.workers < 1 || o.ops < 1 || o.poolSize < 1 || o.keySpace < 1 {
				return errors.New(errors.ErrorTypeValidation, "workers, ops, pool-size and keys must be positive")
			}
			env, err := setup(flags)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(o.timeout)
			defer cancel()
			defer env.shutdown(context.Background())

			res, err := env.runBench(ctx, o)
			if err != nil {
				return err
			}
			return env.print(res, func() {
				fmt.Printf("Run %s\n", res.RunID)
				fmt.Printf("  workers=%d ops=%d commits=%d rollbacks=%d\n", res.Workers, res.Operations, res.Commits, res.Rollbacks)
				fmt.Printf("  duration=%v throughput=%.0f ops/s keys=%d waits=%d\n", res.Duration, res.OpsPerSec, res.FinalKeys, res.WaitSamples)
				printStats(res.PoolStats)
			})
		},
	}

	cmd.Flags().IntVarP(&o.workers, "workers", "w", 16, "Number of concurrent workers")
	cmd.Flags().IntVarP(&o.ops, "ops", "n", 1000, "Operations per worker")
	cmd.Flags().IntVar(&o.poolSize, "pool-size", 4, "Maximum connections in the pool")
	cmd.Flags().IntVar(&o.txnEvery, "txn-every", 4, "Run every nth operation as a transaction (0 disables)")
	cmd.Flags().IntVar(&o.keySpace, "keys", 64, "Number of distinct keys")
	cmd.Flags().DurationVar(&o.timeout, "timeout", time.Minute, "Overall deadline")
	cmd.Flags().DurationVar(&o.acquireTO, "acquire-timeout", 0, "Per-acquisition timeout (0 waits for the overall deadline)")
	return cmd
}

func (e *runtimeEnv) runBench(ctx context.Context, o benchOptions) (*BenchResult, error) {
	pc := config.PoolConfig{
		Name:           "bench",
		Kind:           storage.KindKeyValue.String(),
		MaxCount:       o.poolSize,
		AcquireTimeout: o.acquireTO,
	}
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	p, err := kv.NewPool(kv.NewStore(), pc.MaxCount, e.poolOptions(pc)...)
	if err != nil {
		return nil, err
	}

	res := &BenchResult{RunID: uuid.NewString(), Workers: o.workers}
	var ops, commits, rollbacks atomic.Int64
	poolCtx := context.WithValue(storage.WithAPI(ctx, p), logger.PoolKey, pc.Name)

	e.log.Info("bench started",
		zap.String("run_id", res.RunID),
		zap.Int("workers", o.workers),
		zap.Int("pool_size", o.poolSize))

	start := time.Now()
	g, gctx := errgroup.WithContext(poolCtx)
	for w := 0; w < o.workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < o.ops; i++ {
				key := fmt.Sprintf("k%d", (w*o.ops+i)%o.keySpace)
				if o.txnEvery > 0 && i%o.txnEvery == 0 {
					committed, err := benchTxn(gctx, key, i%(o.txnEvery*3) == 0)
					if err != nil {
						logger.WithContext(gctx).Warn("bench transaction failed", zap.Int("worker", w), zap.Error(err))
						return err
					}
					if committed {
						commits.Add(1)
					} else {
						rollbacks.Add(1)
					}
				} else if err := benchOp(gctx, p, key, i); err != nil {
					logger.WithContext(gctx).Warn("bench operation failed", zap.Int("worker", w), zap.Error(err))
					return err
				}
				ops.Add(1)
			}
			return nil
		})
	}
	runErr := g.Wait()
	res.Duration = time.Since(start)

	res.PoolStats = p.Stats()
	if keys, err := p.Keys(ctx); err == nil {
		res.FinalKeys = len(keys)
	}
	if err := p.Close(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return nil, runErr
	}

	res.Operations = ops.Load()
	res.Commits = commits.Load()
	res.Rollbacks = rollbacks.Load()
	if res.Duration > 0 {
		res.OpsPerSec = float64(res.Operations) / res.Duration.Seconds()
	}
	if e.registry != nil {
		res.WaitSamples = waitSamples(e)
	}

	e.log.Info("bench finished",
		zap.String("run_id", res.RunID),
		zap.Int64("operations", res.Operations),
		zap.Duration("duration", res.Duration))
	return res, nil
}

var errBenchAbort = errors.New(errors.ErrorTypeValidation, "bench abort")

// benchTxn increments key and a shared counter together. When abort is set
// the increments are staged and then rolled back.
func benchTxn(ctx context.Context, key string, abort bool) (bool, error) {
	err := storage.RunTransaction(ctx, func(ctx context.Context, txn storage.Txn) error {
		t := txn.(*kv.Txn)
		for _, k := range []string{key, "counter"} {
			v, _, err := t.Get(k)
			if err != nil {
				return err
			}
			n, _ := v.(int)
			if err := t.Set(k, n+1); err != nil {
				return err
			}
		}
		if abort {
			return errBenchAbort
		}
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case err == error(errBenchAbort):
		return false, nil
	}
	return false, err
}

func benchOp(ctx context.Context, p *kv.Pool, key string, i int) error {
	switch i % 3 {
	case 0:
		return p.Set(ctx, key, i)
	case 1:
		_, _, err := p.Get(ctx, key)
		return err
	default:
		_, err := p.Has(ctx, key)
		return err
	}
}

// waitSamples reads how many acquisitions were timed by the wait histogram.
func waitSamples(e *runtimeEnv) uint64 {
	families, err := e.registry.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != "tidepool_pool_wait_duration_seconds" {
			continue
		}
		var total uint64
		for _, m := range mf.GetMetric() {
			total += m.GetHistogram().GetSampleCount()
		}
		return total
	}
	return 0
}
