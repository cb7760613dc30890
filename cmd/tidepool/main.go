package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tidepool/pkg/config"
	"github.com/ajitpratap0/tidepool/pkg/document"
	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/kv"
	"github.com/ajitpratap0/tidepool/pkg/logger"
	"github.com/ajitpratap0/tidepool/pkg/metrics"
	"github.com/ajitpratap0/tidepool/pkg/observability"
	"github.com/ajitpratap0/tidepool/pkg/pool"
	"github.com/ajitpratap0/tidepool/pkg/stack"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

var version = "0.1.0"

// globalFlags are shared by every command.
type globalFlags struct {
	configFile string
	logLevel   string
	trace      bool
	jsonOutput bool
}

func main() {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "tidepool",
		Short: "Tidepool - connection pools and transactions over in-memory stores",
		Long: `Tidepool pools connections to storage backends and runs transactions on them.
It ships in-memory key-value, stack and document stores for exercising the engine.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to YAML configuration file (optional)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.trace, "trace", false, "Export transaction spans to stderr")
	root.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Tidepool v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newDemoCmd(&flags))
	root.AddCommand(newBenchCmd(&flags))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtimeEnv is what every command sets up before it runs: configuration,
// logging, metrics and optional tracing.
type runtimeEnv struct {
	cfg       *config.Config
	log       *zap.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	tracing   *observability.Tracing
	json      bool
}

func setup(flags *globalFlags) (*runtimeEnv, error) {
	cfg := config.NewConfig()
	if flags.configFile != "" {
		loaded, err := config.LoadConfig(flags.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.trace {
		cfg.Tracing.Enabled = true
	}
	if len(cfg.Logging.OutputPaths) == 0 || (len(cfg.Logging.OutputPaths) == 1 && cfg.Logging.OutputPaths[0] == "stdout") {
		// Keep stdout for command output.
		cfg.Logging.OutputPaths = []string{"stderr"}
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}

	env := &runtimeEnv{
		cfg:  cfg,
		log:  logger.With(zap.String("component", "tidepool-cli")),
		json: flags.jsonOutput,
	}

	if cfg.Metrics.Enabled {
		env.registry = prometheus.NewRegistry()
		collector, err := metrics.NewCollector(env.registry)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to register metrics")
		}
		env.collector = collector
	}

	if cfg.Tracing.Enabled {
		tr, err := observability.InitTracing(cfg.Tracing, version, os.Stderr)
		if err != nil {
			return nil, err
		}
		env.tracing = tr
	}
	return env, nil
}

func (e *runtimeEnv) shutdown(ctx context.Context) {
	if err := e.tracing.Shutdown(ctx); err != nil {
		e.log.Warn("tracing shutdown failed", zap.Error(err))
	}
	_ = logger.Sync()
}

// poolOptions returns the options for the configured pool pc.
func (e *runtimeEnv) poolOptions(pc config.PoolConfig) []pool.Option {
	opts := append(pc.PoolOptions(), pool.WithLogger(logger.Get()))
	if e.collector != nil {
		opts = append(opts, pool.WithMetrics(e.collector.ForPool(pc.Name, pc.Kind)))
	}
	return opts
}

// managedPool is what the CLI needs from any store's pool.
type managedPool interface {
	storage.TxnBeginner
	Stats() pool.Stats
	Close(ctx context.Context) error
}

// openPool builds the pool described by pc over a fresh store.
func (e *runtimeEnv) openPool(pc config.PoolConfig) (managedPool, error) {
	opts := e.poolOptions(pc)
	switch pc.StorageKind() {
	case storage.KindKeyValue:
		p, err := kv.NewPool(kv.NewStore(), pc.MaxCount, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case storage.KindStack:
		p, err := stack.NewPool(stack.NewStore(), pc.MaxCount, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case storage.KindDocument:
		p, err := document.NewPool(document.NewStore(), pc.MaxCount, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, errors.Newf(errors.ErrorTypeCapability, "no built-in store for kind %q", pc.Kind).
		WithDetail("pool", pc.Name)
}

func (e *runtimeEnv) print(v interface{}, text func()) error {
	if e.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

func printStats(s pool.Stats) {
	fmt.Printf("  %-12s kind=%-9s max=%-3d idle=%-3d active=%-3d waiting=%-3d created=%-4d reused=%d\n",
		s.Name, s.Kind, s.MaxCount, s.Idle, s.Active, s.Waiting, s.Created, s.Reused)
}

func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), d)
}
