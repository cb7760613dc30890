package config

import (
	"time"

	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/logger"
	"github.com/ajitpratap0/tidepool/pkg/pool"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

// Config is the root configuration structure.
type Config struct {
	// Name identifies the process in logs and traces
	Name string `yaml:"name" json:"name"`

	// Pools lists the connection pools to open
	Pools []PoolConfig `yaml:"pools" json:"pools"`

	// Logging configures the global zap logger
	Logging logger.Config `yaml:"logging" json:"logging"`

	// Metrics configures Prometheus collection
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Tracing configures OpenTelemetry tracing
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// PoolConfig describes one pool.
type PoolConfig struct {
	// Name identifies the pool in logs, metrics and stats
	Name string `yaml:"name" json:"name"`
	// Kind is the storage kind tag (kv, stack, document, or a custom name)
	Kind string `yaml:"kind" json:"kind"`
	// MaxCount bounds the number of connections
	MaxCount int `yaml:"max_count" json:"max_count"`
	// AcquireTimeout bounds how long a request may queue (0 = no bound)
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout"`
	// DefaultIsolation is the isolation level name used by default transactions
	DefaultIsolation string `yaml:"default_isolation" json:"default_isolation"`
	// DefaultReadOnly makes default transactions read-only
	DefaultReadOnly bool `yaml:"default_read_only" json:"default_read_only"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
	// PrettyPrint indents exported spans
	PrettyPrint bool `yaml:"pretty_print" json:"pretty_print"`
}

// NewConfig returns a configuration with one key-value pool and the
// default logging, metrics and tracing settings.
func NewConfig() *Config {
	return &Config{
		Name: "tidepool",
		Pools: []PoolConfig{
			{
				Name:     "default",
				Kind:     storage.KindKeyValue.String(),
				MaxCount: 10,
			},
		},
		Logging: logger.Config{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout"},
		},
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "tidepool",
			SampleRate:  1.0,
		},
	}
}

// Validate checks the configuration for errors. The returned error has
// type config.
func (c *Config) Validate() error {
	if c.Name == "" {
		return configError("name is required")
	}
	if len(c.Pools) == 0 {
		return configError("at least one pool is required")
	}

	seen := make(map[string]struct{}, len(c.Pools))
	for i := range c.Pools {
		pc := &c.Pools[i]
		if err := pc.Validate(); err != nil {
			return err
		}
		if _, dup := seen[pc.Name]; dup {
			return configError("duplicate pool name").WithDetail("pool", pc.Name)
		}
		seen[pc.Name] = struct{}{}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return configError("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}

// Validate checks a single pool entry.
func (pc *PoolConfig) Validate() error {
	if pc.Name == "" {
		return configError("pool name is required")
	}
	if pc.Kind == "" {
		return configError("pool kind is required").WithDetail("pool", pc.Name)
	}
	if pc.MaxCount < 1 {
		return configError("max_count must be at least 1").WithDetail("pool", pc.Name)
	}
	if pc.AcquireTimeout < 0 {
		return configError("acquire_timeout cannot be negative").WithDetail("pool", pc.Name)
	}
	if _, err := storage.ParseIsolationLevel(pc.DefaultIsolation); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid default_isolation").WithDetail("pool", pc.Name)
	}
	return nil
}

// StorageKind returns the parsed storage kind.
func (pc *PoolConfig) StorageKind() storage.Kind {
	return storage.ParseKind(pc.Kind)
}

// TxnOptions returns the default transaction options for the pool.
func (pc *PoolConfig) TxnOptions() (storage.TxnOptions, error) {
	level, err := storage.ParseIsolationLevel(pc.DefaultIsolation)
	if err != nil {
		return storage.TxnOptions{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid default_isolation")
	}
	return storage.TxnOptions{IsolationLevel: level, ReadOnly: pc.DefaultReadOnly}, nil
}

// PoolOptions returns the pool options the entry configures. Callers add
// their own logger and metrics.
func (pc *PoolConfig) PoolOptions() []pool.Option {
	opts := []pool.Option{pool.WithName(pc.Name)}
	if pc.AcquireTimeout > 0 {
		opts = append(opts, pool.WithAcquireTimeout(pc.AcquireTimeout))
	}
	return opts
}

// Pool returns the entry named name.
func (c *Config) Pool(name string) (PoolConfig, bool) {
	for _, pc := range c.Pools {
		if pc.Name == name {
			return pc, true
		}
	}
	return PoolConfig{}, false
}

func configError(msg string) *errors.Error {
	return errors.New(errors.ErrorTypeConfig, msg)
}
