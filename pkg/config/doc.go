// Package config provides configuration management for tidepool.
//
// # Key Features
//
// - Config: the pools a process opens plus logging, metrics and tracing
// - Environment variable substitution with ${VAR_NAME} syntax
// - Defaults from NewConfig, overridden by whatever the file sets
// - Validation errors of type config
//
// # Usage
//
// ## Loading a File
//
//	cfg, err := config.LoadConfig("tidepool.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// ## Example File
//
//	name: orders-service
//	pools:
//	  - name: sessions
//	    kind: kv
//	    max_count: 16
//	    acquire_timeout: 250ms
//	  - name: orders
//	    kind: document
//	    max_count: 4
//	    default_isolation: serializable
//	logging:
//	  level: ${LOG_LEVEL}
//	  encoding: console
//	tracing:
//	  enabled: true
//	  sample_rate: 0.1
//
// A pool list in the file replaces the default pool; it is not merged.
//
// ## Building Pools
//
// Each PoolConfig carries the pool options it implies:
//
//	pc, _ := cfg.Pool("sessions")
//	opts := append(pc.PoolOptions(), pool.WithLogger(logger.Get()))
//	p, err := kv.NewPool(kv.NewStore(), pc.MaxCount, opts...)
//
// Default transaction options come from TxnOptions, which parses
// default_isolation with storage.ParseIsolationLevel.
package config
