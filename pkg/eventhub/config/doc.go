// Package config loads event hub settings from YAML or JSON.
//
// # Generic Access
//
// Config wraps a decoded document and returns defaults for missing or
// mistyped keys, so partial files are fine:
//
//	cfg, err := config.FromFile("eventhub.yaml")
//	workers := cfg.Int("workers", 4)
//	store := cfg.String("datastore.driver", "memory")
//
// # Hub Settings
//
// HubConfig is the typed view the hub consumes:
//
//	name: checkout
//	workers: 8
//	dispose_timeout: 5s
//	unregister_wait: 1s
//	sdk_version: 2.3.0
//	metrics: true
//	tracing: false
//	datastore:
//	  driver: sqlite        # memory | sqlite | redis
//	  path: /var/lib/app/kv.db
//
// Load it with LoadHubConfig, or convert an already-loaded Config with
// HubConfigFrom. Durations accept Go duration strings or numbers of seconds.
//
// LoadHubConfig lets the environment override any of these settings:
// EVENTHUB_WORKERS=8 sets workers and EVENTHUB_DATASTORE_DRIVER=redis sets
// datastore.driver.
package config
