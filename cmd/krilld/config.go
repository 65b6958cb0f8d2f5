package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is krilld's on-disk configuration, loaded once at startup and
// passed explicitly to the components that need it. Packages under
// pkg/ never read the environment or a config file themselves; that is
// the CLI layer's job, mirroring how the teacher's cmd/warren resolves
// configuration before constructing manager.NewManager.
type Config struct {
	// StorageURI is the kv.Open URI backing the aggregate store, e.g.
	// "bolt:///var/lib/krilld/krill.db" or "memory:krilld".
	StorageURI string `yaml:"storage_uri"`

	// Namespace is the kv namespace the aggregate store is opened
	// against.
	Namespace string `yaml:"namespace"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// LogJSON selects structured JSON log output over the console
	// writer, for production deployments behind a log aggregator.
	LogJSON bool `yaml:"log_json"`
}

// defaultConfig matches the defaults a fresh krilld install should
// boot with: an in-process memory store suitable only for a first run
// or a smoke test, never for production data.
func defaultConfig() Config {
	return Config{
		StorageURI: "memory:krilld",
		Namespace:  "ca",
		LogLevel:   "info",
	}
}

// loadConfig reads and parses the YAML config file at path. A missing
// file is not an error: defaultConfig is returned instead, so krilld
// has sane behavior with zero configuration.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
