// Package config loads routecast configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "90s" or "250ms".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"60s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the full routecast configuration.
type Config struct {
	// Database is the path to the analytical SQLite database.
	Database string `yaml:"database"`

	Docstore DocstoreConfig `yaml:"docstore"`
	Broker   BrokerConfig   `yaml:"broker"`
	Client   ClientConfig   `yaml:"client"`
}

// DocstoreConfig selects and parameterizes the mediating store.
type DocstoreConfig struct {
	// Backend is "firestore" or "memory". Memory only makes sense when
	// broker and client share a process (development, tests).
	Backend string `yaml:"backend"`

	// ProjectID is the GCP project for the firestore backend.
	ProjectID string `yaml:"project_id"`

	Collections CollectionsConfig `yaml:"collections"`
}

// CollectionsConfig names the mediating-store collections.
type CollectionsConfig struct {
	Requests string `yaml:"requests"`
	Orders   string `yaml:"orders"`
	Routes   string `yaml:"routes"`
}

// BrokerConfig tunes the coordinator.
type BrokerConfig struct {
	// HandlerTimeout is the hard wall-clock budget per handler.
	HandlerTimeout Duration `yaml:"handler_timeout"`
}

// ClientConfig tunes the client stub.
type ClientConfig struct {
	// Timeout bounds one submit end to end.
	Timeout Duration `yaml:"timeout"`
	// PollInterval is the envelope polling cadence.
	PollInterval Duration `yaml:"poll_interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: "routecast.db",
		Docstore: DocstoreConfig{
			Backend: "firestore",
			Collections: CollectionsConfig{
				Requests: "requests",
				Orders:   "orders",
				Routes:   "routes",
			},
		},
		Broker: BrokerConfig{HandlerTimeout: Duration(60 * time.Second)},
		Client: ClientConfig{
			Timeout:      Duration(30 * time.Second),
			PollInterval: Duration(100 * time.Millisecond),
		},
	}
}

// Load reads a YAML config file and fills unset fields with defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("config: database path is required")
	}
	switch c.Docstore.Backend {
	case "firestore":
		if c.Docstore.ProjectID == "" {
			return fmt.Errorf("config: docstore.project_id is required for the firestore backend")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown docstore backend %q", c.Docstore.Backend)
	}
	if c.Broker.HandlerTimeout <= 0 {
		return fmt.Errorf("config: broker.handler_timeout must be positive")
	}
	if c.Client.Timeout <= 0 || c.Client.PollInterval <= 0 {
		return fmt.Errorf("config: client timeouts must be positive")
	}
	return nil
}
