// Package config loads service configuration from a YAML file and POS_*
// environment variables, then validates it against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Master table drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Relay sinks.
const (
	SinkDirect = "direct"
	SinkAMQP   = "amqp"
)

// Config is the full service configuration.
type Config struct {
	Listen   string `yaml:"listen" json:"listen"`
	Database string `yaml:"database" json:"database"`
	StoreID  string `yaml:"store_id" json:"store_id"`
	Region   string `yaml:"region" json:"region"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	Master      MasterConfig      `yaml:"master" json:"master"`
	Intake      IntakeConfig      `yaml:"intake" json:"intake"`
	Replication ReplicationConfig `yaml:"replication" json:"replication"`
}

// MasterConfig selects the master table backend. With the sqlite driver
// an empty DSN means the master table lives in Database.
type MasterConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// IntakeConfig controls order intake.
type IntakeConfig struct {
	RawEnabled     bool     `yaml:"raw_enabled" json:"raw_enabled"`
	RequiredFields []string `yaml:"required_fields" json:"required_fields"`
}

// ReplicationConfig controls the feed relay and processor.
type ReplicationConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Name         string `yaml:"name" json:"name"`
	KeyAttribute string `yaml:"key_attribute" json:"key_attribute"`
	BatchSize    int    `yaml:"batch_size" json:"batch_size"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	Sink         string `yaml:"sink" json:"sink"`
	AMQPURL      string `yaml:"amqp_url" json:"amqp_url"`
	Queue        string `yaml:"queue" json:"queue"`
	Redeliveries int    `yaml:"max_redeliveries" json:"max_redeliveries"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Listen:   ":8080",
		Database: "pos.db",
		StoreID:  "store-1",
		Region:   "local",
		LogLevel: "info",
		Master: MasterConfig{
			Driver: DriverSQLite,
		},
		Intake: IntakeConfig{
			RawEnabled:     true,
			RequiredFields: []string{"order_id", "items", "total", "timestamp"},
		},
		Replication: ReplicationConfig{
			Enabled:      true,
			Name:         "master",
			KeyAttribute: "order_id",
			BatchSize:    100,
			PollInterval: "1s",
			Sink:         SinkDirect,
			Queue:        "pos.order_changes",
			Redeliveries: 5,
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies POS_*
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides cfg from POS_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"POS_LISTEN":                    &cfg.Listen,
		"POS_DATABASE":                  &cfg.Database,
		"POS_STORE_ID":                  &cfg.StoreID,
		"POS_REGION":                    &cfg.Region,
		"POS_LOG_LEVEL":                 &cfg.LogLevel,
		"POS_MASTER_DRIVER":             &cfg.Master.Driver,
		"POS_MASTER_DSN":                &cfg.Master.DSN,
		"POS_REPLICATION_NAME":          &cfg.Replication.Name,
		"POS_REPLICATION_KEY_ATTRIBUTE": &cfg.Replication.KeyAttribute,
		"POS_REPLICATION_POLL_INTERVAL": &cfg.Replication.PollInterval,
		"POS_REPLICATION_SINK":          &cfg.Replication.Sink,
		"POS_REPLICATION_QUEUE":         &cfg.Replication.Queue,
		"POS_AMQP_URL":                  &cfg.Replication.AMQPURL,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"POS_INTAKE_RAW_ENABLED":  &cfg.Intake.RawEnabled,
		"POS_REPLICATION_ENABLED": &cfg.Replication.Enabled,
	}
	for name, dst := range bools {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = b
		}
	}

	if v, ok := lookup("POS_REPLICATION_BATCH_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POS_REPLICATION_BATCH_SIZE: %w", err)
		}
		cfg.Replication.BatchSize = n
	}

	if v, ok := lookup("POS_INTAKE_REQUIRED_FIELDS"); ok {
		var fields []string
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		cfg.Intake.RequiredFields = fields
	}

	return nil
}

// Validate checks cfg against the embedded CUE schema.
func (c Config) Validate() error {
	if c.Intake.RequiredFields == nil {
		c.Intake.RequiredFields = []string{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Problems: problems(err)}
	}

	if _, err := time.ParseDuration(c.Replication.PollInterval); err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("replication.poll_interval: %v", err)}}
	}
	return nil
}

// ValidationError lists every schema violation found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

func problems(err error) []string {
	var out []string
	for _, e := range cueerrors.Errors(err) {
		path := strings.Join(e.Path(), ".")
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path != "" {
			msg = path + ": " + msg
		}
		out = append(out, msg)
	}
	return out
}

// Poll returns the relay poll interval.
func (r ReplicationConfig) Poll() time.Duration {
	d, err := time.ParseDuration(r.PollInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
