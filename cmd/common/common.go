// Package common provides shared utilities for truthforge CLI commands:
// YAML configuration loading, logger setup and key handling.
package common

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/protocol"
	"github.com/DBYGuy/truthforge/services"
)

// Config is the daemon configuration file layout.
type Config struct {
	// HTTPAddr is the API listen address.
	HTTPAddr string `yaml:"http_addr"`

	// MetricsAddr is the Prometheus listen address; empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// EnablePprof mounts the pprof debug API.
	EnablePprof bool `yaml:"enable_pprof"`

	// EnableCORS allows cross-origin API requests.
	EnableCORS bool `yaml:"enable_cors"`

	// LogJSON switches structured logs to JSON output.
	LogJSON bool `yaml:"log_json"`

	// LogDebug lowers the log level to debug.
	LogDebug bool `yaml:"log_debug"`

	// RedisAddr enables the shared rate limiter when set.
	RedisAddr string `yaml:"redis_addr"`

	// AMQPURL and AMQPExchange enable event publishing when set.
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`

	// Postgres enables durable nullifier and event storage when set.
	Postgres *services.PostgresConfig `yaml:"postgres"`

	// Protocol holds the consensus parameters.
	Protocol *protocol.Config `yaml:"protocol"`

	// Service holds pool lifecycle settings.
	Service *services.PoolServiceConfig `yaml:"service"`
}

// DefaultConfig returns a runnable single-node configuration.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:     ":8080",
		AMQPExchange: "truthforge.events",
		Protocol:     protocol.DefaultConfig(),
		Service:      services.DefaultPoolServiceConfig(),
	}
}

// LoadConfig reads a YAML configuration file, filling unset sections
// with defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Protocol == nil {
		cfg.Protocol = protocol.DefaultConfig()
	}
	if cfg.Service == nil {
		cfg.Service = services.DefaultPoolServiceConfig()
	}
	if err := cfg.Protocol.Validate(); err != nil {
		return nil, fmt.Errorf("protocol config: %w", err)
	}

	return cfg, nil
}

// SetupLogger builds the process logger from config.
func SetupLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogDebug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// LoadResolverKey parses a hex-encoded Ed25519 public key, or returns
// nil (early resolution disabled) for an empty string.
func LoadResolverKey(hexKey string) (crypto.PublicKey, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := crypto.NewPublicKeyFromString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid resolver key: %w", err)
	}
	return key, nil
}

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex
// string, or generates a fresh key pair when hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}
