package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"replicator/internal/logging"
	"replicator/internal/policy"
	"replicator/internal/replica"
)

// ErrNoReplicas is returned by Validate when no replica is configured.
var ErrNoReplicas = errors.New("at least one replica is required")

// LatencyConfig controls the simulated replica delay.
type LatencyConfig struct {
	Min  time.Duration `yaml:"min"`
	Max  time.Duration `yaml:"max"`
	Seed int64         `yaml:"seed"`
}

// Config holds the coordinator configuration.
type Config struct {
	ListenAddr  string        `yaml:"listen_addr"`
	MetricsAddr string        `yaml:"metrics_addr"` // empty disables the /metrics endpoint
	Replicas    []string      `yaml:"replicas"`
	DefaultMode string        `yaml:"default_mode"`
	LogEnv      string        `yaml:"log_env"`
	Latency     LatencyConfig `yaml:"latency"`
}

// Default returns the configuration of the three-follower setup.
func Default() *Config {
	return &Config{
		ListenAddr:  "127.0.0.1:50051",
		Replicas:    []string{"Follower-1", "Follower-2", "Follower-3"},
		DefaultMode: policy.Sync.String(),
		LogEnv:      logging.Prod.String(),
		Latency: LatencyConfig{
			Max:  replica.DefaultMaxLatency,
			Seed: 1,
		},
	}
}

// Load reads a YAML configuration file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if len(c.Replicas) == 0 {
		return ErrNoReplicas
	}

	seen := make(map[string]bool, len(c.Replicas))
	for _, id := range c.Replicas {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("replica ID cannot be empty")
		}
		if seen[id] {
			return fmt.Errorf("duplicate replica ID: %s", id)
		}
		seen[id] = true
	}

	if _, err := policy.Parse(c.DefaultMode); err != nil {
		return fmt.Errorf("invalid default_mode: %w", err)
	}
	if _, err := logging.ParseEnvironment(c.LogEnv); err != nil {
		return fmt.Errorf("invalid log_env: %w", err)
	}
	if c.Latency.Min < 0 || c.Latency.Max < 0 {
		return fmt.Errorf("latency bounds cannot be negative: min=%v max=%v", c.Latency.Min, c.Latency.Max)
	}
	if c.Latency.Max > 0 && c.Latency.Min > c.Latency.Max {
		return fmt.Errorf("latency min %v exceeds max %v", c.Latency.Min, c.Latency.Max)
	}
	return nil
}

// ParseReplicas parses a comma-separated list of replica IDs:
// "r1,r2,r3"
func ParseReplicas(replicasStr string) ([]string, error) {
	if replicasStr == "" {
		return []string{}, nil
	}

	parts := strings.Split(replicasStr, ",")
	ids := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))

	for _, part := range parts {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if strings.ContainsAny(id, " \t=") {
			return nil, fmt.Errorf("invalid replica ID: %q", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate replica ID: %s", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}

	return ids, nil
}

// BuildReplicas creates one in-memory replica per configured ID, sharing a
// single seeded latency source so a run can be replayed.
func (c *Config) BuildReplicas(clk clock.Clock, logger *zap.Logger) []*replica.MemoryReplica {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	latency := replica.NewRandomLatency(c.Latency.Seed, c.Latency.Min, c.Latency.Max)
	replicas := make([]*replica.MemoryReplica, 0, len(c.Replicas))
	for _, id := range c.Replicas {
		replicas = append(replicas, replica.New(id,
			replica.WithLatency(latency),
			replica.WithClock(clk),
			replica.WithLogger(logger),
		))
	}
	return replicas
}

// Logger builds the logger for the configured environment.
func (c *Config) Logger() (*zap.Logger, error) {
	env, err := logging.ParseEnvironment(c.LogEnv)
	if err != nil {
		return nil, err
	}
	return logging.New(env)
}
