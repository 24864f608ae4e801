// Package config loads and validates simulator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/download-simulator/internal/download"
	"github.com/JakeFAU/download-simulator/internal/telemetry"
	"github.com/JakeFAU/download-simulator/internal/worker"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// SubmitRPS limits POST /v1/downloads per client; zero disables it.
	SubmitRPS   float64 `mapstructure:"submit_rps"`
	SubmitBurst int     `mapstructure:"submit_burst"`
}

// WorkerConfig sizes the worker's two channels.
type WorkerConfig struct {
	CommandBuffer int `mapstructure:"command_buffer"`
	EventBuffer   int `mapstructure:"event_buffer"`
}

// SimulationConfig bounds the random draws. Every range is half-open.
type SimulationConfig struct {
	TotalMin uint64        `mapstructure:"total_min"`
	TotalMax uint64        `mapstructure:"total_max"`
	ChunkMin uint64        `mapstructure:"chunk_min"`
	ChunkMax uint64        `mapstructure:"chunk_max"`
	DelayMin time.Duration `mapstructure:"delay_min"`
	DelayMax time.Duration `mapstructure:"delay_max"`
	// Seed fixes the random sequence when non-zero.
	Seed uint64 `mapstructure:"seed"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig sizes the telemetry hub.
type TelemetryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BufferSize      int           `mapstructure:"buffer_size"`
	MaxBatchRecords int           `mapstructure:"max_batch_records"`
	MaxBatchWait    time.Duration `mapstructure:"max_batch_wait"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIMULATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	ranges := download.DefaultRanges()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.submit_rps", 0)
	v.SetDefault("server.submit_burst", worker.DefaultCommandBuffer)
	v.SetDefault("worker.command_buffer", worker.DefaultCommandBuffer)
	v.SetDefault("worker.event_buffer", worker.DefaultEventBuffer)
	v.SetDefault("simulation.total_min", ranges.Total.Min)
	v.SetDefault("simulation.total_max", ranges.Total.Max)
	v.SetDefault("simulation.chunk_min", ranges.Chunk.Min)
	v.SetDefault("simulation.chunk_max", ranges.Chunk.Max)
	v.SetDefault("simulation.delay_min", ranges.Delay.Min)
	v.SetDefault("simulation.delay_max", ranges.Delay.Max)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.buffer_size", 1024)
	v.SetDefault("telemetry.max_batch_records", 100)
	v.SetDefault("telemetry.max_batch_wait", 250*time.Millisecond)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}
	if c.Server.SubmitRPS < 0 || c.Server.SubmitBurst < 0 {
		return fmt.Errorf("server.submit_rps and server.submit_burst must not be negative")
	}
	if c.Worker.CommandBuffer <= 0 {
		return fmt.Errorf("worker.command_buffer must be > 0")
	}
	if c.Worker.EventBuffer <= 0 {
		return fmt.Errorf("worker.event_buffer must be > 0")
	}
	if err := c.Ranges().Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Telemetry.Enabled && c.Telemetry.BufferSize <= 0 {
		return fmt.Errorf("telemetry.buffer_size must be > 0 when telemetry is enabled")
	}
	return nil
}

// Ranges converts the simulation section into simulator bounds.
func (c Config) Ranges() download.Ranges {
	s := c.Simulation
	return download.Ranges{
		Total: download.Range{Min: s.TotalMin, Max: s.TotalMax},
		Chunk: download.Range{Min: s.ChunkMin, Max: s.ChunkMax},
		Delay: download.DurationRange{Min: s.DelayMin, Max: s.DelayMax},
	}
}

// Rand returns the random source the simulation should use: seeded when a
// seed is configured, otherwise freshly seeded.
func (c Config) Rand() download.Rand {
	if c.Simulation.Seed != 0 {
		return download.NewSeededRand(c.Simulation.Seed, c.Simulation.Seed)
	}
	return download.NewRand()
}

// HubConfig converts the telemetry section into hub settings.
func (c Config) HubConfig() telemetry.Config {
	return telemetry.Config{
		BufferSize:      c.Telemetry.BufferSize,
		MaxBatchRecords: c.Telemetry.MaxBatchRecords,
		MaxBatchWait:    c.Telemetry.MaxBatchWait,
	}
}
