// Package config defines the engine's core-recognized knobs (spec.md §6)
// as a plain value type, plus a viper-backed loader used only by cmd/
// entry points — loading configuration from a file is a boundary concern
// (spec.md §1), but the shape of the knobs themselves is part of the
// core's contract.
//
// Grounded on 0xtitan6-polymarket-mm/internal/config/config.go's
// mapstructure-tagged-struct-plus-viper idiom.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// StopTriggerReference selects the reference price used to evaluate stop
// conditions (spec.md §6, §9 open question).
type StopTriggerReference string

const (
	StopTriggerLastTrade     StopTriggerReference = "last_trade"
	StopTriggerBestBidAskMid StopTriggerReference = "best_bid_ask_mid"
)

// EngineConfig holds the knobs the engine core recognizes (spec.md §6).
type EngineConfig struct {
	// IngestionQueueCapacity bounds the MPSC ingestion queue. Zero means
	// unbounded.
	IngestionQueueCapacity int `mapstructure:"ingestion_queue_capacity"`
	// OutputChannelCapacity bounds the trade output channel. The
	// processing loop backpressures (blocking send) rather than drop
	// trades once it is full.
	OutputChannelCapacity int `mapstructure:"output_channel_capacity"`
	// LatencySampleSize is validated but not used by the engine: the
	// metrics latency histogram keeps bucket counts, not samples.
	LatencySampleSize int `mapstructure:"latency_sample_size"`
	// StopTriggerReference selects the stop-condition reference price.
	StopTriggerReference StopTriggerReference `mapstructure:"stop_trigger_reference"`
	// Symbol is the single symbol this engine instance serves.
	Symbol string `mapstructure:"symbol"`
}

// Default returns the engine's default configuration.
func Default() EngineConfig {
	return EngineConfig{
		IngestionQueueCapacity: 0,
		OutputChannelCapacity:  1024,
		LatencySampleSize:      10_000,
		StopTriggerReference:   StopTriggerLastTrade,
		Symbol:                "",
	}
}

// Validate checks the config is internally consistent.
func (c EngineConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("config: symbol is required")
	}
	if c.IngestionQueueCapacity < 0 {
		return fmt.Errorf("config: ingestion_queue_capacity must be >= 0")
	}
	if c.OutputChannelCapacity <= 0 {
		return fmt.Errorf("config: output_channel_capacity must be > 0")
	}
	if c.LatencySampleSize <= 0 {
		return fmt.Errorf("config: latency_sample_size must be > 0")
	}
	switch c.StopTriggerReference {
	case StopTriggerLastTrade, StopTriggerBestBidAskMid:
	default:
		return fmt.Errorf("config: unknown stop_trigger_reference %q", c.StopTriggerReference)
	}
	return nil
}

// LoadViper reads an EngineConfig from path (YAML/JSON/TOML, by
// extension), with ENGINE_* environment variables overriding file values.
// This is the one function in this package that touches the filesystem;
// it is only ever called from cmd/matchd, never from the core.
func LoadViper(path string) (EngineConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ENGINE")
	v.AutomaticEnv()

	cfg := Default()
	v.SetDefault("ingestion_queue_capacity", cfg.IngestionQueueCapacity)
	v.SetDefault("output_channel_capacity", cfg.OutputChannelCapacity)
	v.SetDefault("latency_sample_size", cfg.LatencySampleSize)
	v.SetDefault("stop_trigger_reference", string(cfg.StopTriggerReference))

	if err := v.ReadInConfig(); err != nil {
		return EngineConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("config: unmarshalling %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}
