// Package config loads sessiond's process configuration from YAML, JSON or
// TOML files, validates it and watches it for changes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"sessiond/internal/session"
)

// Duration is a time.Duration written as a Go duration string ("30s") in
// every supported format.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

// Config holds runtime parameters for the service. Fields absent from the
// file keep the values of Default.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr" validate:"required"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	Engine      EngineConfig      `json:"engine" yaml:"engine" toml:"engine"`
	Model       ModelSettings     `json:"model" yaml:"model" toml:"model"`
	Supervision SupervisionConfig `json:"supervision" yaml:"supervision" toml:"supervision"`
	HTTP        HTTPConfig        `json:"http" yaml:"http" toml:"http"`
	Log         LogConfig         `json:"log" yaml:"log" toml:"log"`
}

// EngineConfig selects and tunes the inference engine.
type EngineConfig struct {
	// Kind is "llama" (in-process, needs -tags=llama) or "server".
	Kind        string `json:"kind" yaml:"kind" toml:"kind" validate:"oneof=llama server"`
	ServerURL   string `json:"server_url" yaml:"server_url" toml:"server_url" validate:"required_if=Kind server"`
	APIKey      string `json:"api_key" yaml:"api_key" toml:"api_key"`
	ContextSize int    `json:"context_size" yaml:"context_size" toml:"context_size" validate:"gte=0"`
	Threads     int    `json:"threads" yaml:"threads" toml:"threads" validate:"gte=0"`
	GPULayers   int    `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers" validate:"gte=0"`
	LibDir      string `json:"lib_dir" yaml:"lib_dir" toml:"lib_dir"`
}

// ModelSettings are the default sampling settings for every call.
type ModelSettings struct {
	Acceleration string  `json:"acceleration" yaml:"acceleration" toml:"acceleration" validate:"oneof=cpu gpu"`
	Temperature  float64 `json:"temperature" yaml:"temperature" toml:"temperature" validate:"gte=0,lte=1"`
	TopK         int     `json:"top_k" yaml:"top_k" toml:"top_k" validate:"gt=0"`
	TopP         float64 `json:"top_p" yaml:"top_p" toml:"top_p" validate:"gte=0,lte=1"`
	MaxTokens    int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens" validate:"gt=0"`
}

// SupervisionConfig tunes the generation supervisor.
type SupervisionConfig struct {
	FirstTokenTimeout Duration `json:"first_token_timeout" yaml:"first_token_timeout" toml:"first_token_timeout"`
	TotalTimeout      Duration `json:"total_timeout" yaml:"total_timeout" toml:"total_timeout"`
	StallChunkLimit   int      `json:"stall_chunk_limit" yaml:"stall_chunk_limit" toml:"stall_chunk_limit" validate:"gt=0"`
	MinModelBytes     int64    `json:"min_model_bytes" yaml:"min_model_bytes" toml:"min_model_bytes" validate:"gt=0"`
	LowTokenBudget    int      `json:"low_token_budget" yaml:"low_token_budget" toml:"low_token_budget" validate:"gt=0"`
}

// HTTPConfig configures the HTTP layer.
type HTTPConfig struct {
	MaxBodyBytes    int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" validate:"gte=0"`
	GenerateTimeout Duration `json:"generate_timeout" yaml:"generate_timeout" toml:"generate_timeout"`
	CORSEnabled     bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins     []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods     []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders     []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `json:"level" yaml:"level" toml:"level" validate:"oneof=trace debug info warn error off"`
	Format     string `json:"format" yaml:"format" toml:"format" validate:"oneof=auto console json"`
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	m := session.DefaultModelConfig()
	return Config{
		Addr:   ":8080",
		Engine: EngineConfig{Kind: "llama", ContextSize: 4096},
		Model: ModelSettings{
			Acceleration: string(m.Acceleration),
			Temperature:  m.Temperature,
			TopK:         m.TopK,
			TopP:         m.TopP,
			MaxTokens:    m.MaxTokens,
		},
		Supervision: SupervisionConfig{
			FirstTokenTimeout: Duration{30 * time.Second},
			TotalTimeout:      Duration{60 * time.Second},
			StallChunkLimit:   10,
			MinModelBytes:     1 << 20,
			LowTokenBudget:    64,
		},
		HTTP: HTTPConfig{
			MaxBodyBytes: 1 << 20,
			CORSMethods:  []string{"GET", "POST", "OPTIONS"},
			CORSHeaders:  []string{"Content-Type", "X-Log-Level"},
		},
		Log: LogConfig{Level: "info", Format: "auto", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 14},
	}
}

// Load reads a configuration file based on its extension over Default.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// ModelConfig converts the default sampling settings for the controller.
func (c Config) ModelConfig() session.ModelConfig {
	return session.ModelConfig{
		Acceleration: session.Acceleration(c.Model.Acceleration),
		Temperature:  c.Model.Temperature,
		TopK:         c.Model.TopK,
		TopP:         c.Model.TopP,
		MaxTokens:    c.Model.MaxTokens,
	}
}

// ControllerConfig fills the supervision fields of a controller configuration.
// The engine, logger and publisher are left to the caller.
func (c Config) ControllerConfig() session.ControllerConfig {
	return session.ControllerConfig{
		FirstTokenTimeout: c.Supervision.FirstTokenTimeout.Duration,
		TotalTimeout:      c.Supervision.TotalTimeout.Duration,
		StallChunkLimit:   c.Supervision.StallChunkLimit,
		MinModelBytes:     c.Supervision.MinModelBytes,
		LowTokenBudget:    c.Supervision.LowTokenBudget,
	}
}
