package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"llamactx/internal/inference"
)

// CORS configures cross-origin access to the HTTP API.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Default via Merge.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	StateDir     string `json:"state_dir" yaml:"state_dir" toml:"state_dir"`
	VRAMBudgetMB int    `json:"vram_budget_mb" yaml:"vram_budget_mb" toml:"vram_budget_mb"`
	VRAMMarginMB int    `json:"vram_margin_mb" yaml:"vram_margin_mb" toml:"vram_margin_mb"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	MaxQueueDepth int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWait       Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	SessionTTL    Duration `json:"session_ttl" yaml:"session_ttl" toml:"session_ttl"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	MaxBodyBytes        int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	InferTimeoutSeconds int   `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`

	CORS       CORS                     `json:"cors" yaml:"cors" toml:"cors"`
	Context    inference.ContextParams  `json:"context" yaml:"context" toml:"context"`
	Generation inference.GenerateParams `json:"generation" yaml:"generation" toml:"generation"`
}

// Duration unmarshals from strings like "30s" in every supported format.
type Duration struct{ time.Duration }

func (d *Duration) set(s string) error {
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error { return d.set(string(b)) }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error { return d.set(n.Value) }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:          ":8080",
		ModelsDir:     "~/models/llm",
		StateDir:      "~/.local/state/llamactx",
		VRAMMarginMB:  512,
		MaxQueueDepth: 8,
		MaxWait:       Duration{30 * time.Second},
		SessionTTL:    Duration{15 * time.Minute},
		LogLevel:      "info",
		LogFormat:     "json",
		MaxBodyBytes:  1 << 20,
		CORS: CORS{
			Methods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			Headers: []string{"Content-Type", "Authorization", "X-Log-Level"},
		},
	}
}

// Merge fills every unset field of c from base.
func (c Config) Merge(base Config) Config {
	str := func(v *string, b string) {
		if *v == "" {
			*v = b
		}
	}
	str(&c.Addr, base.Addr)
	str(&c.ModelsDir, base.ModelsDir)
	str(&c.StateDir, base.StateDir)
	str(&c.DefaultModel, base.DefaultModel)
	str(&c.LogLevel, base.LogLevel)
	str(&c.LogFormat, base.LogFormat)
	if c.VRAMBudgetMB == 0 {
		c.VRAMBudgetMB = base.VRAMBudgetMB
	}
	if c.VRAMMarginMB == 0 {
		c.VRAMMarginMB = base.VRAMMarginMB
	}
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = base.MaxQueueDepth
	}
	if c.MaxWait.Duration == 0 {
		c.MaxWait = base.MaxWait
	}
	if c.SessionTTL.Duration == 0 {
		c.SessionTTL = base.SessionTTL
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = base.MaxBodyBytes
	}
	if c.InferTimeoutSeconds == 0 {
		c.InferTimeoutSeconds = base.InferTimeoutSeconds
	}
	if !c.CORS.Enabled && len(c.CORS.Origins) == 0 {
		c.CORS.Enabled = base.CORS.Enabled
		c.CORS.Origins = base.CORS.Origins
	}
	if len(c.CORS.Methods) == 0 {
		c.CORS.Methods = base.CORS.Methods
	}
	if len(c.CORS.Headers) == 0 {
		c.CORS.Headers = base.CORS.Headers
	}
	c.Context = c.Context.Merge(base.Context)
	c.Generation = c.Generation.Merge(base.Generation)
	return c
}

// ApplyEnv overrides fields from LLAMACTX_* environment variables.
func (c Config) ApplyEnv() Config {
	if v := os.Getenv("LLAMACTX_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("LLAMACTX_MODELS_DIR"); v != "" {
		c.ModelsDir = v
	}
	if v := os.Getenv("LLAMACTX_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return c
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
