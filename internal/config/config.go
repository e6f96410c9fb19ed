// Package config loads arbor settings from a YAML or JSON file and ARBOR_*
// environment variables. Command-line flags are applied on top by the CLI.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "arbor.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARBOR_"

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Generators.
const (
	GeneratorKeywords = "keywords"
	GeneratorOpenAI   = "openai"
	GeneratorNone     = "none"
)

// ErrInvalidConfig is returned when a loaded configuration is unusable.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	Log       Log       `yaml:"log"`
	Server    Server    `yaml:"server"`
	Layout    Layout    `yaml:"layout"`
	Store     Store     `yaml:"store"`
	Redis     Redis     `yaml:"redis"`
	Generator Generator `yaml:"generator"`
}

// Log configures the application logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Server configures the relay server.
type Server struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	Metrics        bool          `yaml:"metrics"`
	MCPPort        int           `yaml:"mcp_port"`
}

// Layout configures tree placement.
type Layout struct {
	HorizontalSpacing float64 `yaml:"horizontal_spacing"`
	VerticalSpacing   float64 `yaml:"vertical_spacing"`
	NodeWidth         float64 `yaml:"node_width"`
	NodeHeight        float64 `yaml:"node_height"`
}

// Store selects where maps are persisted.
type Store struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Format  string `yaml:"format"`

	// EncryptionKey is a base64 AES-256 key. When set, maps are stored
	// encrypted.
	EncryptionKey string `yaml:"encryption_key"`
	// Redact lists patterns masked in names and notes before saving.
	Redact []string `yaml:"redact"`
}

// Redis configures the Redis store, broker and lock.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// Generator selects how maps are generated from text.
type Generator struct {
	Kind      string `yaml:"kind"`
	MaxTopics int    `yaml:"max_topics"`
	MaxInput  int    `yaml:"max_input"`
	OpenAI    OpenAI `yaml:"openai"`
}

// OpenAI configures the chat completion generator.
type OpenAI struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: Log{Level: "info", Format: "text"},
		Server: Server{
			Addr:           ":5000",
			AllowedOrigins: []string{"*"},
			RateLimit:      50,
			RateBurst:      100,
			PingInterval:   30 * time.Second,
			MCPPort:        8081,
		},
		Layout: Layout{
			HorizontalSpacing: 200,
			VerticalSpacing:   100,
			NodeWidth:         150,
			NodeHeight:        40,
		},
		Store: Store{Backend: StoreMemory, Path: filepath.Join(".arbor", "maps"), Format: "json"},
		Redis: Redis{Addr: "localhost:6379", LockTTL: 30 * time.Second},
		Generator: Generator{
			Kind:      GeneratorKeywords,
			MaxTopics: 5,
			MaxInput:  10000,
			OpenAI:    OpenAI{Model: "gpt-4o-mini"},
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path tries DefaultFile and silently skips it when absent.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays ARBOR_* variables, such as ARBOR_SERVER_ADDR or
// ARBOR_REDIS_DB, using lookup to read them.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("SERVER_ADDR", &c.Server.Addr)
	if v, ok := lookup(EnvPrefix + "SERVER_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	float("SERVER_RATE_LIMIT", &c.Server.RateLimit)
	integer("SERVER_RATE_BURST", &c.Server.RateBurst)
	duration("SERVER_PING_INTERVAL", &c.Server.PingInterval)
	boolean("SERVER_METRICS", &c.Server.Metrics)
	integer("SERVER_MCP_PORT", &c.Server.MCPPort)

	float("LAYOUT_HORIZONTAL_SPACING", &c.Layout.HorizontalSpacing)
	float("LAYOUT_VERTICAL_SPACING", &c.Layout.VerticalSpacing)
	float("LAYOUT_NODE_WIDTH", &c.Layout.NodeWidth)
	float("LAYOUT_NODE_HEIGHT", &c.Layout.NodeHeight)

	str("STORE_BACKEND", &c.Store.Backend)
	str("STORE_PATH", &c.Store.Path)
	str("STORE_FORMAT", &c.Store.Format)
	str("STORE_ENCRYPTION_KEY", &c.Store.EncryptionKey)
	if v, ok := lookup(EnvPrefix + "STORE_REDACT"); ok {
		c.Store.Redact = splitList(v)
	}

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)
	duration("REDIS_TTL", &c.Redis.TTL)
	duration("REDIS_LOCK_TTL", &c.Redis.LockTTL)

	str("GENERATOR_KIND", &c.Generator.Kind)
	integer("GENERATOR_MAX_TOPICS", &c.Generator.MaxTopics)
	integer("GENERATOR_MAX_INPUT", &c.Generator.MaxInput)
	str("GENERATOR_OPENAI_BASE_URL", &c.Generator.OpenAI.BaseURL)
	str("GENERATOR_OPENAI_MODEL", &c.Generator.OpenAI.Model)
	str("GENERATOR_OPENAI_API_KEY", &c.Generator.OpenAI.APIKey)
	if c.Generator.OpenAI.APIKey == "" {
		if v, ok := lookup("OPENAI_API_KEY"); ok {
			c.Generator.OpenAI.APIKey = v
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreMemory, StoreRedis:
	case StoreFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Store.EncryptionKey != "" {
		if key, err := base64.StdEncoding.DecodeString(c.Store.EncryptionKey); err != nil || len(key) != 32 {
			errs = append(errs, errors.New("store.encryption_key must be 32 bytes, base64 encoded"))
		}
	}
	switch strings.ToLower(c.Store.Format) {
	case "", "json", "yaml", "yml":
	default:
		errs = append(errs, fmt.Errorf("unknown store.format %q", c.Store.Format))
	}
	switch c.Generator.Kind {
	case GeneratorKeywords, GeneratorNone, "":
	case GeneratorOpenAI:
		if c.Generator.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("generator.openai.api_key is required for the openai generator"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown generator.kind %q", c.Generator.Kind))
	}
	if c.Layout.HorizontalSpacing < 0 || c.Layout.VerticalSpacing < 0 {
		errs = append(errs, errors.New("layout spacing must not be negative"))
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, errors.New("server rate limit must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
