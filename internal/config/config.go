// Package config handles loading and validating proxy configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Nested keys are
// separated by a double underscore: CHATPROXY_STORE__MONGO_URI -> store.mongo_uri.
const EnvPrefix = "CHATPROXY_"

// Provider names used as keys under "providers".
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderDeepSeek   = "deepseek"
	ProviderGroq       = "groq"
)

// Store backends.
const (
	BackendMongo = "mongo"
	BackendRedis = "redis"
)

// Config is the top-level configuration for the chat proxy.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Store     StoreConfig               `koanf:"store"`
	Logging   LoggingConfig             `koanf:"logging"`
}

// ServerConfig holds HTTP server settings. Zero timeouts mean the
// net/http defaults (no timeout).
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	StaticDir    string        `koanf:"static_dir"`
	MaxBodyBytes int64         `koanf:"max_body_bytes"`
	DefaultModel string        `koanf:"default_model"`
}

// ProviderConfig holds the settings for a single upstream provider.
// Referer and Title are only sent to OpenRouter.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Referer string `koanf:"referer"`
	Title   string `koanf:"title"`
}

// StoreConfig selects and configures the chat store backend.
type StoreConfig struct {
	Backend        string        `koanf:"backend"` // "mongo" or "redis"
	MongoURI       string        `koanf:"mongo_uri"`
	Database       string        `koanf:"database"`
	RedisAddr      string        `koanf:"redis_addr"`
	RedisPassword  string        `koanf:"redis_password"`
	RedisDB        int           `koanf:"redis_db"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// LoggingConfig controls the application and request loggers.
type LoggingConfig struct {
	Mode       string `koanf:"mode"`        // "development" or "production"
	Level      string `koanf:"level"`       // debug, info, warn, error
	RequestLog string `koanf:"request_log"` // path of the per-call request log, empty disables it
}

// Defaults applied to any value left unset by the file and environment.
const (
	DefaultPort           = 8000
	DefaultMaxBodyBytes   = 1 << 20
	DefaultModel          = "nex-agi/deepseek-v3.1-nex-n1:free"
	DefaultBackend        = BackendMongo
	DefaultDatabase       = "chatproxy"
	DefaultRedisAddr      = "localhost:6379"
	DefaultConnectTimeout = 10 * time.Second
	DefaultReferer        = "http://localhost:8000"
	DefaultTitle          = "Dinzin AI Local"
)

// defaultBaseURLs are the public endpoints of each provider.
var defaultBaseURLs = map[string]string{
	ProviderGemini:     "https://generativelanguage.googleapis.com",
	ProviderOpenRouter: "https://openrouter.ai",
	ProviderDeepSeek:   "https://api.deepseek.com",
	ProviderGroq:       "https://api.groq.com",
}

// legacyKeyEnv maps providers to the unprefixed env var names older
// deployments use for their API keys.
var legacyKeyEnv = map[string]string{
	ProviderGemini:     "GEMINI_API_KEY",
	ProviderOpenRouter: "OPENROUTER_API_KEY",
	ProviderDeepSeek:   "DEEPSEEK_API_KEY",
	ProviderGroq:       "GROQ_API_KEY",
}

// Load reads configuration from an optional YAML file, layers environment
// variable overrides on top, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	k := koanf.New(".")

	// The YAML file is optional; env vars alone are a complete config.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, &LoadError{Op: "read", Err: err}
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Op: "read", Err: err}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, &LoadError{Op: "env", Err: err}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, &LoadError{Op: "unmarshal", Err: err}
	}

	cfg.applyLegacyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns CHATPROXY_SERVER__DEFAULT_MODEL into server.default_model.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// applyLegacyEnv fills unset values from the unprefixed env names
// (PORT, MONGO_URI, DB_NAME, <PROVIDER>_API_KEY) and
// expands ${VAR} placeholders in provider keys.
func (c *Config) applyLegacyEnv() {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}

	for name, envName := range legacyKeyEnv {
		p := c.Providers[name]
		p.APIKey = expand(p.APIKey)
		if p.APIKey == "" {
			p.APIKey = os.Getenv(envName)
		}
		c.Providers[name] = p
	}

	if c.Server.Port == 0 {
		if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
			c.Server.Port = port
		}
	}
	c.Store.MongoURI = expand(c.Store.MongoURI)
	if c.Store.MongoURI == "" {
		c.Store.MongoURI = os.Getenv("MONGO_URI")
	}
	if c.Store.Database == "" {
		c.Store.Database = os.Getenv("DB_NAME")
	}
	c.Store.RedisPassword = expand(c.Store.RedisPassword)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "."
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Server.DefaultModel == "" {
		c.Server.DefaultModel = DefaultModel
	}

	for name, base := range defaultBaseURLs {
		p := c.Providers[name]
		if p.BaseURL == "" {
			p.BaseURL = base
		}
		p.BaseURL = strings.TrimRight(p.BaseURL, "/")
		if name == ProviderOpenRouter {
			if p.Referer == "" {
				p.Referer = DefaultReferer
			}
			if p.Title == "" {
				p.Title = DefaultTitle
			}
		}
		c.Providers[name] = p
	}

	if c.Store.Backend == "" {
		c.Store.Backend = DefaultBackend
	}
	if c.Store.Database == "" {
		c.Store.Database = DefaultDatabase
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = DefaultRedisAddr
	}
	if c.Store.ConnectTimeout <= 0 {
		c.Store.ConnectTimeout = DefaultConnectTimeout
	}

	if c.Logging.Mode == "" {
		c.Logging.Mode = "development"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.Store.Backend {
	case BackendMongo, BackendRedis:
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q must be one of mongo, redis", c.Store.Backend))
	}
	switch c.Logging.Mode {
	case "development", "production":
	default:
		problems = append(problems, fmt.Sprintf("logging.mode %q must be one of development, production", c.Logging.Mode))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level))
	}
	for name := range c.Providers {
		if _, ok := defaultBaseURLs[name]; !ok {
			problems = append(problems, fmt.Sprintf("providers.%s is not a known provider", name))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

// expand resolves a "${VAR}" placeholder to the value of VAR.
func expand(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}
