// Package config handles configuration loading for futurenews.
// It supports YAML config files, a .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalid is returned by Validate for unusable configurations.
var ErrInvalid = errors.New("config: invalid configuration")

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "FUTURENEWS"

// Storage backends.
const (
	StorageFile  = "file"
	StorageRedis = "redis"
)

// Config represents the complete application configuration.
type Config struct {
	News    NewsConfig    `mapstructure:"news"    yaml:"news"`
	Ollama  OllamaConfig  `mapstructure:"ollama"  yaml:"ollama"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// NewsConfig holds news provider and ingestion settings.
type NewsConfig struct {
	APIKey         string        `mapstructure:"api_key"         yaml:"api_key"`
	BaseURL        string        `mapstructure:"base_url"        yaml:"base_url"`
	Language       string        `mapstructure:"language"        yaml:"language"`
	Categories     []string      `mapstructure:"categories"      yaml:"categories"`
	Sources        []string      `mapstructure:"sources"         yaml:"sources"` // provider domains
	FetchInterval  time.Duration `mapstructure:"fetch_interval"  yaml:"fetch_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"      yaml:"rate_limit"` // requests per second
	Feeds          []FeedConfig  `mapstructure:"feeds"           yaml:"feeds"`
}

// FeedConfig describes an additional RSS partition.
type FeedConfig struct {
	Name     string `mapstructure:"name"     yaml:"name"     json:"name"`
	URL      string `mapstructure:"url"      yaml:"url"      json:"url"`
	Category string `mapstructure:"category" yaml:"category" json:"category,omitempty"`
}

// OllamaConfig holds generation endpoint settings.
type OllamaConfig struct {
	BaseURL           string        `mapstructure:"base_url"            yaml:"base_url"`
	Model             string        `mapstructure:"model"               yaml:"model"`
	Timeout           time.Duration `mapstructure:"timeout"             yaml:"timeout"`             // batch calls
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout" yaml:"stream_idle_timeout"` // max gap between stream chunks
	ModelsTTL         time.Duration `mapstructure:"models_ttl"          yaml:"models_ttl"`
}

// StorageConfig selects where the article snapshot is persisted.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"        yaml:"backend"` // "file" or "redis"
	Path          string `mapstructure:"path"           yaml:"path"`
	RedisAddr     string `mapstructure:"redis_addr"     yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"       yaml:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"      yaml:"redis_key"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "console" or "json"
	File   string `mapstructure:"file"   yaml:"file"`
}

// Addr returns the host:port listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml
//  2. ~/.futurenews/config.yaml
//  3. /etc/futurenews/config.yaml
//
// A .env file in the working directory is loaded first. Environment
// variables override config file values, e.g. FUTURENEWS_NEWS_API_KEY.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".futurenews"))
	v.AddConfigPath("/etc/futurenews")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

// Validate checks that the configuration can drive ingestion and serving.
func (c *Config) Validate() error {
	var problems []string
	if len(c.News.Categories) == 0 && len(c.News.Sources) == 0 && len(c.News.Feeds) == 0 {
		problems = append(problems, "news: at least one category, source or feed is required")
	}
	if c.News.FetchInterval <= 0 {
		problems = append(problems, "news.fetch_interval must be positive")
	}
	for i, f := range c.News.Feeds {
		if f.URL == "" {
			problems = append(problems, fmt.Sprintf("news.feeds[%d]: url is required", i))
		}
	}
	switch c.Storage.Backend {
	case StorageFile:
		if c.Storage.Path == "" {
			problems = append(problems, "storage.path is required for the file backend")
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			problems = append(problems, "storage.redis_addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.backend %q is not one of file, redis", c.Storage.Backend))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		problems = append(problems, fmt.Sprintf("api.port %d out of range", c.API.Port))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.News.Categories = compact(cfg.News.Categories)
	cfg.News.Sources = compact(cfg.News.Sources)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("news.api_key", "")
	v.SetDefault("news.base_url", "https://newsdata.io/api/1")
	v.SetDefault("news.language", "en")
	v.SetDefault("news.categories", []string{"business", "technology", "science", "health", "politics"})
	v.SetDefault("news.sources", []string{"bbc-news", "cnn", "reuters", "associated-press", "the-washington-post"})
	v.SetDefault("news.fetch_interval", 30*time.Minute)
	v.SetDefault("news.request_timeout", 30*time.Second)
	v.SetDefault("news.rate_limit", 2.0)

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3")
	v.SetDefault("ollama.timeout", 60*time.Second)
	v.SetDefault("ollama.stream_idle_timeout", 2*time.Minute)
	v.SetDefault("ollama.models_ttl", time.Minute)

	v.SetDefault("storage.backend", StorageFile)
	v.SetDefault("storage.path", "data/news_cache.json")
	v.SetDefault("storage.redis_addr", "")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_key", "futurenews:snapshot")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8000)
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
}

// loadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is ignored.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

// compact trims entries and drops empty ones, so "a, b,," becomes [a b].
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
