package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the crawl agent.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// SearchConfig configures the SearXNG search backend.
type SearchConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxPages     int           `mapstructure:"max_pages"`
	Retries      int           `mapstructure:"retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PagePause    time.Duration `mapstructure:"page_pause"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// Normalize applies defaults and clamps for unset or out-of-range values.
func (c SearchConfig) Normalize() SearchConfig {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:32768/search"
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 10
	}
	c.DefaultLimit = clampInt(c.DefaultLimit, 1, 60)
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.PagePause < 0 {
		c.PagePause = 0
	} else if c.PagePause == 0 {
		c.PagePause = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "CrawlAgent-Search/1.0"
	}
	return c
}

// FetchConfig configures the page fetcher.
type FetchConfig struct {
	Strategy       string        `mapstructure:"strategy"` // http or chromedp
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxLength      int           `mapstructure:"max_length"`
	MinChars       int           `mapstructure:"min_chars"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchPause     time.Duration `mapstructure:"batch_pause"`
	RetryCooldown  time.Duration `mapstructure:"retry_cooldown"`
	Retries        int           `mapstructure:"retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	UserAgent      string        `mapstructure:"user_agent"`
	DefaultLimit   int           `mapstructure:"default_limit"`
	ErrorPageCeil  int           `mapstructure:"error_page_ceiling"`
}

func (c FetchConfig) Normalize() FetchConfig {
	if c.Strategy == "" {
		c.Strategy = "http"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	c.Timeout = clampDuration(c.Timeout, 5*time.Second, 120*time.Second)
	if c.MaxLength <= 0 {
		c.MaxLength = 20000
	}
	c.MaxLength = clampInt(c.MaxLength, 100, 50000)
	if c.MinChars <= 0 {
		c.MinChars = 100
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	c.BatchSize = clampInt(c.BatchSize, 1, 20)
	if c.BatchPause <= 0 {
		c.BatchPause = 500 * time.Millisecond
	}
	if c.RetryCooldown <= 0 {
		c.RetryCooldown = 3 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "CrawlAgent-Crawler/1.0"
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 10
	}
	c.DefaultLimit = clampInt(c.DefaultLimit, 1, 30)
	if c.ErrorPageCeil <= 0 {
		c.ErrorPageCeil = 500
	}
	return c
}

// RateLimitConfig configures per-origin admission control.
type RateLimitConfig struct {
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
}

func (c RateLimitConfig) Normalize() RateLimitConfig {
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = 10
	}
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	return c
}

// CacheConfig configures the freshness-validated content cache.
type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

func (c CacheConfig) Normalize() CacheConfig {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 100
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 30 * time.Minute
	}
	return c
}

// ChunkingConfig configures size-bounded chunking of aggregated content.
type ChunkingConfig struct {
	Threshold int `mapstructure:"threshold"`
	Size      int `mapstructure:"size"`
	Overlap   int `mapstructure:"overlap"`
	MaxChunks int `mapstructure:"max_chunks"`
}

func (c ChunkingConfig) Normalize() ChunkingConfig {
	if c.Threshold <= 0 {
		c.Threshold = 30000
	}
	if c.Size <= 0 {
		c.Size = 15000
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	} else if c.Overlap == 0 {
		c.Overlap = 1000
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = 100
	}
	return c
}

// LLMConfig configures the reasoning service used for planning and analysis.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

func (c LLMConfig) Normalize() LLMConfig {
	if c.Temperature <= 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2000
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	return c
}

// Validate ensures the reasoning service is usable when planning is requested.
func (c LLMConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port cannot be negative")
	}
	return nil
}

// Normalize applies defaults and clamps across all sub-configs.
func (c *Config) Normalize() {
	c.Search = c.Search.Normalize()
	c.Fetch = c.Fetch.Normalize()
	c.RateLimit = c.RateLimit.Normalize()
	c.Cache = c.Cache.Normalize()
	c.Chunking = c.Chunking.Normalize()
	c.LLM = c.LLM.Normalize()
	if c.Server.Address == "" {
		c.Server.Address = ":32769"
	}
}

// LoadConfig loads config from file (optional) plus CRAWLAGENT_* env overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CRAWLAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine: defaults plus env cover the whole surface.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
