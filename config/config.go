package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
)

// EnvPrefix marks the variables Load reads. FARECRAFT_RETRY__MAX_ATTEMPTS sets retry.max_attempts.
const EnvPrefix = "FARECRAFT_"

// Config holds all application-level configuration
type Config struct {
	App      AppConfig      `koanf:"app"`
	Log      LogConfig      `koanf:"log"`
	Storage  StorageConfig  `koanf:"storage"`
	Browser  BrowserConfig  `koanf:"browser"`
	Sensor   SensorConfig   `koanf:"sensor"`
	Token    TokenConfig    `koanf:"token"`
	API      APIConfig      `koanf:"api"`
	Retry    RetryConfig    `koanf:"retry"`
	Fetch    FetchConfig    `koanf:"fetch"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Server   ServerConfig   `koanf:"server"`
	Output   OutputConfig   `koanf:"output"`
}

type AppConfig struct {
	Env string `koanf:"env" validate:"required"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"required"`
}

type StorageConfig struct {
	Driver       string `koanf:"driver" validate:"required,oneof=bolt postgres memory"`
	BoltPath     string `koanf:"bolt_path"`
	DatabaseURL  string `koanf:"database_url"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"min=1"`
}

type BrowserConfig struct {
	Headless     bool          `koanf:"headless"`
	ExecPath     string        `koanf:"exec_path"`
	UserAgent    string        `koanf:"user_agent" validate:"required"`
	WarmupURL    string        `koanf:"warmup_url" validate:"required,url"`
	CookieDomain string        `koanf:"cookie_domain"`
	WindowWidth  int           `koanf:"window_width" validate:"min=320"`
	WindowHeight int           `koanf:"window_height" validate:"min=240"`
	NavTimeout   time.Duration `koanf:"nav_timeout" validate:"required"`
}

type SensorConfig struct {
	Cookie         string        `koanf:"cookie" validate:"required"`
	Interval       time.Duration `koanf:"interval" validate:"required"`
	Deadline       time.Duration `koanf:"deadline" validate:"required"`
	TrustedMarkers []string      `koanf:"trusted_markers" validate:"required,min=1"`
	BlockedMarkers []string      `koanf:"blocked_markers"`
}

type TokenConfig struct {
	ScopeKey      string        `koanf:"scope_key" validate:"required"`
	Required      []string      `koanf:"required" validate:"required,min=1"`
	RefreshMargin time.Duration `koanf:"refresh_margin" validate:"min=0"`
	FallbackTTL   time.Duration `koanf:"fallback_ttl" validate:"required"`
	Attempts      int           `koanf:"attempts" validate:"min=1,max=10"`
	AttemptPause  time.Duration `koanf:"attempt_pause"`
	// AcquireTimeout bounds one coordinated acquisition, attempts included.
	AcquireTimeout time.Duration `koanf:"acquire_timeout" validate:"required"`
	MinInterval    time.Duration `koanf:"min_interval"`
	SettleMin      time.Duration `koanf:"settle_min"`
	SettleMax      time.Duration `koanf:"settle_max"`
}

type APIConfig struct {
	BaseURL      string        `koanf:"base_url" validate:"required,url"`
	SearchPath   string        `koanf:"search_path" validate:"required"`
	Timeout      time.Duration `koanf:"timeout" validate:"required"`
	MaxBodyBytes int64         `koanf:"max_body_bytes" validate:"min=1024"`
	// Fingerprint is the browser TLS ClientHello presented to the API.
	Fingerprint string `koanf:"fingerprint" validate:"required,oneof=firefox chrome"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1,max=10"`
	BaseDelay   time.Duration `koanf:"base_delay" validate:"required"`
	MaxDelay    time.Duration `koanf:"max_delay" validate:"required"`
	Jitter      bool          `koanf:"jitter"`
}

type FetchConfig struct {
	StaggerDelay time.Duration `koanf:"stagger_delay"`
}

type PipelineConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"required"`
	// FareClass overrides the cabin to brand mapping when set.
	FareClass string `koanf:"fare_class"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type OutputConfig struct {
	CSVPath  string `koanf:"csv_path"`
	JSONPath string `koanf:"json_path"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"app.env":   "development",
		"log.level": "info",

		"storage.driver":         "bolt",
		"storage.bolt_path":      "data/farecraft.db",
		"storage.database_url":   "",
		"storage.max_open_conns": 10,

		"browser.headless":      true,
		"browser.exec_path":     "",
		"browser.user_agent":    "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
		"browser.warmup_url":    "https://www.aa.com/booking/find-flights",
		"browser.cookie_domain": "aa.com",
		"browser.window_width":  1280,
		"browser.window_height": 900,
		"browser.nav_timeout":   "45s",

		"sensor.cookie":          "_abck",
		"sensor.interval":        "500ms",
		"sensor.deadline":        "20s",
		"sensor.trusted_markers": []string{"~-1~"},
		"sensor.blocked_markers": []string{},

		"token.scope_key":       "aa-booking",
		"token.required":        []string{"_abck", "spa_session_id", "XSRF-TOKEN"},
		"token.refresh_margin":  "5m",
		"token.fallback_ttl":    "1h",
		"token.attempts":        3,
		"token.attempt_pause":   "2s",
		"token.acquire_timeout": "5m",
		"token.min_interval":    "10s",
		"token.settle_min":      "300ms",
		"token.settle_max":      "1200ms",

		"api.base_url":       "https://www.aa.com",
		"api.search_path":    "/booking/api/search/itinerary",
		"api.timeout":        "30s",
		"api.max_body_bytes": 32 << 20,
		"api.fingerprint":    "firefox",

		"retry.max_attempts": 3,
		"retry.base_delay":   "1s",
		"retry.max_delay":    "10s",
		"retry.jitter":       true,

		"fetch.stagger_delay": "0s",

		"pipeline.timeout":    "3m",
		"pipeline.fare_class": "",

		"server.port":          "8080",
		"server.read_timeout":  "10s",
		"server.write_timeout": "30s",
		"server.idle_timeout":  "60s",

		"output.csv_path":  "",
		"output.json_path": "",
	}
}

// Load reads defaults, then .env and FARECRAFT_* environment variables, and validates the result
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, EnvPrefix)),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the rules that span fields
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	switch {
	case c.Storage.Driver == "postgres" && c.Storage.DatabaseURL == "":
		return fmt.Errorf("config validation failed: storage.database_url is required for the postgres driver")
	case c.Storage.Driver == "bolt" && c.Storage.BoltPath == "":
		return fmt.Errorf("config validation failed: storage.bolt_path is required for the bolt driver")
	case c.Retry.MaxDelay < c.Retry.BaseDelay:
		return fmt.Errorf("config validation failed: retry.max_delay %v is below retry.base_delay %v", c.Retry.MaxDelay, c.Retry.BaseDelay)
	case c.Token.SettleMax < c.Token.SettleMin:
		return fmt.Errorf("config validation failed: token.settle_max %v is below token.settle_min %v", c.Token.SettleMax, c.Token.SettleMin)
	}
	return nil
}

// SearchEndpoint is the full URL of the itinerary search API
func (c *APIConfig) SearchEndpoint() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(c.SearchPath, "/")
}
