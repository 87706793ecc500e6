// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/giftlist/linkresolver/internal/product"
)

// EnvPrefix namespaces every environment variable read through AutomaticEnv.
const EnvPrefix = "LINKRESOLVER"

// DotenvFiles are loaded in order before the environment is read. Variables
// already set are never overwritten, so earlier files win.
var DotenvFiles = []string{".env.local", ".env"}

// envAliases bind keys to variable names used by existing deployments.
var envAliases = map[string][]string{
	"amazon.access_key":  {"AMAZON_ACCESS_KEY_ID"},
	"amazon.secret_key":  {"AMAZON_SECRET_ACCESS_KEY"},
	"amazon.partner_tag": {"AMAZON_ASSOCIATE_TAG", "AMAZON_PARTNER_TAG"},
	"server.port":        {"PORT"},
}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Amazon      AmazonConfig      `mapstructure:"amazon"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Scrape      ScrapeConfig      `mapstructure:"scrape"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AmazonConfig holds the Product Advertising API credentials. All optional.
type AmazonConfig struct {
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	PartnerTag  string `mapstructure:"partner_tag"`
	PartnerType string `mapstructure:"partner_type"`
}

// MarketplaceConfig tunes the API dispatcher. Empty lists use built-in defaults.
type MarketplaceConfig struct {
	Endpoints             []product.Endpoint `mapstructure:"endpoints"`
	Resources             []string           `mapstructure:"resources"`
	AttemptTimeoutSeconds int                `mapstructure:"attempt_timeout_seconds"`
	RatePerSecond         float64            `mapstructure:"rate_per_second"`
	Burst                 int                `mapstructure:"burst"`
}

// ScrapeConfig controls the page-scrape strategy.
type ScrapeConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	UserAgent      string         `mapstructure:"user_agent"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds"`
	Headless       HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the optional headless renderer.
type HeadlessConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	MaxParallel         int  `mapstructure:"max_parallel"`
	NavTimeoutSeconds   int  `mapstructure:"nav_timeout_seconds"`
	PromotionBodyLength int  `mapstructure:"promotion_body_length"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from dotenv files, an optional config file, and the
// environment.
func Load(path string) (Config, error) {
	if err := LoadDotenv(DotenvFiles...); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindAliases(v); err != nil {
		return Config{}, err
	}

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

// LoadDotenv loads each file into the process environment, skipping files that
// do not exist.
func LoadDotenv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

func bindAliases(v *viper.Viper) error {
	for key, aliases := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		names := append([]string{key, prefixed}, aliases...)
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("amazon.partner_type", "Associates")
	v.SetDefault("marketplace.attempt_timeout_seconds", 5)
	v.SetDefault("marketplace.rate_per_second", 1.0)
	v.SetDefault("marketplace.burst", 1)
	v.SetDefault("scrape.enabled", true)
	v.SetDefault("scrape.user_agent", "")
	v.SetDefault("scrape.timeout_seconds", 10)
	v.SetDefault("scrape.headless.enabled", false)
	v.SetDefault("scrape.headless.max_parallel", 1)
	v.SetDefault("scrape.headless.nav_timeout_seconds", 20)
	v.SetDefault("scrape.headless.promotion_body_length", 2048)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Marketplace.AttemptTimeoutSeconds <= 0 {
		return fmt.Errorf("marketplace.attempt_timeout_seconds must be > 0")
	}
	if c.Marketplace.RatePerSecond < 0 {
		return fmt.Errorf("marketplace.rate_per_second must be >= 0")
	}
	for i, ep := range c.Marketplace.Endpoints {
		if ep.Host == "" || ep.Region == "" || ep.MarketplaceID == "" {
			return fmt.Errorf("marketplace.endpoints[%d] needs host, region and marketplace_id", i)
		}
	}
	if c.Scrape.Enabled && c.Scrape.TimeoutSeconds <= 0 {
		return fmt.Errorf("scrape.timeout_seconds must be > 0")
	}
	if c.Scrape.Headless.Enabled && c.Scrape.Headless.MaxParallel <= 0 {
		return fmt.Errorf("scrape.headless.max_parallel must be > 0 when headless is enabled")
	}
	return nil
}

// Credentials returns the API credentials as an immutable per-call value.
func (c Config) Credentials() product.Credentials {
	return product.Credentials{
		AccessKey:  strings.TrimSpace(c.Amazon.AccessKey),
		SecretKey:  strings.TrimSpace(c.Amazon.SecretKey),
		PartnerTag: strings.TrimSpace(c.Amazon.PartnerTag),
	}
}

// RequestTimeout bounds one inbound HTTP request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// AttemptTimeout bounds one marketplace endpoint call.
func (c Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Marketplace.AttemptTimeoutSeconds) * time.Second
}

// ScrapeTimeout bounds one page fetch.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scrape.TimeoutSeconds) * time.Second
}

// NavTimeout bounds one headless navigation.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Scrape.Headless.NavTimeoutSeconds) * time.Second
}
