package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	// WishlistSources lists "name url" pairs separated by "|".
	WishlistSources string `mapstructure:"WISHLIST_SOURCES"`

	StoreDriver  string `mapstructure:"STORE_DRIVER"`
	BadgerDBPath string `mapstructure:"BADGERDB_PATH"`
	DatabaseDSN  string `mapstructure:"DATABASE_DSN"`

	ScraperEngine     string        `mapstructure:"SCRAPER_ENGINE"`
	ScrapeTries       int           `mapstructure:"SCRAPE_TRIES"`
	ScrapeRetryDelay  time.Duration `mapstructure:"SCRAPE_RETRY_DELAY"`
	ScrapePageTimeout time.Duration `mapstructure:"SCRAPE_PAGE_TIMEOUT"`
	ScrapeUserAgent   string        `mapstructure:"SCRAPE_USER_AGENT"`

	// ScrapeInterval of zero runs a single cycle and exits.
	ScrapeInterval time.Duration `mapstructure:"SCRAPE_INTERVAL"`

	LogLevel string `mapstructure:"LOG_LEVEL"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `mapstructure:"TELEGRAM_CHAT_ID"`
}

var defaults = map[string]any{
	"WISHLIST_SOURCES":    "",
	"STORE_DRIVER":        "badger",
	"BADGERDB_PATH":       "./badger_data",
	"DATABASE_DSN":        "",
	"SCRAPER_ENGINE":      "http",
	"SCRAPE_TRIES":        5,
	"SCRAPE_RETRY_DELAY":  "3s",
	"SCRAPE_PAGE_TIMEOUT": "30s",
	"SCRAPE_USER_AGENT":   "",
	"SCRAPE_INTERVAL":     "0s",
	"LOG_LEVEL":           "info",
	"TELEGRAM_BOT_TOKEN":  "",
	"TELEGRAM_CHAT_ID":    0,
}

// LoadConfig reads configuration from path/config.yaml and environment variables.
// Environment variables win over the file.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Defaults make every key known to Unmarshal, including env-only ones.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := ParseSources(c.WishlistSources); err != nil {
		return err
	}
	switch c.StoreDriver {
	case "badger":
		if c.BadgerDBPath == "" {
			return fmt.Errorf("BADGERDB_PATH is not set")
		}
	case "sqlite", "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.ScraperEngine {
	case "http", "browser":
	default:
		return fmt.Errorf("unknown SCRAPER_ENGINE %q", c.ScraperEngine)
	}
	if c.ScrapeTries < 1 {
		return fmt.Errorf("SCRAPE_TRIES must be at least 1")
	}
	if c.ScrapeInterval < 0 {
		return fmt.Errorf("SCRAPE_INTERVAL must not be negative")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// Sources returns the parsed wishlist sources.
func (c Config) Sources() []domain.SourceSpec {
	sources, _ := ParseSources(c.WishlistSources)
	return sources
}

// ParseSources parses "name url|name url".
func ParseSources(raw string) ([]domain.SourceSpec, error) {
	var sources []domain.SourceSpec
	seen := map[string]bool{}
	for _, pair := range strings.Split(raw, "|") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		fields := strings.Fields(pair)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid wishlist source %q, expected \"name url\"", pair)
		}
		if seen[fields[0]] {
			return nil, fmt.Errorf("duplicate wishlist source name %q", fields[0])
		}
		seen[fields[0]] = true
		sources = append(sources, domain.SourceSpec{Name: fields[0], URL: fields[1]})
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("WISHLIST_SOURCES is not set")
	}
	return sources, nil
}
