// Package config loads budgetguard configuration from environment variables
// and an optional TOML file. Environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Manjussha/budgetguard/internal/platform"
)

// Config holds all runtime configuration for budgetguard.
type Config struct {
	Port    string
	WorkDir string
	DBPath  string

	MaxBodyBytes       int64
	RateLimitPerMinute int

	ImportTimeout      time.Duration
	ImportMaxBytes     int64
	ImportAllowedHosts []string

	CheckoutSecret string
	CheckoutTTL    time.Duration
	PackPriceUSD   string

	EventRetentionDays int

	TelegramToken  string
	TelegramChatID int64

	WebhookURLs []string

	// ConfigFile is the TOML file that was read, empty when none was found.
	ConfigFile string
}

// fileConfig mirrors the TOML layout.
type fileConfig struct {
	Port               string `toml:"port"`
	DBPath             string `toml:"db_path"`
	MaxBodyBytes       int64  `toml:"max_body_bytes"`
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"`
	EventRetentionDays int    `toml:"event_retention_days"`

	Import struct {
		TimeoutSeconds int      `toml:"timeout_seconds"`
		MaxBytes       int64    `toml:"max_bytes"`
		AllowedHosts   []string `toml:"allowed_hosts"`
	} `toml:"import"`

	Checkout struct {
		Secret     string `toml:"secret"`
		TTLMinutes int    `toml:"ttl_minutes"`
		PriceUSD   string `toml:"price_usd"`
	} `toml:"checkout"`

	Telegram struct {
		Token  string `toml:"token"`
		ChatID int64  `toml:"chat_id"`
	} `toml:"telegram"`

	WebhookURLs []string `toml:"webhook_urls"`
}

// Load reads the optional TOML file and environment variables and returns a
// Config. The file is BUDGETGUARD_CONFIG when set, otherwise
// <work dir>/budgetguard.toml if it exists.
func Load() (*Config, error) {
	workDir := getEnv("WORK_DIR", platform.DefaultWorkDir())

	var fc fileConfig
	path := os.Getenv("BUDGETGUARD_CONFIG")
	explicit := path != ""
	if !explicit {
		path = filepath.Join(workDir, "budgetguard.toml")
	}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config.Load: %s: %w", path, err)
		}
		path = ""
	}

	dbPath := getEnv("DB_PATH", orString(fc.DBPath, filepath.Join(workDir, "budgetguard.db")))

	return &Config{
		Port:    getEnv("PORT", orString(fc.Port, "8080")),
		WorkDir: workDir,
		DBPath:  dbPath,

		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", int(orInt64(fc.MaxBodyBytes, 256<<10)))),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", orInt(fc.RateLimitPerMinute, 60)),

		ImportTimeout:      time.Duration(getEnvInt("IMPORT_TIMEOUT_SECONDS", orInt(fc.Import.TimeoutSeconds, 10))) * time.Second,
		ImportMaxBytes:     int64(getEnvInt("IMPORT_MAX_BYTES", int(orInt64(fc.Import.MaxBytes, 100_000)))),
		ImportAllowedHosts: getEnvList("IMPORT_ALLOWED_HOSTS", fc.Import.AllowedHosts),

		CheckoutSecret: getEnv("CHECKOUT_SECRET", orString(fc.Checkout.Secret, "change-me-in-production")),
		CheckoutTTL:    time.Duration(getEnvInt("CHECKOUT_TTL_MINUTES", orInt(fc.Checkout.TTLMinutes, 30))) * time.Minute,
		PackPriceUSD:   getEnv("PACK_PRICE_USD", orString(fc.Checkout.PriceUSD, "19.00")),

		EventRetentionDays: getEnvInt("EVENT_RETENTION_DAYS", orInt(fc.EventRetentionDays, 90)),

		TelegramToken:  getEnv("TELEGRAM_TOKEN", fc.Telegram.Token),
		TelegramChatID: getEnvInt64("TELEGRAM_CHAT_ID", fc.Telegram.ChatID),

		WebhookURLs: getEnvList("WEBHOOK_URLS", fc.WebhookURLs),

		ConfigFile: path,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orInt64(v, fallback int64) int64 {
	if v != 0 {
		return v
	}
	return fallback
}
