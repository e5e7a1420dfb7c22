// Package config содержит логику чтения конфигурации сервиса UrbanPOS.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress   = "localhost:8080"
	defaultRatesBaseURL = "https://openexchangerates.org"
	defaultSyncInterval = 12 * time.Hour
)

// Config содержит параметры конфигурации сервиса UrbanPOS.
type Config struct {
	RunAddress       string        `env:"RUN_ADDRESS"`
	DatabaseURI      string        `env:"DATABASE_URI"`
	SessionSecret    string        `env:"SESSION_SECRET"`
	MasterKey        string        `env:"MASTER_KEY"`
	RatesAppID       string        `env:"OPEN_EXCHANGE_RATES_APP_ID"`
	RatesBaseURL     string        `env:"RATES_BASE_URL"`
	RateSyncInterval time.Duration `env:"RATE_SYNC_INTERVAL"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg
	_, envInterval := os.LookupEnv("RATE_SYNC_INTERVAL")

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store when empty")
	flag.StringVar(&cfg.SessionSecret, "s", "", "secret for signing session cookies")
	flag.StringVar(&cfg.MasterKey, "m", "", "master access key")
	flag.StringVar(&cfg.RatesAppID, "x", "", "Open Exchange Rates app id")
	flag.StringVar(&cfg.RatesBaseURL, "r", defaultRatesBaseURL, "exchange rates API base URL")
	flag.DurationVar(&cfg.RateSyncInterval, "i", defaultSyncInterval, "exchange rates sync interval, 0 disables")

	flag.Parse()

	override(&cfg.RunAddress, envCfg.RunAddress)
	override(&cfg.DatabaseURI, envCfg.DatabaseURI)
	override(&cfg.SessionSecret, envCfg.SessionSecret)
	override(&cfg.MasterKey, envCfg.MasterKey)
	override(&cfg.RatesAppID, envCfg.RatesAppID)
	override(&cfg.RatesBaseURL, envCfg.RatesBaseURL)
	if envInterval {
		cfg.RateSyncInterval = envCfg.RateSyncInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.RatesBaseURL == "" {
		cfg.RatesBaseURL = defaultRatesBaseURL
	}
	if cfg.RateSyncInterval < 0 {
		return nil, fmt.Errorf("rate sync interval must not be negative: %s", cfg.RateSyncInterval)
	}

	return cfg, nil
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}
