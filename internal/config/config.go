package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAPIURL      = "http://localhost:8080"
	defaultHubURL      = "ws://localhost:8080/hubs/app"
	defaultStatePath   = "shop-state.db"
	defaultHTTPTimeout = "30s"

	defaultDevAddr    = ":8080"
	defaultJWTSecret  = "change-me-jwt-secret"
	defaultAccessTTL  = "15m"
	defaultRefreshTTL = "168h"
)

// Config holds everything the terminal client needs to talk to the API.
type Config struct {
	APIURL      string
	HubURL      string
	StatePath   string
	HTTPTimeout time.Duration
}

// DevServerConfig configures the local stub API.
type DevServerConfig struct {
	Addr       string
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:    strings.TrimRight(getEnv("SHOP_API_URL", defaultAPIURL), "/"),
		HubURL:    getEnv("SHOP_HUB_URL", defaultHubURL),
		StatePath: getEnv("SHOP_STATE_PATH", defaultStatePath),
	}

	var err error
	cfg.HTTPTimeout, err = parseDurationEnv("SHOP_HTTP_TIMEOUT", defaultHTTPTimeout)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadDevServer() (*DevServerConfig, error) {
	_ = godotenv.Load()

	cfg := &DevServerConfig{
		Addr:      getEnv("SHOP_DEV_ADDR", defaultDevAddr),
		JWTSecret: strings.TrimSpace(getEnv("SHOP_JWT_SECRET", defaultJWTSecret)),
	}

	var err error
	cfg.AccessTTL, err = parseDurationEnv("SHOP_JWT_ACCESS_TTL", defaultAccessTTL)
	if err != nil {
		return nil, err
	}
	cfg.RefreshTTL, err = parseDurationEnv("SHOP_REFRESH_TTL", defaultRefreshTTL)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q: %w", key, raw, err)
	}
	return d, nil
}
