package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env            string
	BaseURL        string
	HTTPTimeout    time.Duration
	SearchDebounce time.Duration
	ScanInterval   time.Duration
	ScanResume     time.Duration
	TimeZone       string
	DebugAddr      string
	DebugOrigins   []string
	Workers        int
	// LogFile receives logs while the terminal program owns the screen.
	LogFile string
}

func Load() Config {
	cfg := Config{
		Env:            get("APP_ENV", "dev"),
		BaseURL:        strings.TrimRight(get("WALLET_BASE_URL", "http://localhost:5000"), "/"),
		HTTPTimeout:    dur("WALLET_HTTP_TIMEOUT", 15*time.Second),
		SearchDebounce: dur("WALLET_SEARCH_DEBOUNCE", 250*time.Millisecond),
		ScanInterval:   dur("WALLET_SCAN_INTERVAL", 100*time.Millisecond),
		ScanResume:     dur("WALLET_SCAN_RESUME", time.Second),
		TimeZone:       get("WALLET_TZ", "Europe/Moscow"),
		DebugAddr:      get("WALLET_DEBUG_ADDR", ""),
		DebugOrigins:   list("WALLET_DEBUG_ORIGINS", []string{"http://localhost:*"}),
		Workers:        num("WALLET_WORKERS", 2),
		LogFile:        get("WALLET_LOG_FILE", "wallet.log"),
	}
	return cfg
}

// Location falls back to UTC when the zone database has no entry for TimeZone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func get(key, def string) string { v := os.Getenv(key); if v == "" { return def }; return v }

func dur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func num(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func list(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
