// Package config loads the typed runtime configuration described in
// spec.md §6, reading environment variables (optionally seeded from a
// .env file via godotenv, as the teacher's main.go does) with the table's
// defaults applied.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	ScriptDir string
	LockDir   string
	JSDir     string

	GridURL string

	PoolInitTimeout time.Duration
	DefaultLockTTL  time.Duration
	StreamLockTTL   time.Duration
	ImplicitWait    time.Duration

	// GridManaged gates the optional Grid Launcher (C9): when true, the
	// server launches and owns its own grid nodes via Docker instead of
	// dialing an externally managed GridURL.
	GridManaged bool
	GridNodes   int

	ListenAddr string
}

// Load reads Config from the environment, applying spec.md §6's defaults
// for anything unset.
func Load() Config {
	return Config{
		ScriptDir: getString("SCRIPT_DIR", "./storage/sides"),
		LockDir:   getString("LOCK_DIR", "./storage/locks"),
		JSDir:     getString("JS_DIR", "./storage/js"),

		GridURL: getString("GRID_URL", "http://localhost:4444"),

		PoolInitTimeout: getSeconds("POOL_INIT_TIMEOUT_S", 30),
		DefaultLockTTL:  getSeconds("DEFAULT_LOCK_TTL_S", 300),
		StreamLockTTL:   getSeconds("STREAM_LOCK_TTL_S", 3600),
		ImplicitWait:    getSeconds("IMPLICIT_WAIT_S", 10),

		GridManaged: getBool("GRID_MANAGED", false),
		GridNodes:   getInt("GRID_NODES", 1),

		ListenAddr: getString("LISTEN_ADDR", ":8080"),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getInt(key, fallbackSeconds)) * time.Second
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
