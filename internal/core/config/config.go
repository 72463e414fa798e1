package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the single process-start configuration struct: no globals
// beyond the signer secret it carries.
type Config struct {
	StorageRoot    string
	BindAddr       string
	LogLevel       string
	OverpassURL    string
	UserAgent      string
	SecretKey      string
	WorkerPoolSize int
	RunQueueSize   int
	FetchTimeout   time.Duration
	H3ListRes      int
	StoreCacheSize int
}

func FromEnv() Config {
	return Config{
		StorageRoot:    getenv("MAPCAMPAIGN_STORAGE_ROOT", "./data"),
		BindAddr:       getenv("MAPCAMPAIGN_ADDR", ":8090"),
		LogLevel:       getenv("MAPCAMPAIGN_LOG_LEVEL", "info"),
		OverpassURL:    getenv("MAPCAMPAIGN_OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		UserAgent:      getenv("MAPCAMPAIGN_USER_AGENT", "HotOSM"),
		SecretKey:      getenv("MAPCAMPAIGN_SECRET_KEY", ""),
		WorkerPoolSize: getint("MAPCAMPAIGN_WORKER_POOL_SIZE", 1),
		RunQueueSize:   getint("MAPCAMPAIGN_RUN_QUEUE_SIZE", 1024),
		FetchTimeout:   getduration("MAPCAMPAIGN_FETCH_TIMEOUT", 5*time.Minute),
		H3ListRes:      getint("MAPCAMPAIGN_H3_LIST_RES", 4),
		StoreCacheSize: getint("MAPCAMPAIGN_STORE_CACHE_SIZE", 256),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
