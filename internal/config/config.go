package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	// CacheDriver selects the derived-value cache backend: memory|redis.
	CacheDriver string
	RedisHost   string
	RedisPort   string

	AuthHMACSecret string

	CORSOrigins []string
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	cacheDriver := envOr("CACHE_DRIVER", "memory")
	if mode == ModeOnline && os.Getenv("CACHE_DRIVER") == "" {
		cacheDriver = "redis"
	}
	return Config{
		Mode:           mode,
		HTTPAddr:       envOr("HTTP_ADDR", ":8080"),
		DBDriver:       envOr("DB_DRIVER", "sqlite"),
		DBDSN:          envOr("DB_DSN", ""),
		CacheDriver:    cacheDriver,
		RedisHost:      envOr("REDIS_HOST", "localhost"),
		RedisPort:      envOr("REDIS_PORT", "6379"),
		AuthHMACSecret: envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		CORSOrigins:    csvOr("CORS_ORIGINS", "http://localhost:3000"),
	}
}

// NewRedisClient builds the client for the redis cache backend.
func NewRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
	})
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
