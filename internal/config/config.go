// Package config loads server configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type RateLimits struct {
	ArticlePerMinute  int
	CommentPerMinute  int
	RelationPerMinute int
}

type Config struct {
	Addr        string
	DBPath      string
	TokenSecret string
	TokenTTL    time.Duration
	RateLimits  RateLimits
}

// Load reads configuration from the environment, after loading a .env
// file when one is present.
func Load() Config {
	_ = godotenv.Load()

	addr := envString("CONDUIT_ADDR", "")
	if addr == "" {
		// PORT is the convention most deploy targets set.
		if port := envString("PORT", ""); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}

	return Config{
		Addr:        addr,
		DBPath:      envString("CONDUIT_DB", "conduit.db"),
		TokenSecret: envString("CONDUIT_TOKEN_SECRET", "dev-secret-change-me"),
		TokenTTL:    envDuration("CONDUIT_TOKEN_TTL", 720*time.Hour),
		RateLimits: RateLimits{
			ArticlePerMinute:  envInt("CONDUIT_RL_ARTICLE_PER_MIN", 30),
			CommentPerMinute:  envInt("CONDUIT_RL_COMMENT_PER_MIN", 60),
			RelationPerMinute: envInt("CONDUIT_RL_RELATION_PER_MIN", 120),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
