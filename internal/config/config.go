package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrMissingBaseURL  = errors.New("API_BASE_URL is required")
	ErrMissingCacheDSN = errors.New("CACHE_DSN is required when cache is enabled")
	ErrNotifyChatID    = errors.New("NOTIFY_CHAT_ID is required when NOTIFY_BOT_TOKEN is set")
)

type Config struct {
	Server ServerConfig
	Poll   PollConfig
	Redis  RedisConfig
	Cache  CacheConfig
	Notify NotifyConfig
	HTTP   HTTPConfig
	Log    LogConfig

	MetricsAddr string
}

type ServerConfig struct {
	BaseURL   string
	AuthToken string
	ClientID  string
	Operator  string
}

type PollConfig struct {
	Interval          time.Duration
	PostStreamRefresh time.Duration
	ProgressDismiss   time.Duration
	RateLimitHints    []string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	ExecPerHour int64
}

type CacheConfig struct {
	Enabled     bool
	Driver      string
	DSN         string
	AutoMigrate bool
}

type NotifyConfig struct {
	BotToken string
	ChatID   int64
}

type HTTPConfig struct {
	UnaryTimeout time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			BaseURL:   mustEnv("API_BASE_URL", "http://localhost:8000"),
			AuthToken: mustEnv("API_AUTH_TOKEN", ""),
			ClientID:  mustEnv("CLIENT_ID", ""),
			Operator:  mustEnv("OPERATOR", hostnameOr("operator")),
		},
		Poll: PollConfig{
			Interval:          mustDuration("POLL_INTERVAL", 2*time.Second),
			PostStreamRefresh: mustDuration("POST_STREAM_REFRESH", 500*time.Millisecond),
			ProgressDismiss:   mustDuration("PROGRESS_AUTO_DISMISS", 3*time.Second),
			RateLimitHints:    mustList("RATE_LIMIT_HINTS", []string{"too many calls", "rate"}),
		},
		Redis: RedisConfig{
			Addr:        mustEnv("REDIS_ADDR", ""),
			Password:    mustEnv("REDIS_PASSWORD", ""),
			DB:          mustInt("REDIS_DB", 0),
			ExecPerHour: int64(mustInt("EXEC_LIMIT_PER_HOUR", 60)),
		},
		Cache: CacheConfig{
			Enabled:     mustBool("CACHE_ENABLED", true),
			Driver:      strings.ToLower(mustEnv("CACHE_DRIVER", DriverSQLite)),
			DSN:         mustEnv("CACHE_DSN", "adconsole.db"),
			AutoMigrate: mustBool("CACHE_AUTO_MIGRATE", true),
		},
		Notify: NotifyConfig{
			BotToken: mustEnv("NOTIFY_BOT_TOKEN", ""),
			ChatID:   mustInt64("NOTIFY_CHAT_ID", 0),
		},
		HTTP: HTTPConfig{
			UnaryTimeout: mustDuration("HTTP_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
		MetricsAddr: mustEnv("METRICS_ADDR", ""),
	}

	if strings.TrimSpace(cfg.Server.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Cache.Enabled && strings.TrimSpace(cfg.Cache.DSN) == "" {
		return nil, ErrMissingCacheDSN
	}
	if cfg.Cache.Driver != DriverSQLite && cfg.Cache.Driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported CACHE_DRIVER %q", cfg.Cache.Driver)
	}
	if cfg.Notify.BotToken != "" && cfg.Notify.ChatID == 0 {
		return nil, ErrNotifyChatID
	}

	return cfg, nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustInt64(key string, def int64) int64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func mustList(key string, def []string) []string {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func hostnameOr(def string) string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return def
	}
	return h
}
