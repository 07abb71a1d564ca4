// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/threadline/config.yaml",
	"/etc/threadline/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Driver:       "duckdb",
			Path:         "/data/threadline.duckdb",
			MaxOpenConns: 10,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        900 * time.Second,
			Size:       1024,
			RedisAddr:  "127.0.0.1:6379",
			BadgerPath: "/data/cache",
		},
		Security: SecurityConfig{
			SessionTimeout:  24 * time.Hour,
			CORSOrigins:     []string{},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			LoginRateLimit:  5,
		},
		Discussion: DiscussionConfig{
			EditTimeout:      15 * time.Minute,
			MaxCommentLength: 10000,
		},
		Realtime: RealtimeConfig{
			SendBuffer:     256,
			MaxMessageSize: 4096,
			TypingRate:     5,
			TypingBurst:    10,
			StatsInterval:  30 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			Subject:        "threadline.broadcast",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf layers defaults, the optional YAML file and the environment,
// then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"environment":           "server.environment",

	"db_driver":         "database.driver",
	"duckdb_path":       "database.path",
	"database_url":      "database.dsn",
	"db_max_open_conns": "database.max_open_conns",

	"cache_backend":     "cache.backend",
	"cache_ttl":         "cache.ttl",
	"cache_size":        "cache.size",
	"redis_addr":        "cache.redis_addr",
	"redis_password":    "cache.redis_password",
	"redis_db":          "cache.redis_db",
	"cache_badger_path": "cache.badger_path",

	"jwt_secret":          "security.jwt_secret",
	"session_timeout":     "security.session_timeout",
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"login_rate_limit":    "security.login_rate_limit",

	"comment_edit_timeout": "discussion.edit_timeout",
	"max_comment_length":   "discussion.max_comment_length",

	"ws_send_buffer":      "realtime.send_buffer",
	"ws_max_message_size": "realtime.max_message_size",
	"ws_typing_rate":      "realtime.typing_rate",
	"ws_typing_burst":     "realtime.typing_burst",
	"ws_stats_interval":   "realtime.stats_interval",

	"nats_enabled":  "nats.enabled",
	"nats_url":      "nats.url",
	"nats_embedded": "nats.embedded_server",
	"nats_subject":  "nats.subject",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known environment variables to koanf keys. Unknown
// variables map to "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
