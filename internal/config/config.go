// Package config loads service settings from defaults, an optional YAML file,
// a .env file and the process environment, in increasing order of priority.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Spotify    SpotifyConfig    `koanf:"spotify"`
	Generation GenerationConfig `koanf:"generation"`
	History    HistoryConfig    `koanf:"history"`
	Playlist   PlaylistConfig   `koanf:"playlist"`
	Log        LogConfig        `koanf:"log"`
}

type ServerConfig struct {
	Port              string `koanf:"port" validate:"required"`
	RequestsPerMinute int    `koanf:"requests_per_minute" validate:"gte=0"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type SpotifyConfig struct {
	// ClientID and ClientSecret are optional; when set, catalog searches use an
	// app-level client-credentials token instead of the listener's token.
	ClientID          string        `koanf:"client_id"`
	ClientSecret      string        `koanf:"client_secret"`
	BaseURL           string        `koanf:"base_url" validate:"omitempty,url"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	RetryAfterBuffer  time.Duration `koanf:"retry_after_buffer" validate:"gte=0"`
	MaxAttempts       int           `koanf:"max_attempts" validate:"gte=1"`
	Cooldown          time.Duration `koanf:"cooldown" validate:"gte=0"`
}

func (s SpotifyConfig) HasAppCredentials() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

type GenerationConfig struct {
	URL             string        `koanf:"url" validate:"required,url"`
	Model           string        `koanf:"model" validate:"required"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

type HistoryConfig struct {
	LikedLimit    int `koanf:"liked_limit" validate:"gte=0"`
	FeedbackLimit int `koanf:"feedback_limit" validate:"gte=0"`
}

type PlaylistConfig struct {
	BatchSize   int    `koanf:"batch_size" validate:"gte=1,lte=100"`
	NamePrefix  string `koanf:"name_prefix"`
	Description string `koanf:"description"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              "8080",
			RequestsPerMinute: 60,
		},
		Database: DatabaseConfig{
			Path: "./data/pushd.db",
		},
		Spotify: SpotifyConfig{
			RequestsPerSecond: 5,
			RetryAfterBuffer:  5 * time.Second,
			MaxAttempts:       2,
			Cooldown:          2 * time.Minute,
		},
		Generation: GenerationConfig{
			URL:             "http://127.0.0.1:11434",
			Model:           "llama3",
			Timeout:         3 * time.Minute,
			BreakerFailures: 3,
			BreakerTimeout:  30 * time.Second,
		},
		History: HistoryConfig{
			LikedLimit:    10,
			FeedbackLimit: 20,
		},
		Playlist: PlaylistConfig{
			BatchSize:   100,
			NamePrefix:  "AI Generated: ",
			Description: "Generated by Push'd AI",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, the config file and the environment, then validates.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings keeps the variable names the service has always read.
var envMappings = map[string]string{
	"port":                 "server.port",
	"requests_per_minute":  "server.requests_per_minute",
	"db_path":              "database.path",
	"spotify_id":           "spotify.client_id",
	"spotify_secret":       "spotify.client_secret",
	"spotify_base_url":     "spotify.base_url",
	"spotify_rps":          "spotify.requests_per_second",
	"spotify_max_attempts": "spotify.max_attempts",
	"ollama_url":           "generation.url",
	"ollama_model":         "generation.model",
	"generation_timeout":   "generation.timeout",
	"liked_history_limit":  "history.liked_limit",
	"feedback_limit":       "history.feedback_limit",
	"log_level":            "log.level",
	"log_format":           "log.format",
}

// envTransform maps an environment variable onto a koanf path. Unknown variables
// return "" and are ignored.
func envTransform(key string) string {
	return envMappings[strings.ToLower(key)]
}
