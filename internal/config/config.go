package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port       string `yaml:"port"`
		// TrustProxy takes the client address from X-Forwarded-For.
		TrustProxy bool `yaml:"trustProxy"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL           string `yaml:"ttl"`
		// QuestionsFile backs the question bank when Postgres is not configured.
		QuestionsFile string `yaml:"questionsFile"`
	} `yaml:"quiz"`
	Session struct {
		Duration       string   `yaml:"duration"`
		Retention      string   `yaml:"retention"`
		DisallowedKeys []string `yaml:"disallowedKeys"`
	} `yaml:"session"`
	Submit struct {
		// Mode is "local" (write through the results service) or "http".
		Mode        string `yaml:"mode"`
		BaseURL     string `yaml:"baseUrl"`
		MaxAttempts int    `yaml:"maxAttempts"`
		RetryDelay  string `yaml:"retryDelay"`
	} `yaml:"submit"`
	RateLimit struct {
		PerMinute int `yaml:"perMinute"`
		Burst     int `yaml:"burst"`
	} `yaml:"rateLimit"`
	Log LogConfig `yaml:"log"`
}

// LogConfig selects the log level and an optional rotated file sink.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
