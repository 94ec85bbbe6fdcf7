package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/triviabluff/go/internal/client"
	"github.com/mcdev12/triviabluff/go/internal/gateway"
	"github.com/mcdev12/triviabluff/go/internal/session"
)

type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`

	Store struct {
		// Backend is one of memory, nats or postgres.
		Backend string `yaml:"backend"`
	} `yaml:"store"`

	Questions struct {
		// Source is one of default, file or postgres.
		Source string `yaml:"source"`
		File   string `yaml:"file"`
	} `yaml:"questions"`

	Events struct {
		Log       bool `yaml:"log"`
		JetStream bool `yaml:"jetstream"`
	} `yaml:"events"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`

	Session session.Config           `yaml:"session"`
	Client  client.Config            `yaml:"client"`
	Gateway gateway.ConnectionConfig `yaml:"gateway"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Session: session.DefaultConfig(),
		Client:  client.DefaultConfig(),
		Gateway: gateway.DefaultConnectionConfig(),
	}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Log.Level = "info"
	cfg.Log.Pretty = true
	cfg.Store.Backend = "memory"
	cfg.Questions.Source = "default"
	cfg.Events.Log = true
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Metrics.Enabled = true
	return cfg
}

// loadConfig reads path over the defaults. A missing file leaves the defaults in
// place. Environment variables win over both.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Questions.Source = getEnv("QUESTIONS_SOURCE", cfg.Questions.Source)
	cfg.Questions.File = getEnv("QUESTIONS_FILE", cfg.Questions.File)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Events.JetStream = getEnvAsBool("EVENTS_JETSTREAM", cfg.Events.JetStream)
	cfg.Client.AutoResults = getEnvAsBool("AUTO_RESULTS", cfg.Client.AutoResults)
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
