package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the huddled server configuration. Values load from an optional
// YAML file and can be overridden per-field with environment variables.
type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Hub struct {
		DefaultRoom     string `yaml:"default_room"`
		AutoCreateRooms *bool  `yaml:"auto_create_rooms"`
		RPSResetSeconds int    `yaml:"rps_reset_seconds"`
	} `yaml:"hub"`

	Store struct {
		// Driver is "memory" or "postgres".
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Relay struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"relay"`
}

func loadConfig(path string) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("HUDDLE_PORT", defaultStr(config.Server.Port, "8080"))
	config.Hub.DefaultRoom = getEnv("HUDDLE_DEFAULT_ROOM", defaultStr(config.Hub.DefaultRoom, "lobby"))
	config.Hub.RPSResetSeconds = getEnvAsInt("HUDDLE_RPS_RESET_SECONDS", defaultInt(config.Hub.RPSResetSeconds, 3))
	config.Store.Driver = getEnv("HUDDLE_STORE_DRIVER", defaultStr(config.Store.Driver, "memory"))
	config.Store.DSN = getEnv("HUDDLE_STORE_DSN", config.Store.DSN)
	if os.Getenv("HUDDLE_NATS_URL") != "" {
		config.Relay.Enabled = true
		config.Relay.URL = os.Getenv("HUDDLE_NATS_URL")
	}
	return &config, nil
}

func defaultStr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
