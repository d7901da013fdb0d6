package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		Pack string `yaml:"pack"`
		TTL  string `yaml:"ttl"`
	} `yaml:"questions"`
	Game struct {
		BasePoints      int    `yaml:"base_points"`
		BaseTimeSeconds int    `yaml:"base_time_seconds"`
		MinTimeSeconds  int    `yaml:"min_time_seconds"`
		SettleDelay     string `yaml:"settle_delay"`
		FreezeWindow    string `yaml:"freeze_window"`
		MaxProximity    int    `yaml:"max_proximity"`
	} `yaml:"game"`
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

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
