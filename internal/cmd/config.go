package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service struct {
		BaseURL        string `yaml:"base_url"`
		ChannelURL     string `yaml:"channel_url"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"service"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Engine struct {
		SettleWindow  string `yaml:"settle_window"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"engine"`
	Metrics struct {
		Port string `yaml:"port"`
	} `yaml:"metrics"`
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

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
