// Copyright (c) 2026 CallVu Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment
// variables. The YAML file is optional; every setting has an env
// override so the service also runs from environment alone.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the lead bridge.
type Config struct {
	// HubSpot
	HubSpotToken   string
	HubSpotBaseURL string
	Strategy       string // "upsert" (default) or "search"
	RemoteTimeout  time.Duration

	// Rate limiting (per identity)
	RateLimitWindow time.Duration
	RateLimitMax    int

	// Global inbound throttle
	GlobalRPS   float64
	GlobalBurst int

	// Server
	Port           int
	AllowedOrigins []string

	// Environment name; anything other than "production" keeps crash
	// detail in responses.
	Env string

	// Optional backends
	RedisURL    string // shared rate-limit store when set
	DatabaseURL string // submission journal when set
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	HubSpot struct {
		Token    string `yaml:"token"`
		BaseURL  string `yaml:"base_url"`
		Strategy string `yaml:"strategy"`
	} `yaml:"hubspot"`
	RateLimit struct {
		Window string `yaml:"window"`
		Max    int    `yaml:"max"`
	} `yaml:"ratelimit"`
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
}

// Load reads configuration from config.yaml (with env var expansion)
// and environment variables. A missing config file is not an error.
//
// An absent HubSpot token is deliberately NOT an error here: the
// pipeline reports it per request with a stable code so the frontend
// sees a deployment problem instead of a connection reset.
func Load() (*Config, error) {
	var raw rawConfig

	configPath := envOrDefault("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		HubSpotToken:    firstNonEmpty(os.Getenv("HUBSPOT_ACCESS_TOKEN"), raw.HubSpot.Token),
		HubSpotBaseURL:  firstNonEmpty(os.Getenv("HUBSPOT_BASE_URL"), raw.HubSpot.BaseURL, "https://api.hubapi.com"),
		Strategy:        firstNonEmpty(os.Getenv("HUBSPOT_STRATEGY"), raw.HubSpot.Strategy, "upsert"),
		RemoteTimeout:   envOrDefaultDuration("REMOTE_TIMEOUT", 10*time.Second),
		RateLimitWindow: envOrDefaultDuration("RATE_LIMIT_WINDOW", parseDurationOr(raw.RateLimit.Window, time.Hour)),
		RateLimitMax:    envOrDefaultInt("RATE_LIMIT_MAX", intOr(raw.RateLimit.Max, 10)),
		GlobalRPS:       envOrDefaultFloat("GLOBAL_RPS", 25),
		GlobalBurst:     envOrDefaultInt("GLOBAL_BURST", 50),
		Port:            envOrDefaultInt("PORT", intOr(raw.Server.Port, 8080)),
		AllowedOrigins:  raw.Server.AllowedOrigins,
		Env:             envOrDefault("APP_ENV", "production"),
		RedisURL:        firstNonEmpty(os.Getenv("REDIS_URL"), raw.Redis.URL),
		DatabaseURL:     firstNonEmpty(os.Getenv("DATABASE_URL"), raw.Database.URL),
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"callvu.com", "vercel.app"}
	}

	if cfg.Strategy != "upsert" && cfg.Strategy != "search" {
		return nil, fmt.Errorf("unknown reconcile strategy %q (want upsert or search)", cfg.Strategy)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

func intOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
