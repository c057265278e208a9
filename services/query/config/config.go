// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the rosterquery service configuration.
//
// Configuration is layered: embedded defaults, then an optional YAML file,
// then environment variables. Later layers win.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultConfigYAML []byte

// Config holds every tunable of the rosterquery service.
//
// Thread Safety: Config is read-only after Load returns.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// DataPath points at the roster CSV file.
	DataPath string `yaml:"data_path"`

	// GeminiAPIKey enables the Gemini completion client when non-empty.
	GeminiAPIKey string `yaml:"gemini_api_key"`

	// GeminiModel selects the Gemini model.
	GeminiModel string `yaml:"gemini_model"`

	// OllamaBaseURL enables the Ollama completion client when non-empty
	// and no Gemini key is configured.
	OllamaBaseURL string `yaml:"ollama_base_url"`

	// OllamaModel selects the Ollama model.
	OllamaModel string `yaml:"ollama_model"`

	// CacheDir enables on-disk condition cache persistence when non-empty.
	CacheDir string `yaml:"cache_dir"`

	// CacheSize bounds the in-memory condition cache.
	CacheSize int `yaml:"cache_size"`

	// AllowedOrigins is the CORS allowlist.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxSessionHistory bounds per-session conversation history.
	MaxSessionHistory int `yaml:"max_session_history"`

	// CompletionTimeoutSeconds bounds a single completion call.
	CompletionTimeoutSeconds int `yaml:"completion_timeout_seconds"`
}

var (
	cachedDefaults Config
	defaultsOnce   sync.Once
	defaultsErr    error
)

// loadDefaults parses the embedded defaults exactly once.
func loadDefaults() (Config, error) {
	defaultsOnce.Do(func() {
		if err := yaml.Unmarshal(defaultConfigYAML, &cachedDefaults); err != nil {
			defaultsErr = fmt.Errorf("config: parsing defaults.yaml: %w", err)
		}
	})
	return cachedDefaults, defaultsErr
}

// Load builds the effective configuration.
//
// Description:
//
//	Starts from the embedded defaults, overlays the YAML file at path when
//	path is non-empty, then overlays environment variables. A missing file
//	at a non-empty path is an error; empty path skips the file layer.
//
// Inputs:
//
//	path - optional YAML config file path
//
// Outputs:
//
//	*Config: The effective configuration. Never nil on success.
//	error: Non-nil on unreadable or malformed layers.
func Load(path string) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: invalid port %d", cfg.Port)
	}
	if cfg.MaxSessionHistory <= 0 {
		cfg.MaxSessionHistory = 10
	}
	if cfg.CompletionTimeoutSeconds <= 0 {
		cfg.CompletionTimeoutSeconds = 15
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("ROSTER_DATA_PATH"); v != "" {
		cfg.DataPath = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.OllamaBaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.OllamaModel = v
	}
	if v := os.Getenv("CONDITION_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		cfg.AllowedOrigins = origins
	}
	if v := os.Getenv("MAX_SESSION_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSessionHistory = n
		}
	}
	if v := os.Getenv("COMPLETION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CompletionTimeoutSeconds = n
		}
	}
}
