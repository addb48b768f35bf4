// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config loads cartograph's runtime configuration: environment
// variables first, with a YAML defaults file filling in anything the
// environment leaves unset. This mirrors the teacher's Config /
// IngestionConfig nesting — one struct carrying sub-structs per
// component, loaded once at startup and passed down by value.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConcurrencyConfig holds the per-stage worker-pool bounds from spec
// §4.F / §5. Defaults() sets each bound to its default value.
type ConcurrencyConfig struct {
	FetchWorkers int `yaml:"fetch_workers"`
	ParseWorkers int `yaml:"parse_workers"`
	LLMWorkers   int `yaml:"llm_workers"`
	EmbedWorkers int `yaml:"embed_workers"`
}

// StoreConfig names the SQLite database backing internal/store.
type StoreConfig struct {
	URI          string `yaml:"uri"`
	DatabaseName string `yaml:"database_name"`
}

// LLMConfig carries the development-fallback provider triple used
// when a Session has no preferences set.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// FetchConfig configures the source fetcher.
type FetchConfig struct {
	HostToken        string `yaml:"host_token"`
	MaxBlobSizeBytes int64  `yaml:"max_blob_size_bytes"`
}

// Config is the top-level, fully-resolved configuration for the
// service and the operator CLI.
type Config struct {
	Env         string            `yaml:"env"` // "development" | "production"
	Store       StoreConfig       `yaml:"store"`
	Fetch       FetchConfig       `yaml:"fetch"`
	LLM         LLMConfig         `yaml:"llm"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	ListenAddr  string            `yaml:"listen_addr"`
}

// IsDevelopment reports whether fallback credentials and the
// X-API-Key bypass apply.
func (c Config) IsDevelopment() bool { return c.Env == "development" }

// Defaults returns a Config with every required field set to its
// documented default, the way the spec's §5/§6 parameters are stated.
func Defaults() Config {
	return Config{
		Env: "development",
		Store: StoreConfig{
			URI:          "file:cartograph.db",
			DatabaseName: "cartograph",
		},
		Fetch: FetchConfig{
			MaxBlobSizeBytes: 1 << 20, // 1 MiB
		},
		Concurrency: ConcurrencyConfig{
			FetchWorkers: 8,
			ParseWorkers: runtime.NumCPU(),
			LLMWorkers:   6,
			EmbedWorkers: 4,
		},
		ListenAddr: ":8080",
	}
}

// LoadDefaultsFile merges a YAML defaults file into cfg: keys present
// in the document overwrite cfg's values, and fields the document does
// not mention keep their current values, so a partial file is safe.
func LoadDefaultsFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read defaults file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse defaults file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overlays environment variables onto cfg per spec §6's
// Environment table. STORE_URI and DATABASE_NAME are required unless
// already populated by a defaults file.
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("STORE_URI"); v != "" {
		cfg.Store.URI = v
	}
	if v := os.Getenv("DATABASE_NAME"); v != "" {
		cfg.Store.DatabaseName = v
	}
	if cfg.Store.URI == "" || cfg.Store.DatabaseName == "" {
		return fmt.Errorf("STORE_URI and DATABASE_NAME are required")
	}

	if v := os.Getenv("SOURCE_HOST_TOKEN"); v != "" {
		cfg.Fetch.HostToken = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MAX_BLOB_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Fetch.MaxBlobSizeBytes = n
		}
	}
	return nil
}

// Load builds a Config: Defaults(), overlaid by an optional YAML
// defaults file, overlaid by the environment — the environment always
// wins, matching the teacher's flag-beats-file-beats-default layering.
func Load(defaultsFilePath string) (Config, error) {
	cfg := Defaults()
	if defaultsFilePath != "" {
		if err := LoadDefaultsFile(&cfg, defaultsFilePath); err != nil {
			return Config{}, err
		}
	}
	if err := LoadFromEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
