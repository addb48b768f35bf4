// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_SetsRequiredFields(t *testing.T) {
	cfg := Defaults()
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want development", cfg.Env)
	}
	if cfg.Concurrency.FetchWorkers == 0 || cfg.Concurrency.LLMWorkers == 0 || cfg.Concurrency.EmbedWorkers == 0 {
		t.Errorf("Concurrency = %+v, want every worker pool non-zero", cfg.Concurrency)
	}
	if cfg.ListenAddr == "" {
		t.Errorf("ListenAddr is empty")
	}
}

func TestIsDevelopment(t *testing.T) {
	if !(Config{Env: "development"}).IsDevelopment() {
		t.Errorf("expected development env to report IsDevelopment() = true")
	}
	if (Config{Env: "production"}).IsDevelopment() {
		t.Errorf("expected production env to report IsDevelopment() = false")
	}
}

func TestLoadFromEnv_RequiresStoreURIAndDatabaseName(t *testing.T) {
	cfg := Config{}
	if err := LoadFromEnv(&cfg); err == nil {
		t.Fatalf("expected an error when STORE_URI/DATABASE_NAME are unset")
	}
}

func TestLoadFromEnv_OverlaysEnvironmentVariables(t *testing.T) {
	t.Setenv("STORE_URI", "file:test.db")
	t.Setenv("DATABASE_NAME", "testdb")
	t.Setenv("AI_PROVIDER", "groq")
	t.Setenv("AI_MODEL", "llama-3.1-8b-instant")
	t.Setenv("AI_API_KEY", "sk-test")
	t.Setenv("ENV", "production")
	t.Setenv("LISTEN_ADDR", ":9090")

	cfg := Defaults()
	if err := LoadFromEnv(&cfg); err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.Store.URI != "file:test.db" || cfg.Store.DatabaseName != "testdb" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.LLM.Provider != "groq" || cfg.LLM.Model != "llama-3.1-8b-instant" || cfg.LLM.APIKey != "sk-test" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Env != "production" {
		t.Errorf("Env = %q, want production", cfg.Env)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
}

func TestLoadDefaultsFile_MissingFileIsNotAnError(t *testing.T) {
	cfg := Defaults()
	if err := LoadDefaultsFile(&cfg, filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("LoadDefaultsFile() error for a missing file: %v", err)
	}
}

func TestLoadDefaultsFile_MergesWithoutClobberingUnsetKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":7070\"\n"), 0o644); err != nil {
		t.Fatalf("write defaults file: %v", err)
	}

	cfg := Defaults()
	if err := LoadDefaultsFile(&cfg, path); err != nil {
		t.Fatalf("LoadDefaultsFile() error: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want :7070", cfg.ListenAddr)
	}
	if cfg.Concurrency.FetchWorkers == 0 {
		t.Errorf("Concurrency.FetchWorkers should retain its default when the file doesn't mention it")
	}
}

func TestLoad_EnvironmentWinsOverDefaultsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":7070\"\n"), 0o644); err != nil {
		t.Fatalf("write defaults file: %v", err)
	}
	t.Setenv("STORE_URI", "file:test.db")
	t.Setenv("DATABASE_NAME", "testdb")
	t.Setenv("LISTEN_ADDR", ":9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want the environment override :9090", cfg.ListenAddr)
	}
}
