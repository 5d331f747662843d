// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Provider.Family != "anthropic" {
		t.Errorf("expected provider.family=anthropic, got %s", cfg.Provider.Family)
	}
	if cfg.Budget.OverheadTokens != 4096 {
		t.Errorf("expected overhead_tokens=4096, got %d", cfg.Budget.OverheadTokens)
	}
	if cfg.Budget.TrimMode != "discard" {
		t.Errorf("expected trim_mode=discard, got %s", cfg.Budget.TrimMode)
	}
	if cfg.Run.MemoryTimeoutMS != 3000 {
		t.Errorf("expected memory_timeout_ms=3000, got %d", cfg.Run.MemoryTimeoutMS)
	}
	if cfg.Run.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("expected embedding_model=text-embedding-3-small, got %s", cfg.Run.EmbeddingModel)
	}
	if cfg.Attachment.ServerBaseURL != "http://localhost:3080" {
		t.Errorf("expected server_base_url=http://localhost:3080, got %s", cfg.Attachment.ServerBaseURL)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_RequiresLoomConfig(t *testing.T) {
	origConfig := os.Getenv("LOOM_CONFIG")
	defer os.Setenv("LOOM_CONFIG", origConfig)

	os.Unsetenv("LOOM_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when LOOM_CONFIG not set, got nil")
	}
	if !strings.Contains(err.Error(), "LOOM_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "loom.yaml")

	configContent := `
environment: development
paths:
  root: /srv/loom
provider:
  family: openai
  base_url: https://api.openai.com
  model: gpt-4o
budget:
  context_window: 128000
  max_output_tokens: 4096
  trim_mode: summarize
run:
  max_recursion: 10
  memory_enabled: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Paths.Root != "/srv/loom" {
		t.Errorf("paths.root = %q, want /srv/loom", cfg.Paths.Root)
	}
	if cfg.Provider.Family != "openai" {
		t.Errorf("provider.family = %q, want openai", cfg.Provider.Family)
	}
	if cfg.Budget.ContextWindow != 128000 {
		t.Errorf("budget.context_window = %d, want 128000", cfg.Budget.ContextWindow)
	}
	if cfg.Budget.TrimMode != "summarize" {
		t.Errorf("budget.trim_mode = %q, want summarize", cfg.Budget.TrimMode)
	}
	if cfg.Run.MaxRecursion != 10 {
		t.Errorf("run.max_recursion = %d, want 10", cfg.Run.MaxRecursion)
	}
	if !cfg.Run.MemoryEnabled {
		t.Error("run.memory_enabled should be true")
	}
	// Unspecified fields keep their defaults.
	if cfg.Budget.OverheadTokens != 4096 {
		t.Errorf("budget.overhead_tokens = %d, want default 4096", cfg.Budget.OverheadTokens)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "loom.yaml")

	configContent := `
environment: production
paths:
  root: /srv/loom
production:
  provider:
    base_url: https://llm-gateway.internal
  budget:
    context_window: 1000000
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Provider.BaseURL != "https://llm-gateway.internal" {
		t.Errorf("provider.base_url = %q, want override", cfg.Provider.BaseURL)
	}
	if cfg.Budget.ContextWindow != 1000000 {
		t.Errorf("budget.context_window = %d, want 1000000", cfg.Budget.ContextWindow)
	}
	// Fields without overrides keep base values.
	if cfg.Provider.Family != "anthropic" {
		t.Errorf("provider.family = %q, want anthropic", cfg.Provider.Family)
	}
}

func TestVariableExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "loom.yaml")

	configContent := `
paths:
  root: /data/loom
  uploads: ${LOOM_ROOT}/uploads
  ledger: ${LOOM_ROOT}/ledger.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Paths.Uploads != "/data/loom/uploads" {
		t.Errorf("paths.uploads = %q, want /data/loom/uploads", cfg.Paths.Uploads)
	}
	if cfg.Paths.Ledger != "/data/loom/ledger.db" {
		t.Errorf("paths.ledger = %q, want /data/loom/ledger.db", cfg.Paths.Ledger)
	}
}

func TestExpandVarsDefault(t *testing.T) {
	vars := map[string]string{"LOOM_ROOT": "/data/loom"}

	got := expandVars("${MISSING_VAR_XYZ:-/fallback}/x", vars)
	if got != "/fallback/x" {
		t.Errorf("expandVars = %q, want /fallback/x", got)
	}

	got = expandVars("${LOOM_ROOT}/y", vars)
	if got != "/data/loom/y" {
		t.Errorf("expandVars = %q, want /data/loom/y", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Provider.Family = "cohere"
	cfg.Budget.TrimMode = "drop"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !strings.Contains(err.Error(), "provider.family") {
		t.Errorf("error should mention provider.family: %v", err)
	}
	if !strings.Contains(err.Error(), "trim_mode") {
		t.Errorf("error should mention trim_mode: %v", err)
	}
}
