// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Loom components.
//
// Configuration is loaded from a single file specified by:
//   - LOOM_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, staging, production) that override base values when
// the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Loom.
type Config struct {
	// Environment identifies the deployment type (development,
	// staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Provider configures the LLM provider endpoint.
	Provider ProviderConfig `yaml:"provider"`

	// Budget configures the context token budget.
	Budget BudgetConfig `yaml:"budget"`

	// Attachment configures binary attachment resolution.
	Attachment AttachmentConfig `yaml:"attachment"`

	// Run configures agent run behavior.
	Run RunConfig `yaml:"run"`

	// Per-environment overrides, applied after the base config loads.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
	Provider   *ProviderConfig   `yaml:"provider,omitempty"`
	Budget     *BudgetConfig     `yaml:"budget,omitempty"`
	Attachment *AttachmentConfig `yaml:"attachment,omitempty"`
	Run        *RunConfig        `yaml:"run,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Loom data.
	Root string `yaml:"root"`

	// Uploads is the primary directory searched for uploaded
	// attachment files.
	Uploads string `yaml:"uploads"`

	// ContentStore is the content-addressed blob store directory.
	ContentStore string `yaml:"content_store"`

	// Memory is the directory holding the persistent memory index.
	Memory string `yaml:"memory"`

	// Ledger is the path of the usage ledger SQLite database.
	Ledger string `yaml:"ledger"`

	// State is where runtime state is stored.
	State string `yaml:"state"`
}

// ProviderConfig configures the LLM provider endpoint.
type ProviderConfig struct {
	// Family selects the wire protocol: "anthropic" or "openai".
	Family string `yaml:"family"`

	// BaseURL is the API root, e.g. "https://api.anthropic.com".
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in the config file.
	// Default: LOOM_API_KEY
	APIKeyEnv string `yaml:"api_key_env"`

	// Model is the default model identifier for runs.
	Model string `yaml:"model"`

	// CapabilityFile is an optional JSONC file overriding the built-in
	// provider capability registry.
	CapabilityFile string `yaml:"capability_file"`
}

// BudgetConfig configures the context token budget.
type BudgetConfig struct {
	// ContextWindow is the model's total context size in tokens.
	ContextWindow int `yaml:"context_window"`

	// MaxOutputTokens is reserved for the model's response.
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// OverheadTokens is reserved for system prompt and tool
	// definitions. Default: 4096.
	OverheadTokens int `yaml:"overhead_tokens"`

	// TrimMode selects how over-budget history is reduced:
	// "discard" drops whole turn groups, "summarize" compacts them.
	// Default: discard
	TrimMode string `yaml:"trim_mode"`
}

// AttachmentConfig configures binary attachment resolution.
type AttachmentConfig struct {
	// ServerBaseURL is the HTTP base used as the last-resort fetch
	// path for files that cannot be found on local disk.
	// Default: http://localhost:3080
	ServerBaseURL string `yaml:"server_base_url"`

	// ExtraRoots are additional directories searched for attachment
	// files after the standard candidates.
	ExtraRoots []string `yaml:"extra_roots"`
}

// RunConfig configures agent run behavior.
type RunConfig struct {
	// MaxRecursion is the global cap on run recursion depth.
	// Default: 25
	MaxRecursion int `yaml:"max_recursion"`

	// MemoryTimeoutMS bounds how long a run waits for memory recall
	// before proceeding without it. Default: 3000.
	MemoryTimeoutMS int `yaml:"memory_timeout_ms"`

	// MemoryEnabled turns the persistent memory feature on.
	MemoryEnabled bool `yaml:"memory_enabled"`

	// EmbeddingBaseURL is an OpenAI-compatible embeddings endpoint
	// the memory index uses. Required when MemoryEnabled.
	EmbeddingBaseURL string `yaml:"embedding_base_url"`

	// EmbeddingModel is the embedding model identifier.
	// Default: text-embedding-3-small
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingAPIKeyEnv names the environment variable holding the
	// embedding API key. Default: LOOM_EMBEDDING_API_KEY
	EmbeddingAPIKeyEnv string `yaml:"embedding_api_key_env"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "loom")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:         defaultRoot,
			Uploads:      filepath.Join(defaultRoot, "uploads"),
			ContentStore: filepath.Join(defaultRoot, "content"),
			Memory:       filepath.Join(defaultRoot, "memory"),
			Ledger:       filepath.Join(defaultRoot, "ledger.db"),
			State:        filepath.Join(defaultRoot, "state"),
		},
		Provider: ProviderConfig{
			Family:    "anthropic",
			BaseURL:   "https://api.anthropic.com",
			APIKeyEnv: "LOOM_API_KEY",
		},
		Budget: BudgetConfig{
			ContextWindow:   200000,
			MaxOutputTokens: 8192,
			OverheadTokens:  4096,
			TrimMode:        "discard",
		},
		Attachment: AttachmentConfig{
			ServerBaseURL: "http://localhost:3080",
		},
		Run: RunConfig{
			MaxRecursion:       25,
			MemoryTimeoutMS:    3000,
			MemoryEnabled:      false,
			EmbeddingBaseURL:   "https://api.openai.com/v1",
			EmbeddingModel:     "text-embedding-3-small",
			EmbeddingAPIKeyEnv: "LOOM_EMBEDDING_API_KEY",
		},
	}
}

// Load loads configuration from the LOOM_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults - if LOOM_CONFIG is not
// set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("LOOM_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("LOOM_CONFIG environment variable not set; " +
			"set it to the path of your loom.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Uploads != "" {
			c.Paths.Uploads = overrides.Paths.Uploads
		}
		if overrides.Paths.ContentStore != "" {
			c.Paths.ContentStore = overrides.Paths.ContentStore
		}
		if overrides.Paths.Memory != "" {
			c.Paths.Memory = overrides.Paths.Memory
		}
		if overrides.Paths.Ledger != "" {
			c.Paths.Ledger = overrides.Paths.Ledger
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
	}

	if overrides.Provider != nil {
		if overrides.Provider.Family != "" {
			c.Provider.Family = overrides.Provider.Family
		}
		if overrides.Provider.BaseURL != "" {
			c.Provider.BaseURL = overrides.Provider.BaseURL
		}
		if overrides.Provider.APIKeyEnv != "" {
			c.Provider.APIKeyEnv = overrides.Provider.APIKeyEnv
		}
		if overrides.Provider.Model != "" {
			c.Provider.Model = overrides.Provider.Model
		}
		if overrides.Provider.CapabilityFile != "" {
			c.Provider.CapabilityFile = overrides.Provider.CapabilityFile
		}
	}

	if overrides.Budget != nil {
		if overrides.Budget.ContextWindow != 0 {
			c.Budget.ContextWindow = overrides.Budget.ContextWindow
		}
		if overrides.Budget.MaxOutputTokens != 0 {
			c.Budget.MaxOutputTokens = overrides.Budget.MaxOutputTokens
		}
		if overrides.Budget.OverheadTokens != 0 {
			c.Budget.OverheadTokens = overrides.Budget.OverheadTokens
		}
		if overrides.Budget.TrimMode != "" {
			c.Budget.TrimMode = overrides.Budget.TrimMode
		}
	}

	if overrides.Attachment != nil {
		if overrides.Attachment.ServerBaseURL != "" {
			c.Attachment.ServerBaseURL = overrides.Attachment.ServerBaseURL
		}
		if overrides.Attachment.ExtraRoots != nil {
			c.Attachment.ExtraRoots = overrides.Attachment.ExtraRoots
		}
	}

	if overrides.Run != nil {
		if overrides.Run.MaxRecursion != 0 {
			c.Run.MaxRecursion = overrides.Run.MaxRecursion
		}
		if overrides.Run.MemoryTimeoutMS != 0 {
			c.Run.MemoryTimeoutMS = overrides.Run.MemoryTimeoutMS
		}
		// MemoryEnabled is a bool, so always apply it from overrides.
		c.Run.MemoryEnabled = overrides.Run.MemoryEnabled
		if overrides.Run.EmbeddingBaseURL != "" {
			c.Run.EmbeddingBaseURL = overrides.Run.EmbeddingBaseURL
		}
		if overrides.Run.EmbeddingModel != "" {
			c.Run.EmbeddingModel = overrides.Run.EmbeddingModel
		}
		if overrides.Run.EmbeddingAPIKeyEnv != "" {
			c.Run.EmbeddingAPIKeyEnv = overrides.Run.EmbeddingAPIKeyEnv
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"LOOM_ROOT": c.Paths.Root,
		"HOME":      os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["LOOM_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Uploads = expandVars(c.Paths.Uploads, vars)
	c.Paths.ContentStore = expandVars(c.Paths.ContentStore, vars)
	c.Paths.Memory = expandVars(c.Paths.Memory, vars)
	c.Paths.Ledger = expandVars(c.Paths.Ledger, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Provider.CapabilityFile = expandVars(c.Provider.CapabilityFile, vars)
	for i, root := range c.Attachment.ExtraRoots {
		c.Attachment.ExtraRoots[i] = expandVars(root, vars)
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Provider.Family != "anthropic" && c.Provider.Family != "openai" {
		errs = append(errs, fmt.Errorf("provider.family must be anthropic or openai, got %q", c.Provider.Family))
	}
	if c.Provider.BaseURL == "" {
		errs = append(errs, fmt.Errorf("provider.base_url is required"))
	}

	if c.Budget.ContextWindow <= 0 {
		errs = append(errs, fmt.Errorf("budget.context_window must be positive"))
	}
	if c.Budget.MaxOutputTokens <= 0 {
		errs = append(errs, fmt.Errorf("budget.max_output_tokens must be positive"))
	}
	if c.Budget.TrimMode != "discard" && c.Budget.TrimMode != "summarize" {
		errs = append(errs, fmt.Errorf("budget.trim_mode must be discard or summarize, got %q", c.Budget.TrimMode))
	}

	if c.Run.MaxRecursion <= 0 {
		errs = append(errs, fmt.Errorf("run.max_recursion must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// APIKey reads the provider API key from the configured environment
// variable. Returns empty string if unset.
func (c *Config) APIKey() string {
	if c.Provider.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Provider.APIKeyEnv)
}

// EmbeddingAPIKey reads the embedding API key from the configured
// environment variable. Returns empty string if unset.
func (c *Config) EmbeddingAPIKey() string {
	if c.Run.EmbeddingAPIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Run.EmbeddingAPIKeyEnv)
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Uploads,
		c.Paths.ContentStore,
		c.Paths.Memory,
		c.Paths.State,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
