// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Loom components.
//
// Configuration is loaded from a single file specified by either the
// LOOM_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${LOOM_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values; the one
// exception is the provider API key, which is deliberately read from
// the environment variable named by provider.api_key_env so the key
// never appears in the file.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Provider, Budget,
//     Attachment, Run
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Loom packages.
package config
