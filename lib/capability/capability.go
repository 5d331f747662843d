// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability resolves provider capability descriptors.
//
// A [Registry] maps provider families and individual models to
// [llm.ProviderCaps]. Built-in defaults cover the providers Loom
// ships with; deployments can extend or override them with a JSONC
// capability file (JSON with // comments, /* blocks */, and trailing
// commas). Registries are read-only after construction and safe to
// share across requests.
package capability

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/loomchat/loom/lib/llm"
)

// capsSpec is the JSONC representation of one capability entry.
// Pointer fields distinguish "absent" from "explicitly false" so a
// model entry can override a single flag of its family default.
type capsSpec struct {
	SupportsNativeDocuments *bool   `json:"supports_native_documents"`
	SupportsCitations       *bool   `json:"supports_citations"`
	SupportsSystemMessages  *bool   `json:"supports_system_messages"`
	ImageFormatDefault      *string `json:"image_format_default"`
}

// apply overlays the spec's set fields onto caps.
func (spec *capsSpec) apply(caps *llm.ProviderCaps) {
	if spec.SupportsNativeDocuments != nil {
		caps.SupportsNativeDocuments = *spec.SupportsNativeDocuments
	}
	if spec.SupportsCitations != nil {
		caps.SupportsCitations = *spec.SupportsCitations
	}
	if spec.SupportsSystemMessages != nil {
		caps.SupportsSystemMessages = *spec.SupportsSystemMessages
	}
	if spec.ImageFormatDefault != nil {
		caps.ImageFormatDefault = *spec.ImageFormatDefault
	}
}

// registryFile is the capability file's top-level shape.
type registryFile struct {
	Families map[string]capsSpec `json:"families"`
	Models   map[string]capsSpec `json:"models"`
}

// Registry holds resolved capability descriptors. Immutable after
// construction.
type Registry struct {
	families map[string]llm.ProviderCaps
	models   map[string]capsSpec
}

// Builtin returns the registry of shipped defaults.
func Builtin() *Registry {
	return &Registry{
		families: map[string]llm.ProviderCaps{
			"anthropic": {
				SupportsNativeDocuments: true,
				SupportsCitations:       true,
				SupportsSystemMessages:  true,
				ImageFormatDefault:      "png",
			},
			"openai": {
				SupportsNativeDocuments: false,
				SupportsCitations:       false,
				SupportsSystemMessages:  true,
				ImageFormatDefault:      "png",
			},
		},
		models: map[string]capsSpec{},
	}
}

// Load builds a registry from a JSONC capability file layered over
// the built-in defaults. Family entries replace whole family
// defaults field-by-field; model entries are kept as sparse
// overrides applied at resolve time.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capability: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a registry from JSONC capability data layered over
// the built-in defaults.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return nil, fmt.Errorf("capability: parsing capability file: %w", err)
	}

	registry := Builtin()
	for family, spec := range file.Families {
		caps := registry.families[family]
		spec.apply(&caps)
		registry.families[family] = caps
	}
	for model, spec := range file.Models {
		registry.models[model] = spec
	}
	return registry, nil
}

// Resolve returns the capabilities for a family/model pair: the
// family default overlaid with any sparse model entry. Unknown
// families resolve to the zero descriptor (no native documents, no
// citations), which degrades every message to plain text rather
// than failing.
func (registry *Registry) Resolve(family, model string) llm.ProviderCaps {
	caps := registry.families[family]
	if spec, found := registry.models[model]; found {
		spec.apply(&caps)
	}
	if caps.ImageFormatDefault == "" {
		caps.ImageFormatDefault = "png"
	}
	return caps
}
