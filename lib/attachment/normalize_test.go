// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package attachment

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeBufferAllShapes(t *testing.T) {
	t.Parallel()

	want := []byte("Hello, Loom!")

	numericKeyed := make(map[string]any, len(want))
	wrappedData := make([]any, len(want))
	for i, b := range want {
		numericKeyed[itoa(i)] = float64(b)
		wrappedData[i] = float64(b)
	}

	shapes := map[string]any{
		"raw bytes":      want,
		"base64 string":  base64.StdEncoding.EncodeToString(want),
		"numeric keyed":  numericKeyed,
		"wrapped buffer": map[string]any{"type": "Buffer", "data": wrappedData},
	}

	for name, input := range shapes {
		got, err := NormalizeBuffer(input)
		if err != nil {
			t.Fatalf("%s: NormalizeBuffer: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s: got %q, want %q", name, got, want)
		}

		// Idempotence: normalizing the output is a no-op.
		again, err := NormalizeBuffer(got)
		if err != nil {
			t.Fatalf("%s: second NormalizeBuffer: %v", name, err)
		}
		if !bytes.Equal(again, want) {
			t.Errorf("%s: second pass got %q, want %q", name, again, want)
		}
	}
}

func TestNormalizeBufferEmptyIsValid(t *testing.T) {
	t.Parallel()

	for name, input := range map[string]any{
		"empty bytes":  []byte{},
		"empty string": "",
		"empty map":    map[string]any{},
	} {
		got, err := NormalizeBuffer(input)
		if err != nil {
			t.Errorf("%s: NormalizeBuffer: %v", name, err)
			continue
		}
		if len(got) != 0 {
			t.Errorf("%s: got %d bytes, want 0", name, len(got))
		}
	}
}

func TestNormalizeBufferRejectsUnknownShapes(t *testing.T) {
	t.Parallel()

	cases := map[string]any{
		"integer":          42,
		"bool":             true,
		"non-base64":       "not base64 at all!!!",
		"sparse keys":      map[string]any{"0": float64(1), "2": float64(3)},
		"non-numeric keys": map[string]any{"alpha": float64(1), "beta": float64(2)},
		"byte overflow":    map[string]any{"0": float64(300)},
		"bad buffer data":  map[string]any{"type": "Buffer", "data": "nope"},
		"aliased index":    map[string]any{"0": float64(65), "00": float64(66)},
		"padded index":     map[string]any{"0": float64(1), "01": float64(2)},
		"signed index":     map[string]any{"0": float64(1), "+1": float64(2)},
	}

	for name, input := range cases {
		_, err := NormalizeBuffer(input)
		if err == nil {
			t.Errorf("%s: expected ConversionError, got nil", name)
			continue
		}
		var conversionError *ConversionError
		if !errors.As(err, &conversionError) {
			t.Errorf("%s: error type = %T, want *ConversionError", name, err)
			continue
		}
		if conversionError.ObservedShape == "" {
			t.Errorf("%s: ObservedShape is empty", name)
		}
	}
}

func TestConversionErrorShapeSample(t *testing.T) {
	t.Parallel()

	input := map[string]any{
		"alpha": 1, "beta": 2, "gamma": 3, "delta": 4,
		"epsilon": 5, "zeta": 6, "eta": 7,
	}
	_, err := NormalizeBuffer(input)
	if err == nil {
		t.Fatal("expected error")
	}

	var conversionError *ConversionError
	if !errors.As(err, &conversionError) {
		t.Fatalf("error type = %T", err)
	}
	if !strings.Contains(conversionError.ObservedShape, "7 keys") {
		t.Errorf("ObservedShape = %q, want key count", conversionError.ObservedShape)
	}
	// The key sample is truncated, not exhaustive.
	if !strings.Contains(conversionError.ObservedShape, "...") {
		t.Errorf("ObservedShape = %q, want truncation marker", conversionError.ObservedShape)
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
