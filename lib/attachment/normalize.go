// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package attachment

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NormalizeBuffer converts any of the recognized serialized shapes of
// a byte payload into one canonical []byte:
//
//   - raw bytes ([]byte): returned unchanged
//   - base64-encoded string
//   - numeric-keyed object: map whose keys are consecutive
//     stringified integers starting at "0"
//   - wrapped Buffer object: map with "type":"Buffer" and a "data"
//     array of byte values
//
// The set of shapes is closed. Anything else fails with
// [ConversionError] naming the reason and the observed shape. The
// function is side-effect free and idempotent: feeding its output
// back in returns the same bytes, and an empty payload is valid.
func NormalizeBuffer(value any) ([]byte, error) {
	switch typed := value.(type) {
	case []byte:
		// Already canonical. Empty is valid, nil stays nil-like but
		// usable; callers treat zero-length as a present, empty payload.
		return typed, nil

	case string:
		decoded, err := base64.StdEncoding.DecodeString(typed)
		if err != nil {
			return nil, &ConversionError{
				Reason:        "string is not valid base64",
				ObservedShape: describeShape(value),
			}
		}
		return decoded, nil

	case map[string]any:
		if isWrappedBuffer(typed) {
			return normalizeWrappedBuffer(typed)
		}
		return normalizeNumericKeyed(typed)

	default:
		return nil, &ConversionError{
			Reason:        "value matches no known buffer shape",
			ObservedShape: describeShape(value),
		}
	}
}

// isWrappedBuffer reports whether the map has the
// {"type":"Buffer","data":[...]} structure produced by serializing a
// Node.js Buffer to JSON.
func isWrappedBuffer(value map[string]any) bool {
	typeTag, hasType := value["type"].(string)
	_, hasData := value["data"]
	return hasType && typeTag == "Buffer" && hasData
}

func normalizeWrappedBuffer(value map[string]any) ([]byte, error) {
	elements, ok := value["data"].([]any)
	if !ok {
		// A re-decoded wrapped buffer whose data survived as raw bytes.
		if raw, isBytes := value["data"].([]byte); isBytes {
			return raw, nil
		}
		return nil, &ConversionError{
			Reason:        "wrapped Buffer object has non-array data field",
			ObservedShape: describeShape(value),
		}
	}

	payload := make([]byte, len(elements))
	for i, element := range elements {
		byteValue, err := coerceByte(element)
		if err != nil {
			return nil, &ConversionError{
				Reason:        fmt.Sprintf("wrapped Buffer data[%d]: %v", i, err),
				ObservedShape: describeShape(value),
			}
		}
		payload[i] = byteValue
	}
	return payload, nil
}

// normalizeNumericKeyed converts a map whose keys are consecutive
// stringified integers starting at "0". Every index from 0 to
// len(value)-1 must be present exactly once.
func normalizeNumericKeyed(value map[string]any) ([]byte, error) {
	payload := make([]byte, len(value))
	for key, element := range value {
		// The key must be the canonical decimal form: "00", "+1", or
		// " 1" would alias another index and leave a hole that
		// zero-fills silently. Canonical keys are unique per index,
		// so n in-range keys cover 0..n-1 exactly once.
		index, err := strconv.Atoi(key)
		if err != nil || strconv.Itoa(index) != key || index < 0 || index >= len(value) {
			return nil, &ConversionError{
				Reason:        fmt.Sprintf("map key %q is not a consecutive numeric index", key),
				ObservedShape: describeShape(value),
			}
		}
		byteValue, err := coerceByte(element)
		if err != nil {
			return nil, &ConversionError{
				Reason:        fmt.Sprintf("value at index %d: %v", index, err),
				ObservedShape: describeShape(value),
			}
		}
		payload[index] = byteValue
	}
	return payload, nil
}

// coerceByte converts a decoded numeric value into a byte. JSON
// decoding yields float64; CBOR and in-process construction can yield
// the integer types.
func coerceByte(value any) (byte, error) {
	switch number := value.(type) {
	case float64:
		if number != float64(int64(number)) || number < 0 || number > 255 {
			return 0, fmt.Errorf("number %v outside byte range", number)
		}
		return byte(number), nil
	case int:
		if number < 0 || number > 255 {
			return 0, fmt.Errorf("integer %d outside byte range", number)
		}
		return byte(number), nil
	case int64:
		if number < 0 || number > 255 {
			return 0, fmt.Errorf("integer %d outside byte range", number)
		}
		return byte(number), nil
	case uint64:
		if number > 255 {
			return 0, fmt.Errorf("integer %d outside byte range", number)
		}
		return byte(number), nil
	default:
		return 0, fmt.Errorf("element has type %T, want number", value)
	}
}

// shapeKeySample caps how many map keys appear in an observed-shape
// description.
const shapeKeySample = 5

// describeShape renders a value's type, and for maps a truncated key
// sample, for ConversionError diagnostics.
func describeShape(value any) string {
	mapped, isMap := value.(map[string]any)
	if !isMap {
		return fmt.Sprintf("%T", value)
	}

	keys := make([]string, 0, len(mapped))
	for key := range mapped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	truncated := false
	if len(keys) > shapeKeySample {
		keys = keys[:shapeKeySample]
		truncated = true
	}

	sample := strings.Join(keys, ",")
	if truncated {
		sample += ",..."
	}
	return fmt.Sprintf("map[string]any with %d keys [%s]", len(mapped), sample)
}
