// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package attachment

import (
	"fmt"
	"strings"
)

// LoadErrorKind classifies a [LoadError].
type LoadErrorKind string

const (
	// NotFound means the binary could not be located after exhausting
	// every path candidate and the HTTP fallback.
	NotFound LoadErrorKind = "not_found"

	// ReadFailed means a candidate path existed but reading it failed.
	ReadFailed LoadErrorKind = "read_failed"
)

// LoadError reports a failure to load an attachment's binary payload.
type LoadError struct {
	Kind     LoadErrorKind
	FileID   string
	Filename string

	// Searched lists every path candidate tried, in order, plus the
	// HTTP fallback URL if one was attempted.
	Searched []string

	// Cause is the underlying error for ReadFailed.
	Cause error
}

func (err *LoadError) Error() string {
	switch err.Kind {
	case NotFound:
		return fmt.Sprintf("attachment: file %s (%s) not found; searched: %s",
			err.FileID, err.Filename, strings.Join(err.Searched, ", "))
	default:
		return fmt.Sprintf("attachment: reading file %s (%s): %v",
			err.FileID, err.Filename, err.Cause)
	}
}

func (err *LoadError) Unwrap() error {
	return err.Cause
}

// IsNotFound reports whether err is a LoadError with kind NotFound.
func IsNotFound(err error) bool {
	loadError, ok := err.(*LoadError)
	return ok && loadError.Kind == NotFound
}

// ConversionError reports a binary value in an unrecognized
// serialized shape. The observed shape is described with the value's
// type and a truncated key sample so the offending upstream
// representation can be identified from logs.
type ConversionError struct {
	// Reason says which check failed.
	Reason string

	// ObservedShape describes the input: Go type plus, for maps, a
	// truncated sample of its keys.
	ObservedShape string
}

func (err *ConversionError) Error() string {
	return fmt.Sprintf("attachment: cannot normalize buffer: %s (observed shape: %s)",
		err.Reason, err.ObservedShape)
}
