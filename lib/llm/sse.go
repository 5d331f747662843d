// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is a single Server-Sent Event parsed from an SSE stream.
type SSEEvent struct {
	// Type is the event type from the "event:" field. Empty if no
	// event type was specified.
	Type string

	// Data is the event payload, assembled from one or more "data:"
	// lines joined with newlines per the SSE specification.
	Data string
}

// SSEScanner reads Server-Sent Events from an [io.Reader] according
// to the W3C Server-Sent Events specification. Events are delimited
// by blank lines; comment lines (starting with ":") and unknown
// fields are ignored.
//
//	scanner := NewSSEScanner(reader)
//	for scanner.Next() {
//	    event := scanner.Event()
//	}
//	if err := scanner.Err(); err != nil {
//	    // handle error
//	}
type SSEScanner struct {
	reader  *bufio.Reader
	current SSEEvent
	err     error
}

// NewSSEScanner creates a scanner that reads SSE events from reader.
func NewSSEScanner(reader io.Reader) *SSEScanner {
	return &SSEScanner{
		reader: bufio.NewReaderSize(reader, 64*1024),
	}
}

// Next advances to the next event. Returns false when the stream
// ends (EOF) or an error occurs. After Next returns false, call
// [Err] to distinguish EOF from errors.
func (scanner *SSEScanner) Next() bool {
	scanner.current = SSEEvent{}

	var dataLines []string
	var eventType string
	hasData := false

	for {
		line, err := scanner.reader.ReadString('\n')

		// Partial last line: no trailing newline before EOF.
		if err != nil && line == "" {
			if err == io.EOF {
				if hasData {
					scanner.current = SSEEvent{
						Type: eventType,
						Data: strings.Join(dataLines, "\n"),
					}
					// Remember EOF so the next call returns false.
					scanner.err = io.EOF
					return true
				}
				return false
			}
			scanner.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		// Blank line = event boundary.
		if line == "" {
			if hasData {
				scanner.current = SSEEvent{
					Type: eventType,
					Data: strings.Join(dataLines, "\n"),
				}
				return true
			}
			eventType = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon {
			field = line
			value = ""
		} else {
			// Per spec: if value starts with a space, remove exactly one.
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventType = value
		default:
			// "id", "retry", and unknown fields are ignored.
		}
	}
}

// Event returns the most recently parsed event. Only valid after
// [Next] returns true.
func (scanner *SSEScanner) Event() SSEEvent {
	return scanner.current
}

// Err returns the first error encountered during scanning. Returns
// nil if scanning ended due to a clean EOF.
func (scanner *SSEScanner) Err() error {
	if scanner.err == io.EOF {
		return nil
	}
	return scanner.err
}
