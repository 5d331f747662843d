// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package markdown strips markdown formatting down to plain text.
//
// The summarize trimming mode and plain-format citation rendering
// both need the textual content of model output without emphasis
// markers, link syntax, or heading hashes. Parsing with goldmark and
// walking the AST is more reliable than regex stripping: it handles
// nested emphasis, fenced code blocks, and GFM tables the same way a
// renderer would.
package markdown

import (
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// parserInstance is initialized once and reused. The parser
// configuration never changes and the goldmark Parser is safe to
// share — actual parsing creates per-call state via Parse(reader).
var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func getParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return parserInstance
}

// StripToPlainText parses markdown and returns only its textual
// content. Block boundaries (paragraphs, headings, list items, code
// blocks) become newlines; soft line breaks within a paragraph
// become spaces; emphasis, links, and other inline formatting are
// dropped, keeping their inner text. Link destinations are discarded
// — only the link label survives.
func StripToPlainText(input string) string {
	if input == "" {
		return ""
	}

	source := []byte(input)
	reader := text.NewReader(source)
	document := getParser().Parser().Parse(reader)

	stripper := &plainTextStripper{source: source}
	ast.Walk(document, stripper.walk)

	return strings.TrimSpace(stripper.output.String())
}

type plainTextStripper struct {
	source []byte
	output strings.Builder
}

func (stripper *plainTextStripper) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch typed := node.(type) {
	case *ast.Text:
		if entering {
			stripper.output.Write(typed.Segment.Value(stripper.source))
			if typed.HardLineBreak() {
				stripper.output.WriteByte('\n')
			} else if typed.SoftLineBreak() {
				stripper.output.WriteByte(' ')
			}
		}

	case *ast.CodeSpan:
		// Children are Text nodes; nothing to add here.

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			stripper.writeCodeLines(node)
			stripper.blockBreak()
			return ast.WalkSkipChildren, nil
		}

	case *ast.AutoLink:
		if entering {
			stripper.output.Write(typed.URL(stripper.source))
		}

	case *ast.Image:
		// Keep the alt text (children), drop the destination.

	case *extast.TableCell:
		if !entering {
			stripper.output.WriteByte(' ')
		}

	case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.Blockquote,
		*extast.TableRow, *extast.TableHeader:
		if !entering {
			stripper.blockBreak()
		}

	case *ast.ThematicBreak:
		if entering {
			stripper.blockBreak()
		}
	}

	return ast.WalkContinue, nil
}

// writeCodeLines emits the raw lines of a code block.
func (stripper *plainTextStripper) writeCodeLines(node ast.Node) {
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		stripper.output.Write(segment.Value(stripper.source))
	}
}

// blockBreak ends the current block with a single newline, avoiding
// runs of blank lines.
func (stripper *plainTextStripper) blockBreak() {
	current := stripper.output.String()
	if current == "" || strings.HasSuffix(current, "\n") {
		return
	}
	stripper.output.WriteByte('\n')
}
