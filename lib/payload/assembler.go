// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"strings"

	"github.com/loomchat/loom/lib/attachment"
	"github.com/loomchat/loom/lib/llm"
	"github.com/loomchat/loom/lib/thread"
)

// documentFormats maps MIME types to document format tags. MIME
// types not in the table map to the generic "document" format.
var documentFormats = map[string]string{
	"application/pdf":    "pdf",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
	"text/csv": "csv",
}

// genericDocumentFormat tags documents whose MIME type has no table
// entry.
const genericDocumentFormat = "document"

// Citation limits and defaults.
const (
	minCitations     = 1
	maxCitations     = 50
	defaultCitations = 30
)

// BinaryLoader resolves a file descriptor to its payload bytes. The
// attachment resolver implements it.
type BinaryLoader interface {
	LoadBinary(ctx context.Context, file attachment.File) ([]byte, error)
}

// AssemblerConfig configures an [Assembler].
type AssemblerConfig struct {
	// Loader resolves attachment binaries.
	Loader BinaryLoader

	// Caps describes the target provider, resolved once per run.
	Caps llm.ProviderCaps

	// CitationsEnabled turns provider citation extraction on for
	// this run. Only effective when Caps.SupportsCitations is set.
	CitationsEnabled bool

	// MaxCitations is clamped to [1, 50]. Zero means the default
	// of 30.
	MaxCitations int

	// CitationFormat is "markdown" or "plain". Anything else falls
	// back to "markdown".
	CitationFormat string

	// Logger receives skip warnings. Nil means the default text
	// handler on stderr.
	Logger *slog.Logger
}

// Assembler builds provider content blocks for wire messages.
type Assembler struct {
	loader           BinaryLoader
	caps             llm.ProviderCaps
	citationsEnabled bool
	maxCitations     int
	citationFormat   string
	logger           *slog.Logger
}

// NewAssembler creates an Assembler from config, normalizing the
// citation settings.
func NewAssembler(config AssemblerConfig) *Assembler {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	citationCount := config.MaxCitations
	if citationCount == 0 {
		citationCount = defaultCitations
	}
	if citationCount < minCitations {
		citationCount = minCitations
	}
	if citationCount > maxCitations {
		citationCount = maxCitations
	}

	format := config.CitationFormat
	if format != "markdown" && format != "plain" {
		format = "markdown"
	}

	return &Assembler{
		loader:           config.Loader,
		caps:             config.Caps,
		citationsEnabled: config.CitationsEnabled,
		maxCitations:     citationCount,
		citationFormat:   format,
		logger:           logger,
	}
}

// BuildDocumentBlock produces a document content block for a file.
// The document name is derived from the display filename via
// [SanitizeDocumentName]. A citations configuration is attached iff
// the provider supports citations, the resolved format is exactly
// "pdf", and the file does not disable them — never on non-PDF
// documents.
func (assembler *Assembler) BuildDocumentBlock(file attachment.File, data []byte) llm.ContentBlock {
	format, found := documentFormats[file.MIMEType]
	if !found {
		format = genericDocumentFormat
	}

	document := &llm.Document{
		Name:   SanitizeDocumentName(file.Filename),
		Format: format,
		Data:   data,
	}

	if assembler.citationsEnabled &&
		assembler.caps.SupportsCitations &&
		format == "pdf" &&
		!file.DisableCitations {
		document.Citations = &llm.CitationsConfig{
			Enabled:      true,
			MaxCitations: assembler.maxCitations,
			Format:       assembler.citationFormat,
		}
	}

	return llm.ContentBlock{Type: llm.ContentDocument, Document: document}
}

// BuildImageBlock produces an image content block. image/jpeg maps
// to "jpeg"; every other recognized image MIME type defaults to the
// provider's default image format (normally "png").
func (assembler *Assembler) BuildImageBlock(data []byte, mimeType string) llm.ContentBlock {
	format := assembler.caps.ImageFormatDefault
	if format == "" {
		format = "png"
	}
	if mimeType == "image/jpeg" {
		format = "jpeg"
	}
	return llm.ImageBlock(format, data)
}

// ConvertLegacyImageReferences converts parts that carry an image as
// an inline data URL (data:<mime>;base64,<payload>) into image
// content blocks. Parts without a decodable data URL are skipped.
func (assembler *Assembler) ConvertLegacyImageReferences(parts []thread.Part) []llm.ContentBlock {
	var blocks []llm.ContentBlock
	for _, part := range parts {
		mimeType, payload, ok := parseDataURL(part.DataURL)
		if !ok {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			assembler.logger.Warn("skipping undecodable data URL image",
				"kind", string(part.Kind), "error", err)
			continue
		}
		blocks = append(blocks, assembler.BuildImageBlock(decoded, mimeType))
	}
	return blocks
}

// parseDataURL splits a data:<mime>;base64,<payload> URL. Returns
// ok=false for anything else.
func parseDataURL(value string) (mimeType, payload string, ok bool) {
	rest, found := strings.CutPrefix(value, "data:")
	if !found {
		return "", "", false
	}
	header, payload, found := strings.Cut(rest, ",")
	if !found || !strings.HasSuffix(header, ";base64") {
		return "", "", false
	}
	return strings.TrimSuffix(header, ";base64"), payload, true
}

// AssembleMessage builds the content block list for one wire
// message: image blocks first (legacy data-URL parts, then image
// files, each in original order), document blocks second, and one
// trailing text block when the message has text. If no binary block
// is produced the message degrades to plain text — Blocks stays nil
// and the provider call sends Text.
//
// Files that fail to load or normalize are skipped with a warning;
// the remaining blocks still assemble. Document blocks are only
// built when the provider supports native documents.
func (assembler *Assembler) AssembleMessage(ctx context.Context, message *thread.WireMessage) error {
	var imageBlocks []llm.ContentBlock
	var documentBlocks []llm.ContentBlock

	imageBlocks = append(imageBlocks, assembler.ConvertLegacyImageReferences(message.Parts)...)

	for _, file := range message.Files {
		if strings.HasPrefix(file.MIMEType, "image/") {
			data, loaded := assembler.loadFile(ctx, file)
			if !loaded {
				continue
			}
			imageBlocks = append(imageBlocks, assembler.BuildImageBlock(data, file.MIMEType))
			markResolved(message, file.ID)
			continue
		}

		if !assembler.caps.SupportsNativeDocuments {
			continue
		}
		data, loaded := assembler.loadFile(ctx, file)
		if !loaded {
			continue
		}
		documentBlocks = append(documentBlocks, assembler.BuildDocumentBlock(file, data))
		markResolved(message, file.ID)
	}

	if len(imageBlocks) == 0 && len(documentBlocks) == 0 {
		// Degrade to a plain text value.
		message.Blocks = nil
		return nil
	}

	blocks := make([]llm.ContentBlock, 0, len(imageBlocks)+len(documentBlocks)+1)
	blocks = append(blocks, imageBlocks...)
	blocks = append(blocks, documentBlocks...)
	if message.Text != "" {
		blocks = append(blocks, llm.TextBlock(message.Text))
	}

	message.Blocks = blocks
	return nil
}

// loadFile loads and logs. The bool result reports success; load
// failures never abort assembly of the other blocks.
func (assembler *Assembler) loadFile(ctx context.Context, file attachment.File) ([]byte, bool) {
	data, err := assembler.loader.LoadBinary(ctx, file)
	if err != nil {
		assembler.logger.Warn("skipping unloadable attachment",
			"file_id", file.ID, "filename", file.Filename, "error", err)
		return nil, false
	}
	return data, true
}

// markResolved records the served location of a loaded file on its
// referencing part, so MergeEphemeralFields can carry it back to the
// canonical track.
func markResolved(message *thread.WireMessage, fileID string) {
	for i := range message.Parts {
		if message.Parts[i].FileID == fileID {
			message.Parts[i].ResolvedURL = "/files/" + fileID
		}
	}
}

// StripCitations removes the citation configuration from every
// document block in the wire payload, leaving everything else
// untouched. Used by the orchestrator's capability-rejection retry.
func StripCitations(messages []thread.WireMessage) {
	for i := range messages {
		for j := range messages[i].Blocks {
			if document := messages[i].Blocks[j].Document; document != nil {
				document.Citations = nil
			}
		}
	}
}
