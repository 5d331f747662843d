// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// BlobReader is the storage read interface the resolver consumes.
// Implementations return an error satisfying errors.Is(err,
// fs.ErrNotExist) when the path does not exist.
type BlobReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// DiskReader reads blobs from the local filesystem.
type DiskReader struct{}

func (DiskReader) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ResolverConfig configures a [Resolver].
type ResolverConfig struct {
	// Store is the storage read interface. Nil means local disk.
	Store BlobReader

	// UploadsRoot is the primary directory holding uploaded files in
	// this deployment. Recorded paths with a stale prefix are
	// rewritten against it.
	UploadsRoot string

	// ExtraRoots are additional directories searched after the
	// standard candidates.
	ExtraRoots []string

	// ServerBaseURL enables the HTTP last-resort fetch when set
	// (e.g., "http://localhost:3080"). Empty disables it.
	ServerBaseURL string

	// HTTPClient is used for the last-resort fetch. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives per-candidate diagnostics. Nil means the
	// default text handler on stderr.
	Logger *slog.Logger
}

// Resolver loads attachment binaries, tolerating path prefixes
// recorded by other deployments.
type Resolver struct {
	store         BlobReader
	uploadsRoot   string
	extraRoots    []string
	serverBaseURL string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewResolver creates a Resolver from config, filling in defaults
// for unset fields.
func NewResolver(config ResolverConfig) *Resolver {
	store := config.Store
	if store == nil {
		store = DiskReader{}
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Resolver{
		store:         store,
		uploadsRoot:   config.UploadsRoot,
		extraRoots:    config.ExtraRoots,
		serverBaseURL: strings.TrimSuffix(config.ServerBaseURL, "/"),
		httpClient:    httpClient,
		logger:        logger,
	}
}

// LoadBinary locates and reads the binary payload for a file
// descriptor. Inline content recorded on the descriptor wins and is
// normalized through [NormalizeBuffer] (a shape mismatch there is a
// ReadFailed, never a fall-through). Otherwise path candidates are
// tried in the fixed order produced by [Resolver.PathCandidates];
// if every candidate is missing and a
// server base URL is configured, the payload is fetched over HTTP as
// a last resort. Returns [LoadError] with kind [NotFound] listing
// everything that was searched when all of it fails.
func (resolver *Resolver) LoadBinary(ctx context.Context, file File) ([]byte, error) {
	if file.Content != nil {
		payload, err := NormalizeBuffer(file.Content)
		if err != nil {
			// Inline content in an unrecognized shape is corrupt
			// data, not a miss; falling through to the path search
			// would hide it.
			return nil, &LoadError{
				Kind:     ReadFailed,
				FileID:   file.ID,
				Filename: file.Filename,
				Cause:    err,
			}
		}
		return payload, nil
	}

	candidates := resolver.PathCandidates(file)
	searched := make([]string, 0, len(candidates)+1)

	for _, candidate := range candidates {
		searched = append(searched, candidate)

		data, err := resolver.store.ReadFile(ctx, candidate)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return nil, &LoadError{
			Kind:     ReadFailed,
			FileID:   file.ID,
			Filename: file.Filename,
			Searched: searched,
			Cause:    err,
		}
	}

	if resolver.serverBaseURL != "" {
		fetchURL := resolver.fetchURL(file)
		searched = append(searched, fetchURL)

		data, err := resolver.fetchHTTP(ctx, fetchURL)
		if err == nil {
			return data, nil
		}
		resolver.logger.Debug("attachment HTTP fallback failed",
			"file_id", file.ID, "url", fetchURL, "error", err)
	}

	return nil, &LoadError{
		Kind:     NotFound,
		FileID:   file.ID,
		Filename: file.Filename,
		Searched: searched,
	}
}

// PathCandidates returns the ordered path candidates tried for a
// file descriptor:
//
//  1. the recorded path, verbatim
//  2. the recorded path with its "uploads" prefix rewritten to the
//     configured uploads root
//  3. the recorded path joined under the uploads root (for relative
//     recorded paths)
//  4. the bare filename under the uploads root
//  5. steps 2-4 repeated for each extra root, in order
//
// Duplicates are removed, preserving first occurrence.
func (resolver *Resolver) PathCandidates(file File) []string {
	var candidates []string

	if file.Path != "" {
		candidates = append(candidates, file.Path)
	}

	roots := make([]string, 0, 1+len(resolver.extraRoots))
	if resolver.uploadsRoot != "" {
		roots = append(roots, resolver.uploadsRoot)
	}
	roots = append(roots, resolver.extraRoots...)

	for _, root := range roots {
		if suffix, found := stripUploadsPrefix(file.Path); found {
			candidates = append(candidates, filepath.Join(root, suffix))
		}
		if file.Path != "" && !filepath.IsAbs(file.Path) {
			candidates = append(candidates, filepath.Join(root, file.Path))
		}
		if base := filepath.Base(file.Path); base != "." && base != "/" && base != "" {
			candidates = append(candidates, filepath.Join(root, base))
		}
	}

	return dedupe(candidates)
}

// stripUploadsPrefix removes a leading "/uploads/" or "uploads/"
// segment, returning the remainder and whether the prefix was found.
func stripUploadsPrefix(recorded string) (string, bool) {
	trimmed := strings.TrimPrefix(recorded, "/")
	if suffix, found := strings.CutPrefix(trimmed, "uploads/"); found {
		return suffix, true
	}
	return "", false
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := values[:0]
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		result = append(result, value)
	}
	return result
}

// fetchURL builds the last-resort HTTP URL for a file. The recorded
// path is used when it looks like a server path; otherwise the
// well-known file route with the file ID.
func (resolver *Resolver) fetchURL(file File) string {
	if strings.HasPrefix(file.Path, "/") {
		return resolver.serverBaseURL + path.Clean(file.Path)
	}
	return resolver.serverBaseURL + "/files/" + file.ID
}

func (resolver *Resolver) fetchHTTP(ctx context.Context, fetchURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	response, err := resolver.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetching: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", response.StatusCode)
	}

	return io.ReadAll(response.Body)
}
