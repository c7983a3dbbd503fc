package packs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cordum/packedge/core/edge/edgeerr"
	"github.com/cordum/packedge/core/infra/metrics"
)

// DefaultEntry is the path served when a request names no file.
const DefaultEntry = "index.js"

// fallbackEntries are tried in order when DefaultEntry is absent, before the
// first file the store sent.
var fallbackEntries = []string{"main.js", "index.mjs", "app.js"}

var contentTypes = map[string]string{
	"js":   "application/javascript",
	"mjs":  "application/javascript",
	"cjs":  "application/javascript",
	"py":   "text/x-python",
	"wasm": "application/wasm",
	"json": "application/json",
	"html": "text/html",
	"css":  "text/css",
	"md":   "text/markdown",
}

// ResolvedFile is a file picked out of a pack.
type ResolvedFile struct {
	PackID      string
	Path        string
	Content     string
	ContentType string
}

// Resolver maps (pack id, path) to file content. It keeps no state between
// calls; every resolution re-fetches the pack.
type Resolver struct {
	store   Store
	metrics metrics.EdgeMetrics
}

// NewResolver returns a resolver backed by store.
func NewResolver(store Store, m metrics.EdgeMetrics) *Resolver {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Resolver{store: store, metrics: m}
}

// Lookup validates packID and fetches the pack snapshot.
func (r *Resolver) Lookup(ctx context.Context, packID string) (*Pack, error) {
	packID = strings.TrimSpace(packID)
	if packID == "" {
		return nil, edgeerr.InvalidRequest("Pack ID is required")
	}
	if r == nil || r.store == nil {
		return nil, edgeerr.Upstream("pack store not configured", nil)
	}
	return r.store.Lookup(ctx, packID)
}

// Resolve returns the content of requestedPath in packID, applying the entry
// fallback chain when the default entry was requested.
func (r *Resolver) Resolve(ctx context.Context, packID, requestedPath string) (*ResolvedFile, error) {
	if requestedPath == "" {
		requestedPath = DefaultEntry
	}
	pack, err := r.Lookup(ctx, packID)
	if err != nil {
		r.count(outcomeFor(err))
		return nil, err
	}
	filePath, content, ok := SelectFile(pack.Files, requestedPath)
	if !ok {
		r.count("file_not_found")
		return nil, edgeerr.FileNotFound(fmt.Sprintf("File %q not found in pack", requestedPath)).
			With("packId", strings.TrimSpace(packID)).
			With("filePath", requestedPath)
	}
	if filePath == requestedPath {
		r.count("exact")
	} else {
		r.count("fallback")
	}
	return &ResolvedFile{
		PackID:      strings.TrimSpace(packID),
		Path:        filePath,
		Content:     content,
		ContentType: ContentType(filePath),
	}, nil
}

// SelectFile looks requestedPath up verbatim, then walks the fallback chain
// if requestedPath is DefaultEntry.
func SelectFile(files FileSet, requestedPath string) (string, string, bool) {
	if content, ok := files.Get(requestedPath); ok {
		return requestedPath, content, true
	}
	if requestedPath != DefaultEntry {
		return "", "", false
	}
	for _, candidate := range fallbackEntries {
		if content, ok := files.Get(candidate); ok {
			return candidate, content, true
		}
	}
	return files.First()
}

// ContentType maps a file path to its MIME type by extension.
func ContentType(filePath string) string {
	ext := strings.TrimPrefix(path.Ext(filePath), ".")
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "text/plain"
}

func (r *Resolver) count(outcome string) {
	if r != nil && r.metrics != nil {
		r.metrics.IncResolve(outcome)
	}
}

func outcomeFor(err error) string {
	switch edgeerr.KindOf(err) {
	case edgeerr.KindInvalidRequest:
		return "invalid"
	case edgeerr.KindNotFound:
		return "not_found"
	default:
		return "upstream_error"
	}
}
