// Package storage persists finished generation results and hands back the
// durable URL clients use to fetch them.
package storage

import (
	"context"
	"mime"
	"path"
	"strings"
)

// Store writes an object and returns its public URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// AssetKey is the deterministic key for a job's result. Re-persisting the
// same job overwrites rather than duplicates.
func AssetKey(workspaceID, jobID, contentType string) string {
	return path.Join("generated", workspaceID, jobID+extensionFor(contentType))
}

func extensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "":
		return ".bin"
	}
	if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
