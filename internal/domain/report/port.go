package report

import "context"

// ArchiveStore port (interface for long-term report storage)
type ArchiveStore interface {
	// Put stores a rendered report under key and returns its URL.
	Put(ctx context.Context, key string, body []byte) (string, error)
}
