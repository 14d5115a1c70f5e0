package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is the normal miss result. Any other error from a Store is
// an infrastructure failure; callers fail open and treat it as a miss.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one cached invocation result.
type Entry struct {
	Output      interface{} `json:"output"`
	ToolName    string      `json:"tool_name"`
	ToolVersion string      `json:"tool_version"`
	DurationMS  int64       `json:"duration_ms"`
	StoredAt    time.Time   `json:"stored_at"`
}

// Store is the cache backend. A ttl of zero or below on Set stores the
// entry without expiry.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
	Close() error
}
