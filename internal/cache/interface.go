package cache

import (
	"context"
	"errors"
	"time"

	"github.com/telemed-live/videocall-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// SessionCache is a read cache in front of the session registry.
// Join lookups are read-heavy; the registry row never changes after
// creation, so cached entries cannot go stale within their TTL.
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Set(ctx context.Context, session *domain.Session, ttl time.Duration) error
	Close() error
}
