package store

import (
	"context"
	"time"

	"github.com/0xsj/overwatch-revocation/internal/domain/model"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Store is the revocation storage contract shared by the in-process and
// remote backends. A Store is exclusively owned by one registry.
type Store interface {
	// RevokeToken records a per-token entry until expiresAt.
	// An expiresAt in the past is a no-op.
	RevokeToken(ctx context.Context, identifier string, expiresAt time.Time, reason string) error

	// RevokeAllUserTokens records a barrier revoking every token of the user
	// issued before now. The barrier lives for maxTokenLifetime.
	RevokeAllUserTokens(ctx context.Context, userID string, maxTokenLifetime time.Duration, reason string) error

	// IsTokenRevoked reports whether the token identified by userID and
	// issuedAt (Unix seconds) is revoked.
	IsTokenRevoked(ctx context.Context, userID string, issuedAt int64) (bool, error)

	// Stats summarises live entries.
	Stats(ctx context.Context) (model.Stats, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Backend returns the backend name.
	Backend() Backend

	// Close releases background resources.
	Close() error
}
