package command

import (
	"context"
	"time"
)

// Revoker is the write side of the revocation registry.
type Revoker interface {
	RevokeToken(ctx context.Context, identifier string, expiresAt time.Time, reason string) error
	RevokeAllUserTokens(ctx context.Context, userID string, maxTokenLifetime time.Duration, reason string) error
}
