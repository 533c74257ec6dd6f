package registry

import (
	"context"
	"time"

	domainerror "github.com/0xsj/overwatch-revocation/internal/domain/error"
	"github.com/0xsj/overwatch-revocation/internal/domain/model"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/store"
)

// Legacy exposes the registry through context-free calls for older callers.
// It only wraps the in-process backend, whose calls never block on I/O.
type Legacy struct {
	registry *Registry
}

// NewLegacy wraps r. It fails unless r is served by the in-process store.
func NewLegacy(r *Registry) (*Legacy, error) {
	if r.Backend() != store.BackendMemory {
		return nil, domainerror.ErrLegacyRequiresMemory
	}
	return &Legacy{registry: r}, nil
}

// RevokeToken revokes a single token until its natural expiry.
func (l *Legacy) RevokeToken(identifier string, expiresAt time.Time, reason string) {
	_ = l.registry.RevokeToken(context.Background(), identifier, expiresAt, reason)
}

// RevokeAllUserTokens revokes every token of userID issued before now.
func (l *Legacy) RevokeAllUserTokens(userID string, maxTokenLifetime time.Duration, reason string) {
	_ = l.registry.RevokeAllUserTokens(context.Background(), userID, maxTokenLifetime, reason)
}

// IsTokenRevoked reports whether the token is revoked.
func (l *Legacy) IsTokenRevoked(userID string, issuedAt int64) bool {
	return l.registry.IsTokenRevoked(context.Background(), userID, issuedAt)
}

// Stats reports live entry statistics.
func (l *Legacy) Stats() model.Stats {
	stats, _ := l.registry.Stats(context.Background())
	return stats
}

// Clear drops every entry.
func (l *Legacy) Clear() {
	_ = l.registry.Clear(context.Background())
}
