package query

import (
	"context"

	"github.com/0xsj/overwatch-revocation/internal/domain/model"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/store"
)

// Checker is the read side of the revocation registry.
type Checker interface {
	IsTokenRevoked(ctx context.Context, userID string, issuedAt int64) bool
	Stats(ctx context.Context) (model.Stats, error)
	Backend() store.Backend
}
