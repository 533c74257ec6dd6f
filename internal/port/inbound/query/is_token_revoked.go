package query

import (
	"context"
)

// IsTokenRevoked checks a verified token against the registry.
type IsTokenRevoked struct {
	UserID   string
	IssuedAt int64
}

func (q IsTokenRevoked) QueryName() string {
	return "revocation.is_token_revoked"
}

// IsTokenRevokedResult contains the check result.
type IsTokenRevokedResult struct {
	Revoked bool
}

// IsTokenRevokedHandler handles the IsTokenRevoked query.
type IsTokenRevokedHandler interface {
	Handle(ctx context.Context, qry IsTokenRevoked) (IsTokenRevokedResult, error)
}
