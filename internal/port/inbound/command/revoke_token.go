package command

import (
	"context"
	"time"
)

// RevokeToken revokes a single access token until its natural expiry.
// This is used on logout or explicit session termination.
type RevokeToken struct {
	UserID string
	// IssuedAt is the token's iat claim in Unix seconds.
	IssuedAt  int64
	ExpiresAt time.Time
	Reason    string
}

func (c RevokeToken) CommandName() string {
	return "revocation.revoke_token"
}

// RevokeTokenResult is the result of revoking a token.
type RevokeTokenResult struct {
	// Identifier is the registry key of the revoked token.
	Identifier string
}

// RevokeTokenHandler handles RevokeToken commands.
type RevokeTokenHandler interface {
	Handle(ctx context.Context, cmd RevokeToken) (RevokeTokenResult, error)
}
