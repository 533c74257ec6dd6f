package command

import (
	"context"
	"time"
)

// RevokeAllUserTokens revokes every token of a user issued before now,
// e.g. after a password change.
type RevokeAllUserTokens struct {
	UserID string
	// MaxTokenLifetime is how long the barrier is kept. Zero uses the
	// configured access token lifetime.
	MaxTokenLifetime time.Duration
	Reason           string
}

func (c RevokeAllUserTokens) CommandName() string {
	return "revocation.revoke_all_user_tokens"
}

// RevokeAllUserTokensResult contains the lifetime applied to the barrier.
type RevokeAllUserTokensResult struct {
	MaxTokenLifetime time.Duration
}

// RevokeAllUserTokensHandler handles the RevokeAllUserTokens command.
type RevokeAllUserTokensHandler interface {
	Handle(ctx context.Context, cmd RevokeAllUserTokens) (RevokeAllUserTokensResult, error)
}
