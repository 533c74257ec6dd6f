package command

import (
	"context"
	"time"

	domainerror "github.com/0xsj/overwatch-revocation/internal/domain/error"
	"github.com/0xsj/overwatch-revocation/internal/port/inbound/command"
)

// revokeAllUserTokensHandler implements command.RevokeAllUserTokensHandler.
type revokeAllUserTokensHandler struct {
	revoker         Revoker
	defaultLifetime time.Duration
}

// NewRevokeAllUserTokensHandler creates a new RevokeAllUserTokensHandler.
// defaultLifetime should be the access token lifetime.
func NewRevokeAllUserTokensHandler(revoker Revoker, defaultLifetime time.Duration) command.RevokeAllUserTokensHandler {
	return &revokeAllUserTokensHandler{
		revoker:         revoker,
		defaultLifetime: defaultLifetime,
	}
}

func (h *revokeAllUserTokensHandler) Handle(ctx context.Context, cmd command.RevokeAllUserTokens) (command.RevokeAllUserTokensResult, error) {
	if cmd.UserID == "" {
		return command.RevokeAllUserTokensResult{}, domainerror.ErrUserIDRequired
	}

	lifetime := cmd.MaxTokenLifetime
	if lifetime <= 0 {
		lifetime = h.defaultLifetime
	}

	if err := h.revoker.RevokeAllUserTokens(ctx, cmd.UserID, lifetime, cmd.Reason); err != nil {
		return command.RevokeAllUserTokensResult{}, err
	}

	return command.RevokeAllUserTokensResult{
		MaxTokenLifetime: lifetime,
	}, nil
}
