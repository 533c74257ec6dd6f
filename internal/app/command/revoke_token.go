package command

import (
	"context"

	domainerror "github.com/0xsj/overwatch-revocation/internal/domain/error"
	"github.com/0xsj/overwatch-revocation/internal/domain/model"
	"github.com/0xsj/overwatch-revocation/internal/port/inbound/command"
)

// revokeTokenHandler implements command.RevokeTokenHandler.
type revokeTokenHandler struct {
	revoker Revoker
}

// NewRevokeTokenHandler creates a new RevokeTokenHandler.
func NewRevokeTokenHandler(revoker Revoker) command.RevokeTokenHandler {
	return &revokeTokenHandler{
		revoker: revoker,
	}
}

func (h *revokeTokenHandler) Handle(ctx context.Context, cmd command.RevokeToken) (command.RevokeTokenResult, error) {
	if cmd.UserID == "" {
		return command.RevokeTokenResult{}, domainerror.ErrUserIDRequired
	}

	identifier := model.Identifier(cmd.UserID, cmd.IssuedAt)

	// Already-expired tokens are accepted and ignored (idempotent)
	if err := h.revoker.RevokeToken(ctx, identifier, cmd.ExpiresAt, cmd.Reason); err != nil {
		return command.RevokeTokenResult{}, err
	}

	return command.RevokeTokenResult{Identifier: identifier}, nil
}
