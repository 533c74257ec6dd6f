package query

import (
	"context"

	domainerror "github.com/0xsj/overwatch-revocation/internal/domain/error"
	"github.com/0xsj/overwatch-revocation/internal/port/inbound/query"
)

// isTokenRevokedHandler implements query.IsTokenRevokedHandler.
type isTokenRevokedHandler struct {
	checker Checker
}

// NewIsTokenRevokedHandler creates a new IsTokenRevokedHandler.
func NewIsTokenRevokedHandler(checker Checker) query.IsTokenRevokedHandler {
	return &isTokenRevokedHandler{
		checker: checker,
	}
}

func (h *isTokenRevokedHandler) Handle(ctx context.Context, qry query.IsTokenRevoked) (query.IsTokenRevokedResult, error) {
	if qry.UserID == "" {
		return query.IsTokenRevokedResult{}, domainerror.ErrUserIDRequired
	}

	return query.IsTokenRevokedResult{
		Revoked: h.checker.IsTokenRevoked(ctx, qry.UserID, qry.IssuedAt),
	}, nil
}
