package query

import (
	"context"

	"github.com/0xsj/overwatch-revocation/internal/port/inbound/query"
)

// getRevocationStatsHandler implements query.GetRevocationStatsHandler.
type getRevocationStatsHandler struct {
	checker Checker
}

// NewGetRevocationStatsHandler creates a new GetRevocationStatsHandler.
func NewGetRevocationStatsHandler(checker Checker) query.GetRevocationStatsHandler {
	return &getRevocationStatsHandler{
		checker: checker,
	}
}

func (h *getRevocationStatsHandler) Handle(ctx context.Context, qry query.GetRevocationStats) (query.GetRevocationStatsResult, error) {
	stats, err := h.checker.Stats(ctx)
	if err != nil {
		return query.GetRevocationStatsResult{}, err
	}

	return query.GetRevocationStatsResult{
		Backend: string(h.checker.Backend()),
		Stats:   stats,
	}, nil
}
