package query

import (
	"context"

	"github.com/0xsj/overwatch-revocation/internal/domain/model"
)

// GetRevocationStats reports the live entries of the registry.
type GetRevocationStats struct{}

func (q GetRevocationStats) QueryName() string {
	return "revocation.get_stats"
}

// GetRevocationStatsResult contains the registry statistics.
type GetRevocationStatsResult struct {
	Backend string
	Stats   model.Stats
}

// GetRevocationStatsHandler handles the GetRevocationStats query.
type GetRevocationStatsHandler interface {
	Handle(ctx context.Context, qry GetRevocationStats) (GetRevocationStatsResult, error)
}
