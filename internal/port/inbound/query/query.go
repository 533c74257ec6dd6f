package query

import (
	"context"
)

// Query is a marker interface for revocation queries.
type Query interface {
	// QueryName returns the name used in logs.
	QueryName() string
}

// Handler handles a specific query type.
type Handler[Q Query, R any] interface {
	Handle(ctx context.Context, qry Q) (R, error)
}
