package command

import (
	"context"
)

// Command is a marker interface for revocation commands.
type Command interface {
	// CommandName returns the name used in logs.
	CommandName() string
}

// Handler handles a specific command type.
type Handler[C Command, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}
