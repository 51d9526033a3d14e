package middleware

import (
	"context"

	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
)

// Handler processes one inbound envelope of a client.
type Handler = func(ctx context.Context, client *simulation.Client, env protocol.Envelope)

// Chain applies wrappers so that the first one is the outermost.
func Chain[T any](wrappers ...func(T) T) func(T) T {
	return func(handler T) T {
		for i := len(wrappers) - 1; i >= 0; i-- {
			handler = wrappers[i](handler)
		}
		return handler
	}
}
