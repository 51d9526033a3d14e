package middleware

import (
	"context"

	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
)

//goland:noinspection ALL
var (
	NoopHandler Handler         = func(context.Context, *simulation.Client, protocol.Envelope) {}
	NoopSink    simulation.Sink = simulation.SinkFunc(func(context.Context, protocol.Envelope) error { return nil })
)
