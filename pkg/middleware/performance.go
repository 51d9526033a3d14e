package middleware

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
)

// Performance accumulates the time spent handling inbound messages and
// writing outbound ones.
type Performance struct {
	logger *zap.Logger

	handlerDur   atomic.Int64
	handlerCount atomic.Uint64
	sinkDur      atomic.Int64
	sinkCount    atomic.Uint64
}

func NewPerformance(logger *zap.Logger) *Performance {
	return &Performance{
		logger: logger,
	}
}

func (p *Performance) WithHandler(handler Handler) Handler {
	return func(ctx context.Context, client *simulation.Client, env protocol.Envelope) {
		startTime := time.Now()
		handler(ctx, client, env)
		p.handlerDur.Add(int64(time.Since(startTime)))
		p.handlerCount.Add(1)
	}
}

func (p *Performance) WithSink(sink simulation.Sink) simulation.Sink {
	return simulation.SinkFunc(func(ctx context.Context, env protocol.Envelope) error {
		startTime := time.Now()
		err := sink.Send(ctx, env)
		p.sinkDur.Add(int64(time.Since(startTime)))
		p.sinkCount.Add(1)
		return err
	})
}

func (p *Performance) HandlerDuration() time.Duration { return time.Duration(p.handlerDur.Load()) }
func (p *Performance) SinkDuration() time.Duration    { return time.Duration(p.sinkDur.Load()) }

func (p *Performance) PrintStatistics() {
	p.logger.Info("performance statistics",
		zap.Duration("handler_total", p.HandlerDuration()),
		zap.Uint64("handler_calls", p.handlerCount.Load()),
		zap.Duration("handler_avg", average(p.HandlerDuration(), p.handlerCount.Load())),
		zap.Duration("sink_total", p.SinkDuration()),
		zap.Uint64("sink_calls", p.sinkCount.Load()),
		zap.Duration("sink_avg", average(p.SinkDuration(), p.sinkCount.Load())))
}

func average(total time.Duration, count uint64) time.Duration {
	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}
