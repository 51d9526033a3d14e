package middleware

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
)

// Telemetry counts messages per type and direction. It is shared by every
// connection of a server.
type Telemetry struct {
	logger *zap.Logger

	inbound  counters
	outbound counters
	sendFail atomic.Uint64
}

func NewTelemetry(logger *zap.Logger) *Telemetry {
	return &Telemetry{
		logger: logger,
	}
}

func (t *Telemetry) WithHandler(handler Handler) Handler {
	return func(ctx context.Context, client *simulation.Client, env protocol.Envelope) {
		t.inbound.add(env.Type)
		handler(ctx, client, env)
	}
}

func (t *Telemetry) WithSink(sink simulation.Sink) simulation.Sink {
	return simulation.SinkFunc(func(ctx context.Context, env protocol.Envelope) error {
		t.outbound.add(env.Type)
		err := sink.Send(ctx, env)
		if err != nil {
			t.sendFail.Add(1)
		}
		return err
	})
}

func (t *Telemetry) Inbound(msgType protocol.MessageType) uint64  { return t.inbound.get(msgType) }
func (t *Telemetry) Outbound(msgType protocol.MessageType) uint64 { return t.outbound.get(msgType) }
func (t *Telemetry) SendFailures() uint64                         { return t.sendFail.Load() }

func (t *Telemetry) PrintStatistics() {
	fields := make([]zap.Field, 0, 16)
	fields = append(fields, t.inbound.fields("in_")...)
	fields = append(fields, t.outbound.fields("out_")...)
	fields = append(fields, zap.Uint64("send_failures", t.sendFail.Load()))
	t.logger.Info("message statistics", fields...)
}

type counters struct {
	m sync.Map
}

func (c *counters) add(msgType protocol.MessageType) {
	counter, ok := c.m.Load(msgType)
	if !ok {
		counter, _ = c.m.LoadOrStore(msgType, new(atomic.Uint64))
	}
	counter.(*atomic.Uint64).Add(1)
}

func (c *counters) get(msgType protocol.MessageType) uint64 {
	counter, ok := c.m.Load(msgType)
	if !ok {
		return 0
	}
	return counter.(*atomic.Uint64).Load()
}

func (c *counters) fields(prefix string) []zap.Field {
	var fields []zap.Field
	c.m.Range(func(key, value any) bool {
		fields = append(fields, zap.Uint64(prefix+string(key.(protocol.MessageType)), value.(*atomic.Uint64).Load()))
		return true
	})
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return fields
}
