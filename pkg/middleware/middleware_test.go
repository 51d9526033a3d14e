package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

func TestMiddleware_Chain(t *testing.T) {
	type handler func(int) int

	add10 := func(h handler) handler {
		return func(n int) int {
			return h(n) + 10
		}
	}
	multiply2 := func(h handler) handler {
		return func(n int) int {
			return h(n) * 2
		}
	}
	base := func(n int) int {
		return n
	}

	assert.Equal(t, 20, Chain(add10, multiply2)(base)(5))
	assert.Equal(t, 30, Chain(multiply2, add10)(base)(5))
	assert.Equal(t, 5, Chain[handler]()(base)(5))
}

func TestMiddleware_ParseMonitorFlags(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		want    MonitorFlags
		wantErr bool
	}{
		{"empty", nil, MonitorNone, false},
		{"single", []string{"ticks"}, MonitorTicks, false},
		{"combined", []string{"fills", " Orders "}, MonitorFills | MonitorOrders, false},
		{"all", []string{"all"}, MonitorAll, false},
		{"unknown", []string{"bars"}, MonitorNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonitorFlags(tt.names)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMiddlewareMonitor_WithSink(t *testing.T) {
	logger, logs := observedLogger()
	m := NewMonitor(logger, MonitorFills|MonitorErrors)

	var sent []protocol.MessageType
	sink := m.WithSink(simulation.SinkFunc(func(_ context.Context, env protocol.Envelope) error {
		sent = append(sent, env.Type)
		return nil
	}))

	for _, msgType := range []protocol.MessageType{protocol.TypeTick, protocol.TypeFill, protocol.TypeError, protocol.TypePong} {
		require.NoError(t, sink.Send(context.Background(), protocol.Envelope{Type: msgType, Data: []byte(`{}`)}))
	}

	assert.Len(t, sent, 4)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "fill", logs.All()[0].ContextMap()["type"])
	assert.Equal(t, "error", logs.All()[1].ContextMap()["type"])
}

func TestMiddlewareMonitor_WithHandler(t *testing.T) {
	client := simulation.NewClient("c1", NoopSink)

	tests := []struct {
		name  string
		flags MonitorFlags
		logs  int
	}{
		{"inbound orders", MonitorInbound | MonitorOrders, 1},
		{"orders without inbound", MonitorOrders, 0},
		{"inbound without orders", MonitorInbound | MonitorTicks, 0},
		{"all", MonitorAll, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := observedLogger()

			var handled bool
			handler := NewMonitor(logger, tt.flags).WithHandler(func(context.Context, *simulation.Client, protocol.Envelope) {
				handled = true
			})
			handler(context.Background(), client, protocol.Envelope{Type: protocol.TypeOrder, Data: []byte(`{}`)})

			assert.True(t, handled)
			assert.Equal(t, tt.logs, logs.Len())
		})
	}
}

func TestMiddlewareTelemetry_Counts(t *testing.T) {
	logger, logs := observedLogger()
	telemetry := NewTelemetry(logger)
	client := simulation.NewClient("c1", NoopSink)

	failing := errors.New("closed")
	sink := telemetry.WithSink(simulation.SinkFunc(func(_ context.Context, env protocol.Envelope) error {
		if env.Type == protocol.TypeSessionEnd {
			return failing
		}
		return nil
	}))
	handler := telemetry.WithHandler(NoopHandler)

	for i := 0; i < 3; i++ {
		require.NoError(t, sink.Send(context.Background(), protocol.Envelope{Type: protocol.TypeTick}))
	}
	assert.ErrorIs(t, sink.Send(context.Background(), protocol.Envelope{Type: protocol.TypeSessionEnd}), failing)
	handler(context.Background(), client, protocol.Envelope{Type: protocol.TypeOrder})
	handler(context.Background(), client, protocol.Envelope{Type: protocol.TypeOrder})

	assert.Equal(t, uint64(3), telemetry.Outbound(protocol.TypeTick))
	assert.Equal(t, uint64(1), telemetry.Outbound(protocol.TypeSessionEnd))
	assert.Equal(t, uint64(0), telemetry.Outbound(protocol.TypeFill))
	assert.Equal(t, uint64(2), telemetry.Inbound(protocol.TypeOrder))
	assert.Equal(t, uint64(1), telemetry.SendFailures())

	telemetry.PrintStatistics()
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, uint64(3), fields["out_tick"])
	assert.Equal(t, uint64(2), fields["in_order"])
}

func TestMiddlewarePerformance_Accumulates(t *testing.T) {
	logger, logs := observedLogger()
	p := NewPerformance(logger)
	client := simulation.NewClient("c1", NoopSink)

	handler := p.WithHandler(NoopHandler)
	sink := p.WithSink(NoopSink)

	handler(context.Background(), client, protocol.Envelope{Type: protocol.TypePing})
	require.NoError(t, sink.Send(context.Background(), protocol.Envelope{Type: protocol.TypePong}))

	assert.Equal(t, uint64(1), p.handlerCount.Load())
	assert.Equal(t, uint64(1), p.sinkCount.Load())
	assert.GreaterOrEqual(t, p.HandlerDuration().Nanoseconds(), int64(0))

	p.PrintStatistics()
	assert.Equal(t, 1, logs.Len())
}
