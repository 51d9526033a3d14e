package middleware

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
)

type MonitorFlags uint16

//goland:noinspection GoUnusedConst
const (
	MonitorNone  MonitorFlags = 0
	MonitorTicks MonitorFlags = 1 << iota
	MonitorFills
	MonitorAccount
	MonitorOrders
	MonitorErrors
	MonitorSessions
	MonitorHeartbeats
	MonitorInbound

	MonitorAll = MonitorTicks | MonitorFills | MonitorAccount | MonitorOrders | MonitorErrors |
		MonitorSessions | MonitorHeartbeats | MonitorInbound
)

var monitorFlagNames = map[string]MonitorFlags{
	"none":       MonitorNone,
	"all":        MonitorAll,
	"ticks":      MonitorTicks,
	"fills":      MonitorFills,
	"account":    MonitorAccount,
	"orders":     MonitorOrders,
	"errors":     MonitorErrors,
	"sessions":   MonitorSessions,
	"heartbeats": MonitorHeartbeats,
	"inbound":    MonitorInbound,
}

func ParseMonitorFlags(names []string) (MonitorFlags, error) {
	var flags MonitorFlags
	for _, name := range names {
		flag, ok := monitorFlagNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return MonitorNone, fmt.Errorf("unknown monitor flag %q", name)
		}
		flags |= flag
	}
	return flags, nil
}

func flagFor(msgType protocol.MessageType) MonitorFlags {
	switch msgType {
	case protocol.TypeTick:
		return MonitorTicks
	case protocol.TypeFill:
		return MonitorFills
	case protocol.TypeAccountUpdate:
		return MonitorAccount
	case protocol.TypeOrder, protocol.TypeCancel, protocol.TypeOrderAck:
		return MonitorOrders
	case protocol.TypeError:
		return MonitorErrors
	case protocol.TypeInitSession, protocol.TypeCloseSession, protocol.TypeSessionReady, protocol.TypeSessionEnd:
		return MonitorSessions
	case protocol.TypePing, protocol.TypePong:
		return MonitorHeartbeats
	}
	return MonitorNone
}

// Monitor logs the messages selected by its flags. Inbound messages are
// logged only when MonitorInbound is set as well.
type Monitor struct {
	logger *zap.Logger
	flags  MonitorFlags
}

func NewMonitor(logger *zap.Logger, flags MonitorFlags) *Monitor {
	return &Monitor{
		logger: logger,
		flags:  flags,
	}
}

func (m *Monitor) enabled(msgType protocol.MessageType) bool {
	flag := flagFor(msgType)
	return flag != MonitorNone && m.flags&flag != 0
}

func (m *Monitor) WithHandler(handler Handler) Handler {
	return func(ctx context.Context, client *simulation.Client, env protocol.Envelope) {
		if m.flags&MonitorInbound != 0 && m.enabled(env.Type) {
			m.logger.Info("inbound",
				zap.String("client_id", client.Id),
				zap.String("type", string(env.Type)),
				zap.ByteString("data", env.Data))
		}
		handler(ctx, client, env)
	}
}

func (m *Monitor) WithSink(sink simulation.Sink) simulation.Sink {
	return simulation.SinkFunc(func(ctx context.Context, env protocol.Envelope) error {
		if m.enabled(env.Type) {
			m.logger.Info("outbound",
				zap.String("type", string(env.Type)),
				zap.ByteString("data", env.Data))
		}
		return sink.Send(ctx, env)
	})
}
