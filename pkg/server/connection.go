package server

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
	"github.com/peter-kozarec/simutrade/pkg/utility"
)

var ErrConnectionClosed = errors.New("connection closed")

type frame struct {
	messageType int
	data        []byte
}

// connection pumps frames between one websocket and the session manager.
// Replies use the framing of the last frame the client sent: text frames
// carry JSON, binary frames protobuf.
type connection struct {
	id     utility.ConnectionID
	conn   *websocket.Conn
	logger *zap.Logger
	cfg    Config

	ctx       context.Context
	ctxCancel context.CancelFunc

	writeChan chan frame
	binary    atomic.Bool
}

func newConnection(conn *websocket.Conn, logger *zap.Logger, cfg Config) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	id := utility.NewConnectionID()

	return &connection{
		id:        id,
		conn:      conn,
		logger:    logger.With(zap.String("client_id", id.String())),
		cfg:       cfg,
		ctx:       ctx,
		ctxCancel: cancel,
		writeChan: make(chan frame, cfg.WriteQueue),
	}
}

func (c *connection) codec() protocol.Codec {
	if c.binary.Load() {
		return protocol.Proto
	}
	return protocol.JSON
}

// Send queues an envelope for writing. It blocks while the write queue is
// full so a slow client slows its sessions down instead of losing events.
func (c *connection) Send(ctx context.Context, env protocol.Envelope) error {
	codec := c.codec()
	data, err := codec.Marshal(env)
	if err != nil {
		return err
	}

	messageType := websocket.TextMessage
	if codec == protocol.Proto {
		messageType = websocket.BinaryMessage
	}

	select {
	case c.writeChan <- frame{messageType: messageType, data: data}:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connection) stop() {
	c.ctxCancel()
	_ = c.conn.Close()
}

// read blocks until the peer goes away. Every decoded envelope is passed to
// handle on the reading goroutine, in arrival order.
func (c *connection) read(client *simulation.Client, handle func(context.Context, *simulation.Client, protocol.Envelope), report func(context.Context, *simulation.Client, error)) {
	c.conn.SetReadLimit(c.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("cannot read data", zap.Error(err))
			}
			return
		}

		var codec protocol.Codec = protocol.JSON
		if messageType == websocket.BinaryMessage {
			codec = protocol.Proto
		}
		c.binary.Store(codec == protocol.Proto)

		env, err := codec.Unmarshal(message)
		if err != nil {
			report(c.ctx, client, err)
			continue
		}

		c.logger.Debug("read", zap.String("type", string(env.Type)), zap.String("codec", codec.Name()))
		handle(c.ctx, client, env)
	}
}

func (c *connection) write() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		case f := <-c.writeChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
				c.logger.Warn("failed to write to connection", zap.Error(err))
				c.stop()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				c.stop()
				return
			}
		}
	}
}
