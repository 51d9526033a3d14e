package simulation

import (
	"context"
	"sync"

	"github.com/peter-kozarec/simutrade/pkg/protocol"
)

// Sink delivers outbound envelopes to a client. Implementations must be safe
// for concurrent use: sessions and the manager send from different
// goroutines.
type Sink interface {
	Send(ctx context.Context, env protocol.Envelope) error
}

type SinkFunc func(ctx context.Context, env protocol.Envelope) error

func (f SinkFunc) Send(ctx context.Context, env protocol.Envelope) error {
	return f(ctx, env)
}

// Client is one connected peer. It remembers the ids of the sessions it
// opened; the most recent one is where messages without a session_id go.
// Ownership itself is decided by the manager, since an ended id may be
// opened again by another client.
type Client struct {
	Id   string
	Sink Sink

	mu       sync.Mutex
	sessions []string
}

func NewClient(id string, sink Sink) *Client {
	return &Client{Id: id, Sink: sink}
}

func (c *Client) Send(ctx context.Context, msgType protocol.MessageType, data any) error {
	env, err := protocol.NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	return c.Sink.Send(ctx, env)
}

// bind makes sessionId the client's most recent session. Reopened ids move
// to the end instead of being listed twice.
func (c *Client) bind(sessionId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range c.sessions {
		if id == sessionId {
			c.sessions = append(c.sessions[:i], c.sessions[i+1:]...)
			break
		}
	}
	c.sessions = append(c.sessions, sessionId)
}

// Bound returns the session messages without an explicit session_id go to.
func (c *Client) Bound() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessions) == 0 {
		return ""
	}
	return c.sessions[len(c.sessions)-1]
}

func (c *Client) Sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sessions...)
}
