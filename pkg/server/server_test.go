package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource/synthetic"
	"github.com/peter-kozarec/simutrade/pkg/middleware"
	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	manager   *simulation.Manager
	telemetry *middleware.Telemetry
	http      *httptest.Server
}

func createTestServer(t *testing.T, options ...simulation.ManagerOption) *testServer {
	t.Helper()

	logger := zap.NewNop()
	manager := simulation.NewManager(logger, synthetic.NewFeed(), options...)
	telemetry := middleware.NewTelemetry(logger)

	srv := New(logger, manager, DefaultConfig(),
		WithHandlerMiddleware(telemetry.WithHandler),
		WithSinkMiddleware(telemetry.WithSink))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	return &testServer{manager: manager, telemetry: telemetry, http: ts}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func initEnvelope(t *testing.T, sessionId string, clockSpeed int64) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.TypeInitSession, protocol.InitSessionData{
		SessionId:   sessionId,
		Symbol:      "AAPL",
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC),
		Timeframe:   common.Timeframe1Day,
		ClockSpeed:  clockSpeed,
		InitialCash: fixed.FromInt(10000, 0),
	})
	require.NoError(t, err)
	return env
}

func send(t *testing.T, conn *websocket.Conn, codec protocol.Codec, env protocol.Envelope) {
	t.Helper()
	data, err := codec.Marshal(env)
	require.NoError(t, err)
	messageType := websocket.TextMessage
	if codec == protocol.Proto {
		messageType = websocket.BinaryMessage
	}
	require.NoError(t, conn.WriteMessage(messageType, data))
}

// readUntil collects frames until one of msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType) ([]protocol.Envelope, int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var envs []protocol.Envelope
	for {
		frameType, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var codec protocol.Codec = protocol.JSON
		if frameType == websocket.BinaryMessage {
			codec = protocol.Proto
		}
		env, err := codec.Unmarshal(data)
		require.NoError(t, err)

		envs = append(envs, env)
		if env.Type == msgType {
			return envs, frameType
		}
	}
}

func TestServer_Ping(t *testing.T) {
	s := createTestServer(t)

	resp, err := http.Get(s.http.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Zero(t, body.Sessions)
}

func TestServer_SessionOverJSON(t *testing.T) {
	s := createTestServer(t)
	conn := s.dial(t)

	send(t, conn, protocol.JSON, initEnvelope(t, "s1", 0))

	envs, frameType := readUntil(t, conn, protocol.TypeSessionEnd)
	assert.Equal(t, websocket.TextMessage, frameType)

	var ready protocol.SessionReadyData
	require.Equal(t, protocol.TypeSessionReady, envs[0].Type)
	require.NoError(t, envs[0].Decode(&ready))
	assert.Equal(t, "s1", ready.SessionId)

	ticks := 0
	for _, env := range envs {
		if env.Type == protocol.TypeTick {
			ticks++
		}
	}
	// 2024-01-01 .. 2024-01-05 are weekdays
	assert.Equal(t, 5, ticks)

	var end protocol.SessionEndData
	require.NoError(t, envs[len(envs)-1].Decode(&end))
	assert.Equal(t, simulation.ReasonCompleted, end.Reason)
	assert.True(t, end.FinalEquity.Eq(fixed.FromInt(10000, 0)))

	assert.Equal(t, uint64(1), s.telemetry.Inbound(protocol.TypeInitSession))
	assert.Equal(t, uint64(5), s.telemetry.Outbound(protocol.TypeTick))
}

func TestServer_SessionOverProto(t *testing.T) {
	s := createTestServer(t)
	conn := s.dial(t)

	send(t, conn, protocol.Proto, initEnvelope(t, "s1", 0))

	envs, frameType := readUntil(t, conn, protocol.TypeSessionEnd)
	assert.Equal(t, websocket.BinaryMessage, frameType)
	assert.Equal(t, protocol.TypeSessionReady, envs[0].Type)
}

func TestServer_MalformedFrame(t *testing.T) {
	s := createTestServer(t)
	conn := s.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	envs, _ := readUntil(t, conn, protocol.TypeError)
	var data protocol.ErrorData
	require.NoError(t, envs[len(envs)-1].Decode(&data))
	assert.Equal(t, int(protocol.CodeMalformed), data.Code)

	// The connection stays usable.
	ping, err := protocol.NewEnvelope(protocol.TypePing, protocol.PingData{Timestamp: time.Now()})
	require.NoError(t, err)
	send(t, conn, protocol.JSON, ping)
	readUntil(t, conn, protocol.TypePong)
}

func TestServer_SessionsAndDisconnect(t *testing.T) {
	s := createTestServer(t, simulation.WithManualClock(true))
	conn := s.dial(t)

	send(t, conn, protocol.JSON, initEnvelope(t, "manual", 0))
	readUntil(t, conn, protocol.TypeSessionReady)

	resp, err := http.Get(s.http.URL + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Sessions []simulation.Info `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "manual", body.Sessions[0].SessionId)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(s.manager.Sessions()) == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestServer_CheckOrigin(t *testing.T) {
	srv := New(zap.NewNop(), simulation.NewManager(zap.NewNop(), synthetic.NewFeed()), Config{
		AllowedOrigins: []string{"https://trader.example"},
	})

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"allowed", "https://trader.example", true},
		{"foreign", "https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, srv.checkOrigin(r))
		})
	}
}
