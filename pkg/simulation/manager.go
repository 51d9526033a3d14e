package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/archive"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
	"github.com/peter-kozarec/simutrade/pkg/exchange/sandbox"
	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/utility"
)

var ErrManagerClosed = errors.New("session manager closed")

const (
	defaultEndedHistory = 4096
	archiveTimeout      = 5 * time.Second
	// One day per tick is the slowest pace a session accepts.
	maxClockSpeed = int64(24 * time.Hour / time.Millisecond)
)

type ManagerOption func(*Manager)

func WithRecorder(recorder archive.Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

// WithMaxSessions caps the number of concurrently running sessions. Zero
// means no limit.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) {
		m.maxSessions = n
	}
}

func WithSettings(settings Settings) ManagerOption {
	return func(m *Manager) {
		m.settings = settings
	}
}

// WithManualClock makes every new session advance only through Advance.
func WithManualClock(manual bool) ManagerOption {
	return func(m *Manager) {
		m.manual = manual
	}
}

// Manager owns the session table and routes client messages to sessions.
type Manager struct {
	logger   *zap.Logger
	feed     datasource.Feed
	recorder archive.Recorder
	settings Settings

	maxSessions int
	manual      bool

	mu         sync.Mutex
	sessions   map[string]*Session
	ended      map[string]*Client
	endedOrder []string
	closed     bool
}

func NewManager(logger *zap.Logger, feed datasource.Feed, options ...ManagerOption) *Manager {
	m := &Manager{
		logger:   logger,
		feed:     feed,
		recorder: archive.Nop{},
		settings: Settings{AllowShort: true},
		sessions: make(map[string]*Session),
		ended:    make(map[string]*Client),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// Handle processes one inbound envelope. Failures are reported to the client
// as error events; the connection always stays usable.
func (m *Manager) Handle(ctx context.Context, client *Client, env protocol.Envelope) {
	var err error
	switch env.Type {
	case protocol.TypeInitSession:
		err = m.handleInit(ctx, client, env)
	case protocol.TypeOrder:
		err = m.handleOrder(client, env)
	case protocol.TypeCancel:
		err = m.handleCancel(client, env)
	case protocol.TypeCloseSession:
		err = m.handleClose(client, env)
	case protocol.TypePing:
		err = m.handlePing(ctx, client, env)
	default:
		err = protocol.Errorf(protocol.CodeUnknownType, "unknown message type %q", env.Type)
	}

	if err != nil {
		m.ReportError(ctx, client, "", err)
	}
}

// ReportError sends err to the client as an error event.
func (m *Manager) ReportError(ctx context.Context, client *Client, sessionId string, err error) {
	pErr := protocol.AsError(err)
	if pErr.Code == protocol.CodeInternal {
		m.logger.Error("request failed", zap.String("client_id", client.Id), zap.Error(err))
	} else {
		m.logger.Debug("request rejected", zap.String("client_id", client.Id), zap.Error(err))
	}
	if sendErr := client.Send(ctx, protocol.TypeError, pErr.Data(sessionId)); sendErr != nil {
		m.logger.Debug("unable to send error", zap.String("client_id", client.Id), zap.Error(sendErr))
	}
}

func (m *Manager) handleInit(ctx context.Context, client *Client, env protocol.Envelope) error {
	var data protocol.InitSessionData
	if err := env.Decode(&data); err != nil {
		return err
	}

	cfg, err := m.configure(data)
	if err != nil {
		return err
	}

	session, err := m.Open(ctx, client, cfg)
	if err != nil {
		return err
	}

	if err := client.Send(ctx, protocol.TypeSessionReady, protocol.SessionReadyData{
		SessionId: cfg.Id,
		SimTime:   cfg.Start,
	}); err != nil {
		m.logger.Debug("unable to send session ready", zap.String("session_id", cfg.Id), zap.Error(err))
	}

	session.Run(context.WithoutCancel(ctx), m.onSessionEnd)
	return nil
}

func (m *Manager) configure(data protocol.InitSessionData) (Config, error) {
	if !protocol.IsSupportedVersion(data.ProtocolVersion) {
		return Config{}, protocol.Errorf(protocol.CodeUnsupportedVersion, "unsupported protocol version %q", data.ProtocolVersion)
	}
	if !data.Timeframe.Valid() {
		return Config{}, protocol.Errorf(protocol.CodeInvalidParams, "unsupported timeframe %q", data.Timeframe)
	}
	if !data.Start.Before(data.End) {
		return Config{}, protocol.Errorf(protocol.CodeInvalidParams, "start %s must be before end %s",
			data.Start.Format(time.RFC3339), data.End.Format(time.RFC3339))
	}
	if !data.InitialCash.IsPos() {
		return Config{}, protocol.Errorf(protocol.CodeInvalidParams, "initial cash %s must be positive", data.InitialCash)
	}
	if data.ClockSpeed < 0 || data.ClockSpeed > maxClockSpeed {
		return Config{}, protocol.Errorf(protocol.CodeInvalidParams, "clock speed %d must be between 0 and %d", data.ClockSpeed, maxClockSpeed)
	}

	version := data.ProtocolVersion
	if version == "" {
		version = protocol.DefaultVersion
	}

	return Config{
		Id:              data.SessionId,
		Symbol:          data.Symbol,
		Timeframe:       data.Timeframe,
		Start:           data.Start.UTC(),
		End:             data.End.UTC(),
		ClockSpeed:      time.Duration(data.ClockSpeed) * time.Millisecond,
		InitialCash:     data.InitialCash,
		ProtocolVersion: version,
		Manual:          m.manual,
	}, nil
}

// Open creates a session for client and registers it. The caller starts it
// with Run.
func (m *Manager) Open(ctx context.Context, client *Client, cfg Config) (*Session, error) {
	if err := m.reserve(cfg.Id); err != nil {
		return nil, err
	}

	session, err := m.create(ctx, client, cfg)
	if err != nil {
		m.release(cfg.Id)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[cfg.Id] = session
	m.mu.Unlock()

	client.bind(cfg.Id)
	return session, nil
}

func (m *Manager) create(ctx context.Context, client *Client, cfg Config) (*Session, error) {
	series, err := m.feed.Open(ctx, cfg.Symbol, cfg.Timeframe, cfg.Start, cfg.End)
	if err != nil {
		return nil, protocol.Errorf(protocol.CodeFeedUnavailable, "price feed unavailable for %s %s: %v", cfg.Symbol, cfg.Timeframe, err)
	}

	session, err := NewSession(m.logger, cfg, m.settings, client, series)
	if err != nil {
		_ = series.Close()
		return nil, protocol.Errorf(protocol.CodeFeedUnavailable, "price feed unavailable for %s %s: %v", cfg.Symbol, cfg.Timeframe, err)
	}
	return session, nil
}

// reserve claims the id with a nil entry so concurrent inits of the same id
// cannot both load the feed.
func (m *Manager) reserve(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return protocol.Errorf(protocol.CodeInternal, "%v", ErrManagerClosed)
	}
	if _, ok := m.sessions[id]; ok {
		return protocol.Errorf(protocol.CodeDuplicateSession, "session %s is already active", id)
	}
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return protocol.Errorf(protocol.CodeSessionLimit, "session limit of %d reached", m.maxSessions)
	}
	m.sessions[id] = nil
	delete(m.ended, id)
	return nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[id]; ok && session == nil {
		delete(m.sessions, id)
	}
}

// resolve finds the session a message is for: the explicit id when given,
// otherwise the client's most recent session. Sessions owned by another
// client are reported as unknown.
func (m *Manager) resolve(client *Client, sessionId string) (*Session, error) {
	if sessionId == "" {
		sessionId = client.Bound()
	}
	if sessionId == "" {
		return nil, protocol.Errorf(protocol.CodeUnknownSession, "no session bound to this connection")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if session := m.sessions[sessionId]; session != nil && session.client == client {
		return session, nil
	}
	if owner, ok := m.ended[sessionId]; ok && owner == client {
		return nil, protocol.Errorf(protocol.CodeSessionEnded, "session %s has ended", sessionId)
	}
	return nil, protocol.Errorf(protocol.CodeUnknownSession, "unknown session %s", sessionId)
}

func (m *Manager) handleOrder(client *Client, env protocol.Envelope) error {
	var data protocol.OrderData
	if err := env.Decode(&data); err != nil {
		return err
	}
	session, err := m.resolve(client, data.SessionId)
	if err != nil {
		return withOrder(err, data.OrderId)
	}
	return withOrder(postError(session, session.Submit(data.Request())), data.OrderId)
}

func (m *Manager) handleCancel(client *Client, env protocol.Envelope) error {
	var data protocol.CancelOrderData
	if err := env.Decode(&data); err != nil {
		return err
	}
	session, err := m.resolve(client, data.SessionId)
	if err != nil {
		return withOrder(err, data.OrderId)
	}
	return withOrder(postError(session, session.Cancel(data.OrderId)), data.OrderId)
}

func (m *Manager) handleClose(client *Client, env protocol.Envelope) error {
	var data protocol.CloseSessionData
	if err := env.Decode(&data); err != nil {
		return err
	}
	session, err := m.resolve(client, data.SessionId)
	if err != nil {
		return err
	}
	return postError(session, session.Close())
}

func (m *Manager) handlePing(ctx context.Context, client *Client, env protocol.Envelope) error {
	var data protocol.PingData
	if err := env.Decode(&data); err != nil {
		return err
	}
	return client.Send(ctx, protocol.TypePong, protocol.PongData{Timestamp: time.Now().UTC()})
}

func postError(session *Session, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sandbox.ErrSessionEnded):
		return protocol.Errorf(protocol.CodeSessionEnded, "session %s has ended", session.Id())
	default:
		return protocol.Errorf(protocol.CodeSessionBusy, "%v", err)
	}
}

func withOrder(err error, orderId string) error {
	if err == nil {
		return nil
	}
	return protocol.AsError(err).WithOrder(orderId)
}

func (m *Manager) onSessionEnd(result Result) {
	m.mu.Lock()
	var owner *Client
	if session := m.sessions[result.SessionId]; session != nil {
		owner = session.client
	}
	delete(m.sessions, result.SessionId)
	m.ended[result.SessionId] = owner
	m.endedOrder = append(m.endedOrder, result.SessionId)
	if len(m.endedOrder) > defaultEndedHistory {
		oldest := m.endedOrder[0]
		m.endedOrder = m.endedOrder[1:]
		if _, active := m.sessions[oldest]; !active {
			delete(m.ended, oldest)
		}
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	record := archive.Record{
		ExecutionId: utility.GetExecutionID().String(),
		SessionId:   result.SessionId,
		ClientId:    result.ClientId,
		Symbol:      result.Symbol,
		Timeframe:   result.Timeframe.String(),
		Start:       result.Start,
		End:         result.End,
		Reason:      result.Reason,
		FinalEquity: result.Report.FinalEquity,
		DurationSec: result.Report.Duration.Seconds(),
		TotalTrades: result.Report.TotalTrades,
		SharpeRatio: result.Report.SharpeRatio,
		MaxDrawdown: result.Report.MaxDrawdown,
		RecordedAt:  time.Now().UTC(),
	}
	if err := m.recorder.Record(ctx, record); err != nil {
		m.logger.Warn("unable to archive session", zap.String("session_id", result.SessionId), zap.Error(err))
	}
}

// Session returns a running session.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.sessions[id]
	return session, session != nil
}

// Sessions lists the running sessions ordered by id.
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if session != nil {
			active = append(active, session)
		}
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(active))
	for _, session := range active {
		infos = append(infos, session.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionId < infos[j].SessionId })
	return infos
}

// Disconnect stops every session of client and waits for them to finish.
func (m *Manager) Disconnect(ctx context.Context, client *Client) error {
	return m.stop(ctx, m.owned(client), ReasonDisconnected)
}

// Shutdown stops all sessions and closes the recorder. New sessions are
// refused from the moment it is called.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if session != nil {
			sessions = append(sessions, session)
		}
	}
	m.mu.Unlock()

	err := m.stop(ctx, sessions, ReasonShutdown)
	return multierr.Append(err, m.recorder.Close())
}

func (m *Manager) owned(client *Client) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sessions []*Session
	for _, id := range client.Sessions() {
		if session := m.sessions[id]; session != nil && session.client == client {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

func (m *Manager) stop(ctx context.Context, sessions []*Session, reason string) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, session := range sessions {
		wg.Add(1)
		go func(session *Session) {
			defer wg.Done()
			if err := session.Stop(ctx, reason); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(session)
	}
	wg.Wait()

	if errs != nil {
		return fmt.Errorf("unable to stop %d sessions: %w", len(multierr.Errors(errs)), errs)
	}
	return nil
}
