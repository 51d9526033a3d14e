package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/bus"
	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
	"github.com/peter-kozarec/simutrade/pkg/exchange/sandbox"
	"github.com/peter-kozarec/simutrade/pkg/protocol"
	"github.com/peter-kozarec/simutrade/pkg/tools/metrics"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

var (
	errSessionComplete = errors.New("session complete")
	errClosedByClient  = errors.New("session closed by client")
)

const defaultQueueCapacity = 1024

type State int32

const (
	StateInitializing State = iota
	StateRunning
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// End reasons reported in session_end and the archive.
const (
	ReasonCompleted    = "completed"
	ReasonClientClose  = "client_close"
	ReasonDisconnected = "disconnected"
	ReasonShutdown     = "shutdown"
	ReasonCancelled    = "cancelled"
	ReasonFeedError    = "feed_error"
	ReasonInternal     = "internal_error"
)

type Config struct {
	Id              string
	Symbol          string
	Timeframe       common.Timeframe
	Start           time.Time
	End             time.Time
	ClockSpeed      time.Duration
	InitialCash     fixed.Point
	ProtocolVersion string
	// Manual sessions advance only through Advance.
	Manual bool
}

// Settings are the server wide knobs every session inherits.
type Settings struct {
	QueueCapacity     int
	CommissionPerUnit fixed.Point
	AllowShort        bool
	PrivacyMode       bool
}

type Result struct {
	SessionId string
	ClientId  string
	Symbol    string
	Timeframe common.Timeframe
	Start     time.Time
	End       time.Time
	Reason    string
	Report    metrics.Report
}

type Info struct {
	SessionId string           `json:"session_id"`
	ClientId  string           `json:"client_id"`
	Symbol    string           `json:"symbol"`
	Timeframe common.Timeframe `json:"timeframe"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	SimTime   time.Time        `json:"sim_time"`
	State     string           `json:"state"`
}

// Session owns the clock, engine and ledger of one simulation. All of them
// are touched only by the session goroutine; other goroutines talk to it
// through the command router.
type Session struct {
	logger   *zap.Logger
	cfg      Config
	settings Settings
	client   *Client

	router *bus.Router
	series datasource.Series
	clock  *Clock
	engine *sandbox.Engine
	audit  *metrics.Audit

	state      atomic.Int32
	simTime    atomic.Int64
	stopReason atomic.Pointer[string]
	endReason  string

	cancel context.CancelFunc
	done   chan struct{}
	result Result
	onEnd  func(Result)
}

// NewSession prepares a session over series. The series is owned by the
// session from the moment it runs; on error the caller keeps it.
func NewSession(logger *zap.Logger, cfg Config, settings Settings, client *Client, series datasource.Series) (*Session, error) {
	clock, err := NewClock(series, cfg.Symbol, cfg.Start, cfg.End)
	if err != nil {
		return nil, err
	}

	capacity := settings.QueueCapacity
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}

	s := &Session{
		logger:   logger.With(zap.String("session_id", cfg.Id)),
		cfg:      cfg,
		settings: settings,
		client:   client,
		series:   series,
		clock:    clock,
		audit:    metrics.NewAudit(cfg.Timeframe, cfg.Start, cfg.InitialCash),
		done:     make(chan struct{}),
	}

	options := []sandbox.Option{
		sandbox.WithListener(engineListener{s}),
		sandbox.WithAllowShort(settings.AllowShort),
	}
	if settings.CommissionPerUnit.IsPos() {
		options = append(options, sandbox.WithCommissionPerUnit(settings.CommissionPerUnit))
	}
	s.engine = sandbox.NewEngine(s.logger, cfg.Id, cfg.Symbol, cfg.InitialCash, options...)
	s.engine.Start(cfg.Start, clock.First().Open)

	s.router = bus.NewRouter(s.logger, capacity)
	s.router.OnOrder = s.onOrder
	s.router.OnCancel = s.onCancel
	s.router.OnAdvance = s.onAdvance
	s.router.OnClose = s.onClose
	s.router.OnPanic = s.onPanic

	s.simTime.Store(cfg.Start.UnixNano())
	return s, nil
}

func (s *Session) Id() string            { return s.cfg.Id }
func (s *Session) Config() Config        { return s.cfg }
func (s *Session) State() State          { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) SimTime() time.Time    { return time.Unix(0, s.simTime.Load()).UTC() }

func (s *Session) Statistics() bus.Statistics {
	return s.router.Statistics()
}

// Result is valid once Done is closed.
func (s *Session) Result() Result {
	<-s.done
	return s.result
}

func (s *Session) Info() Info {
	return Info{
		SessionId: s.cfg.Id,
		ClientId:  s.client.Id,
		Symbol:    s.cfg.Symbol,
		Timeframe: s.cfg.Timeframe,
		Start:     s.cfg.Start,
		End:       s.cfg.End,
		SimTime:   s.SimTime(),
		State:     s.State().String(),
	}
}

// Run starts the session goroutine. onEnd is called from it after
// session_end has been sent.
func (s *Session) Run(ctx context.Context, onEnd func(Result)) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.onEnd = onEnd
	s.state.Store(int32(StateRunning))

	s.logger.Info("session started",
		zap.String("symbol", s.cfg.Symbol),
		zap.Stringer("timeframe", s.cfg.Timeframe),
		zap.Time("start", s.cfg.Start),
		zap.Time("end", s.cfg.End),
		zap.Duration("clock_speed", s.cfg.ClockSpeed),
		zap.Bool("manual", s.cfg.Manual))

	var errChan <-chan error
	if s.cfg.Manual {
		errChan = s.router.Exec(ctx)
	} else {
		errChan = s.router.ExecLoop(ctx, s.cfg.ClockSpeed, s.step)
	}

	go func() {
		defer close(s.done)
		s.finish(ctx, <-errChan)
	}()
}

func (s *Session) Submit(req common.OrderRequest) error {
	return s.post(bus.OrderCommand, req)
}

func (s *Session) Cancel(orderId string) error {
	return s.post(bus.CancelCommand, orderId)
}

// Advance asks a manual session to move steps ticks forward.
func (s *Session) Advance(steps int) error {
	return s.post(bus.AdvanceCommand, steps)
}

// Close ends the session after the commands queued before it.
func (s *Session) Close() error {
	return s.post(bus.CloseCommand, ReasonClientClose)
}

// Stop cancels the session and waits until its goroutine has exited. No
// tick or fill is sent after Stop returns.
func (s *Session) Stop(ctx context.Context, reason string) error {
	if s.cancel == nil {
		return nil
	}
	s.stopReason.CompareAndSwap(nil, &reason)
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("unable to stop session %s: %w", s.cfg.Id, ctx.Err())
	}
}

func (s *Session) post(id bus.CommandId, data interface{}) error {
	if s.State() == StateEnded {
		return sandbox.ErrSessionEnded
	}
	if err := s.router.Post(id, data); err != nil {
		if errors.Is(err, bus.ErrRouterClosed) {
			return sandbox.ErrSessionEnded
		}
		return fmt.Errorf("session %s: %w", s.cfg.Id, err)
	}
	return nil
}

func (s *Session) step(ctx context.Context) error {
	tick, ok, err := s.clock.Advance()
	if err != nil {
		s.end(ctx, ReasonFeedError)
		return err
	}
	if !ok {
		s.end(ctx, ReasonCompleted)
		return errSessionComplete
	}

	s.onTick(ctx, tick)

	if s.clock.Ended() {
		s.end(ctx, ReasonCompleted)
		return errSessionComplete
	}
	return nil
}

func (s *Session) onTick(ctx context.Context, tick common.Tick) {
	s.engine.OnTick(ctx, tick)
	s.simTime.Store(tick.TimeStamp.UnixNano())
	s.audit.OnEquity(tick.TimeStamp, s.engine.Equity())

	s.send(ctx, protocol.TypeTick, protocol.TickData{
		SessionId: s.cfg.Id,
		SimTime:   tick.TimeStamp,
		BarId:     BarId(s.cfg.Symbol, s.cfg.Timeframe, tick.TimeStamp),
		IsEOD:     tick.IsEOD,
		Price:     tick.Price,
	})
	s.sendAccount(ctx)
}

func (s *Session) onOrder(ctx context.Context, req common.OrderRequest) error {
	if s.engine.Ended() {
		s.sendError(ctx, protocol.Errorf(protocol.CodeSessionEnded, "session %s has ended", s.cfg.Id).WithOrder(req.Id))
		return nil
	}
	if _, err := s.engine.Submit(ctx, req); err != nil {
		return nil
	}
	s.sendAccount(ctx)
	return nil
}

func (s *Session) onCancel(ctx context.Context, orderId string) error {
	if _, err := s.engine.Cancel(ctx, orderId); err != nil {
		s.sendError(ctx, cancelError(orderId, err))
		return nil
	}
	s.sendAccount(ctx)
	return nil
}

func (s *Session) onAdvance(ctx context.Context, steps int) error {
	if s.engine.Ended() {
		return nil
	}
	if steps <= 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		if err := s.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) onClose(ctx context.Context, reason string) error {
	s.end(ctx, reason)
	return errClosedByClient
}

// end stops the engine. Commands still queued behind it are answered with
// session ended errors.
func (s *Session) end(ctx context.Context, reason string) {
	if s.engine.Ended() {
		return
	}
	s.endReason = reason
	s.engine.Close(ctx)
	s.state.Store(int32(StateEnded))
}

func (s *Session) finish(ctx context.Context, err error) {
	ctx = context.WithoutCancel(ctx)

	switch {
	case errors.Is(err, errSessionComplete), errors.Is(err, errClosedByClient):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason := ReasonCancelled
		if stopReason := s.stopReason.Load(); stopReason != nil {
			reason = *stopReason
		}
		s.end(ctx, reason)
	case errors.Is(err, bus.ErrHandlerPanic):
		s.logger.Error("session failed", zap.Error(err))
		s.end(ctx, ReasonInternal)
	default:
		s.logger.Error("session failed", zap.Error(err))
		s.end(ctx, ReasonFeedError)
	}

	s.router.Close(func(id bus.CommandId, data interface{}) {
		s.reject(ctx, id, data)
	})

	if err := s.series.Close(); err != nil {
		s.logger.Warn("unable to close series", zap.Error(err))
	}

	report := s.audit.GenerateReport()
	s.result = Result{
		SessionId: s.cfg.Id,
		ClientId:  s.client.Id,
		Symbol:    s.cfg.Symbol,
		Timeframe: s.cfg.Timeframe,
		Start:     s.cfg.Start,
		End:       s.cfg.End,
		Reason:    s.endReason,
		Report:    report,
	}

	s.send(ctx, protocol.TypeSessionEnd, protocol.SessionEndData{
		SessionId:   s.cfg.Id,
		FinalEquity: report.FinalEquity,
		DurationSec: report.Duration.Seconds(),
		TotalTrades: report.TotalTrades,
		SharpeRatio: report.SharpeRatio,
		MaxDrawdown: report.MaxDrawdown,
		Reason:      s.endReason,
	})

	s.logger.Info("session ended", zap.String("reason", s.endReason), zap.Uint64("ticks", s.clock.Sequence()))
	report.Print(s.logger)

	if s.onEnd != nil {
		s.onEnd(s.result)
	}
}

// onPanic answers a command whose handler panicked. The session keeps
// running.
func (s *Session) onPanic(ctx context.Context, id bus.CommandId, data interface{}, err error) {
	s.sendError(ctx, commandError(protocol.Errorf(protocol.CodeInternal, "%s failed: %v", id, err), id, data))
}

// reject answers a command that was queued when the session ended.
func (s *Session) reject(ctx context.Context, id bus.CommandId, data interface{}) {
	switch id {
	case bus.OrderCommand, bus.CancelCommand:
		s.sendError(ctx, commandError(protocol.Errorf(protocol.CodeSessionEnded, "session %s has ended", s.cfg.Id), id, data))
	}
}

func commandError(err *protocol.Error, id bus.CommandId, data interface{}) *protocol.Error {
	switch v := data.(type) {
	case common.OrderRequest:
		return err.WithOrder(v.Id)
	case string:
		if id == bus.CancelCommand {
			return err.WithOrder(v)
		}
	}
	return err
}

func (s *Session) sendAccount(ctx context.Context) {
	s.send(ctx, protocol.TypeAccountUpdate, protocol.NewAccountUpdateData(s.cfg.Id, s.engine.Snapshot(), s.settings.PrivacyMode))
}

func (s *Session) sendError(ctx context.Context, err *protocol.Error) {
	s.send(ctx, protocol.TypeError, err.Data(s.cfg.Id))
}

func (s *Session) send(ctx context.Context, msgType protocol.MessageType, data any) {
	if err := s.client.Send(ctx, msgType, data); err != nil {
		s.logger.Debug("unable to send message", zap.String("type", string(msgType)), zap.Error(err))
	}
}

func cancelError(orderId string, err error) *protocol.Error {
	switch {
	case errors.Is(err, sandbox.ErrUnknownOrder):
		return protocol.Errorf(protocol.CodeUnknownOrder, "unknown order %s", orderId).WithOrder(orderId)
	case errors.Is(err, sandbox.ErrAlreadyTerminal):
		return protocol.Errorf(protocol.CodeOrderTerminal, "%v", err).WithOrder(orderId)
	case errors.Is(err, sandbox.ErrSessionEnded):
		return protocol.Errorf(protocol.CodeSessionEnded, "%v", err).WithOrder(orderId)
	}
	return protocol.Errorf(protocol.CodeInternal, "%v", err).WithOrder(orderId)
}

// engineListener turns engine callbacks into outbound events.
type engineListener struct {
	s *Session
}

func (l engineListener) OnOrderAccepted(ctx context.Context, order common.Order) {
	l.s.send(ctx, protocol.TypeOrderAck, protocol.OrderAckData{
		SessionId: l.s.cfg.Id,
		OrderId:   order.Id,
		Status:    common.OrderStatusAccepted,
	})
}

func (l engineListener) OnOrderRejected(ctx context.Context, order common.Order, reason sandbox.RejectReason) {
	l.s.send(ctx, protocol.TypeOrderAck, protocol.OrderAckData{
		SessionId: l.s.cfg.Id,
		OrderId:   order.Id,
		Status:    common.OrderStatusRejected,
		Reason:    string(reason),
	})
}

func (l engineListener) OnOrderFilled(ctx context.Context, _ common.Order, fill common.Fill) {
	l.s.audit.OnFill(fill)
	l.s.send(ctx, protocol.TypeFill, protocol.NewFillData(l.s.cfg.Id, fill))
}

func (l engineListener) OnOrderClosed(ctx context.Context, order common.Order, reason sandbox.CloseReason, cause error) {
	l.s.logger.Debug("order closed",
		zap.String("order_id", order.Id),
		zap.String("reason", string(reason)),
		zap.Error(cause))

	if reason == sandbox.CloseExecutionFailed {
		l.s.sendError(ctx, protocol.Errorf(protocol.CodeExecutionFailed, "order %s could not execute: %v", order.Id, cause).WithOrder(order.Id))
	}
}
