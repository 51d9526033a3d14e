package sandbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

// Orders above these limits are rejected with invalid_quantity.
const MaxQuantity int64 = 1_000_000_000_000

var MaxNotional = fixed.FromInt64(1_000_000_000_000_000, 0)

// Engine executes orders of a single session against the mark price of the
// session clock. It is not safe for concurrent use; the owning session
// serializes every call.
type Engine struct {
	logger    *zap.Logger
	sessionId string
	symbol    string
	listener  Listener

	commissionHandler CommissionHandler
	allowShort        bool

	book   *Book
	ledger *Ledger

	simulationTime time.Time
	orderSeq       uint64
	fillSeq        uint64
	ended          bool
}

func NewEngine(logger *zap.Logger, sessionId, symbol string, initialCash fixed.Point, options ...Option) *Engine {
	e := &Engine{
		logger:     logger,
		sessionId:  sessionId,
		symbol:     symbol,
		listener:   nopListener{},
		allowShort: true,
		book:       NewBook(),
		ledger:     NewLedger(symbol, initialCash),
	}

	for _, option := range options {
		option(e)
	}

	return e
}

// Start sets the simulated time and the reference price used before the
// first tick.
func (e *Engine) Start(t time.Time, price fixed.Point) {
	e.simulationTime = t
	e.ledger.MarkToMarket(price)
}

func (e *Engine) SimulationTime() time.Time { return e.simulationTime }
func (e *Engine) Mark() fixed.Point         { return e.ledger.Mark() }
func (e *Engine) Equity() fixed.Point       { return e.ledger.Equity() }
func (e *Engine) FillCount() uint64         { return e.fillSeq }
func (e *Engine) OpenOrderCount() int       { return e.book.Len() }
func (e *Engine) Ended() bool               { return e.ended }

func (e *Engine) Order(id string) (common.Order, bool) {
	return e.book.Get(id)
}

// Snapshot returns the account view including open orders.
func (e *Engine) Snapshot() common.Account {
	account := e.ledger.Snapshot(e.simulationTime)
	account.OpenOrders = e.book.Open()
	return account
}

func (e *Engine) Submit(ctx context.Context, req common.OrderRequest) (common.Order, error) {
	order := common.Order{
		Id:          req.Id,
		Side:        req.Side,
		Type:        req.Type,
		Timing:      req.Timing,
		TimeInForce: req.TimeInForce,
		Status:      common.OrderStatusPending,
		Symbol:      e.symbol,
		TimeStamp:   e.simulationTime,
	}

	if rejection := e.validate(&order, req); rejection != nil {
		order.Status = common.OrderStatusRejected
		e.logger.Debug("order rejected",
			zap.String("session_id", e.sessionId),
			zap.String("order_id", order.Id),
			zap.String("reason", string(rejection.Reason)),
			zap.String("detail", rejection.Detail))
		e.listener.OnOrderRejected(ctx, order, rejection.Reason)
		return order, rejection
	}

	e.orderSeq++
	order.Sequence = e.orderSeq
	order.Status = common.OrderStatusAccepted
	e.listener.OnOrderAccepted(ctx, order)

	var ent *entry
	switch order.Timing {
	case common.ExecutionTimingNextBar:
		ent = e.book.Add(order, phaseQueuedNextBar)
	case common.ExecutionTimingEOD:
		ent = e.book.Add(order, phaseQueuedEOD)
	default:
		ent = e.book.Add(order, phaseResting)
		if !e.attempt(ctx, ent, false) && ent.phase != 0 {
			if order.TimeInForce == common.TimeInForceImmediateOrCancel {
				ent.phase = phaseExpiring
			}
		}
	}

	return ent.order, nil
}

func (e *Engine) Cancel(ctx context.Context, id string) (common.Order, error) {
	if e.ended {
		return common.Order{}, ErrSessionEnded
	}
	ent := e.book.entry(id)
	if ent == nil {
		return common.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if ent.phase == 0 {
		return ent.order, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, ent.order.Status)
	}

	e.close(ctx, ent, common.OrderStatusCancelled, CloseCancelled, nil)
	if ent.order.IsLeg() {
		if sibling := e.book.entry(ent.order.SiblingId); sibling != nil && sibling.phase != 0 {
			e.close(ctx, sibling, common.OrderStatusCancelled, CloseCancelled, nil)
		}
	}
	return ent.order, nil
}

// OnTick resolves due orders against the new mark and revalues the account.
func (e *Engine) OnTick(ctx context.Context, tick common.Tick) {
	if e.ended {
		return
	}

	e.simulationTime = tick.TimeStamp
	e.ledger.MarkToMarket(tick.Price)

	for _, ent := range e.book.selectPhases(phaseExpiring) {
		e.close(ctx, ent, common.OrderStatusExpired, CloseExpired, nil)
	}

	if tick.IsEOD {
		for _, ent := range e.book.selectPhases(phaseResting) {
			if ent.order.TimeInForce == common.TimeInForceEndOfDay {
				e.close(ctx, ent, common.OrderStatusExpired, CloseExpired, nil)
			}
		}
	}

	for _, ent := range e.book.selectPhases(phaseQueuedNextBar, phaseResting) {
		e.resolveDeferred(ctx, ent, tick.IsEOD)
	}

	if tick.IsEOD {
		for _, ent := range e.book.selectPhases(phaseQueuedEOD) {
			e.resolveDeferred(ctx, ent, tick.IsEOD)
		}
	}

	e.evaluateLegs(ctx, tick.Price)
}

// Close ends the engine. Open orders are cancelled and later calls are
// rejected.
func (e *Engine) Close(ctx context.Context) {
	if e.ended {
		return
	}
	e.ended = true
	for _, ent := range e.book.selectPhases(phaseQueuedNextBar, phaseQueuedEOD, phaseResting, phaseExpiring, phaseArmed) {
		e.close(ctx, ent, common.OrderStatusCancelled, CloseSessionEnded, nil)
	}
}

func (e *Engine) validate(order *common.Order, req common.OrderRequest) *RejectError {
	if e.ended {
		return reject(order.Id, ReasonSessionEnded, "session %s has ended", e.sessionId)
	}
	if e.book.Has(order.Id) {
		return reject(order.Id, ReasonDuplicateOrderId, "order id already used in this session")
	}

	reference := e.ledger.Mark()
	if order.Type == common.OrderTypeLimit {
		if req.Price == nil {
			return reject(order.Id, ReasonMissingPrice, "limit order requires a price")
		}
		if !req.Price.IsPos() {
			return reject(order.Id, ReasonInvalidPrice, "price %s must be positive", req.Price)
		}
		order.Price = *req.Price
		reference = order.Price
	}

	switch {
	case (req.Quantity == nil) == (req.Amount == nil):
		return reject(order.Id, ReasonInvalidQuantity, "exactly one of quantity or amount must be set")
	case req.Quantity != nil:
		if *req.Quantity <= 0 {
			return reject(order.Id, ReasonInvalidQuantity, "quantity %d must be positive", *req.Quantity)
		}
		order.Quantity = *req.Quantity
	default:
		if !req.Amount.IsPos() {
			return reject(order.Id, ReasonInvalidQuantity, "amount %s must be positive", req.Amount)
		}
		if !reference.IsPos() {
			return reject(order.Id, ReasonInvalidQuantity, "no reference price to convert amount")
		}
		units, ok := req.Amount.CheckedDiv(reference)
		if !ok {
			return reject(order.Id, ReasonInvalidQuantity, "amount %s at %s is out of range", req.Amount, reference)
		}
		if order.Quantity, ok = units.Floor().CheckedInt64(); !ok {
			return reject(order.Id, ReasonInvalidQuantity, "amount %s at %s is out of range", req.Amount, reference)
		}
		if order.Quantity <= 0 {
			return reject(order.Id, ReasonInvalidQuantity, "amount %s buys no whole unit at %s", req.Amount, reference)
		}
	}

	if order.Quantity > MaxQuantity {
		return reject(order.Id, ReasonInvalidQuantity, "quantity %d exceeds %d", order.Quantity, MaxQuantity)
	}
	if notional, ok := reference.CheckedMulInt64(order.Quantity); !ok || notional.Gt(MaxNotional) {
		return reject(order.Id, ReasonInvalidQuantity, "notional of %d at %s exceeds %s", order.Quantity, reference, MaxNotional)
	}

	if req.StopLoss != nil {
		order.StopLoss = *req.StopLoss
	}
	if req.TakeProfit != nil {
		order.TakeProfit = *req.TakeProfit
	}
	if detail := validateBracket(order.Side, reference, req.StopLoss, req.TakeProfit); detail != "" {
		return reject(order.Id, ReasonInvalidBracket, "%s", detail)
	}

	fee := e.commission(*order, order.Quantity, reference)
	if reason := e.ledger.Check(order.Side, order.Quantity, reference, fee, e.allowShort); reason != "" {
		return reject(order.Id, reason, "%s %d at %s", order.Side, order.Quantity, reference)
	}
	return nil
}

// validateBracket requires the stop loss on the losing side and the take
// profit on the winning side of the reference price.
func validateBracket(side common.OrderSide, reference fixed.Point, stopLoss, takeProfit *fixed.Point) string {
	if stopLoss != nil && !stopLoss.IsPos() {
		return "stop loss must be positive"
	}
	if takeProfit != nil && !takeProfit.IsPos() {
		return "take profit must be positive"
	}
	if side == common.OrderSideBuy {
		if stopLoss != nil && stopLoss.Gte(reference) {
			return fmt.Sprintf("buy stop loss %s must be below %s", stopLoss, reference)
		}
		if takeProfit != nil && takeProfit.Lte(reference) {
			return fmt.Sprintf("buy take profit %s must be above %s", takeProfit, reference)
		}
		return ""
	}
	if stopLoss != nil && stopLoss.Lte(reference) {
		return fmt.Sprintf("sell stop loss %s must be above %s", stopLoss, reference)
	}
	if takeProfit != nil && takeProfit.Gte(reference) {
		return fmt.Sprintf("sell take profit %s must be below %s", takeProfit, reference)
	}
	return ""
}

// resolveDeferred gives a queued or resting order its attempt at a tick
// boundary and decides what happens when it does not fill.
func (e *Engine) resolveDeferred(ctx context.Context, ent *entry, isEOD bool) {
	if ent.phase == 0 {
		return
	}
	if e.attempt(ctx, ent, true) || ent.phase == 0 {
		return
	}
	switch {
	case ent.order.TimeInForce == common.TimeInForceImmediateOrCancel:
		e.close(ctx, ent, common.OrderStatusExpired, CloseExpired, nil)
	case ent.order.TimeInForce == common.TimeInForceEndOfDay && isEOD:
		e.close(ctx, ent, common.OrderStatusExpired, CloseExpired, nil)
	default:
		ent.phase = phaseResting
	}
}

// attempt tries to fill the order at the current mark. Limit orders fill at
// the better of limit and mark when submitted marketable, and at the limit
// price at a tick boundary.
func (e *Engine) attempt(ctx context.Context, ent *entry, atBoundary bool) bool {
	order := ent.order
	mark := e.ledger.Mark()
	price := mark

	switch order.Type {
	case common.OrderTypeLimit:
		if !isMarketable(order.Side, order.Price, mark) {
			return false
		}
		if atBoundary {
			price = order.Price
		} else if order.Side == common.OrderSideBuy {
			price = fixed.Min(order.Price, mark)
		} else {
			price = fixed.Max(order.Price, mark)
		}
	case common.OrderTypeMarket:
	default:
		e.logger.Warn("unknown order type", zap.String("order_id", order.Id), zap.String("type", string(order.Type)))
		return false
	}

	return e.execute(ctx, ent, price)
}

func (e *Engine) execute(ctx context.Context, ent *entry, price fixed.Point) bool {
	order := &ent.order
	quantity := order.Remaining()
	fee := e.commission(*order, quantity, price)

	if reason := e.ledger.Check(order.Side, quantity, price, fee, e.allowShort); reason != "" {
		cause := reject(order.Id, reason, "%s %d at %s", order.Side, quantity, price)
		e.close(ctx, ent, common.OrderStatusCancelled, CloseExecutionFailed, cause)
		return false
	}

	fill := common.Fill{
		Id:        utility.FillID(e.sessionId, e.fillSeq+1),
		OrderId:   order.Id,
		Side:      order.Side,
		Price:     price,
		Quantity:  quantity,
		Fee:       fee,
		Sequence:  e.fillSeq + 1,
		Symbol:    e.symbol,
		TimeStamp: e.simulationTime,
	}
	if err := e.ledger.Apply(fill); err != nil {
		e.logger.Error("unable to apply fill",
			zap.String("session_id", e.sessionId),
			zap.String("order_id", order.Id),
			zap.Error(err))
		e.close(ctx, ent, common.OrderStatusCancelled, CloseExecutionFailed, err)
		return false
	}
	e.fillSeq++

	order.FilledQuantity += quantity
	order.Status = common.OrderStatusFilled
	e.book.remove(ent)

	e.listener.OnOrderFilled(ctx, *order, fill)

	if order.HasBracket() {
		e.spawnLegs(*order, fill)
	}
	return true
}

// spawnLegs arms the protective orders of a filled bracket parent. Legs are
// opposite market orders for the filled quantity, cancelling each other.
func (e *Engine) spawnLegs(parent common.Order, fill common.Fill) {
	newLeg := func(kind common.LegKind, suffix string, trigger fixed.Point) common.Order {
		id := parent.Id + suffix
		if e.book.Has(id) {
			id = fmt.Sprintf("%s#%d", id, e.orderSeq+1)
		}
		e.orderSeq++
		return common.Order{
			Id:           id,
			Side:         parent.Side.Opposite(),
			Type:         common.OrderTypeMarket,
			Quantity:     fill.Quantity,
			Timing:       common.ExecutionTimingImmediate,
			TimeInForce:  common.TimeInForceGoodTillCancel,
			Status:       common.OrderStatusAccepted,
			Sequence:     e.orderSeq,
			Leg:          kind,
			ParentId:     parent.Id,
			TriggerPrice: trigger,
			Symbol:       e.symbol,
			TimeStamp:    e.simulationTime,
		}
	}

	var legs []common.Order
	if !parent.StopLoss.IsZero() {
		legs = append(legs, newLeg(common.LegStopLoss, ":sl", parent.StopLoss))
	}
	if !parent.TakeProfit.IsZero() {
		legs = append(legs, newLeg(common.LegTakeProfit, ":tp", parent.TakeProfit))
	}
	if len(legs) == 2 {
		legs[0].SiblingId = legs[1].Id
		legs[1].SiblingId = legs[0].Id
	}
	for _, leg := range legs {
		e.book.Add(leg, phaseArmed)
		e.logger.Debug("bracket leg armed",
			zap.String("session_id", e.sessionId),
			zap.String("order_id", leg.Id),
			zap.Stringer("leg", leg.Leg),
			zap.Stringer("trigger", leg.TriggerPrice))
	}
}

func (e *Engine) evaluateLegs(ctx context.Context, mark fixed.Point) {
	for _, ent := range e.book.selectPhases(phaseArmed) {
		if ent.phase != phaseArmed || !isTriggered(ent.order, mark) {
			continue
		}
		e.execute(ctx, ent, mark)
		if sibling := e.book.entry(ent.order.SiblingId); sibling != nil && sibling.phase != 0 {
			e.close(ctx, sibling, common.OrderStatusCancelled, CloseSiblingTriggered, nil)
		}
	}
}

func (e *Engine) close(ctx context.Context, ent *entry, status common.OrderStatus, reason CloseReason, cause error) {
	ent.order.Status = status
	e.book.remove(ent)
	e.listener.OnOrderClosed(ctx, ent.order, reason, cause)
}

func (e *Engine) commission(order common.Order, quantity int64, price fixed.Point) fixed.Point {
	if e.commissionHandler == nil {
		return fixed.Zero
	}
	return e.commissionHandler(order, quantity, price)
}

func isMarketable(side common.OrderSide, limit, mark fixed.Point) bool {
	if side == common.OrderSideBuy {
		return limit.Gte(mark)
	}
	return limit.Lte(mark)
}

// isTriggered checks a bracket leg against the mark. A sell leg protects a
// long position, a buy leg a short one.
func isTriggered(leg common.Order, mark fixed.Point) bool {
	switch {
	case leg.Side == common.OrderSideSell && leg.Leg == common.LegStopLoss:
		return mark.Lte(leg.TriggerPrice)
	case leg.Side == common.OrderSideSell && leg.Leg == common.LegTakeProfit:
		return mark.Gte(leg.TriggerPrice)
	case leg.Side == common.OrderSideBuy && leg.Leg == common.LegStopLoss:
		return mark.Gte(leg.TriggerPrice)
	case leg.Side == common.OrderSideBuy && leg.Leg == common.LegTakeProfit:
		return mark.Lte(leg.TriggerPrice)
	}
	return false
}
