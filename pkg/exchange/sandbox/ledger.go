package sandbox

import (
	"fmt"
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

type ledgerState struct {
	cash     fixed.Point
	quantity int64
	avgEntry fixed.Point
	realized fixed.Point
	fees     fixed.Point
	mark     fixed.Point
}

// Ledger tracks cash and the net position of a single symbol. Its only
// writer is the Engine, so it holds no locks.
type Ledger struct {
	symbol      string
	initialCash fixed.Point
	state       ledgerState
}

func NewLedger(symbol string, initialCash fixed.Point) *Ledger {
	return &Ledger{
		symbol:      symbol,
		initialCash: initialCash,
		state: ledgerState{
			cash:     initialCash,
			avgEntry: fixed.Zero,
			realized: fixed.Zero,
			fees:     fixed.Zero,
			mark:     fixed.Zero,
		},
	}
}

func (l *Ledger) Cash() fixed.Point        { return l.state.cash }
func (l *Ledger) Quantity() int64          { return l.state.quantity }
func (l *Ledger) Mark() fixed.Point        { return l.state.mark }
func (l *Ledger) InitialCash() fixed.Point { return l.initialCash }

// Equity is cash plus the position valued at the mark.
func (l *Ledger) Equity() fixed.Point {
	return l.state.cash.Add(l.state.mark.MulInt64(l.state.quantity))
}

func (l *Ledger) Position() common.Position {
	s := l.state
	unrealized := fixed.Zero
	avg := fixed.Zero
	if s.quantity != 0 {
		avg = s.avgEntry
		unrealized = s.mark.Sub(s.avgEntry).MulInt64(s.quantity)
	}
	return common.Position{
		Symbol:        l.symbol,
		Quantity:      s.quantity,
		AvgEntryPrice: avg,
		MarkPrice:     s.mark,
		UnrealizedPnL: unrealized,
		RealizedPnL:   s.realized,
	}
}

func (l *Ledger) Snapshot(t time.Time) common.Account {
	return common.Account{
		Cash:        l.state.cash,
		Equity:      l.Equity(),
		RealizedPnL: l.state.realized,
		Fees:        l.state.fees,
		Position:    l.Position(),
		TimeStamp:   t,
	}
}

func (l *Ledger) MarkToMarket(price fixed.Point) {
	l.state.mark = price
}

// Check reports whether a fill of quantity units at price, with fee, would
// be affordable. Short exposure must be covered by equity of at least its
// notional value.
func (l *Ledger) Check(side common.OrderSide, quantity int64, price, fee fixed.Point, allowShort bool) RejectReason {
	notional, ok := price.CheckedMulInt64(quantity)
	if !ok || notional.Gt(MaxNotional) {
		return ReasonInvalidQuantity
	}
	s := l.state

	if side == common.OrderSideBuy {
		if s.cash.Sub(notional).Sub(fee).IsNeg() {
			return ReasonInsufficientCash
		}
		return ""
	}

	cashAfter := s.cash.Add(notional).Sub(fee)
	if cashAfter.IsNeg() {
		return ReasonInsufficientCash
	}
	remaining := s.quantity - quantity
	if remaining >= 0 {
		return ""
	}
	if !allowShort {
		return ReasonInsufficientPosition
	}
	short, ok := price.CheckedMulInt64(-remaining)
	if !ok {
		return ReasonInvalidQuantity
	}
	if cashAfter.Sub(short).Lt(short) {
		return ReasonInsufficientCash
	}
	return ""
}

// Apply books a fill. It either fully succeeds or leaves the ledger as it
// was.
func (l *Ledger) Apply(fill common.Fill) (err error) {
	if fill.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidFill, fill.Quantity)
	}
	if !fill.Price.IsPos() {
		return fmt.Errorf("%w: price %s", ErrInvalidFill, fill.Price)
	}
	if fill.Fee.IsNeg() {
		return fmt.Errorf("%w: fee %s", ErrInvalidFill, fill.Fee)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidFill, r)
		}
	}()

	next := l.state
	signed := fill.Side.Sign() * fill.Quantity
	notional := fill.Notional()

	if fill.Side == common.OrderSideBuy {
		next.cash = next.cash.Sub(notional).Sub(fill.Fee)
	} else {
		next.cash = next.cash.Add(notional).Sub(fill.Fee)
	}
	next.fees = next.fees.Add(fill.Fee)

	before := next.quantity
	after := before + signed

	switch {
	case before == 0 || sameSign(before, signed):
		next.avgEntry = next.avgEntry.MulInt64(abs(before)).Add(notional).DivInt64(abs(after))
	default:
		closed := min(abs(signed), abs(before))
		perUnit := fill.Price.Sub(next.avgEntry)
		if before < 0 {
			perUnit = perUnit.Neg()
		}
		next.realized = next.realized.Add(perUnit.MulInt64(closed))

		switch {
		case after == 0:
			next.avgEntry = fixed.Zero
		case !sameSign(before, after):
			next.avgEntry = fill.Price
		}
	}
	next.quantity = after

	l.state = next
	return nil
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
