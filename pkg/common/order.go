package common

import (
	"time"

	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

type OrderSide string
type OrderType string
type ExecutionTiming string
type TimeInForce string
type OrderStatus string
type LegKind uint8

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

const (
	ExecutionTimingImmediate ExecutionTiming = "immediate"
	ExecutionTimingNextBar   ExecutionTiming = "next_bar"
	ExecutionTimingEOD       ExecutionTiming = "eod"
)

const (
	TimeInForceGoodTillCancel    TimeInForce = "gtc"
	TimeInForceEndOfDay          TimeInForce = "eod"
	TimeInForceImmediateOrCancel TimeInForce = "ioc"
)

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
)

const (
	LegNone LegKind = iota
	LegStopLoss
	LegTakeProfit
)

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Sign is +1 for buys and -1 for sells.
func (s OrderSide) Sign() int64 {
	if s == OrderSideBuy {
		return 1
	}
	return -1
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusRejected, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

func (k LegKind) String() string {
	switch k {
	case LegStopLoss:
		return "stop_loss"
	case LegTakeProfit:
		return "take_profit"
	}
	return "none"
}

// OrderRequest is an order as submitted by a client. Optional numeric fields
// are nil when absent.
type OrderRequest struct {
	Id          string          `json:"order_id"`
	Side        OrderSide       `json:"side"`
	Type        OrderType       `json:"type"`
	Quantity    *int64          `json:"quantity,omitempty"`
	Amount      *fixed.Point    `json:"amount,omitempty"`
	Price       *fixed.Point    `json:"price,omitempty"`
	Timing      ExecutionTiming `json:"exec_timing"`
	TimeInForce TimeInForce     `json:"tif"`
	StopLoss    *fixed.Point    `json:"stop_loss,omitempty"`
	TakeProfit  *fixed.Point    `json:"take_profit,omitempty"`
}

type Order struct {
	Id          string          `json:"order_id"`
	Side        OrderSide       `json:"side"`
	Type        OrderType       `json:"type"`
	Quantity    int64           `json:"quantity"`
	Price       fixed.Point     `json:"price,omitempty"`
	Timing      ExecutionTiming `json:"exec_timing"`
	TimeInForce TimeInForce     `json:"tif"`
	StopLoss    fixed.Point     `json:"stop_loss,omitempty"`
	TakeProfit  fixed.Point     `json:"take_profit,omitempty"`

	Status         OrderStatus `json:"status"`
	FilledQuantity int64       `json:"filled_quantity"`
	Sequence       uint64      `json:"seq"`

	// Bracket legs reference the entry order and the opposite leg.
	Leg          LegKind     `json:"leg,omitempty"`
	ParentId     string      `json:"parent_id,omitempty"`
	SiblingId    string      `json:"sibling_id,omitempty"`
	TriggerPrice fixed.Point `json:"trigger_price,omitempty"`

	Symbol    string    `json:"symbol,omitempty"`
	TimeStamp time.Time `json:"ts"`
}

func (o Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity
}

func (o Order) HasBracket() bool {
	return o.Leg == LegNone && (!o.StopLoss.IsZero() || !o.TakeProfit.IsZero())
}

func (o Order) IsLeg() bool {
	return o.Leg != LegNone
}
