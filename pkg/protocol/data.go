package protocol

import (
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

type InitSessionData struct {
	SessionId       string           `json:"session_id" validate:"required,max=128"`
	Symbol          string           `json:"symbol" validate:"required,max=32"`
	Start           time.Time        `json:"start" validate:"required"`
	End             time.Time        `json:"end" validate:"required"`
	Timeframe       common.Timeframe `json:"timeframe" validate:"required"`
	ClockSpeed      int64            `json:"clock_speed"`
	InitialCash     fixed.Point      `json:"initial_cash"`
	ProtocolVersion string           `json:"protocol_version,omitempty"`
}

// OrderData may name its session explicitly; otherwise it is routed to the
// session last initialized on the connection.
type OrderData struct {
	SessionId   string                 `json:"session_id,omitempty"`
	OrderId     string                 `json:"order_id" validate:"required,max=128"`
	Side        common.OrderSide       `json:"side" validate:"required,oneof=buy sell"`
	Type        common.OrderType       `json:"type" validate:"required,oneof=market limit"`
	Quantity    *int64                 `json:"quantity,omitempty"`
	Amount      *fixed.Point           `json:"amount,omitempty"`
	Price       *fixed.Point           `json:"price,omitempty"`
	ExecTiming  common.ExecutionTiming `json:"exec_timing" validate:"omitempty,oneof=immediate next_bar eod"`
	TimeInForce common.TimeInForce     `json:"tif" validate:"omitempty,oneof=gtc eod ioc"`
	StopLoss    *fixed.Point           `json:"stop_loss,omitempty"`
	TakeProfit  *fixed.Point           `json:"take_profit,omitempty"`
}

type CancelOrderData struct {
	SessionId string `json:"session_id,omitempty"`
	OrderId   string `json:"order_id" validate:"required"`
}

type CloseSessionData struct {
	SessionId string `json:"session_id,omitempty"`
}

type PingData struct {
	Timestamp time.Time `json:"timestamp"`
}

type SessionReadyData struct {
	SessionId string    `json:"session_id"`
	SimTime   time.Time `json:"sim_time"`
}

type TickData struct {
	SessionId string      `json:"session_id,omitempty"`
	SimTime   time.Time   `json:"sim_time"`
	BarId     string      `json:"bar_id,omitempty"`
	IsEOD     bool        `json:"is_eod"`
	Price     fixed.Point `json:"price"`
}

type FillData struct {
	SessionId        string      `json:"session_id,omitempty"`
	OrderId          string      `json:"order_id"`
	FillId           string      `json:"fill_id"`
	ExecutedPrice    fixed.Point `json:"executed_price"`
	ExecutedQuantity int64       `json:"executed_quantity"`
	Timestamp        time.Time   `json:"timestamp"`
}

type PositionData struct {
	Symbol        string       `json:"symbol"`
	Quantity      int64        `json:"quantity"`
	AvgEntry      fixed.Point  `json:"avg_entry"`
	UnrealizedPnL *fixed.Point `json:"unrealized_pnl,omitempty"`
}

type OrderStatusReport struct {
	OrderId      string             `json:"order_id"`
	Side         common.OrderSide   `json:"side"`
	Type         common.OrderType   `json:"type"`
	Status       common.OrderStatus `json:"status"`
	FilledQty    int64              `json:"filled_qty"`
	RemainingQty int64              `json:"remaining_qty"`
	Price        *fixed.Point       `json:"price,omitempty"`
	SubmittedAt  time.Time          `json:"submitted_at"`
	TimeInForce  common.TimeInForce `json:"tif"`
}

type AccountUpdateData struct {
	SessionId  string              `json:"session_id,omitempty"`
	Cash       fixed.Point         `json:"cash"`
	Equity     fixed.Point         `json:"equity"`
	Positions  []PositionData      `json:"positions"`
	OpenOrders []OrderStatusReport `json:"open_orders"`
}

type SessionEndData struct {
	SessionId   string      `json:"session_id,omitempty"`
	FinalEquity fixed.Point `json:"final_equity"`
	DurationSec float64     `json:"duration_sec"`
	TotalTrades int         `json:"total_trades"`
	SharpeRatio fixed.Point `json:"sharpe_ratio"`
	MaxDrawdown fixed.Point `json:"max_drawdown"`
	Reason      string      `json:"reason,omitempty"`
}

type ErrorData struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	SessionId string `json:"session_id,omitempty"`
	OrderId   string `json:"order_id,omitempty"`
}

type OrderAckData struct {
	SessionId string             `json:"session_id,omitempty"`
	OrderId   string             `json:"order_id"`
	Status    common.OrderStatus `json:"status"`
	Reason    string             `json:"reason,omitempty"`
}

type PongData struct {
	Timestamp time.Time `json:"timestamp"`
}

func (d OrderData) Request() common.OrderRequest {
	timing := d.ExecTiming
	if timing == "" {
		timing = common.ExecutionTimingImmediate
	}
	tif := d.TimeInForce
	if tif == "" {
		tif = common.TimeInForceGoodTillCancel
	}
	return common.OrderRequest{
		Id:          d.OrderId,
		Side:        d.Side,
		Type:        d.Type,
		Quantity:    d.Quantity,
		Amount:      d.Amount,
		Price:       d.Price,
		Timing:      timing,
		TimeInForce: tif,
		StopLoss:    d.StopLoss,
		TakeProfit:  d.TakeProfit,
	}
}

func NewFillData(sessionId string, fill common.Fill) FillData {
	return FillData{
		SessionId:        sessionId,
		OrderId:          fill.OrderId,
		FillId:           fill.Id,
		ExecutedPrice:    fill.Price,
		ExecutedQuantity: fill.Quantity,
		Timestamp:        fill.TimeStamp,
	}
}

// NewOrderStatusReport maps an open order onto the wire. Internal lifecycle
// states collapse to accepted, the only non-rejected status a client knows.
func NewOrderStatusReport(order common.Order) OrderStatusReport {
	report := OrderStatusReport{
		OrderId:      order.Id,
		Side:         order.Side,
		Type:         order.Type,
		Status:       common.OrderStatusAccepted,
		FilledQty:    order.FilledQuantity,
		RemainingQty: order.Remaining(),
		SubmittedAt:  order.TimeStamp,
		TimeInForce:  order.TimeInForce,
	}
	if order.Status == common.OrderStatusRejected {
		report.Status = common.OrderStatusRejected
	}
	if order.Type == common.OrderTypeLimit {
		price := order.Price
		report.Price = &price
	} else if order.IsLeg() {
		price := order.TriggerPrice
		report.Price = &price
	}
	return report
}

// NewAccountUpdateData builds the account view. With privacy set, unrealized
// PnL is left out.
func NewAccountUpdateData(sessionId string, account common.Account, privacy bool) AccountUpdateData {
	data := AccountUpdateData{
		SessionId:  sessionId,
		Cash:       account.Cash,
		Equity:     account.Equity,
		Positions:  []PositionData{},
		OpenOrders: make([]OrderStatusReport, 0, len(account.OpenOrders)),
	}
	if pos := account.Position; !pos.IsFlat() {
		pd := PositionData{
			Symbol:   pos.Symbol,
			Quantity: pos.Quantity,
			AvgEntry: pos.AvgEntryPrice,
		}
		if !privacy {
			pnl := pos.UnrealizedPnL
			pd.UnrealizedPnL = &pnl
		}
		data.Positions = append(data.Positions, pd)
	}
	for _, order := range account.OpenOrders {
		data.OpenOrders = append(data.OpenOrders, NewOrderStatusReport(order))
	}
	return data
}
