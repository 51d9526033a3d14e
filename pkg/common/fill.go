package common

import (
	"time"

	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

type Fill struct {
	Id        string      `json:"fill_id"`
	OrderId   string      `json:"order_id"`
	Side      OrderSide   `json:"side"`
	Price     fixed.Point `json:"price"`
	Quantity  int64       `json:"quantity"`
	Fee       fixed.Point `json:"fee"`
	Sequence  uint64      `json:"seq"`
	Symbol    string      `json:"symbol,omitempty"`
	TimeStamp time.Time   `json:"ts"`
}

// Notional is price times quantity, excluding fees.
func (f Fill) Notional() fixed.Point {
	return f.Price.MulInt64(f.Quantity)
}
