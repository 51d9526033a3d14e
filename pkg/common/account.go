package common

import (
	"time"

	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

type Account struct {
	Cash        fixed.Point `json:"cash"`
	Equity      fixed.Point `json:"equity"`
	RealizedPnL fixed.Point `json:"realized_pnl"`
	Fees        fixed.Point `json:"fees"`
	Position    Position    `json:"position"`
	OpenOrders  []Order     `json:"open_orders"`
	TimeStamp   time.Time   `json:"ts"`
}
