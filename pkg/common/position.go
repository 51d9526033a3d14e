package common

import (
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

// Position is the net holding in a single symbol. Quantity is positive for
// long and negative for short holdings.
type Position struct {
	Symbol        string      `json:"symbol"`
	Quantity      int64       `json:"quantity"`
	AvgEntryPrice fixed.Point `json:"avg_entry_price"`
	MarkPrice     fixed.Point `json:"mark_price"`
	UnrealizedPnL fixed.Point `json:"unrealized_pnl"`
	RealizedPnL   fixed.Point `json:"realized_pnl"`
}

func (p Position) IsFlat() bool  { return p.Quantity == 0 }
func (p Position) IsLong() bool  { return p.Quantity > 0 }
func (p Position) IsShort() bool { return p.Quantity < 0 }

// MarketValue is the signed value of the holding at the mark price.
func (p Position) MarketValue() fixed.Point {
	return p.MarkPrice.MulInt64(p.Quantity)
}
