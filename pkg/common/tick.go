package common

import (
	"time"

	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

// Tick is one advance of the simulated clock. Price is the mark used for
// execution and valuation at TimeStamp.
type Tick struct {
	Symbol    string      `json:"symbol,omitempty"`
	Price     fixed.Point `json:"price"`
	Volume    fixed.Point `json:"volume"`
	IsEOD     bool        `json:"is_eod"`
	Sequence  uint64      `json:"seq"`
	TimeStamp time.Time   `json:"ts"`
}
