package common

import (
	"time"

	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

type Bar struct {
	Symbol    string      `json:"symbol,omitempty"`
	Timeframe Timeframe   `json:"timeframe,omitempty"`
	TimeStamp time.Time   `json:"ts"`
	Open      fixed.Point `json:"open"`
	High      fixed.Point `json:"high"`
	Low       fixed.Point `json:"low"`
	Close     fixed.Point `json:"close"`
	Volume    fixed.Point `json:"volume"`
}

// CloseTime is the end of the bar period.
func (b Bar) CloseTime() time.Time {
	return b.TimeStamp.Add(b.Timeframe.Duration())
}
