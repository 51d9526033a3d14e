package common

import (
	"fmt"
	"time"
)

type Timeframe string

const (
	Timeframe1Min  Timeframe = "1min"
	Timeframe5Min  Timeframe = "5min"
	Timeframe1Hour Timeframe = "1h"
	Timeframe1Day  Timeframe = "1d"
)

// Trading calendar used for annualization, 252 sessions of 6.5 hours.
const (
	TradingDaysPerYear   = 252
	tradingMinutesPerDay = 390
)

func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe1Min, Timeframe5Min, Timeframe1Hour, Timeframe1Day:
		return true
	}
	return false
}

// Duration is the length of a single bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1Min:
		return time.Minute
	case Timeframe5Min:
		return 5 * time.Minute
	case Timeframe1Hour:
		return time.Hour
	case Timeframe1Day:
		return 24 * time.Hour
	}
	return 0
}

// PeriodsPerYear is the number of bars in a trading year, used to annualize
// per-bar statistics.
func (tf Timeframe) PeriodsPerYear() int64 {
	switch tf {
	case Timeframe1Min:
		return TradingDaysPerYear * tradingMinutesPerDay
	case Timeframe5Min:
		return TradingDaysPerYear * tradingMinutesPerDay / 5
	case Timeframe1Hour:
		return TradingDaysPerYear * tradingMinutesPerDay / 60
	case Timeframe1Day:
		return TradingDaysPerYear
	}
	return 0
}

func (tf Timeframe) String() string { return string(tf) }
