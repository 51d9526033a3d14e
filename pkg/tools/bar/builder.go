package bar

import (
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
)

// Builder folds bars of a finer timeframe into bars of its timeframe. Input
// must arrive in time order.
type Builder struct {
	symbol         string
	timeframe      common.Timeframe
	inConstruction *common.Bar
}

func NewBuilder(symbol string, timeframe common.Timeframe) *Builder {
	return &Builder{
		symbol:    symbol,
		timeframe: timeframe,
	}
}

// Add merges bar into the bar under construction. When bar opens a new
// period the finished bar is returned.
func (b *Builder) Add(bar common.Bar) (common.Bar, bool) {
	openTime := AlignedPeriodStart(b.timeframe, bar.TimeStamp)

	var (
		done     common.Bar
		finished bool
	)
	if current := b.inConstruction; current != nil {
		if openTime.Equal(current.TimeStamp) {
			if bar.High.Gt(current.High) {
				current.High = bar.High
			}
			if bar.Low.Lt(current.Low) {
				current.Low = bar.Low
			}
			current.Close = bar.Close
			current.Volume = current.Volume.Add(bar.Volume)
			return common.Bar{}, false
		}
		done, finished = *current, true
	}

	b.inConstruction = &common.Bar{
		Symbol:    b.symbol,
		Timeframe: b.timeframe,
		TimeStamp: openTime,
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Close:     bar.Close,
		Volume:    bar.Volume,
	}
	return done, finished
}

// Flush returns the bar under construction, if any, and resets the builder.
func (b *Builder) Flush() (common.Bar, bool) {
	if b.inConstruction == nil {
		return common.Bar{}, false
	}
	bar := *b.inConstruction
	b.inConstruction = nil
	return bar, true
}

// Resample aggregates time ordered bars into timeframe bars.
func Resample(symbol string, timeframe common.Timeframe, bars []common.Bar) []common.Bar {
	builder := NewBuilder(symbol, timeframe)
	out := make([]common.Bar, 0, len(bars))
	for _, bar := range bars {
		if done, ok := builder.Add(bar); ok {
			out = append(out, done)
		}
	}
	if last, ok := builder.Flush(); ok {
		out = append(out, last)
	}
	return out
}

// AlignedPeriodStart is the open time of the timeframe period containing t,
// aligned to UTC midnight.
func AlignedPeriodStart(timeframe common.Timeframe, t time.Time) time.Time {
	return t.UTC().Truncate(timeframe.Duration())
}
