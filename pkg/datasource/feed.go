package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
)

var (
	ErrNoData = errors.New("no data")
	ErrEOF    = errors.New("EOF")
)

// Feed resolves price bars for a symbol and timeframe. Implementations must
// be safe for concurrent use by many sessions.
type Feed interface {
	Open(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time) (Series, error)
}

// Series is a session scoped, read-only view of the bars in [from, to).
type Series interface {
	// BarAt returns the bar whose period contains t.
	BarAt(t time.Time) (common.Bar, error)
	// Next returns the first bar opening strictly after t, or ErrEOF.
	Next(t time.Time) (common.Bar, error)
	Close() error
}

// First returns the first bar opening at or after from.
func First(s Series, from time.Time) (common.Bar, error) {
	return s.Next(from.Add(-time.Nanosecond))
}

// Collect reads every bar of the series that opens in [from, to).
func Collect(ctx context.Context, s Series, from, to time.Time) ([]common.Bar, error) {
	var bars []common.Bar
	bar, err := First(s, from)
	for err == nil && bar.TimeStamp.Before(to) {
		if len(bars)%4096 == 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
		}
		bars = append(bars, bar)
		bar, err = s.Next(bar.TimeStamp)
	}
	if err != nil && !errors.Is(err, ErrEOF) {
		return nil, fmt.Errorf("unable to collect bars: %w", err)
	}
	return bars, nil
}

// SliceSeries serves bars from memory. It never mutates the slice it holds,
// so one slice may back many series.
type SliceSeries struct {
	bars []common.Bar
}

// NewSliceSeries expects bars ordered by open time.
func NewSliceSeries(bars []common.Bar) *SliceSeries {
	return &SliceSeries{bars: bars}
}

// SortBars orders bars by open time in place.
func SortBars(bars []common.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].TimeStamp.Before(bars[j].TimeStamp)
	})
}

func (s *SliceSeries) Len() int { return len(s.bars) }

func (s *SliceSeries) BarAt(t time.Time) (common.Bar, error) {
	idx := sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].TimeStamp.After(t)
	}) - 1
	if idx < 0 {
		return common.Bar{}, ErrNoData
	}
	bar := s.bars[idx]
	if !t.Before(bar.CloseTime()) {
		return common.Bar{}, ErrNoData
	}
	return bar, nil
}

func (s *SliceSeries) Next(t time.Time) (common.Bar, error) {
	idx := sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].TimeStamp.After(t)
	})
	if idx >= len(s.bars) {
		return common.Bar{}, ErrEOF
	}
	return s.bars[idx], nil
}

func (s *SliceSeries) Close() error { return nil }
