package bar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
)

var ErrNotResamplable = errors.New("timeframe cannot be built from the base timeframe")

// ResampledFeed serves every timeframe from bars stored at one base
// timeframe.
type ResampledFeed struct {
	feed datasource.Feed
	base common.Timeframe
}

func NewResampledFeed(feed datasource.Feed, base common.Timeframe) *ResampledFeed {
	return &ResampledFeed{feed: feed, base: base}
}

func (f *ResampledFeed) Open(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time) (datasource.Series, error) {
	if tf == f.base {
		return f.feed.Open(ctx, symbol, tf, from, to)
	}
	if !tf.Valid() || tf.Duration() < f.base.Duration() || tf.Duration()%f.base.Duration() != 0 {
		return nil, fmt.Errorf("%s from %s: %w", tf, f.base, ErrNotResamplable)
	}

	// Widen the range so the first and last periods are complete.
	baseFrom := AlignedPeriodStart(tf, from)
	baseTo := AlignedPeriodStart(tf, to.Add(-time.Nanosecond)).Add(tf.Duration())

	series, err := f.feed.Open(ctx, symbol, f.base, baseFrom, baseTo)
	if err != nil {
		return nil, err
	}
	defer func() { _ = series.Close() }()

	bars, err := datasource.Collect(ctx, series, baseFrom, baseTo)
	if err != nil {
		return nil, err
	}

	var resampled []common.Bar
	for _, bar := range Resample(symbol, tf, bars) {
		if !bar.TimeStamp.Before(from) && bar.TimeStamp.Before(to) {
			resampled = append(resampled, bar)
		}
	}
	if len(resampled) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, tf, datasource.ErrNoData)
	}
	return datasource.NewSliceSeries(resampled), nil
}
