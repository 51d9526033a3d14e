package synthetic

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

var ErrRangeTooLarge = errors.New("requested range too large")

// Feed generates bars on demand. The same seed, symbol, timeframe and range
// always produce the same bars.
type Feed struct {
	seed         int64
	startPrice   fixed.Point
	mu           fixed.Point
	sigma        fixed.Point
	weekdaysOnly bool
	maxBars      int
}

type Option func(*Feed)

func WithSeed(seed int64) Option {
	return func(f *Feed) { f.seed = seed }
}

func WithStartPrice(price fixed.Point) Option {
	return func(f *Feed) { f.startPrice = price }
}

// WithDynamics sets the annualized drift and volatility.
func WithDynamics(mu, sigma fixed.Point) Option {
	return func(f *Feed) {
		f.mu = mu
		f.sigma = sigma
	}
}

func WithWeekdaysOnly(weekdaysOnly bool) Option {
	return func(f *Feed) { f.weekdaysOnly = weekdaysOnly }
}

func WithMaxBars(n int) Option {
	return func(f *Feed) { f.maxBars = n }
}

func NewFeed(options ...Option) *Feed {
	f := &Feed{
		seed:         1,
		startPrice:   fixed.FromInt64(100, 0),
		mu:           fixed.FromInt64(5, 2),
		sigma:        fixed.FromInt64(2, 1),
		weekdaysOnly: true,
		maxBars:      500_000,
	}
	for _, option := range options {
		option(f)
	}
	return f
}

func (f *Feed) Open(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time) (datasource.Series, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}
	if !from.Before(to) {
		return nil, datasource.ErrNoData
	}
	if expected := to.Sub(from) / tf.Duration(); int(expected) > f.maxBars {
		return nil, fmt.Errorf("%s %s: %d bars: %w", symbol, tf, expected, ErrRangeTooLarge)
	}

	rng := rand.New(rand.NewSource(f.seed ^ symbolSeed(symbol, tf))) // #nosec G404
	start := from.UTC().Truncate(tf.Duration())
	gen := NewBarGenerator(symbol, tf, rng, start, f.startPrice, f.mu, f.sigma)
	gen.SetWeekdaysOnly(f.weekdaysOnly)

	var bars []common.Bar
	for {
		bar := gen.Next()
		if !bar.TimeStamp.Before(to) {
			break
		}
		if bar.TimeStamp.Before(from) {
			continue
		}
		if len(bars)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, datasource.ErrNoData
	}
	return datasource.NewSliceSeries(bars), nil
}

func symbolSeed(symbol string, tf common.Timeframe) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(tf))
	return int64(h.Sum64())
}
