package synthetic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
)

func TestFeed_Deterministic(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	collect := func(f *Feed, symbol string) []common.Bar {
		s, err := f.Open(context.Background(), symbol, common.Timeframe1Day, from, to)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		bars, err := datasource.Collect(context.Background(), s, from, to)
		require.NoError(t, err)
		return bars
	}

	a := collect(NewFeed(WithSeed(7)), "AAPL")
	b := collect(NewFeed(WithSeed(7)), "AAPL")
	c := collect(NewFeed(WithSeed(7)), "MSFT")

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.True(t, a[i].TimeStamp.Equal(b[i].TimeStamp))
		assert.True(t, a[i].Close.Eq(b[i].Close))
	}
	require.NotEmpty(t, c)
	assert.False(t, a[len(a)-1].Close.Eq(c[len(c)-1].Close))
}

func TestFeed_BarShape(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 14)

	s, err := NewFeed().Open(context.Background(), "AAPL", common.Timeframe1Day, from, to)
	require.NoError(t, err)
	bars, err := datasource.Collect(context.Background(), s, from, to)
	require.NoError(t, err)

	// 2024-01-01 is a Monday, two full weeks hold ten weekdays.
	require.Len(t, bars, 10)
	for i, bar := range bars {
		assert.False(t, isWeekend(bar.TimeStamp))
		assert.True(t, bar.High.Gte(bar.Open) && bar.High.Gte(bar.Close))
		assert.True(t, bar.Low.Lte(bar.Open) && bar.Low.Lte(bar.Close))
		assert.True(t, bar.Low.IsPos())
		if i > 0 {
			assert.True(t, bar.Open.Eq(bars[i-1].Close))
		}
	}
}

func TestFeed_Errors(t *testing.T) {
	from := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC) // Saturday

	_, err := NewFeed().Open(context.Background(), "AAPL", common.Timeframe1Day, from, from.AddDate(0, 0, 2))
	assert.ErrorIs(t, err, datasource.ErrNoData)

	_, err = NewFeed().Open(context.Background(), "AAPL", common.Timeframe1Day, from, from)
	assert.ErrorIs(t, err, datasource.ErrNoData)

	_, err = NewFeed(WithMaxBars(10)).Open(context.Background(), "AAPL", common.Timeframe1Min, from, from.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrRangeTooLarge)
}
