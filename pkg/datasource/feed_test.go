package datasource

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dailyBars(n int) []common.Bar {
	bars := make([]common.Bar, 0, n)
	for i := 0; i < n; i++ {
		price := fixed.FromInt(100+i, 0)
		bars = append(bars, common.Bar{
			Symbol:    "AAPL",
			Timeframe: common.Timeframe1Day,
			TimeStamp: day0.AddDate(0, 0, i),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
		})
	}
	return bars
}

func TestSliceSeries_Next(t *testing.T) {
	s := NewSliceSeries(dailyBars(3))

	bar, err := First(s, day0)
	require.NoError(t, err)
	assert.True(t, bar.TimeStamp.Equal(day0))

	bar, err = s.Next(day0)
	require.NoError(t, err)
	assert.True(t, bar.TimeStamp.Equal(day0.AddDate(0, 0, 1)))

	_, err = s.Next(day0.AddDate(0, 0, 2))
	assert.ErrorIs(t, err, ErrEOF)
}

func TestSliceSeries_BarAt(t *testing.T) {
	s := NewSliceSeries(dailyBars(3))

	bar, err := s.BarAt(day0.Add(13 * time.Hour))
	require.NoError(t, err)
	assert.True(t, bar.Open.Eq(fixed.FromInt(100, 0)))

	_, err = s.BarAt(day0.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrNoData)

	_, err = s.BarAt(day0.AddDate(0, 0, 5))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCollect(t *testing.T) {
	s := NewSliceSeries(dailyBars(5))
	bars, err := Collect(context.Background(), s, day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 4))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.True(t, bars[0].TimeStamp.Equal(day0.AddDate(0, 0, 1)))
	assert.True(t, bars[2].TimeStamp.Equal(day0.AddDate(0, 0, 3)))
}

type countingFeed struct {
	opens atomic.Int32
	bars  []common.Bar
}

func (f *countingFeed) Open(_ context.Context, _ string, _ common.Timeframe, _, _ time.Time) (Series, error) {
	f.opens.Add(1)
	time.Sleep(10 * time.Millisecond)
	return NewSliceSeries(f.bars), nil
}

func TestCachedFeed_LoadsOnce(t *testing.T) {
	inner := &countingFeed{bars: dailyBars(10)}
	cache := NewCachedFeed(zap.NewNop(), inner, 4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := cache.Open(context.Background(), "AAPL", common.Timeframe1Day, day0, day0.AddDate(0, 0, 10))
			assert.NoError(t, err)
			if s != nil {
				_, err = First(s, day0)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inner.opens.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCachedFeed_Evicts(t *testing.T) {
	inner := &countingFeed{bars: dailyBars(10)}
	cache := NewCachedFeed(zap.NewNop(), inner, 2)

	for i := 0; i < 3; i++ {
		_, err := cache.Open(context.Background(), "AAPL", common.Timeframe1Day, day0.AddDate(0, 0, i), day0.AddDate(0, 0, 10))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, int32(3), inner.opens.Load())
}
