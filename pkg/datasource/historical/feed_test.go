package historical

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

func writeBars(t *testing.T, f *Feed, n int) time.Time {
	t.Helper()
	start := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	bars := make([]common.Bar, 0, n)
	for i := 0; i < n; i++ {
		price := fixed.FromInt(150+i, 0)
		bars = append(bars, common.Bar{
			TimeStamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price.Add(fixed.One),
			Low:       price.Sub(fixed.One),
			Close:     price,
			Volume:    fixed.FromInt(1000, 0),
		})
	}
	require.NoError(t, WriteFile(f.Path("AAPL", common.Timeframe1Hour), bars))
	return start
}

func TestFeed_ReadsRange(t *testing.T) {
	f := NewFeed(t.TempDir())
	start := writeBars(t, f, 6)

	s, err := f.Open(context.Background(), "AAPL", common.Timeframe1Hour, start.Add(time.Hour), start.Add(4*time.Hour))
	require.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	bars, err := datasource.Collect(context.Background(), s, start.Add(time.Hour), start.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.True(t, bars[0].Open.Eq(fixed.FromInt(151, 0)))
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, common.Timeframe1Hour, bars[0].Timeframe)

	bar, err := s.BarAt(start.Add(2*time.Hour + 30*time.Minute))
	require.NoError(t, err)
	assert.True(t, bar.Open.Eq(fixed.FromInt(152, 0)))

	_, err = s.Next(start.Add(3 * time.Hour))
	assert.ErrorIs(t, err, datasource.ErrEOF)
}

func TestFeed_MissingData(t *testing.T) {
	f := NewFeed(t.TempDir())

	_, err := f.Open(context.Background(), "MSFT", common.Timeframe1Hour, time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, datasource.ErrNoData)

	start := writeBars(t, f, 2)
	_, err = f.Open(context.Background(), "AAPL", common.Timeframe1Hour, start.AddDate(1, 0, 0), start.AddDate(2, 0, 0))
	assert.ErrorIs(t, err, datasource.ErrNoData)
}
