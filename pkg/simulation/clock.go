package simulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
)

// Clock walks the bars of a series inside [start, end). Every Advance emits
// the pending bar as a tick and looks one bar ahead to flag the end of the
// trading day.
type Clock struct {
	series datasource.Series
	symbol string
	end    time.Time

	first   common.Bar
	pending *common.Bar
	current time.Time
	seq     uint64
}

func NewClock(series datasource.Series, symbol string, start, end time.Time) (*Clock, error) {
	first, err := datasource.First(series, start)
	if err != nil {
		if errors.Is(err, datasource.ErrEOF) {
			return nil, fmt.Errorf("%w: %s has no bars from %s", datasource.ErrNoData, symbol, start.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("unable to read first bar: %w", err)
	}
	if !first.TimeStamp.Before(end) {
		return nil, fmt.Errorf("%w: %s has no bars in [%s, %s)", datasource.ErrNoData, symbol,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	return &Clock{
		series:  series,
		symbol:  symbol,
		end:     end,
		first:   first,
		pending: &first,
		current: start,
	}, nil
}

// First is the bar the session opens on. Its open price is the mark before
// the first tick.
func (c *Clock) First() common.Bar  { return c.first }
func (c *Clock) Current() time.Time { return c.current }
func (c *Clock) Sequence() uint64   { return c.seq }
func (c *Clock) Ended() bool        { return c.pending == nil }

// Advance moves to the pending bar. It reports false once the range is
// exhausted; calling it again after that is a no-op.
func (c *Clock) Advance() (common.Tick, bool, error) {
	if c.pending == nil {
		return common.Tick{}, false, nil
	}

	bar := *c.pending
	next, err := c.series.Next(bar.TimeStamp)
	switch {
	case errors.Is(err, datasource.ErrEOF):
		c.pending = nil
	case err != nil:
		return common.Tick{}, false, fmt.Errorf("unable to read bar after %s: %w", bar.TimeStamp.Format(time.RFC3339), err)
	case !next.TimeStamp.Before(c.end):
		c.pending = nil
	default:
		c.pending = &next
	}

	c.seq++
	c.current = bar.TimeStamp

	return common.Tick{
		Symbol:    c.symbol,
		Price:     bar.Close,
		Volume:    bar.Volume,
		IsEOD:     c.pending == nil || !sameDay(bar.TimeStamp, c.pending.TimeStamp),
		Sequence:  c.seq,
		TimeStamp: bar.TimeStamp,
	}, true, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// BarId identifies the bar behind a tick.
func BarId(symbol string, tf common.Timeframe, t time.Time) string {
	return fmt.Sprintf("%s-%s-%d", symbol, tf, t.Unix())
}
