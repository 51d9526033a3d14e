package synthetic

import (
	"math/rand"
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

const (
	secondsPerYear = 365.25 * 24 * 3600
)

var (
	pointFive = fixed.FromInt64(5, 1)
)

// BarGenerator produces bars that follow a geometric Brownian motion. Each
// bar opens at the previous close.
type BarGenerator struct {
	symbol    string
	timeframe common.Timeframe
	rng       *rand.Rand

	sigma        fixed.Point
	deltaLogPre1 fixed.Point
	deltaLogPre2 fixed.Point

	avgVolume      fixed.Point
	volumeVariance float64
	wickVariance   float64
	weekdaysOnly   bool

	normPriceDigits  int
	normVolumeDigits int

	lastTime  time.Time
	lastPrice fixed.Point
}

func NewBarGenerator(
	symbol string,
	tf common.Timeframe,
	rng *rand.Rand,
	startTime time.Time,
	startPrice, mu, sigma fixed.Point) *BarGenerator {

	deltaT := fixed.FromFloat64(tf.Duration().Seconds() / secondsPerYear)

	return &BarGenerator{
		symbol:    symbol,
		timeframe: tf,
		rng:       rng,

		sigma: sigma,
		// Pre-calculated values for GBM
		deltaLogPre1: mu.Sub(sigma.Mul(sigma).Mul(pointFive)).Mul(deltaT),
		deltaLogPre2: sigma.Mul(deltaT.Sqrt()),

		avgVolume:      fixed.FromInt64(10_000, 0),
		volumeVariance: 0.35,
		wickVariance:   0.5,

		normPriceDigits:  2,
		normVolumeDigits: 0,

		lastTime:  startTime.Add(-tf.Duration()),
		lastPrice: startPrice,
	}
}

func (g *BarGenerator) SetVolumeParameters(avgVol fixed.Point, volVariance float64) {
	g.avgVolume = avgVol
	g.volumeVariance = volVariance
}

func (g *BarGenerator) SetPriceDigits(digits int) {
	g.normPriceDigits = digits
}

// SetWeekdaysOnly skips bars opening on Saturday or Sunday (UTC).
func (g *BarGenerator) SetWeekdaysOnly(weekdaysOnly bool) {
	g.weekdaysOnly = weekdaysOnly
}

func (g *BarGenerator) Next() common.Bar {
	g.lastTime = g.lastTime.Add(g.timeframe.Duration())
	for g.weekdaysOnly && isWeekend(g.lastTime) {
		g.lastTime = g.lastTime.Add(g.timeframe.Duration())
	}

	open := g.lastPrice
	z := g.rng.NormFloat64()
	deltaLog := g.deltaLogPre1.Add(g.deltaLogPre2.Mul(fixed.FromFloat64(z)))
	closePrice := open.Mul(deltaLog.Exp()).Rescale(g.normPriceDigits)
	open = open.Rescale(g.normPriceDigits)

	high, low := g.wicks(fixed.Max(open, closePrice), fixed.Min(open, closePrice))

	g.lastPrice = closePrice

	return common.Bar{
		Symbol:    g.symbol,
		Timeframe: g.timeframe,
		TimeStamp: g.lastTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    g.generateVolume(),
	}
}

func (g *BarGenerator) wicks(top, bottom fixed.Point) (fixed.Point, fixed.Point) {
	if g.wickVariance <= 0 {
		return top, bottom
	}
	spread := g.deltaLogPre2.Abs()
	up := fixed.FromFloat64(abs(g.rng.NormFloat64()) * g.wickVariance).Mul(spread)
	down := fixed.FromFloat64(abs(g.rng.NormFloat64()) * g.wickVariance).Mul(spread)

	high := top.Mul(fixed.One.Add(up)).Rescale(g.normPriceDigits)
	low := bottom.Mul(fixed.One.Sub(down)).Rescale(g.normPriceDigits)
	if high.Lt(top) {
		high = top
	}
	if low.Gt(bottom) || !low.IsPos() {
		low = bottom
	}
	return high, low
}

func (g *BarGenerator) generateVolume() fixed.Point {
	variation := g.rng.NormFloat64() * g.volumeVariance
	vol := g.avgVolume.Mul(fixed.FromFloat64(variation).Exp()).Rescale(g.normVolumeDigits)

	// Ensure positive volumes
	if vol.Lte(fixed.Zero) {
		vol = fixed.One
	}
	return vol
}

func isWeekend(t time.Time) bool {
	day := t.UTC().Weekday()
	return day == time.Saturday || day == time.Sunday
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
