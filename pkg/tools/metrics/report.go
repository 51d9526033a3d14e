package metrics

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

type Report struct {
	StartDate            time.Time
	EndDate              time.Time
	Duration             time.Duration
	InitialEquity        fixed.Point
	FinalEquity          fixed.Point
	TotalProfit          fixed.Point
	MaxDrawdown          fixed.Point
	TotalTrades          int
	SharpeRatio          fixed.Point
	AnnualizedVolatility fixed.Point
}

// Calculate derives the end-of-session metrics from an equity series sampled
// once per tick. The first element is the initial equity. Sharpe ratio and
// volatility are annualized with the number of timeframe periods per year.
func Calculate(equities []fixed.Point, timeframe common.Timeframe, start, end time.Time, fills int) Report {
	report := Report{
		StartDate:   start,
		EndDate:     end,
		TotalTrades: fills,
	}
	if end.After(start) {
		report.Duration = end.Sub(start)
	}
	if len(equities) == 0 {
		return report
	}

	report.InitialEquity = equities[0]
	report.FinalEquity = equities[len(equities)-1]
	if report.InitialEquity.IsPos() {
		report.TotalProfit = report.FinalEquity.Div(report.InitialEquity).Sub(fixed.One).MulInt64(100).Rescale(2)
	}
	report.MaxDrawdown = fixed.MaxDrawdown(equities).Rescale(6)

	returns := fixed.Returns(equities)
	if len(returns) < 2 {
		return report
	}

	annualization := fixed.FromInt64(timeframe.PeriodsPerYear(), 0).Sqrt()
	vol := fixed.StdDev(returns, fixed.Mean(returns))
	if !vol.IsZero() {
		report.AnnualizedVolatility = vol.Mul(annualization).MulInt64(100).Rescale(2)
		report.SharpeRatio = fixed.SharpeRatio(returns, fixed.Zero).Mul(annualization).Rescale(6)
	}

	return report
}

func (r Report) Print(logger *zap.Logger) {
	logger.Info("session report",
		zap.Stringer("initial_equity", r.InitialEquity),
		zap.Stringer("final_equity", r.FinalEquity),
		zap.String("total_profit", fmt.Sprintf("%s%%", r.TotalProfit)),
		zap.String("max_drawdown", fmt.Sprintf("%s%%", r.MaxDrawdown.MulInt64(100).Rescale(2))),
		zap.Int("total_trades", r.TotalTrades),
		zap.Duration("duration", r.Duration))

	logger.Info("risk metrics",
		zap.Stringer("sharpe_ratio", r.SharpeRatio),
		zap.String("annualized_volatility", fmt.Sprintf("%s%%", r.AnnualizedVolatility)))
}
