package metrics

import (
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

type EquityPoint struct {
	TimeStamp time.Time
	Value     fixed.Point
}

// Audit accumulates the equity series and fill count of one session.
// It is owned by the session goroutine and is not safe for concurrent use.
type Audit struct {
	timeframe common.Timeframe
	start     time.Time
	equities  []EquityPoint
	fills     int
}

func NewAudit(timeframe common.Timeframe, start time.Time, initialEquity fixed.Point) *Audit {
	return &Audit{
		timeframe: timeframe,
		start:     start,
		equities:  []EquityPoint{{TimeStamp: start, Value: initialEquity}},
	}
}

func (a *Audit) OnEquity(t time.Time, equity fixed.Point) {
	a.equities = append(a.equities, EquityPoint{TimeStamp: t, Value: equity})
}

func (a *Audit) OnFill(common.Fill) {
	a.fills++
}

func (a *Audit) FillCount() int {
	return a.fills
}

func (a *Audit) Equities() []EquityPoint {
	return a.equities
}

func (a *Audit) GenerateReport() Report {
	values := make([]fixed.Point, 0, len(a.equities))
	for _, eq := range a.equities {
		values = append(values, eq.Value)
	}
	last := a.equities[len(a.equities)-1]
	return Calculate(values, a.timeframe, a.start, last.TimeStamp, a.fills)
}
