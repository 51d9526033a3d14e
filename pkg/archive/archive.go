package archive

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

// Record is the summary of one finished session.
type Record struct {
	ExecutionId string      `json:"execution_id"`
	SessionId   string      `json:"session_id"`
	ClientId    string      `json:"client_id"`
	Symbol      string      `json:"symbol"`
	Timeframe   string      `json:"timeframe"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Reason      string      `json:"reason"`
	FinalEquity fixed.Point `json:"final_equity"`
	DurationSec float64     `json:"duration_sec"`
	TotalTrades int         `json:"total_trades"`
	SharpeRatio fixed.Point `json:"sharpe_ratio"`
	MaxDrawdown fixed.Point `json:"max_drawdown"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

type Recorder interface {
	Record(ctx context.Context, record Record) error
	Close() error
}

// Nop discards every record.
type Nop struct{}

func (Nop) Record(context.Context, Record) error { return nil }
func (Nop) Close() error                         { return nil }

// Multi fans a record out to several recorders and reports every failure.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, record Record) error {
	var err error
	for _, recorder := range m {
		err = multierr.Append(err, recorder.Record(ctx, record))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, recorder := range m {
		err = multierr.Append(err, recorder.Close())
	}
	return err
}
