package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

const DefaultTable = "bars"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Feed reads bars from a DuckDB table with the columns
// (symbol, timeframe, ts, open, high, low, close, volume).
type Feed struct {
	dataSourceName string
	table          string
	db             *sql.DB
}

func NewFeed(dataSourceName, table string) (*Feed, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Feed{
		dataSourceName: dataSourceName,
		table:          table,
	}, nil
}

func (f *Feed) Connect(ctx context.Context) error {
	db, err := sql.Open("duckdb", f.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open duckdb %q: %w", f.dataSourceName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("unable to reach duckdb %q: %w", f.dataSourceName, err)
	}
	f.db = db
	return nil
}

func (f *Feed) DB() *sql.DB { return f.db }

func (f *Feed) Close() error {
	if f.db == nil {
		return nil
	}
	return f.db.Close()
}

// CreateTable creates the bar table if it does not exist yet.
func (f *Feed) CreateTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		symbol VARCHAR NOT NULL,
		timeframe VARCHAR NOT NULL,
		ts TIMESTAMP NOT NULL,
		open DOUBLE NOT NULL,
		high DOUBLE NOT NULL,
		low DOUBLE NOT NULL,
		close DOUBLE NOT NULL,
		volume DOUBLE NOT NULL
	)`, f.table)
	if _, err := f.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("unable to create table %s: %w", f.table, err)
	}
	return nil
}

func (f *Feed) Insert(ctx context.Context, bars ...common.Bar) error {
	query := fmt.Sprintf(`INSERT INTO %s (symbol, timeframe, ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, f.table)
	for _, bar := range bars {
		_, err := f.db.ExecContext(ctx, query,
			bar.Symbol, string(bar.Timeframe), bar.TimeStamp.UTC(),
			toFloat(bar.Open), toFloat(bar.High), toFloat(bar.Low), toFloat(bar.Close), toFloat(bar.Volume))
		if err != nil {
			return fmt.Errorf("unable to insert bar: %w", err)
		}
	}
	return nil
}

func (f *Feed) Open(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time) (datasource.Series, error) {
	query := fmt.Sprintf(`SELECT ts, open, high, low, close, volume FROM %s WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ? ORDER BY ts`, f.table)

	rows, err := f.db.QueryContext(ctx, query, symbol, string(tf), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("error preparing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bars []common.Bar
	for rows.Next() {
		var (
			ts                                  time.Time
			open, high, low, closePrice, volume float64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &closePrice, &volume); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		bars = append(bars, common.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			TimeStamp: ts.UTC(),
			Open:      fixed.FromFloat64(open),
			High:      fixed.FromFloat64(high),
			Low:       fixed.FromFloat64(low),
			Close:     fixed.FromFloat64(closePrice),
			Volume:    fixed.FromFloat64(volume),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error scanning rows: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, tf, datasource.ErrNoData)
	}
	return datasource.NewSliceSeries(bars), nil
}

func toFloat(p fixed.Point) float64 {
	f, _ := p.Float64()
	return f
}
