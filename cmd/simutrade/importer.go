package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/internal/cfg"
	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
	"github.com/peter-kozarec/simutrade/pkg/datasource/duckdb"
	"github.com/peter-kozarec/simutrade/pkg/datasource/historical"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

var ErrNotImportable = errors.New("feed does not accept imported bars")

func importCmd() *cobra.Command {
	var (
		symbol    string
		timeframe string
	)

	cmd := &cobra.Command{
		Use:   "import [csv files...]",
		Short: "Load CSV bars (ts,open,high,low,close,volume) into the configured feed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, logger, err := setup()
			if err != nil {
				return err
			}
			defer func(logger *zap.Logger) {
				_ = logger.Sync()
			}(logger)

			tf := common.Timeframe(timeframe)
			if !tf.Valid() {
				return fmt.Errorf("unsupported timeframe %q", timeframe)
			}

			var bars []common.Bar
			for _, path := range args {
				loaded, err := readCSVFile(path, symbol, tf)
				if err != nil {
					return err
				}
				logger.Info("csv loaded", zap.String("file", path), zap.Int("bars", len(loaded)))
				bars = append(bars, loaded...)
			}
			datasource.SortBars(bars)

			if err := importBars(cmd.Context(), c, symbol, tf, bars); err != nil {
				return err
			}
			logger.Info("import finished", zap.String("symbol", symbol), zap.Stringer("timeframe", tf), zap.Int("bars", len(bars)))
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "Symbol the bars belong to")
	cmd.Flags().StringVar(&timeframe, "timeframe", string(common.Timeframe1Day), "Bar timeframe")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

// importBars stores bars in the configured feed. Historical files are
// replaced as a whole; DuckDB rows are appended.
func importBars(ctx context.Context, c cfg.Config, symbol string, tf common.Timeframe, bars []common.Bar) error {
	switch c.Feed.Kind {
	case cfg.FeedHistorical:
		feed := historical.NewFeed(c.Feed.Historical.Dir)
		if err := os.MkdirAll(c.Feed.Historical.Dir, 0o755); err != nil {
			return err
		}
		return historical.WriteFile(feed.Path(symbol, tf), bars)
	case cfg.FeedDuckDB:
		feed, err := duckdb.NewFeed(c.Feed.DuckDB.DSN, c.Feed.DuckDB.Table)
		if err != nil {
			return err
		}
		if err := feed.Connect(ctx); err != nil {
			return err
		}
		defer func() { _ = feed.Close() }()
		if err := feed.CreateTable(ctx); err != nil {
			return err
		}
		return feed.Insert(ctx, bars...)
	default:
		return fmt.Errorf("%s: %w", c.Feed.Kind, ErrNotImportable)
	}
}

func readCSVFile(path, symbol string, tf common.Timeframe) ([]common.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	bars, err := readCSV(f, symbol, tf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

func readCSV(r io.Reader, symbol string, tf common.Timeframe) ([]common.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 6

	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, err
	}

	var bars []common.Bar
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		ts, err := parseTime(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", len(bars)+2, err)
		}

		var values [5]fixed.Point
		for i := range values {
			if values[i], err = fixed.Parse(record[i+1]); err != nil {
				return nil, fmt.Errorf("line %d: invalid number %q", len(bars)+2, record[i+1])
			}
		}

		bars = append(bars, common.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			TimeStamp: ts.Truncate(time.Second),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return bars, nil
}
