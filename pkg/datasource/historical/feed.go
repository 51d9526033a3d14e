package historical

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/datasource"
)

// Feed serves bars from a directory of <SYMBOL>_<timeframe>.bin files.
type Feed struct {
	dir string
}

func NewFeed(dir string) *Feed {
	return &Feed{dir: dir}
}

func (f *Feed) Path(symbol string, tf common.Timeframe) string {
	return filepath.Join(f.dir, fmt.Sprintf("%s_%s.bin", strings.ToUpper(symbol), tf))
}

func (f *Feed) Open(_ context.Context, symbol string, tf common.Timeframe, from, to time.Time) (datasource.Series, error) {
	path := f.Path(symbol, tf)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s %s: %w", symbol, tf, datasource.ErrNoData)
		}
		return nil, err
	}

	source := NewSource[BinaryBar](path)
	if err := source.Open(); err != nil {
		return nil, err
	}

	s, err := newSeries(source, symbol, tf, from, to)
	if err != nil {
		_ = source.Close()
		return nil, err
	}
	return s, nil
}

// series keeps the mapping open and resolves lookups by binary search over
// the record range covering [from, to).
type series struct {
	source *Source[BinaryBar]
	symbol string
	tf     common.Timeframe
	low    int64
	high   int64
}

func newSeries(source *Source[BinaryBar], symbol string, tf common.Timeframe, from, to time.Time) (*series, error) {
	count, err := source.EntryCount()
	if err != nil {
		return nil, err
	}
	low, err := source.Search(0, count, func(b *BinaryBar) bool { return b.TimeStamp >= from.UnixNano() })
	if err != nil {
		return nil, err
	}
	high, err := source.Search(low, count, func(b *BinaryBar) bool { return b.TimeStamp >= to.UnixNano() })
	if err != nil {
		return nil, err
	}
	if low >= high {
		return nil, fmt.Errorf("%s %s: %w", symbol, tf, datasource.ErrNoData)
	}
	return &series{source: source, symbol: symbol, tf: tf, low: low, high: high}, nil
}

func (s *series) BarAt(t time.Time) (common.Bar, error) {
	idx, err := s.source.Search(s.low, s.high, func(b *BinaryBar) bool { return b.TimeStamp > t.UnixNano() })
	if err != nil {
		return common.Bar{}, err
	}
	if idx == s.low {
		return common.Bar{}, datasource.ErrNoData
	}
	bar, err := s.read(idx - 1)
	if err != nil {
		return common.Bar{}, err
	}
	if !t.Before(bar.CloseTime()) {
		return common.Bar{}, datasource.ErrNoData
	}
	return bar, nil
}

func (s *series) Next(t time.Time) (common.Bar, error) {
	idx, err := s.source.Search(s.low, s.high, func(b *BinaryBar) bool { return b.TimeStamp > t.UnixNano() })
	if err != nil {
		return common.Bar{}, err
	}
	if idx >= s.high {
		return common.Bar{}, datasource.ErrEOF
	}
	return s.read(idx)
}

func (s *series) Close() error {
	return s.source.Close()
}

func (s *series) read(idx int64) (common.Bar, error) {
	var entry BinaryBar
	if err := s.source.Read(idx, &entry); err != nil {
		return common.Bar{}, fmt.Errorf("error reading entry at index %d: %w", idx, err)
	}
	return entry.ToBar(s.symbol, s.tf), nil
}
