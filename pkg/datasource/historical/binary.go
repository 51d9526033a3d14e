package historical

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

// BinaryBar is the on-disk bar record, little endian, ordered by TimeStamp.
type BinaryBar struct {
	TimeStamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

func (b BinaryBar) ToBar(symbol string, tf common.Timeframe) common.Bar {
	return common.Bar{
		Symbol:    symbol,
		Timeframe: tf,
		TimeStamp: time.Unix(0, b.TimeStamp).UTC(),
		Open:      fixed.FromFloat64(b.Open),
		High:      fixed.FromFloat64(b.High),
		Low:       fixed.FromFloat64(b.Low),
		Close:     fixed.FromFloat64(b.Close),
		Volume:    fixed.FromFloat64(b.Volume),
	}
}

func FromBar(bar common.Bar) BinaryBar {
	toFloat := func(p fixed.Point) float64 {
		f, _ := p.Float64()
		return f
	}
	return BinaryBar{
		TimeStamp: bar.TimeStamp.UnixNano(),
		Open:      toFloat(bar.Open),
		High:      toFloat(bar.High),
		Low:       toFloat(bar.Low),
		Close:     toFloat(bar.Close),
		Volume:    toFloat(bar.Volume),
	}
}

// WriteFile stores bars in the layout Source reads.
func WriteFile(path string, bars []common.Bar) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %q: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	w := bufio.NewWriter(f)
	for _, bar := range bars {
		if err := binary.Write(w, binary.LittleEndian, FromBar(bar)); err != nil {
			return fmt.Errorf("unable to write bar: %w", err)
		}
	}
	return w.Flush()
}
