package ta

import (
	"github.com/markcheno/go-talib"
)

// MovingAverage returns the simple moving average of series over period points.
// The result has the same length as series; entries before the first full window
// are 0. A period below 2 disables smoothing and returns a copy of series.
func MovingAverage(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if period < 2 {
		copy(out, series)
		return out
	}

	// talib indexes a full lookback window up front
	if len(series) < period {
		return out
	}

	return talib.Sma(series, period)
}
