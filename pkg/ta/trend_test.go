package ta

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMovingAverage(t *testing.T) {
	series := []float64{10, 20, 30, 40, 50}
	got := MovingAverage(series, 3)

	expected := []float64{0, 0, 20, 30, 40}
	if len(got) != len(expected) {
		t.Fatalf("Expected %d points, got %d", len(expected), len(got))
	}
	for i := range expected {
		if !almostEqual(got[i], expected[i]) {
			t.Errorf("point %d: expected %v, got %v", i, expected[i], got[i])
		}
	}
}

func TestMovingAverage_ShortSeries(t *testing.T) {
	got := MovingAverage([]float64{5, 6}, 3)
	if len(got) != 2 || got[0] != 0 || got[1] != 0 {
		t.Errorf("Expected zeroed output for short series, got %v", got)
	}

	if got := MovingAverage(nil, 3); len(got) != 0 {
		t.Errorf("Expected empty output, got %v", got)
	}
}

func TestMovingAverage_Disabled(t *testing.T) {
	series := []float64{1, 2, 3}
	got := MovingAverage(series, 0)
	for i := range series {
		if got[i] != series[i] {
			t.Errorf("point %d: expected passthrough %v, got %v", i, series[i], got[i])
		}
	}

	got[0] = 99
	if series[0] != 1 {
		t.Error("MovingAverage must not alias its input")
	}
}
