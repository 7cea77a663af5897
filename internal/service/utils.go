package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Layouts the backend is known to emit: RFC 3339 from JS clients, naive
// isoformat() datetimes from the Python side, and bare dates for trend buckets.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func StringToFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// FormatMoney renders a currency value with exactly two decimals ("1234.50").
func FormatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// RoundMoney rounds v half-away-from-zero to two decimals.
func RoundMoney(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// ParseTimestamp parses a backend timestamp. Values without a zone are taken as UTC,
// matching the backend's datetime.utcnow() records.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", s)
}

// FormatRangeParam renders an instant the way the range endpoints expect it.
func FormatRangeParam(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ReportStamp is the generation stamp used in export filenames, e.g. "20261015_0930".
func ReportStamp(t time.Time) string {
	return t.Format("20060102_1504")
}
