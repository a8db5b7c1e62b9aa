package ingest

import (
	"fmt"
	"strings"
	"time"
)

var watermarkLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseWatermark parses a caller-supplied watermark. Accepted forms are
// RFC 3339 with offset, ISO-8601 without offset and a bare date. Values
// without an offset are taken as UTC.
func ParseWatermark(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range watermarkLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid watermark %q: want RFC 3339, 2006-01-02T15:04:05 or 2006-01-02", s)
}

// Lookback returns the watermark days before now, in UTC.
func Lookback(now time.Time, days int) time.Time {
	if days < 0 {
		days = 0
	}
	return now.UTC().Add(-time.Duration(days) * 24 * time.Hour)
}
