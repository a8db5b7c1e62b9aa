package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// isoLayouts are tried in order. Naive layouts parse as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var (
	monthDayYearLayouts = []string{"January 2, 2006", "Jan 2, 2006", "January 2 2006", "Jan 2 2006"}
	monthDayLayouts     = []string{"January 2", "Jan 2"}
)

// ParseISOTime parses an ISO-8601 timestamp with a "Z" suffix, a colon or
// non-colon numeric offset, or no offset at all (interpreted as UTC).
// Fractional seconds are accepted. The result is in UTC.
func ParseISOTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrNoDate
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseMonthDay parses "March 1", "Mar 1", "March 1, 2024" or "Mar 1, 2024".
// When the year is missing it is taken from now in UTC. The result is
// midnight UTC.
func ParseMonthDay(s string, now time.Time) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, ErrNoDate
	}
	s = strings.Replace(s, "Sept ", "Sep ", 1)

	for _, layout := range monthDayYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range monthDayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(now.UTC().Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			// time.Date rolls Feb 29 over to Mar 1 outside leap years.
			if d.Month() != t.Month() || d.Day() != t.Day() {
				return time.Time{}, fmt.Errorf("date %q does not exist in %d", s, d.Year())
			}
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// trimDateDecoration drops trailing decorations such as "/ Global" or
// "· 5 min read" from a date label.
func trimDateDecoration(s string) string {
	for _, sep := range []string{"/", "·", "|"} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// CanonicalURL resolves href against base and strips its query and fragment.
// Site-relative and scheme-relative references are both supported.
func CanonicalURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errors.New("empty href")
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	u := b.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("%q: %w", href, ErrRelativeURL)
	}
	stripQuery(u)
	return u.String(), nil
}

func stripQuery(u *url.URL) {
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
}
