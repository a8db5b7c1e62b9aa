package source

import (
	"errors"
	"testing"
	"time"
)

func TestParseISOTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01T10:00:00Z", want},
		{"2024-03-01T10:00:00.000Z", want},
		{"2024-03-01T03:00:00-07:00", want},
		{"2024-03-01T10:00:00-0700", time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)},
		{"2024-03-01T15:30:00+0530", want},
		{"2024-03-01T10:00:00", want},
		{"2024-03-01T10:00:00.123456", want.Add(123456 * time.Microsecond)},
		{" 2024-03-01 ", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseISOTime(tt.in)
			if err != nil {
				t.Fatalf("ParseISOTime(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("location = %v, want UTC", got.Location())
			}
		})
	}
}

func TestParseISOTime_Invalid(t *testing.T) {
	if _, err := ParseISOTime(""); !errors.Is(err, ErrNoDate) {
		t.Errorf("empty: err = %v, want ErrNoDate", err)
	}
	for _, in := range []string{"yesterday", "03/01/2024", "2024-13-01"} {
		if _, err := ParseISOTime(in); err == nil {
			t.Errorf("ParseISOTime(%q) should fail", in)
		}
	}
}

func TestParseMonthDay(t *testing.T) {
	now := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"March 1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"Mar 1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"March 1, 2023", time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"Dec 24, 2022", time.Date(2022, 12, 24, 0, 0, 0, 0, time.UTC)},
		{"Sept 9", time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC)},
		{"  May   7 ", time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)},
		{"February 29", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMonthDay(tt.in, now)
			if err != nil {
				t.Fatalf("ParseMonthDay(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMonthDay_YearFromClockInUTC(t *testing.T) {
	// 23:30 on Dec 31 in UTC-5 is already Jan 1 in UTC.
	now := time.Date(2023, 12, 31, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	got, err := ParseMonthDay("March 1", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 2024 {
		t.Errorf("year = %d, want 2024", got.Year())
	}
}

func TestParseMonthDay_Invalid(t *testing.T) {
	for _, in := range []string{"", "Global", "13 March", "Marchember 1"} {
		if _, err := ParseMonthDay(in, testNow); err == nil {
			t.Errorf("ParseMonthDay(%q) should fail", in)
		}
	}

	// No leap day in 2025; must not roll over to March 1.
	nonLeap := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"February 29", "Feb 29"} {
		if got, err := ParseMonthDay(in, nonLeap); err == nil {
			t.Errorf("ParseMonthDay(%q) in 2025 = %v, want error", in, got)
		}
	}
}

func TestTrimDateDecoration(t *testing.T) {
	tests := []struct{ in, want string }{
		{"March 1 / Global", "March 1"},
		{"Mar 1 · 5 min read", "Mar 1"},
		{"March 1, 2024 / US", "March 1, 2024"},
		{"  February 20  ", "February 20"},
		{"Jan 2 | Engineering", "Jan 2"},
	}
	for _, tt := range tests {
		if got := trimDateDecoration(tt.in); got != tt.want {
			t.Errorf("trimDateDecoration(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		href string
		want string
	}{
		{"site relative", "https://www.uber.com", "/en-US/blog/kafka/?uclick_id=1", "https://www.uber.com/en-US/blog/kafka/"},
		{"scheme relative", "https://netflixtechblog.com/", "//netflixtechblog.com/post-1#comments", "https://netflixtechblog.com/post-1"},
		{"absolute", "https://eng.lyft.com/", "https://eng.lyft.com/post?source=collection_home", "https://eng.lyft.com/post"},
		{"path relative", "https://example.com/blog/", "post-2", "https://example.com/blog/post-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.base, tt.href)
			if err != nil {
				t.Fatalf("CanonicalURL: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalURL_Rejects(t *testing.T) {
	for _, href := range []string{"", "   ", "javascript:void(0)", "mailto:eng@example.com"} {
		if _, err := CanonicalURL("https://example.com/", href); err == nil {
			t.Errorf("CanonicalURL(%q) should fail", href)
		}
	}
}
