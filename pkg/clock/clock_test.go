package clock

import (
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	cases := map[string]int{
		"00:00": 0,
		"09:00": 540,
		"09:05": 545,
		"10:30": 630,
		"23:59": 1439,
		"24:00": 1440,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Parse(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "9:00", "09:5", "0900", "25:00", "24:01", "12:60", "ab:cd", "-1:00", "09:+5", "09-00"} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidClock) {
			t.Errorf("Parse(%q): expected ErrInvalidClock, got %v", in, err)
		}
	}
}

func TestFormat(t *testing.T) {
	cases := map[int]string{0: "00:00", 545: "09:05", 630: "10:30", 1440: "24:00"}
	for in, want := range cases {
		if got := Format(in); got != want {
			t.Errorf("Format(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for m := 0; m <= 1440; m++ {
		got, err := Parse(Format(m))
		if err != nil {
			t.Fatalf("round trip of %d failed: %v", m, err)
		}
		if got != m {
			t.Fatalf("round trip of %d returned %d", m, got)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-10-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", d)
	}
	if FormatDate(d) != "2026-10-15" {
		t.Errorf("FormatDate = %q", FormatDate(d))
	}
	if _, err := ParseDate("15/10/2026"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}
