package handlers

import (
	"testing"
	"time"
)

func TestIntegerValue(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{float64(3), 3, true},
		{"4", 4, true},
		{" 5 ", 5, true},
		{2.5, 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := integerValue(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("integerValue(%v) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTimeValue(t *testing.T) {
	want := time.Date(2025, 3, 1, 20, 15, 0, 0, time.UTC)
	for _, in := range []any{
		"2025-03-01T20:15:00Z",
		"2025-03-01T20:15:00.000Z",
		"2025-03-01T20:15:00",
		"2025-03-01T20:15",
		float64(want.UnixMilli()),
	} {
		got, ok := timeValue(in)
		if !ok || !got.Equal(want) {
			t.Errorf("timeValue(%v) = %v, %v; want %v", in, got, ok, want)
		}
	}

	for _, in := range []any{"not-a-date", "", "01/03/2025", nil, true} {
		if _, ok := timeValue(in); ok {
			t.Errorf("timeValue(%v) should fail", in)
		}
	}
}

func TestIsBlank(t *testing.T) {
	if !isBlank(nil) || !isBlank("  ") {
		t.Error("nil and whitespace should be blank")
	}
	if isBlank("x") || isBlank(float64(0)) {
		t.Error("values should not be blank")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Errorf("truncate = %q", got)
	}
}
