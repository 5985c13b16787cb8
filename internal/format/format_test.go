package format

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Microsecond, "500µs"},
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{45 * time.Second, "45.0s"},
		{2 * time.Minute, "2m"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{2 * time.Hour, "2h"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 2m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := Duration(tt.duration); result != tt.expected {
				t.Errorf("Duration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestLatency(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0"},
		{500 * time.Microsecond, "500µs"},
		{1500 * time.Microsecond, "1.50ms"},
		{50 * time.Millisecond, "50.0ms"},
		{250 * time.Millisecond, "250ms"},
		{2500 * time.Millisecond, "2.50s"},
		{90 * time.Second, "90.0s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := Latency(tt.duration); result != tt.expected {
				t.Errorf("Latency(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{999, "999"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
		{-1000, "-1,000"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := Number(tt.number); result != tt.expected {
				t.Errorf("Number(%d) = %q, want %q", tt.number, result, tt.expected)
			}
		})
	}
}

func TestBytesAndPercent(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{Bytes(512), "512 B"},
		{Bytes(2048), "2.00 KB"},
		{Bytes(3 * 1024 * 1024), "3.00 MB"},
		{Bytes(5 * 1024 * 1024 * 1024), "5.00 GB"},
		{Percent(0.0525), "5.25%"},
		{Percent(0), "0.00%"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
