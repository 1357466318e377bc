package progress

import (
	"testing"
	"time"
)

func TestHumanBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00 Bytes"},
		{512, "512.00 Bytes"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{1.5 * 1024 * 1024 * 1024 * 1024, "1.50 TB"},
		{1 << 60, "1.00 EB"},
		{-5, "0.00 Bytes"},
	}

	for _, tt := range tests {
		if got := HumanBytes(tt.in); got != tt.want {
			t.Errorf("HumanBytes(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatETA(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m"},
		{25*time.Hour + 30*time.Minute, "1d 1h"},
		{24*time.Hour + 2*time.Minute, "1d 2m"},
		{-time.Second, "0s"},
	}

	for _, tt := range tests {
		if got := FormatETA(tt.in); got != tt.want {
			t.Errorf("FormatETA(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
