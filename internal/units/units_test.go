package units

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseBandwidth(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "10Mbps", want: 1310720},
		{in: "1Mbps", want: 131072},
		{in: "500Kbps", want: 64000},
		{in: "8bps", want: 1},
		{in: "1Gbps", want: 134217728},
		{in: "2.5mbit", want: 327680},
		{in: "0Mbps", wantErr: true},
		{in: "fast", wantErr: true},
		{in: "10furlongs", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBandwidth(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBandwidth(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidUnit) {
					t.Errorf("ParseBandwidth(%q) error is not ErrInvalidUnit: %v", tt.in, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseBandwidth(%q) = %f, want %f", tt.in, got, tt.want)
			}
		})
	}
}

func TestBandwidthMbps(t *testing.T) {
	if got := BandwidthMbps(1310720); got != 10 {
		t.Errorf("BandwidthMbps() = %f, want 10", got)
	}
	if got := MbpsToBytes(10); got != 1310720 {
		t.Errorf("MbpsToBytes() = %f, want 1310720", got)
	}
}

func TestParseDelay(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "10ms", want: 10 * time.Millisecond},
		{in: "0ms", want: 0},
		{in: "1s", want: time.Second},
		{in: "100", want: 100 * time.Millisecond},
		{in: "-5ms", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDelay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDelay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDelay(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := Milliseconds(1500 * time.Microsecond); math.Abs(got-1.5) > 1e-9 {
		t.Errorf("Milliseconds() = %f, want 1.5", got)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "1KB", want: 1024},
		{in: "25KB", want: 25600},
		{in: "1MB", want: 1048576},
		{in: "10MB", want: 10485760},
		{in: "512", want: 512},
		{in: "1K", want: 1024},
		{in: "1TB", wantErr: true},
		{in: "KB", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := SizeKB(10485760); got != 10240 {
		t.Errorf("SizeKB() = %f, want 10240", got)
	}
}

func TestTruncateSize(t *testing.T) {
	for in, want := range map[string]string{"1KB": "1K", "10MB": "10M", "5kb": "5K"} {
		if got := TruncateSize(in); got != want {
			t.Errorf("TruncateSize(%q) = %q, want %q", in, got, want)
		}
	}
}
