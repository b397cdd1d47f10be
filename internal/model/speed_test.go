package model

import "testing"

func TestSpeedFromSysfs(t *testing.T) {
	cases := map[string]SpeedClass{
		"1.5":   SpeedLow,
		"12":    SpeedFull,
		"480":   SpeedHigh,
		"5000":  SpeedSuper,
		"10000": SpeedSuperPlus,
		"20000": SpeedSuperPlus,
		"":      SpeedUnknown,
		"9600":  SpeedUnknown,
	}
	for in, want := range cases {
		if got := SpeedFromSysfs(in); got != want {
			t.Errorf("SpeedFromSysfs(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSpeedBandwidth(t *testing.T) {
	if got := SpeedHigh.BytesPerSecond(); got != 60_000_000 {
		t.Errorf("High raw = %f, want 60MB/s", got)
	}
	if got := SpeedSuper.BytesPerSecond(); got != 625_000_000 {
		t.Errorf("SuperSpeed raw = %f, want 625MB/s", got)
	}
	// practical is derated by the per-class efficiency factor
	if got := SpeedHigh.PracticalBytesPerSecond(); got != 48_000_000 {
		t.Errorf("High practical = %f, want 48MB/s", got)
	}
	if got := SpeedLow.PracticalBytesPerSecond(); got != 1_500_000.0/8*0.70 {
		t.Errorf("Low practical = %f", got)
	}
	if got := SpeedUnknown.BytesPerSecond(); got != 0 {
		t.Errorf("Unknown raw = %f, want 0", got)
	}
}
