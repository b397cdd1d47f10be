package stats

import (
	"math"
	"testing"
	"time"

	"github.com/Hara602/usbTop/internal/model"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRatesWithinWindow(t *testing.T) {
	b := NewBandwidth()
	b.Update(model.DirIn, 1000, base)
	b.Update(model.DirOut, 500, base.Add(time.Second))

	if b.TotalRx != 1000 || b.TotalTx != 500 {
		t.Errorf("totals = %d/%d, want 1000/500", b.TotalRx, b.TotalTx)
	}
	// current = in-window bytes / window seconds
	wantRx := 1000.0 / 10
	wantTx := 500.0 / 10
	if math.Abs(b.RxBps-wantRx) > 1e-9 || math.Abs(b.TxBps-wantTx) > 1e-9 {
		t.Errorf("rates = %f/%f, want %f/%f", b.RxBps, b.TxBps, wantRx, wantTx)
	}
	if math.Abs(b.CurrentBps-(wantRx+wantTx)) > 1e-9 {
		t.Errorf("current = %f", b.CurrentBps)
	}
	if b.PeakBps != b.CurrentBps {
		t.Errorf("peak = %f, want %f", b.PeakBps, b.CurrentBps)
	}
}

func TestWindowEviction(t *testing.T) {
	b := NewBandwidthWindow(100 * time.Millisecond)
	b.Update(model.DirIn, 1000, base)
	b.Update(model.DirIn, 2000, base.Add(150*time.Millisecond))

	if len(b.rx) != 1 {
		t.Fatalf("retained %d samples, want 1", len(b.rx))
	}
	if b.rx[0].bytes != 2000 {
		t.Errorf("surviving sample = %d bytes, want 2000", b.rx[0].bytes)
	}
	// totals keep counting even after eviction
	if b.TotalRx != 3000 {
		t.Errorf("TotalRx = %d, want 3000", b.TotalRx)
	}
}

func TestPeakNeverDecreases(t *testing.T) {
	b := NewBandwidthWindow(100 * time.Millisecond)
	b.Update(model.DirIn, 10000, base)
	peak := b.PeakBps

	// all old samples age out, current drops, peak must hold
	b.Update(model.DirIn, 1, base.Add(time.Second))
	if b.CurrentBps >= peak {
		t.Fatalf("current %f should have dropped below peak %f", b.CurrentBps, peak)
	}
	if b.PeakBps != peak {
		t.Errorf("peak decreased: %f -> %f", peak, b.PeakBps)
	}
}

func TestUtilizationBounds(t *testing.T) {
	b := NewBandwidth()
	b.Update(model.DirOut, 1_000_000, base)

	if got := b.Utilization(0); got != 0 {
		t.Errorf("utilization with zero capacity = %f, want 0", got)
	}
	if got := b.Utilization(-5); got != 0 {
		t.Errorf("utilization with negative capacity = %f, want 0", got)
	}
	if got := b.Utilization(1); got != 100 {
		t.Errorf("utilization should clamp at 100, got %f", got)
	}
	got := b.Utilization(1_000_000)
	if got < 0 || got > 100 {
		t.Errorf("utilization out of range: %f", got)
	}
}

func TestHistoryMergeOrder(t *testing.T) {
	b := NewBandwidth()
	b.Update(model.DirIn, 100, base)
	b.Update(model.DirOut, 200, base.Add(time.Second))
	b.Update(model.DirIn, 300, base.Add(2*time.Second))

	h := b.History(10)
	if len(h) != 3 {
		t.Fatalf("got %d points, want 3", len(h))
	}
	// time-ordered means age strictly decreasing
	if !(h[0].Age > h[1].Age && h[1].Age > h[2].Age) {
		t.Errorf("history not time-ordered: %+v", h)
	}
	if h[0].RxBytes != 100 || h[1].TxBytes != 200 || h[2].RxBytes != 300 {
		t.Errorf("history values wrong: %+v", h)
	}

	// trimmed to the most recent points
	h = b.History(2)
	if len(h) != 2 {
		t.Fatalf("got %d points, want 2", len(h))
	}
	if h[0].TxBytes != 200 || h[1].RxBytes != 300 {
		t.Errorf("trim kept wrong points: %+v", h)
	}
}

func TestReset(t *testing.T) {
	b := NewBandwidth()
	b.Update(model.DirIn, 1000, base)
	b.Update(model.DirOut, 1000, base)
	b.Reset()

	if b.CurrentBps != 0 || b.PeakBps != 0 || b.TotalRx != 0 || b.TotalTx != 0 {
		t.Errorf("reset left state behind: %+v", b)
	}
	if len(b.rx) != 0 || len(b.tx) != 0 {
		t.Error("reset left samples behind")
	}
}
