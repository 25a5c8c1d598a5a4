package sharer

import (
	"testing"
	"time"
)

func TestFrameDifferFirstFrameAlwaysChanged(t *testing.T) {
	d := newFrameDiffer()
	if !d.HasChanged([]byte{1, 2, 3}) {
		t.Fatal("expected first frame to report changed")
	}
}

func TestFrameDifferSkipsIdenticalFrame(t *testing.T) {
	d := newFrameDiffer()
	frame := []byte{1, 2, 3, 4}
	d.HasChanged(frame)
	if d.HasChanged(frame) {
		t.Fatal("expected identical frame to be skipped")
	}
	if got := d.IdleStreak(); got != 1 {
		t.Fatalf("IdleStreak() = %d, want 1", got)
	}
	if d.HasChanged(frame) {
		t.Fatal("expected identical frame to be skipped again")
	}
	if got := d.IdleStreak(); got != 2 {
		t.Fatalf("IdleStreak() = %d, want 2", got)
	}
}

func TestFrameDifferIdleStreakResetsOnChange(t *testing.T) {
	d := newFrameDiffer()
	d.HasChanged([]byte{1, 2, 3})
	d.HasChanged([]byte{1, 2, 3})
	if d.IdleStreak() == 0 {
		t.Fatal("expected a nonzero idle streak before the change")
	}
	d.HasChanged([]byte{4, 5, 6})
	if got := d.IdleStreak(); got != 0 {
		t.Fatalf("IdleStreak() = %d, want 0 after a changed frame", got)
	}
}

func TestFrameDifferDetectsChange(t *testing.T) {
	d := newFrameDiffer()
	d.HasChanged([]byte{1, 2, 3})
	if !d.HasChanged([]byte{1, 2, 4}) {
		t.Fatal("expected changed frame to be reported")
	}
}

func TestFrameDifferResetForgetsLastHash(t *testing.T) {
	d := newFrameDiffer()
	frame := []byte{9, 9, 9}
	d.HasChanged(frame)
	d.Reset()
	if !d.HasChanged(frame) {
		t.Fatal("expected HasChanged to report true again after Reset")
	}
}

func TestStreamMetricsSnapshot(t *testing.T) {
	m := newStreamMetrics()
	m.RecordCapture(5 * time.Millisecond)
	m.RecordEncode(10*time.Millisecond, 1200)
	m.RecordSend(1200)
	m.RecordSkip()
	m.RecordDrop()

	snap := m.Snapshot()
	if snap.FramesCaptured != 1 || snap.FramesEncoded != 1 || snap.FramesSent != 1 {
		t.Fatalf("unexpected snapshot counters: %+v", snap)
	}
	if snap.FramesSkipped != 1 || snap.FramesDropped != 1 {
		t.Fatalf("unexpected skip/drop counters: %+v", snap)
	}
	if snap.LastFrameSize != 1200 {
		t.Fatalf("LastFrameSize = %d, want 1200", snap.LastFrameSize)
	}
}

func TestStreamMetricsTracksAdaptiveBitrate(t *testing.T) {
	m := newStreamMetrics()
	m.SetBitrate(2_500_000)
	if got := m.Snapshot().CurrentBitrateBps; got != 2_500_000 {
		t.Fatalf("CurrentBitrateBps = %d, want 2500000", got)
	}
}

func TestAdaptiveBitrateDegradesOnSustainedStalls(t *testing.T) {
	a := newAdaptiveBitrate(adaptiveConfig{
		InitialBitrate: 4_000_000,
		MinBitrate:     500_000,
		MaxBitrate:     8_000_000,
		Cooldown:       0,
	})
	for i := 0; i < 10; i++ {
		a.Update(true)
	}
	a.mu.Lock()
	got := a.targetBitrate
	a.mu.Unlock()
	if got >= 4_000_000 {
		t.Fatalf("expected bitrate to degrade below initial, got %d", got)
	}
}

func TestAdaptiveBitrateUpgradesAfterStableWindow(t *testing.T) {
	a := newAdaptiveBitrate(adaptiveConfig{
		InitialBitrate: 1_000_000,
		MinBitrate:     500_000,
		MaxBitrate:     8_000_000,
		Cooldown:       0,
	})
	for i := 0; i < 10; i++ {
		a.Update(false)
	}
	a.mu.Lock()
	got := a.targetBitrate
	a.mu.Unlock()
	if got <= 1_000_000 {
		t.Fatalf("expected bitrate to climb above initial after stable window, got %d", got)
	}
}

func TestAdaptiveBitrateStaysWithinBounds(t *testing.T) {
	a := newAdaptiveBitrate(adaptiveConfig{
		InitialBitrate: 1_000_000,
		MinBitrate:     500_000,
		MaxBitrate:     2_000_000,
		Cooldown:       0,
	})
	for i := 0; i < 50; i++ {
		a.Update(false)
	}
	a.mu.Lock()
	got := a.targetBitrate
	a.mu.Unlock()
	if got > 2_000_000 || got < 500_000 {
		t.Fatalf("bitrate %d escaped bounds [500000,2000000]", got)
	}
}

func TestClampInt(t *testing.T) {
	cases := []struct {
		v, lo, hi, want int
	}{
		{5, 0, 10, 5},
		{-5, 0, 10, 0},
		{15, 0, 10, 10},
	}
	for _, c := range cases {
		if got := clampInt(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("clampInt(%d,%d,%d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}
