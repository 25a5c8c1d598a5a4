package render

import "testing"

func TestLetterboxViewportWiderFrameLetterboxes(t *testing.T) {
	x, y, w, h := letterboxViewport(1920, 1080, 1000, 1000)
	if w != 1000 {
		t.Fatalf("w = %d, want 1000 (full width)", w)
	}
	if h >= 1000 {
		t.Fatalf("h = %d, want less than surface height (bars top/bottom)", h)
	}
	if x != 0 {
		t.Fatalf("x = %d, want 0", x)
	}
	if y <= 0 {
		t.Fatalf("y = %d, want positive (centred)", y)
	}
}

func TestLetterboxViewportTallerFramePillarboxes(t *testing.T) {
	x, y, w, h := letterboxViewport(1080, 1920, 1000, 1000)
	if h != 1000 {
		t.Fatalf("h = %d, want 1000 (full height)", h)
	}
	if w >= 1000 {
		t.Fatalf("w = %d, want less than surface width (bars left/right)", w)
	}
	if y != 0 {
		t.Fatalf("y = %d, want 0", y)
	}
	if x <= 0 {
		t.Fatalf("x = %d, want positive (centred)", x)
	}
}

func TestLetterboxViewportMatchingAspectFillsSurface(t *testing.T) {
	x, y, w, h := letterboxViewport(1000, 1000, 1000, 1000)
	if x != 0 || y != 0 || w != 1000 || h != 1000 {
		t.Fatalf("got (%d,%d,%d,%d), want (0,0,1000,1000)", x, y, w, h)
	}
}

func TestOverlaySnapshotHiddenWhenNotTouched(t *testing.T) {
	o := newOverlayState()
	snap := o.snapshot(1000)
	if snap.Visible {
		t.Fatal("overlay should be hidden before any pointer activity")
	}
}

func TestOverlaySnapshotVisibleWithinIdleWindow(t *testing.T) {
	o := newOverlayState()
	o.touch(10, 10, 1000)
	if !o.snapshot(1000).Visible {
		t.Fatal("overlay should be visible immediately after touch")
	}
	if !o.snapshot(1000 + overlayIdleTimeoutMs).Visible {
		t.Fatal("overlay should still be visible at exactly the idle timeout")
	}
	if o.snapshot(1000 + overlayIdleTimeoutMs + 1).Visible {
		t.Fatal("overlay should hide once past the idle timeout")
	}
}

func TestOverlayLeaveHidesImmediately(t *testing.T) {
	o := newOverlayState()
	o.touch(10, 10, 1000)
	o.leave()
	if o.snapshot(1000).Visible {
		t.Fatal("overlay should hide on pointer-leave")
	}
}

func TestOverlayHitTestCyclesResolution(t *testing.T) {
	o := newOverlayState()
	o.touch(overlayMarginPx+5, overlayMarginPx+5, 1000)
	start := o.resIndex
	opt, ok := o.hitTest()
	if !ok {
		t.Fatal("expected hit in resolution row")
	}
	if o.resIndex == start {
		t.Fatal("resIndex did not advance")
	}
	want := resolutionOptions[o.resIndex]
	if opt.width != want.Width || opt.height != want.Height {
		t.Fatalf("opt = %+v, want dims from %+v", opt, want)
	}
}

func TestOverlayHitTestMissOutsideToolbar(t *testing.T) {
	o := newOverlayState()
	o.touch(500, 500, 1000)
	if _, ok := o.hitTest(); ok {
		t.Fatal("expected no hit far outside the toolbar")
	}
}

func TestOverlayHitTestIgnoredWhenNotInside(t *testing.T) {
	o := newOverlayState()
	if _, ok := o.hitTest(); ok {
		t.Fatal("expected no hit before any touch")
	}
}
