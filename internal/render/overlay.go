package render

import "sync"

const (
	overlayIdleTimeoutMs = 3000
	overlayMarginPx      = 12
	overlayButtonWidthPx = 90
	overlayButtonHeightPx = 28
	overlayButtonGapPx   = 6
)

type overlayOption struct {
	width      int
	height     int
	bitrateBps int
}

// overlayState tracks pointer activity and the hit-test geometry for the
// resolution/bitrate selector toolbar (§4.5). It has no knowledge of the
// render pipeline; window.go feeds pointer events in, pipeline.go reads
// snapshots out.
type overlayState struct {
	mu sync.Mutex

	inside       bool
	x, y         float64
	lastActiveMs int64

	resIndex int
	bpsIndex int
}

func newOverlayState() *overlayState {
	return &overlayState{resIndex: 3, bpsIndex: 1} // Original, 4 Mbps
}

func (o *overlayState) touch(x, y float64, nowMs int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inside = true
	o.x, o.y = x, y
	o.lastActiveMs = nowMs
}

func (o *overlayState) leave() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inside = false
}

// OverlaySnapshot is what the render thread needs to draw the toolbar.
type OverlaySnapshot struct {
	Visible        bool
	ResolutionText string
	BitrateText    string
}

func (o *overlayState) snapshot(nowMs int64) OverlaySnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	visible := o.inside && nowMs-o.lastActiveMs <= overlayIdleTimeoutMs
	return OverlaySnapshot{
		Visible:        visible,
		ResolutionText: resolutionOptions[o.resIndex].Label,
		BitrateText:    bitrateOptions[o.bpsIndex].Label,
	}
}

// hitTest checks the last known pointer position against the toolbar's
// two selector rows and advances the clicked selector's index, cycling
// through its options. Returns the resulting combined selection so the
// caller can emit ResolutionRequested.
func (o *overlayState) hitTest() (overlayOption, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.inside {
		return overlayOption{}, false
	}

	localX := o.x - overlayMarginPx
	localY := o.y - overlayMarginPx
	if localX < 0 || localX > overlayButtonWidthPx {
		return overlayOption{}, false
	}

	row := overlayButtonHeightPx + overlayButtonGapPx
	switch {
	case localY >= 0 && localY < overlayButtonHeightPx:
		o.resIndex = (o.resIndex + 1) % len(resolutionOptions)
	case localY >= row && localY < row+overlayButtonHeightPx:
		o.bpsIndex = (o.bpsIndex + 1) % len(bitrateOptions)
	default:
		return overlayOption{}, false
	}

	res := resolutionOptions[o.resIndex]
	bps := bitrateOptions[o.bpsIndex]
	return overlayOption{width: res.Width, height: res.Height, bitrateBps: bps.Bps}, true
}
