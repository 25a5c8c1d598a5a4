package sharer

import (
	"sync"
	"time"
)

// StreamMetrics tracks real-time performance counters for one viewer's
// frame loop, grounded on the teacher's per-session stream metrics. The
// teacher tracks a discrete CurrentQuality level set by its RTCP-driven
// controller; this transport has no discrete quality ladder, so the same
// slot instead holds the continuous bitrate the adaptive controller
// (adaptive.go) last settled on, updated every time it adjusts the
// encoder.
type StreamMetrics struct {
	mu sync.RWMutex

	framesCaptured uint64
	framesEncoded  uint64
	framesSent     uint64
	framesSkipped  uint64
	framesDropped  uint64

	lastCaptureTime time.Duration
	lastEncodeTime  time.Duration
	lastFrameSize   int

	totalBytesSent    uint64
	currentBitrateBps int
	startTime         time.Time
}

func newStreamMetrics() *StreamMetrics {
	return &StreamMetrics{startTime: time.Now()}
}

func (m *StreamMetrics) RecordCapture(d time.Duration) {
	m.mu.Lock()
	m.framesCaptured++
	m.lastCaptureTime = d
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordSkip() {
	m.mu.Lock()
	m.framesSkipped++
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordEncode(d time.Duration, size int) {
	m.mu.Lock()
	m.framesEncoded++
	m.lastEncodeTime = d
	m.lastFrameSize = size
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordSend(size int) {
	m.mu.Lock()
	m.framesSent++
	m.totalBytesSent += uint64(size)
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordDrop() {
	m.mu.Lock()
	m.framesDropped++
	m.mu.Unlock()
}

// SetBitrate records the bitrate the adaptive controller last asked the
// encoder to use, called from adaptive.go's Update whenever it steps the
// target up or down.
func (m *StreamMetrics) SetBitrate(bps int) {
	m.mu.Lock()
	m.currentBitrateBps = bps
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy for the command surface (C12)
// get_stream_stats.
type MetricsSnapshot struct {
	FramesCaptured    uint64
	FramesEncoded     uint64
	FramesSent        uint64
	FramesSkipped     uint64
	FramesDropped     uint64
	CaptureMs         float64
	EncodeMs          float64
	LastFrameSize     int
	BandwidthKBps     float64
	CurrentBitrateBps int
	Uptime            time.Duration
}

func (m *StreamMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	bw := float64(0)
	if uptime.Seconds() > 0 {
		bw = float64(m.totalBytesSent) / uptime.Seconds() / 1024.0
	}

	return MetricsSnapshot{
		FramesCaptured:    m.framesCaptured,
		FramesEncoded:     m.framesEncoded,
		FramesSent:        m.framesSent,
		FramesSkipped:     m.framesSkipped,
		FramesDropped:     m.framesDropped,
		CaptureMs:         float64(m.lastCaptureTime.Microseconds()) / 1000.0,
		EncodeMs:          float64(m.lastEncodeTime.Microseconds()) / 1000.0,
		LastFrameSize:     m.lastFrameSize,
		BandwidthKBps:     bw,
		CurrentBitrateBps: m.currentBitrateBps,
		Uptime:            uptime,
	}
}
