package sharer

import (
	"sync"
	"time"

	"github.com/nearcast/nearcast/internal/encoder"
	"github.com/nearcast/nearcast/internal/logging"
)

var adaptiveLog = logging.L("sharer.adaptive")

// adaptiveConfig mirrors the teacher's AdaptiveConfig, minus the RTCP
// feedback fields this transport has no equivalent of.
type adaptiveConfig struct {
	Encoder        *encoder.Encoder
	Metrics        *StreamMetrics
	InitialBitrate int
	MinBitrate     int
	MaxBitrate     int
	Cooldown       time.Duration
}

// adaptiveBitrate is an AIMD (additive increase, multiplicative decrease)
// controller with EWMA smoothing, grounded on the teacher's adaptive.go.
// There is no RTCP on this transport, so the feedback signal it reacts to
// is the send-stall rate: the fraction of recent StreamFrame sends that
// took SendTimeout or longer (or failed outright), in place of the
// teacher's packet-loss percentage. There is no analogous RTT signal to
// smooth, so this controller tracks one EWMA instead of two.
type adaptiveBitrate struct {
	mu         sync.Mutex
	encoder    *encoder.Encoder
	metrics    *StreamMetrics
	minBitrate int
	maxBitrate int
	cooldown   time.Duration
	lastAdjust time.Time

	targetBitrate int

	smoothedStallRate float64
	samplesCount      int
	stableCount       int
}

func newAdaptiveBitrate(cfg adaptiveConfig) *adaptiveBitrate {
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = 500 * time.Millisecond
	}
	initial := cfg.InitialBitrate
	if initial <= 0 {
		initial = cfg.MinBitrate
	}
	initial = clampInt(initial, cfg.MinBitrate, cfg.MaxBitrate)
	if cfg.Metrics != nil {
		cfg.Metrics.SetBitrate(initial)
	}

	return &adaptiveBitrate{
		encoder:       cfg.Encoder,
		metrics:       cfg.Metrics,
		minBitrate:    cfg.MinBitrate,
		maxBitrate:    cfg.MaxBitrate,
		cooldown:      cooldown,
		targetBitrate: initial,
	}
}

const (
	stallDegradeThreshold = 0.05
	stallUpgradeThreshold = 0.01
	stableRequired         = 2
	ewmaAlpha              = 0.3
)

// Update feeds one send outcome (stalled = the send exceeded the
// transport's send timeout, or failed) into the smoothed stall rate and
// adjusts the encoder's bitrate via AIMD, same shape as the teacher's
// RTCP-driven Update.
func (a *adaptiveBitrate) Update(stalled bool) {
	if a == nil {
		return
	}

	a.mu.Lock()

	now := time.Now()
	sample := 0.0
	if stalled {
		sample = 1.0
	}
	a.updateEWMA(sample)

	if !a.lastAdjust.IsZero() && now.Sub(a.lastAdjust) < a.cooldown {
		a.mu.Unlock()
		return
	}
	if a.samplesCount < 3 {
		a.mu.Unlock()
		return
	}

	rate := a.smoothedStallRate
	degrade := rate >= stallDegradeThreshold
	upgrade := rate <= stallUpgradeThreshold

	if degrade {
		a.stableCount = 0
	} else if upgrade {
		a.stableCount++
	} else if a.stableCount > 0 {
		a.stableCount--
	}

	newBitrate := a.targetBitrate
	switch {
	case degrade:
		newBitrate = int(float64(newBitrate) * 0.70)
		newBitrate = clampInt(newBitrate, a.minBitrate, a.maxBitrate)
	case a.stableCount >= stableRequired && a.targetBitrate < a.maxBitrate:
		step := a.maxBitrate / 20
		if step < 100_000 {
			step = 100_000
		}
		newBitrate = clampInt(newBitrate+step, a.minBitrate, a.maxBitrate)
		a.stableCount = 0
	}

	if newBitrate == a.targetBitrate {
		a.mu.Unlock()
		return
	}

	prev := a.targetBitrate
	a.targetBitrate = newBitrate
	a.lastAdjust = now
	enc := a.encoder
	metrics := a.metrics
	a.mu.Unlock()

	adaptiveLog.Info("adaptive bitrate adjustment",
		"bitrate", newBitrate, "prev", prev, "smoothedStallRate", rate)

	if enc != nil {
		if err := enc.SetBitrate(newBitrate); err != nil {
			adaptiveLog.Warn("failed to set bitrate", "bitrate", newBitrate, "error", err)
		}
	}
	if metrics != nil {
		metrics.SetBitrate(newBitrate)
	}
}

func (a *adaptiveBitrate) updateEWMA(sample float64) {
	a.samplesCount++
	if a.samplesCount == 1 {
		a.smoothedStallRate = sample
		return
	}
	a.smoothedStallRate = ewmaAlpha*sample + (1-ewmaAlpha)*a.smoothedStallRate
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
