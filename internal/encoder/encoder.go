// Package encoder implements C3: a BGRA-in, H.264-out encoder that tries a
// hardware-accelerated backend first and falls back to a bundled software
// encoder, opaque to callers beyond the Info() string.
package encoder

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nearcast/nearcast/internal/errs"
	"github.com/nearcast/nearcast/internal/logging"
)

var log = logging.L("encoder")

// Kind distinguishes a keyframe (IDR/SPS boundary) from a delta frame,
// detected by scanning the NAL stream once after encoding (§4.3).
type Kind int

const (
	KindDelta Kind = iota
	KindKeyframe
)

// EncodedFrame is the producer-to-socket unit described in §3.
type EncodedFrame struct {
	Bytes       []byte
	TimestampMs int64
	Kind        Kind
	Size        int
}

// Config mirrors EncoderConfig from §4.3.
type Config struct {
	Width            int
	Height           int
	FPS              int
	Bitrate          int
	MaxBitrate       int
	KeyframeInterval int // frames between forced keyframes, 0 = backend default
	Preset           string
	PreferHardware   bool
}

func (c Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("encoder: invalid dimensions %dx%d", c.Width, c.Height)
	}
	if c.Bitrate <= 0 {
		return fmt.Errorf("encoder: invalid bitrate %d", c.Bitrate)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("encoder: invalid fps %d", c.FPS)
	}
	return nil
}

// backend is the interface every hardware or software implementation
// satisfies; Encoder itself only coordinates locking, keyframe latching,
// and NAL-type scanning.
type backend interface {
	Encode(i420 []byte, timestampMs int64, forceKeyframe bool) ([]byte, error)
	SetBitrate(bps int) error
	Close() error
	Name() string
	IsHardware() bool
}

type backendFactory func(cfg Config) (backend, error)

var (
	hardwareFactoriesMu sync.Mutex
	hardwareFactories   []backendFactory
)

// registerHardwareFactory is called from build-tag-gated files
// (backend_nvenc.go, backend_videotoolbox.go, backend_vaapi.go) so that
// only platforms built with the matching tag offer that backend.
func registerHardwareFactory(f backendFactory) {
	hardwareFactoriesMu.Lock()
	defer hardwareFactoriesMu.Unlock()
	hardwareFactories = append(hardwareFactories, f)
}

// Encoder is the C3 contract: init via New, encode via Encode.
type Encoder struct {
	mu               sync.Mutex
	cfg              Config
	backend          backend
	keyframeRequested atomic.Bool
}

// New tries a hardware backend first when cfg.PreferHardware is set,
// falling back to the software backend (§4.3 selection policy).
func New(cfg Config) (*Encoder, error) {
	if err := cfg.validate(); err != nil {
		return nil, errs.Init("encoder: invalid config", err)
	}

	b, err := newBackend(cfg)
	if err != nil {
		return nil, errs.Init("encoder: create backend", err)
	}

	return &Encoder{cfg: cfg, backend: b}, nil
}

func newBackend(cfg Config) (backend, error) {
	if cfg.PreferHardware {
		hardwareFactoriesMu.Lock()
		factories := append([]backendFactory(nil), hardwareFactories...)
		hardwareFactoriesMu.Unlock()
		for _, factory := range factories {
			b, err := factory(cfg)
			if err == nil && b != nil {
				log.Info("using hardware encoder", "backend", b.Name())
				return b, nil
			}
		}
		log.Info("no hardware encoder available, falling back to software")
	}
	return newSoftwareBackend(cfg)
}

// Encode converts bgra to I420, runs it through the backend, and scans the
// output for an IDR/SPS NAL unit to classify keyframe vs delta. An empty
// result is valid (encoder buffering) and callers must tolerate it (§4.3).
func (e *Encoder) Encode(bgra []byte, timestampMs int64) (EncodedFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stride := e.cfg.Width * 4
	i420 := bgraToI420(bgra, e.cfg.Width, e.cfg.Height, stride)
	defer putI420Buffer(i420)

	forceKeyframe := e.keyframeRequested.Swap(false)
	out, err := e.backend.Encode(i420, timestampMs, forceKeyframe)
	if err != nil {
		return EncodedFrame{}, errs.Encode("encoder: encode frame", err)
	}
	if len(out) == 0 {
		return EncodedFrame{TimestampMs: timestampMs}, nil
	}

	return EncodedFrame{
		Bytes:       out,
		TimestampMs: timestampMs,
		Kind:        classify(out),
		Size:        len(out),
	}, nil
}

// classify scans Annex-B NAL units for an IDR (type 5) or SPS (type 7),
// either of which marks a keyframe boundary (§4.3).
func classify(annexB []byte) Kind {
	for _, nalType := range nalTypes(annexB) {
		if nalType == 5 || nalType == 7 {
			return KindKeyframe
		}
	}
	return KindDelta
}

// nalTypes walks Annex-B start codes (00 00 01 or 00 00 00 01) and yields
// the NAL unit type (low 5 bits of the byte following each start code).
func nalTypes(data []byte) []int {
	var types []int
	i := 0
	for i < len(data)-3 {
		if data[i] == 0 && data[i+1] == 0 {
			var headerLen int
			switch {
			case data[i+2] == 1:
				headerLen = 3
			case i < len(data)-4 && data[i+2] == 0 && data[i+3] == 1:
				headerLen = 4
			default:
				i++
				continue
			}
			naluStart := i + headerLen
			if naluStart < len(data) {
				types = append(types, int(data[naluStart]&0x1f))
			}
			i = naluStart
			continue
		}
		i++
	}
	return types
}

// RequestKeyframe latches a flag consumed by the next Encode call (§4.3).
func (e *Encoder) RequestKeyframe() {
	e.keyframeRequested.Store(true)
}

// SetBitrate records the new target bitrate on the backend.
func (e *Encoder) SetBitrate(bps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bps <= 0 {
		return fmt.Errorf("encoder: invalid bitrate %d", bps)
	}
	if err := e.backend.SetBitrate(bps); err != nil {
		return errs.Encode("encoder: set bitrate", err)
	}
	e.cfg.Bitrate = bps
	return nil
}

// Info identifies which backend is in use.
func (e *Encoder) Info() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	kind := "software"
	if e.backend.IsHardware() {
		kind = "hardware"
	}
	return fmt.Sprintf("%s (%s)", e.backend.Name(), kind)
}

// Dimensions returns the configured encode size.
func (e *Encoder) Dimensions() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Width, e.cfg.Height
}

// Close releases the backend.
func (e *Encoder) Close() error {
	e.mu.Lock()
	b := e.backend
	e.backend = nil
	e.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Close()
}
