// Package decoder implements C4: an H.264 access-unit decoder producing
// BGRA or YUV420 frames, mirroring the encoder's hardware-first/software-
// fallback selection policy.
package decoder

import (
	"fmt"
	"sync"

	"github.com/nearcast/nearcast/internal/errs"
	"github.com/nearcast/nearcast/internal/logging"
)

var log = logging.L("decoder")

// OutputFormat selects the decoder's returned pixel layout (§4.4).
type OutputFormat int

const (
	FormatBGRA OutputFormat = iota
	FormatYUV420
)

// DecodedFrame is handed to the renderer's bounded queue (§3).
type DecodedFrame struct {
	Width        int
	Height       int
	TimestampMs  int64
	Format       OutputFormat
	Payload      []byte
	PlaneStrides []int // set only when Format == FormatYUV420
}

// Config mirrors DecoderConfig from §4.4.
type Config struct {
	Width          int
	Height         int
	OutputFormat   OutputFormat
	PreferHardware bool
}

func (c Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("decoder: invalid dimensions %dx%d", c.Width, c.Height)
	}
	return nil
}

// backend decodes one Annex-B access unit to I420 (YUV420 planar). Output
// format conversion (to BGRA) happens in Decoder, not the backend, so
// every backend only needs to produce one canonical layout.
type backend interface {
	Decode(accessUnit []byte) (i420 []byte, ok bool, err error)
	Flush() [][]byte
	Close() error
	Name() string
	IsHardware() bool
}

type backendFactory func(cfg Config) (backend, error)

var (
	hardwareFactoriesMu sync.Mutex
	hardwareFactories   []backendFactory
)

func registerHardwareFactory(f backendFactory) {
	hardwareFactoriesMu.Lock()
	defer hardwareFactoriesMu.Unlock()
	hardwareFactories = append(hardwareFactories, f)
}

// Decoder is the C4 contract.
type Decoder struct {
	mu      sync.Mutex
	cfg     Config
	backend backend
}

// New tries a hardware backend first when cfg.PreferHardware is set,
// falling back to the bundled software decoder (§4.4).
func New(cfg Config) (*Decoder, error) {
	if err := cfg.validate(); err != nil {
		return nil, errs.Init("decoder: invalid config", err)
	}
	b, err := newBackend(cfg)
	if err != nil {
		return nil, errs.Init("decoder: create backend", err)
	}
	return &Decoder{cfg: cfg, backend: b}, nil
}

func newBackend(cfg Config) (backend, error) {
	if cfg.PreferHardware {
		hardwareFactoriesMu.Lock()
		factories := append([]backendFactory(nil), hardwareFactories...)
		hardwareFactoriesMu.Unlock()
		for _, factory := range factories {
			b, err := factory(cfg)
			if err == nil && b != nil {
				log.Info("using hardware decoder", "backend", b.Name())
				return b, nil
			}
		}
		log.Info("no hardware decoder available, falling back to software")
	}
	return newSoftwareBackend(cfg)
}

// Decode feeds one access unit through the backend. A nil frame with a
// nil error means the decoder buffered the input without producing a
// displayable frame yet (§4.4); callers must tolerate this.
func (d *Decoder) Decode(accessUnit []byte, timestampMs int64) (*DecodedFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i420, ok, err := d.backend.Decode(accessUnit)
	if err != nil {
		return nil, errs.Decode("decoder: decode access unit", err)
	}
	if !ok {
		return nil, nil
	}
	return d.convert(i420, timestampMs), nil
}

// Flush drains any frames buffered inside the backend.
func (d *Decoder) Flush(timestampMs int64) []*DecodedFrame {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*DecodedFrame
	for _, i420 := range d.backend.Flush() {
		out = append(out, d.convert(i420, timestampMs))
	}
	return out
}

func (d *Decoder) convert(i420 []byte, timestampMs int64) *DecodedFrame {
	if d.cfg.OutputFormat == FormatYUV420 {
		chromaW := d.cfg.Width / 2
		return &DecodedFrame{
			Width:        d.cfg.Width,
			Height:       d.cfg.Height,
			TimestampMs:  timestampMs,
			Format:       FormatYUV420,
			Payload:      i420,
			PlaneStrides: []int{d.cfg.Width, chromaW, chromaW},
		}
	}
	bgra := i420ToBGRA(i420, d.cfg.Width, d.cfg.Height)
	return &DecodedFrame{
		Width:       d.cfg.Width,
		Height:      d.cfg.Height,
		TimestampMs: timestampMs,
		Format:      FormatBGRA,
		Payload:     bgra,
	}
}

// Info identifies which backend is in use.
func (d *Decoder) Info() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	kind := "software"
	if d.backend.IsHardware() {
		kind = "hardware"
	}
	return fmt.Sprintf("%s (%s)", d.backend.Name(), kind)
}

// Close releases the backend.
func (d *Decoder) Close() error {
	d.mu.Lock()
	b := d.backend
	d.backend = nil
	d.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Close()
}
