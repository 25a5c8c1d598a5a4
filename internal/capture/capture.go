// Package capture implements C1: a platform-selected display capture
// backend producing BGRA frames, behind a single contract shared across
// Windows, macOS, and Linux.
package capture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nearcast/nearcast/internal/errs"
	"github.com/nearcast/nearcast/internal/logging"
)

var log = logging.L("capture")

// Display describes one enumerable output (§3).
type Display struct {
	ID          uint32
	Name        string
	Width       int
	Height      int
	ScaleFactor float64
	Primary     bool
}

// PixelFormat names the layout of CapturedFrame.Pixels.
type PixelFormat int

const (
	FormatBGRA PixelFormat = iota
	FormatNV12
	FormatYUV420
)

// CapturedFrame is the producer-owned unit described in §3. Even
// dimensions are not guaranteed here; that normalisation is C2's job.
type CapturedFrame struct {
	Width       int
	Height      int
	TimestampMs int64
	Pixels      []byte
	Format      PixelFormat
}

// backend is the platform-specific acquisition path. Each platform file
// (backend_windows.go, backend_darwin.go, backend_linux.go) supplies
// newBackend; unsupported platforms get the stub in backend_stub.go.
type backend interface {
	ListDisplays() ([]Display, error)
	Open(displayID uint32) error
	CaptureFrame() (CapturedFrame, error)
	Close() error
}

// Capturer is the C1 contract: list_displays / start / stop /
// capture_frame / is_capturing, backed by whichever platform backend this
// binary was built with.
type Capturer struct {
	mu             sync.Mutex
	b              backend
	capturing      atomic.Bool
	selectedDisplay uint32
}

// New constructs a Capturer using the ambient platform's backend.
func New() (*Capturer, error) {
	b, err := newBackend()
	if err != nil {
		return nil, errs.Init("capture: create backend", err)
	}
	return &Capturer{b: b}, nil
}

// ListDisplays enumerates the available displays.
func (c *Capturer) ListDisplays() ([]Display, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	displays, err := c.b.ListDisplays()
	if err != nil {
		return nil, errs.Capture("capture: list displays", err)
	}
	return displays, nil
}

// Start begins capturing displayID. Idempotent after Stop; calling Start
// while already capturing stops first (§4.1).
func (c *Capturer) Start(displayID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing.Load() {
		if err := c.b.Close(); err != nil {
			log.Warn("close before restart", "error", err)
		}
		c.capturing.Store(false)
	}

	if err := c.b.Open(displayID); err != nil {
		return translateOpenErr(err)
	}
	c.selectedDisplay = displayID
	c.capturing.Store(true)
	return nil
}

// Stop ends the current capture session.
func (c *Capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.capturing.Load() {
		return nil
	}
	err := c.b.Close()
	c.capturing.Store(false)
	if err != nil {
		return errs.Capture("capture: stop", err)
	}
	return nil
}

// IsCapturing reports whether Start has been called without a matching
// Stop.
func (c *Capturer) IsCapturing() bool {
	return c.capturing.Load()
}

// CaptureFrame pulls the next frame from the backend (§4.1: NotCapturing
// before Start, CaptureError on backend failure, PermissionDenied if the
// OS denies access).
func (c *Capturer) CaptureFrame() (CapturedFrame, error) {
	if !c.capturing.Load() {
		return CapturedFrame{}, errs.NotReady("capture: not capturing")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	frame, err := c.b.CaptureFrame()
	if err != nil {
		return CapturedFrame{}, translateCaptureErr(err)
	}
	if frame.TimestampMs == 0 {
		frame.TimestampMs = time.Now().UnixMilli()
	}
	return frame, nil
}

func translateOpenErr(err error) error {
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	return errs.Init("capture: open backend", err)
}

func translateCaptureErr(err error) error {
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	return errs.Capture("capture: capture frame", err)
}
