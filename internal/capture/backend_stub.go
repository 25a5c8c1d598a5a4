//go:build !windows && !darwin && !linux

package capture

import "github.com/nearcast/nearcast/internal/errs"

// stubBackend answers every call with an init error; this build has no
// platform capture implementation wired in (§4.1).
type stubBackend struct{}

func newBackend() (backend, error) {
	return &stubBackend{}, nil
}

func (s *stubBackend) ListDisplays() ([]Display, error) {
	return nil, errs.Init("capture: no capture backend for this platform", nil)
}

func (s *stubBackend) Open(displayID uint32) error {
	return errs.Init("capture: no capture backend for this platform", nil)
}

func (s *stubBackend) CaptureFrame() (CapturedFrame, error) {
	return CapturedFrame{}, errs.Init("capture: no capture backend for this platform", nil)
}

func (s *stubBackend) Close() error {
	return nil
}
