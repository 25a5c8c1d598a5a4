package capture

import (
	"testing"

	"github.com/nearcast/nearcast/internal/errs"
)

type fakeBackend struct {
	displays    []Display
	opened      bool
	openErr     error
	captureErr  error
	frame       CapturedFrame
	closeCalled int
}

func (f *fakeBackend) ListDisplays() ([]Display, error) {
	return f.displays, nil
}

func (f *fakeBackend) Open(displayID uint32) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeBackend) CaptureFrame() (CapturedFrame, error) {
	if f.captureErr != nil {
		return CapturedFrame{}, f.captureErr
	}
	return f.frame, nil
}

func (f *fakeBackend) Close() error {
	f.closeCalled++
	f.opened = false
	return nil
}

func newTestCapturer(b *fakeBackend) *Capturer {
	return &Capturer{b: b}
}

func TestCaptureFrameBeforeStartIsNotReady(t *testing.T) {
	c := newTestCapturer(&fakeBackend{})
	_, err := c.CaptureFrame()
	if errs.KindOf(err) != errs.KindNotReady {
		t.Fatalf("KindOf(err) = %v, want KindNotReady", errs.KindOf(err))
	}
}

func TestStartThenCaptureFrameSucceeds(t *testing.T) {
	fb := &fakeBackend{frame: CapturedFrame{Width: 100, Height: 50, Pixels: make([]byte, 100*50*4)}}
	c := newTestCapturer(fb)

	if err := c.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.IsCapturing() {
		t.Fatal("IsCapturing() = false after Start")
	}

	frame, err := c.CaptureFrame()
	if err != nil {
		t.Fatalf("CaptureFrame: %v", err)
	}
	if frame.Width != 100 || frame.Height != 50 {
		t.Fatalf("frame dims = (%d,%d), want (100,50)", frame.Width, frame.Height)
	}
	if frame.TimestampMs == 0 {
		t.Fatal("TimestampMs not stamped when backend leaves it zero")
	}
}

func TestStartWhileCapturingRestarts(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestCapturer(fb)

	if err := c.Start(0); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := c.Start(1); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if fb.closeCalled != 1 {
		t.Fatalf("closeCalled = %d, want 1 (close-before-restart)", fb.closeCalled)
	}
	if !c.IsCapturing() {
		t.Fatal("IsCapturing() = false after restart")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestCapturer(fb)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	if err := c.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if fb.closeCalled != 1 {
		t.Fatalf("closeCalled = %d, want 1", fb.closeCalled)
	}
	if c.IsCapturing() {
		t.Fatal("IsCapturing() = true after Stop")
	}
}

func TestCaptureFrameAfterStopIsNotReady(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestCapturer(fb)
	c.Start(0)
	c.Stop()

	_, err := c.CaptureFrame()
	if errs.KindOf(err) != errs.KindNotReady {
		t.Fatalf("KindOf(err) = %v, want KindNotReady", errs.KindOf(err))
	}
}

func TestCaptureFramePropagatesBackendError(t *testing.T) {
	fb := &fakeBackend{captureErr: errs.PermissionDenied("no screen access")}
	c := newTestCapturer(fb)
	c.Start(0)

	_, err := c.CaptureFrame()
	if errs.KindOf(err) != errs.KindPermissionDenied {
		t.Fatalf("KindOf(err) = %v, want KindPermissionDenied", errs.KindOf(err))
	}
}

func TestListDisplaysReturnsBackendList(t *testing.T) {
	fb := &fakeBackend{displays: []Display{{ID: 0, Name: "Display 0", Width: 1920, Height: 1080, Primary: true}}}
	c := newTestCapturer(fb)

	displays, err := c.ListDisplays()
	if err != nil {
		t.Fatalf("ListDisplays: %v", err)
	}
	if len(displays) != 1 || displays[0].Name != "Display 0" {
		t.Fatalf("displays = %+v, want one Display 0 entry", displays)
	}
}
