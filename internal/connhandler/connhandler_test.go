package connhandler

import (
	"net"
	"testing"

	"github.com/nearcast/nearcast/internal/wire"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "udp" }
func (a fakeAddr) String() string  { return string(a) }

func TestRemoteIPStripsPort(t *testing.T) {
	got := remoteIP(fakeAddr("192.168.1.42:19876"))
	if got != "192.168.1.42" {
		t.Fatalf("remoteIP() = %q, want 192.168.1.42", got)
	}
}

func TestRemoteIPFallsBackOnUnparseableAddr(t *testing.T) {
	got := remoteIP(fakeAddr("not-a-host-port"))
	if got != "not-a-host-port" {
		t.Fatalf("remoteIP() = %q, want the raw string back", got)
	}
}

func TestRemoteIPWorksWithRealUDPAddr(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 5000}
	if got := remoteIP(addr); got != "10.0.0.5" {
		t.Fatalf("remoteIP() = %q, want 10.0.0.5", got)
	}
}

func TestIsMediaTagRecognisesAllMediaTypes(t *testing.T) {
	tags := []byte{
		byte(wire.MediaStart),
		byte(wire.MediaFrame),
		byte(wire.MediaStop),
		byte(wire.MediaResolutionRequest),
	}
	for _, b := range tags {
		if !isMediaTag(b) {
			t.Errorf("isMediaTag(0x%02x) = false, want true", b)
		}
	}
}

func TestIsMediaTagRejectsControlMagicByte(t *testing.T) {
	if isMediaTag(wire.Magic[0]) {
		t.Fatalf("isMediaTag(magic byte) = true, want false (control frames aren't media-tagged)")
	}
}
