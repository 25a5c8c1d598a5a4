package viewer

import (
	"errors"
	"testing"

	"github.com/nearcast/nearcast/internal/decoder"
)

func TestDecodeAllRenderLatestReturnsLastFrame(t *testing.T) {
	units := [][]byte{{1}, {2}, {3}}
	ts := []int64{10, 20, 30}

	var decoded []int64
	got := decodeAllRenderLatest(units, ts, func(au []byte, t int64) (*decoder.DecodedFrame, error) {
		decoded = append(decoded, t)
		return &decoder.DecodedFrame{TimestampMs: t}, nil
	})

	if len(decoded) != 3 {
		t.Fatalf("expected all 3 access units decoded, got %d", len(decoded))
	}
	if got == nil || got.TimestampMs != 30 {
		t.Fatalf("expected latest frame (ts=30), got %+v", got)
	}
}

func TestDecodeAllRenderLatestSkipsErrorsButKeepsDecoding(t *testing.T) {
	units := [][]byte{{1}, {2}, {3}}
	ts := []int64{10, 20, 30}

	calls := 0
	got := decodeAllRenderLatest(units, ts, func(au []byte, t int64) (*decoder.DecodedFrame, error) {
		calls++
		if t == 30 {
			return nil, errors.New("boom")
		}
		return &decoder.DecodedFrame{TimestampMs: t}, nil
	})

	if calls != 3 {
		t.Fatalf("expected all 3 access units attempted, got %d", calls)
	}
	if got == nil || got.TimestampMs != 20 {
		t.Fatalf("expected frame ts=20 (last successful decode), got %+v", got)
	}
}

func TestDecodeAllRenderLatestAllErrorsReturnsNil(t *testing.T) {
	units := [][]byte{{1}, {2}}
	ts := []int64{10, 20}

	got := decodeAllRenderLatest(units, ts, func(au []byte, t int64) (*decoder.DecodedFrame, error) {
		return nil, errors.New("boom")
	})

	if got != nil {
		t.Fatalf("expected nil when every decode fails, got %+v", got)
	}
}

func TestDecodeAllRenderLatestBufferingFrameSkipped(t *testing.T) {
	units := [][]byte{{1}, {2}}
	ts := []int64{10, 20}

	got := decodeAllRenderLatest(units, ts, func(au []byte, t int64) (*decoder.DecodedFrame, error) {
		if t == 20 {
			return nil, nil // still buffering, not an error
		}
		return &decoder.DecodedFrame{TimestampMs: t}, nil
	})

	if got == nil || got.TimestampMs != 10 {
		t.Fatalf("expected frame ts=10 since the second decode is still buffering, got %+v", got)
	}
}

func TestRegistryStopUnknownPeerReturnsFalse(t *testing.T) {
	r := NewRegistry()
	if r.Stop("no-such-peer") {
		t.Fatal("expected Stop to report false for a peer with no session")
	}
}

func TestRegistryActiveSessionsEmptyByDefault(t *testing.T) {
	r := NewRegistry()
	if got := r.ActiveSessions(); len(got) != 0 {
		t.Fatalf("expected no active sessions, got %v", got)
	}
}

func TestConfigHasNonDefaultRequest(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"all zero", Config{}, false},
		{"width set", Config{DefaultTargetWidth: 1280}, true},
		{"height set", Config{DefaultTargetHeight: 720}, true},
		{"bitrate set", Config{DefaultBitrateBps: 4_000_000}, true},
	}
	for _, c := range cases {
		if got := c.cfg.hasNonDefaultRequest(); got != c.want {
			t.Errorf("%s: hasNonDefaultRequest() = %v, want %v", c.name, got, c.want)
		}
	}
}
