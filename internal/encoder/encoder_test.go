package encoder

import "testing"

func TestClassifyDetectsIDR(t *testing.T) {
	// start code + NAL type 5 (IDR)
	data := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xaa, 0xbb}
	if got := classify(data); got != KindKeyframe {
		t.Fatalf("classify = %v, want KindKeyframe", got)
	}
}

func TestClassifyDetectsSPS(t *testing.T) {
	data := []byte{0x00, 0x00, 0x01, 0x67, 0x42, 0x00}
	if got := classify(data); got != KindKeyframe {
		t.Fatalf("classify = %v, want KindKeyframe", got)
	}
}

func TestClassifyDeltaForNonIDR(t *testing.T) {
	// NAL type 1 = non-IDR slice
	data := []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0xaa, 0xbb}
	if got := classify(data); got != KindDelta {
		t.Fatalf("classify = %v, want KindDelta", got)
	}
}

func TestClassifyHandlesMultipleNALUnits(t *testing.T) {
	// SPS then a slice: still a keyframe boundary
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, // SPS
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88, // IDR slice
	}
	if got := classify(data); got != KindKeyframe {
		t.Fatalf("classify = %v, want KindKeyframe", got)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	tests := []Config{
		{Width: 0, Height: 720, FPS: 30, Bitrate: 1000},
		{Width: 1280, Height: 0, FPS: 30, Bitrate: 1000},
		{Width: 1280, Height: 720, FPS: 0, Bitrate: 1000},
		{Width: 1280, Height: 720, FPS: 30, Bitrate: 0},
	}
	for i, cfg := range tests {
		if err := cfg.validate(); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, cfg)
		}
	}
}

func TestConfigValidateAcceptsGoodValues(t *testing.T) {
	cfg := Config{Width: 1280, Height: 720, FPS: 30, Bitrate: 4_000_000}
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBgraToI420ProducesExpectedPlaneSizes(t *testing.T) {
	w, h := 4, 2
	bgra := make([]byte, w*h*4)
	out := bgraToI420(bgra, w, h, w*4)
	want := w*h + 2*(w/2)*(h/2)
	if len(out) != want {
		t.Fatalf("len(out) = %d, want %d", len(out), want)
	}
}

func TestBgraToI420WhitePixelProducesLumaNear235(t *testing.T) {
	w, h := 2, 2
	bgra := make([]byte, w*h*4)
	for i := range bgra {
		bgra[i] = 255
	}
	out := bgraToI420(bgra, w, h, w*4)
	y := out[0]
	if y < 234 || y > 235 {
		t.Fatalf("Y for white pixel = %d, want ~235", y)
	}
}
