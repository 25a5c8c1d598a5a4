package decoder

import "testing"

func TestConfigValidateRejectsBadDimensions(t *testing.T) {
	cfg := Config{Width: 0, Height: 720}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestConfigValidateAcceptsGoodDimensions(t *testing.T) {
	cfg := Config{Width: 1280, Height: 720}
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestI420ToBGRABlackFrameIsOpaqueBlack(t *testing.T) {
	w, h := 4, 4
	ySize := w * h
	cSize := (w / 2) * (h / 2)
	i420 := make([]byte, ySize+2*cSize)
	for i := 0; i < ySize; i++ {
		i420[i] = 16 // black luma per BT.601 limited range
	}
	for i := ySize; i < len(i420); i++ {
		i420[i] = 128 // neutral chroma
	}

	bgra := i420ToBGRA(i420, w, h)
	if len(bgra) != w*h*4 {
		t.Fatalf("len(bgra) = %d, want %d", len(bgra), w*h*4)
	}
	for i := 0; i < len(bgra); i += 4 {
		if bgra[i] > 5 || bgra[i+1] > 5 || bgra[i+2] > 5 {
			t.Fatalf("pixel %d = (%d,%d,%d), want near black", i/4, bgra[i], bgra[i+1], bgra[i+2])
		}
		if bgra[i+3] != 0xff {
			t.Fatalf("alpha = %d, want 0xff", bgra[i+3])
		}
	}
}

func TestI420ToBGRAWhiteFrameIsNearWhite(t *testing.T) {
	w, h := 2, 2
	ySize := w * h
	cSize := (w / 2) * (h / 2)
	i420 := make([]byte, ySize+2*cSize)
	for i := 0; i < ySize; i++ {
		i420[i] = 235 // white luma per BT.601 limited range
	}
	for i := ySize; i < len(i420); i++ {
		i420[i] = 128
	}

	bgra := i420ToBGRA(i420, w, h)
	for i := 0; i < len(bgra); i += 4 {
		if bgra[i] < 250 || bgra[i+1] < 250 || bgra[i+2] < 250 {
			t.Fatalf("pixel %d = (%d,%d,%d), want near white", i/4, bgra[i], bgra[i+1], bgra[i+2])
		}
	}
}
