package scaler

import "testing"

func TestNewModeSelection(t *testing.T) {
	tests := []struct {
		name             string
		srcW, srcH       int
		boxW, boxH       int
		wantW, wantH     int
		wantMode         Mode
	}{
		{"already fits, no box", 3840, 2160, 0, 0, 3840, 2160, ModeNone},
		{"width over max", 4096, 2160, 0, 0, 3840, 2160, ModeCropWidth},
		{"both over/odd", 3457, 2169, 0, 0, 3456, 2160, ModeCropBoth},
		{"downscale into 720p box", 3456, 2160, 1280, 720, 1152, 720, ModeDownscale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.srcW, tt.srcH, tt.boxW, tt.boxH)
			if s.DstW() != tt.wantW || s.DstH() != tt.wantH {
				t.Fatalf("dst = (%d, %d), want (%d, %d)", s.DstW(), s.DstH(), tt.wantW, tt.wantH)
			}
			if s.Mode() != tt.wantMode {
				t.Fatalf("mode = %v, want %v", s.Mode(), tt.wantMode)
			}
		})
	}
}

func TestOutputDimensionsAlwaysEven(t *testing.T) {
	cases := [][4]int{
		{1921, 1081, 0, 0},
		{4095, 2161, 0, 0},
		{1921, 1081, 801, 601},
		{7, 7, 0, 0},
	}
	for _, c := range cases {
		s := New(c[0], c[1], c[2], c[3])
		if s.DstW()%2 != 0 || s.DstH()%2 != 0 {
			t.Fatalf("New(%v) dst = (%d, %d), want both even", c, s.DstW(), s.DstH())
		}
	}
}

func TestDownscaleNeverUpscales(t *testing.T) {
	s := New(640, 480, 1920, 1080)
	if s.Mode() != ModeNone {
		t.Fatalf("mode = %v, want none (source already smaller than box)", s.Mode())
	}
	if s.DstW() != 640 || s.DstH() != 480 {
		t.Fatalf("dst = (%d, %d), want source size preserved", s.DstW(), s.DstH())
	}
}

func TestDownscalePreservesAspectRatio(t *testing.T) {
	s := New(3840, 2160, 1280, 720)
	srcAspect := float64(3840) / float64(2160)
	dstAspect := float64(s.DstW()) / float64(s.DstH())
	diff := srcAspect - dstAspect
	if diff < 0 {
		diff = -diff
	}
	if diff > 0.01 {
		t.Fatalf("aspect ratio not preserved: src=%f dst=%f", srcAspect, dstAspect)
	}
}

func TestCropHeightIsZeroCopyBorrow(t *testing.T) {
	srcW, srcH := 1920, 1081
	s := New(srcW, srcH, 0, 0)
	if s.Mode() != ModeCropHeight {
		t.Fatalf("mode = %v, want crop_height", s.Mode())
	}
	src := make([]byte, srcW*srcH*4)
	for i := range src {
		src[i] = byte(i)
	}
	out, err := s.Scale(src)
	if err != nil {
		t.Fatal(err)
	}
	if &out[0] != &src[0] {
		t.Fatal("expected crop_height to borrow a prefix of the source buffer")
	}
}

func TestScaleRejectsUndersizedInput(t *testing.T) {
	s := New(1920, 1080, 0, 0)
	_, err := s.Scale(make([]byte, 10))
	if err == nil {
		t.Fatal("expected an error for undersized input")
	}
}

func TestScaleProducesExactOutputLength(t *testing.T) {
	s := New(3456, 2160, 1280, 720)
	src := make([]byte, 3456*2160*4)
	out, err := s.Scale(src)
	if err != nil {
		t.Fatal(err)
	}
	want := s.DstW() * s.DstH() * 4
	if len(out) != want {
		t.Fatalf("output length = %d, want %d", len(out), want)
	}
}
