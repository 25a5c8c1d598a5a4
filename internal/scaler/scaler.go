// Package scaler implements C2: cropping a captured BGRA frame down to an
// even-dimensioned, encoder-sized frame and, when a smaller target box is
// requested, nearest-neighbour downscaling that preserves aspect ratio.
package scaler

import "fmt"

// EncoderMaxWidth and EncoderMaxHeight bound what the encoder accepts
// (§4.2: "land inside the encoder's maximum (3840x2160)").
const (
	EncoderMaxWidth  = 3840
	EncoderMaxHeight = 2160
)

const bytesPerPixel = 4 // BGRA

// Mode names which adjustment Scaler.Scale applies, per §4.2.
type Mode int

const (
	ModeNone Mode = iota
	ModeCropHeight
	ModeCropWidth
	ModeCropBoth
	ModeDownscale
)

func (m Mode) String() string {
	switch m {
	case ModeCropHeight:
		return "crop_height"
	case ModeCropWidth:
		return "crop_width"
	case ModeCropBoth:
		return "crop_both"
	case ModeDownscale:
		return "downscale"
	default:
		return "none"
	}
}

// Scaler adapts one fixed (src_w, src_h) input to a fixed output size,
// computed once at construction and reused across every subsequent frame.
type Scaler struct {
	srcW, srcH int
	dstW, dstH int
	mode       Mode

	srcXOffsets []int // precomputed per-column source byte offset, downscale only
	srcYRows    []int // precomputed per-row source row index, downscale only
}

// New constructs a Scaler for a fixed source size. boxW/boxH is an optional
// target box (pass 0,0 for none): when given and the source exceeds it,
// downscale mode nearest-neighbour resamples to fit inside the box without
// upscaling.
func New(srcW, srcH, boxW, boxH int) *Scaler {
	s := &Scaler{srcW: srcW, srcH: srcH}

	// Does a target box ask for something smaller than the source (after
	// encoder-max clamping)? If so, downscale; otherwise just crop to fit
	// the encoder maximum and even dimensions.
	clampedW, clampedH := clampToEncoderMax(srcW, srcH)

	if boxW > 0 && boxH > 0 && (clampedW > boxW || clampedH > boxH) {
		s.dstW, s.dstH = fitAspect(clampedW, clampedH, boxW, boxH)
		s.mode = ModeDownscale
		s.precomputeDownscale()
		return s
	}

	s.dstW, s.dstH = clampedW, clampedH
	switch {
	case clampedW != srcW && clampedH != srcH:
		s.mode = ModeCropBoth
	case clampedW != srcW:
		s.mode = ModeCropWidth
	case clampedH != srcH:
		s.mode = ModeCropHeight
	default:
		s.mode = ModeNone
	}
	return s
}

func clampToEncoderMax(w, h int) (int, int) {
	if w > EncoderMaxWidth {
		w = EncoderMaxWidth
	}
	if h > EncoderMaxHeight {
		h = EncoderMaxHeight
	}
	return evenDown(w), evenDown(h)
}

func evenDown(v int) int {
	if v%2 != 0 {
		v--
	}
	if v < 2 {
		v = 2
	}
	return v
}

// fitAspect computes the largest (w, h) that fits inside boxW x boxH while
// preserving srcW:srcH aspect ratio, never upscaling, clamped to even
// dimensions.
func fitAspect(srcW, srcH, boxW, boxH int) (int, int) {
	scaleW := float64(boxW) / float64(srcW)
	scaleH := float64(boxH) / float64(srcH)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	if scale > 1.0 {
		scale = 1.0
	}
	w := int(float64(srcW) * scale)
	h := int(float64(srcH) * scale)
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return evenDown(w), evenDown(h)
}

func (s *Scaler) precomputeDownscale() {
	s.srcXOffsets = make([]int, s.dstW)
	for x := 0; x < s.dstW; x++ {
		s.srcXOffsets[x] = (x * s.srcW / s.dstW) * bytesPerPixel
	}
	s.srcYRows = make([]int, s.dstH)
	for y := 0; y < s.dstH; y++ {
		s.srcYRows[y] = y * s.srcH / s.dstH
	}
}

// DstW is the output width, always even.
func (s *Scaler) DstW() int { return s.dstW }

// DstH is the output height, always even.
func (s *Scaler) DstH() int { return s.dstH }

// Mode reports which adjustment this Scaler applies.
func (s *Scaler) Mode() Mode { return s.mode }

// NeedsScaling reports whether Scale does anything beyond returning the
// input unchanged.
func (s *Scaler) NeedsScaling() bool { return s.mode != ModeNone }

// Scale adapts one BGRA frame (srcW*srcH*4 bytes, stride == srcW*4) to the
// configured output size. Height-only cropping returns a zero-copy prefix
// of bgra (§4.2 guarantee); every other mode allocates a new buffer.
func (s *Scaler) Scale(bgra []byte) ([]byte, error) {
	want := s.srcW * s.srcH * bytesPerPixel
	if len(bgra) < want {
		return nil, fmt.Errorf("scaler: input %d bytes, want at least %d", len(bgra), want)
	}

	switch s.mode {
	case ModeNone:
		return bgra, nil
	case ModeCropHeight:
		return bgra[:s.dstH*s.srcW*bytesPerPixel], nil
	case ModeCropWidth:
		return s.cropWidth(bgra), nil
	case ModeCropBoth:
		return s.cropBoth(bgra), nil
	case ModeDownscale:
		return s.downscale(bgra), nil
	default:
		return bgra, nil
	}
}

func (s *Scaler) cropWidth(bgra []byte) []byte {
	srcStride := s.srcW * bytesPerPixel
	dstStride := s.dstW * bytesPerPixel
	out := make([]byte, s.dstH*dstStride)
	for y := 0; y < s.dstH; y++ {
		srcOff := y * srcStride
		dstOff := y * dstStride
		copy(out[dstOff:dstOff+dstStride], bgra[srcOff:srcOff+dstStride])
	}
	return out
}

func (s *Scaler) cropBoth(bgra []byte) []byte {
	return s.cropWidth(bgra) // row copy already bounds height via s.dstH
}

func (s *Scaler) downscale(bgra []byte) []byte {
	srcStride := s.srcW * bytesPerPixel
	dstStride := s.dstW * bytesPerPixel
	out := make([]byte, s.dstH*dstStride)

	for y := 0; y < s.dstH; y++ {
		srcRowBase := s.srcYRows[y] * srcStride
		dstRowBase := y * dstStride
		for x := 0; x < s.dstW; x++ {
			si := srcRowBase + s.srcXOffsets[x]
			di := dstRowBase + x*bytesPerPixel
			copy(out[di:di+bytesPerPixel], bgra[si:si+bytesPerPixel])
		}
	}
	return out
}
