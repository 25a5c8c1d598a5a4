package encoder

import (
	"fmt"
	"sync"

	"github.com/y9o/go-openh264/openh264enc"
)

// softwareBackend wraps the bundled openh264 encoder, the fallback used
// whenever no hardware backend is available or preferred (§4.3).
type softwareBackend struct {
	mu  sync.Mutex
	enc *openh264enc.Encoder
	w, h int
}

func newSoftwareBackend(cfg Config) (backend, error) {
	params := openh264enc.Params{
		Width:            cfg.Width,
		Height:           cfg.Height,
		BitrateBps:       cfg.Bitrate,
		MaxBitrateBps:    cfg.MaxBitrate,
		FPS:              cfg.FPS,
		KeyframeInterval: cfg.KeyframeInterval,
	}
	enc, err := openh264enc.New(params)
	if err != nil {
		return nil, fmt.Errorf("software encoder: init: %w", err)
	}
	return &softwareBackend{enc: enc, w: cfg.Width, h: cfg.Height}, nil
}

func (s *softwareBackend) Encode(i420 []byte, timestampMs int64, forceKeyframe bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if forceKeyframe {
		s.enc.ForceIntraFrame()
	}
	return s.enc.EncodeI420(i420, s.w, s.h)
}

func (s *softwareBackend) SetBitrate(bps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.SetBitrate(bps)
}

func (s *softwareBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Close()
}

func (s *softwareBackend) Name() string { return "openh264" }

func (s *softwareBackend) IsHardware() bool { return false }
