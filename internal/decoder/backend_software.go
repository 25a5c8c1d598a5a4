package decoder

import (
	"fmt"
	"sync"

	"github.com/y9o/go-openh264/openh264dec"
)

// softwareBackend wraps the bundled openh264 decoder, the fallback used
// whenever no hardware backend is available or preferred (§4.4).
type softwareBackend struct {
	mu  sync.Mutex
	dec *openh264dec.Decoder
}

func newSoftwareBackend(cfg Config) (backend, error) {
	dec, err := openh264dec.New()
	if err != nil {
		return nil, fmt.Errorf("software decoder: init: %w", err)
	}
	return &softwareBackend{dec: dec}, nil
}

func (s *softwareBackend) Decode(accessUnit []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i420, err := s.dec.DecodeToI420(accessUnit)
	if err != nil {
		return nil, false, err
	}
	if i420 == nil {
		return nil, false, nil
	}
	return i420, true, nil
}

func (s *softwareBackend) Flush() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil // openh264 has no internal reorder buffer to drain
}

func (s *softwareBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dec.Close()
}

func (s *softwareBackend) Name() string { return "openh264" }

func (s *softwareBackend) IsHardware() bool { return false }
