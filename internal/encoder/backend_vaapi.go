//go:build vaapi

package encoder

import (
	"fmt"
	"sync"
)

// vaapiBackend is a placeholder for a Linux VA-API-backed hardware
// encoder, built only when the vaapi tag is set; init always fails so
// newBackend falls through to software.
type vaapiBackend struct {
	mu  sync.Mutex
	cfg Config
}

func init() {
	registerHardwareFactory(newVAAPIBackend)
}

func newVAAPIBackend(cfg Config) (backend, error) {
	return nil, fmt.Errorf("vaapi: not available in this build")
}
