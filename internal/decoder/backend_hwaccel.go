//go:build hwdecode

package decoder

import (
	"fmt"
	"sync"
)

// hwaccelBackend is a placeholder for a cross-platform accelerated decode
// path (VideoToolbox / DXVA / VAAPI, selected by the platform's own build
// constraints at a lower layer), built only when the hwdecode tag is set;
// init always fails so newBackend falls through to software.
type hwaccelBackend struct {
	mu  sync.Mutex
	cfg Config
}

func init() {
	registerHardwareFactory(newHWAccelBackend)
}

func newHWAccelBackend(cfg Config) (backend, error) {
	return nil, fmt.Errorf("hwdecode: not available in this build")
}
