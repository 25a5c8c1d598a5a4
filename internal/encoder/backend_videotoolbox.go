//go:build videotoolbox

package encoder

import (
	"fmt"
	"sync"
)

// videoToolboxBackend is a placeholder for a macOS VideoToolbox-backed
// hardware encoder, built only when the videotoolbox tag is set; init
// always fails so newBackend falls through to software.
type videoToolboxBackend struct {
	mu  sync.Mutex
	cfg Config
}

func init() {
	registerHardwareFactory(newVideoToolboxBackend)
}

func newVideoToolboxBackend(cfg Config) (backend, error) {
	return nil, fmt.Errorf("videotoolbox: not available in this build")
}
