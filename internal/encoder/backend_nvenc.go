//go:build nvenc

package encoder

import (
	"fmt"
	"sync"
)

// nvencBackend is a placeholder for an NVENC-backed hardware encoder,
// built only when the nvenc tag is set (no NVENC bindings are vendored
// here); init always fails so newBackend falls through to software.
type nvencBackend struct {
	mu  sync.Mutex
	cfg Config
}

func init() {
	registerHardwareFactory(newNVENCBackend)
}

func newNVENCBackend(cfg Config) (backend, error) {
	return nil, fmt.Errorf("nvenc: not available in this build")
}
