// Package render implements C5: a native window with a GPU pipeline that
// uploads and presents one decoded frame per draw, preserving aspect
// ratio with letterbox/pillarbox bars. Window construction and event
// polling run on the caller's thread (the platform's main thread, on
// platforms that require it); frame upload and drawing run on a
// dedicated render thread reached only through message passing.
package render

import (
	"github.com/nearcast/nearcast/internal/decoder"
	"github.com/nearcast/nearcast/internal/logging"
)

var log = logging.L("render")

// EventKind enumerates the window events a Window surfaces through
// TryRecvEvent (§4.5).
type EventKind int

const (
	EventResized EventKind = iota
	EventCloseRequested
	EventFocused
	EventKeyPressed
	EventMouseMoved
	EventMouseButton
	EventMouseWheel
	EventResolutionRequested
)

func (k EventKind) String() string {
	switch k {
	case EventResized:
		return "resized"
	case EventCloseRequested:
		return "close_requested"
	case EventFocused:
		return "focused"
	case EventKeyPressed:
		return "key_pressed"
	case EventMouseMoved:
		return "mouse_moved"
	case EventMouseButton:
		return "mouse_button"
	case EventMouseWheel:
		return "mouse_wheel"
	case EventResolutionRequested:
		return "resolution_requested"
	default:
		return "unknown"
	}
}

// Event is a tagged union; only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	Width, Height int
	Focused       bool
	Scancode      int
	X, Y          float64
	Button        int
	Pressed       bool

	TargetWidth  int
	TargetHeight int
	BitrateBps   int
}

// ResolutionOption names one entry of the overlay's resolution selector.
type ResolutionOption struct {
	Label  string
	Width  int
	Height int // 0 for "Original", meaning no rescale
}

// BitrateOption names one entry of the overlay's bitrate selector.
type BitrateOption struct {
	Label string
	Bps   int
}

var resolutionOptions = []ResolutionOption{
	{Label: "720p", Width: 1280, Height: 720},
	{Label: "1080p", Width: 1920, Height: 1080},
	{Label: "1440p", Width: 2560, Height: 1440},
	{Label: "Original", Width: 0, Height: 0},
}

var bitrateOptions = []BitrateOption{
	{Label: "2 Mbps", Bps: 2_000_000},
	{Label: "4 Mbps", Bps: 4_000_000},
	{Label: "8 Mbps", Bps: 8_000_000},
	{Label: "12 Mbps", Bps: 12_000_000},
}

// DecodedFrame is the payload RenderFrame accepts; an alias keeps this
// package's public surface decoupled from decoder's internal layout
// details while still taking the decoder's own type directly.
type DecodedFrame = decoder.DecodedFrame
