// Package viewer implements C10: the per-peer session that distinguishes
// an inbound stream's control traffic from its media traffic, drives the
// decoder and render window, and relays the overlay's resolution/bitrate
// requests back upstream. The viewer carries no global sharing state —
// every Session belongs to whichever per-stream task the connection
// handler (C11) forked for it (§4.10).
package viewer

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/nearcast/nearcast/internal/decoder"
	"github.com/nearcast/nearcast/internal/logging"
	"github.com/nearcast/nearcast/internal/render"
	"github.com/nearcast/nearcast/internal/transport"
	"github.com/nearcast/nearcast/internal/wire"
)

var log = logging.L("viewer")

// recvPollInterval bounds how long a blocking receive waits before the
// session drains window events, keeping the UI interactive (§4.10: "a
// short timeout, e.g. 100ms").
const recvPollInterval = 100 * time.Millisecond

// state names the Viewer-session state machine (§"State machines").
type state int

const (
	stateCreated state = iota
	stateStarted
	stateEnded
)

// Config carries the settings-derived defaults applied on first
// StreamStart (§4.10 step 1: "if the settings manager has non-default
// resolution/bitrate indices, immediately send an upstream
// ResolutionRequest").
type Config struct {
	PreferHardwareDecode bool
	DefaultTargetWidth   int
	DefaultTargetHeight  int
	DefaultBitrateBps    int
}

func (c Config) hasNonDefaultRequest() bool {
	return c.DefaultTargetWidth > 0 || c.DefaultTargetHeight > 0 || c.DefaultBitrateBps > 0
}

// Session is C10's per-peer record: a decoder, an optional render window,
// and a frame counter, all scoped to one inbound stream.
type Session struct {
	peerID string
	stream *transport.Stream
	cfg    Config

	state   state
	dec     *decoder.Decoder
	win     *render.Window
	decW    int
	decH    int
	frameNo int
}

// RunSession drives peerID's inbound stream until StreamStop, the render
// window closes, or the stream errors. It blocks, so the caller (C11)
// runs it on its own goroutine per stream.
func RunSession(peerID string, stream *transport.Stream, cfg Config) {
	s := &Session{peerID: peerID, stream: stream, cfg: cfg}
	s.run(nil)
}

// RunSessionWithFirst is RunSession for a stream whose first framed
// payload the caller already read off the wire while classifying the
// stream (§4.11): first is dispatched before the session falls into its
// normal receive loop.
func RunSessionWithFirst(peerID string, stream *transport.Stream, cfg Config, first []byte) {
	s := &Session{peerID: peerID, stream: stream, cfg: cfg}
	s.run(first)
}

// Registry tracks every Session this process is currently running,
// keyed by peer id, so the command surface can end one from outside the
// per-stream goroutine that owns it (§4.12 stop_viewing). A Session not
// run through a Registry is untracked and can only end on its own (peer
// StreamStop, local window close, stream error).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Run drives peerID's session to completion, registering it for the
// duration. Blocks; callers run it on its own goroutine per stream.
func (r *Registry) Run(peerID string, stream *transport.Stream, cfg Config, first []byte) {
	s := &Session{peerID: peerID, stream: stream, cfg: cfg}

	r.mu.Lock()
	r.sessions[peerID] = s
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.sessions, peerID)
		r.mu.Unlock()
	}()

	s.run(first)
}

// Stop ends peerID's active session, if any, by closing its stream: the
// session's next receive fails, it cleans up, and (since the sharer's
// next send to a closed stream fails too) the remote side's per-viewer
// loop tears itself down on its own next send attempt (§8 failure
// semantics: stream send failure only affects that one viewer). Reports
// whether a session was found.
func (r *Registry) Stop(peerID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[peerID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	_ = s.stream.Close()
	return true
}

// ActiveSessions returns the peer ids with a currently running session.
func (r *Registry) ActiveSessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *Session) run(first []byte) {
	defer s.cleanup()

	if first != nil {
		if msg, err := wire.DecodeMediaMessage(first); err == nil {
			if s.handleMessage(msg) {
				return
			}
		} else {
			log.Debug("dropped malformed media message", "peer", s.peerID, "error", err)
		}
	}

	for s.state != stateEnded {
		if err := s.stream.SetReadDeadline(time.Now().Add(recvPollInterval)); err != nil {
			log.Warn("set read deadline failed, ending session", "peer", s.peerID, "error", err)
			return
		}

		payload, err := s.stream.RecvFramed()
		if err != nil {
			if isTimeout(err) {
				if s.pollWindowEvents() {
					return
				}
				continue
			}
			log.Debug("viewer stream ended", "peer", s.peerID, "error", err)
			return
		}

		msg, err := wire.DecodeMediaMessage(payload)
		if err != nil {
			log.Debug("dropped malformed media message", "peer", s.peerID, "error", err)
			continue
		}
		if s.handleMessage(msg) {
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// handleMessage applies one decoded media message and reports whether the
// session should end.
func (s *Session) handleMessage(msg wire.MediaMessage) bool {
	switch msg.Type {
	case wire.MediaStart:
		s.onStreamStart(int(msg.Start.Width), int(msg.Start.Height))
		return false
	case wire.MediaFrame:
		return s.onStreamFrame(msg.Frame)
	case wire.MediaStop:
		log.Info("viewer stream stopped by sharer", "peer", s.peerID)
		s.state = stateEnded
		return true
	default:
		return false
	}
}

// onStreamStart (re)initialises the decoder for the announced size,
// opens the render window on first use, and forwards any non-default
// settings as an immediate ResolutionRequest (§4.10 step 1).
func (s *Session) onStreamStart(w, h int) {
	if s.dec != nil {
		s.dec.Close()
	}
	dec, err := decoder.New(decoder.Config{
		Width:          w,
		Height:         h,
		OutputFormat:   decoder.FormatYUV420,
		PreferHardware: s.cfg.PreferHardwareDecode,
	})
	if err != nil {
		log.Warn("failed to initialise decoder", "peer", s.peerID, "error", err)
		return
	}
	s.dec = dec
	s.decW, s.decH = w, h
	s.frameNo = 0
	s.state = stateStarted

	if s.win == nil {
		win, err := render.New("nearcast - "+s.peerID, w, h)
		if err != nil {
			log.Warn("failed to open render window", "peer", s.peerID, "error", err)
			return
		}
		s.win = win
	}

	if s.cfg.hasNonDefaultRequest() {
		s.sendResolutionRequest(s.cfg.DefaultTargetWidth, s.cfg.DefaultTargetHeight, s.cfg.DefaultBitrateBps)
	}
}

// onStreamFrame drains every additional framed payload already pending on
// the stream, decodes all of them in arrival order (P-frames depend on
// what came before), and renders only the last successfully decoded
// frame (§4.10 step 2).
func (s *Session) onStreamFrame(first wire.MediaFrameMsg) bool {
	if s.dec == nil {
		return false
	}

	accessUnits := [][]byte{first.Payload}
	timestamps := []int64{first.TimestampMs}
	for {
		payload, err := s.stream.TryRecvFramed()
		if err != nil || payload == nil {
			break
		}
		msg, err := wire.DecodeMediaMessage(payload)
		if err != nil || msg.Type != wire.MediaFrame {
			continue
		}
		accessUnits = append(accessUnits, msg.Frame.Payload)
		timestamps = append(timestamps, msg.Frame.TimestampMs)
	}

	latest := s.decodeAllRenderLatest(accessUnits, timestamps)
	if latest == nil {
		return false
	}
	if s.win != nil {
		if err := s.win.RenderFrame(latest); err != nil {
			log.Debug("render frame failed", "peer", s.peerID, "error", err)
		}
	}
	s.frameNo++
	return false
}

func (s *Session) decodeAllRenderLatest(accessUnits [][]byte, timestamps []int64) *decoder.DecodedFrame {
	return decodeAllRenderLatest(accessUnits, timestamps, func(au []byte, ts int64) (*decoder.DecodedFrame, error) {
		return s.dec.Decode(au, ts)
	})
}

// decodeAllRenderLatest decodes every access unit in order via decodeFn,
// logging and skipping decode errors (never closing the window for one),
// and returns only the last successfully decoded non-nil frame.
func decodeAllRenderLatest(accessUnits [][]byte, timestamps []int64, decodeFn func([]byte, int64) (*decoder.DecodedFrame, error)) *decoder.DecodedFrame {
	var latest *decoder.DecodedFrame
	for i, au := range accessUnits {
		frame, err := decodeFn(au, timestamps[i])
		if err != nil {
			log.Debug("decode error, skipping frame", "error", err)
			continue
		}
		if frame != nil {
			latest = frame
		}
	}
	return latest
}

// pollWindowEvents drains pending window events between receives and
// reports whether the session should end (§4.10 "Upstream events").
func (s *Session) pollWindowEvents() bool {
	if s.win == nil {
		return false
	}
	s.win.PumpEvents()
	for {
		ev, ok := s.win.TryRecvEvent()
		if !ok {
			break
		}
		switch ev.Kind {
		case render.EventResolutionRequested:
			s.sendResolutionRequest(ev.TargetWidth, ev.TargetHeight, ev.BitrateBps)
		case render.EventCloseRequested:
			return true
		}
	}
	return !s.win.IsOpen()
}

func (s *Session) sendResolutionRequest(w, h, bps int) {
	err := s.stream.SendFramed(wire.EncodeMediaResolutionRequest(wire.MediaResolutionRequestMsg{
		TargetWidth:  uint32(w),
		TargetHeight: uint32(h),
		BitrateBps:   uint32(bps),
	}))
	if err != nil {
		log.Warn("failed to send resolution request", "peer", s.peerID, "error", err)
	}
}

func (s *Session) cleanup() {
	s.state = stateEnded
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	if s.win != nil {
		_ = s.win.Close()
		s.win = nil
	}
}
