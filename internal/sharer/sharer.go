// Package sharer implements C9: the capture→scale→encode→send loop that
// drives one display to however many viewers have an open stream. One
// Sharer owns a single active capture; each viewer gets its own stream,
// scaler, and encoder so a resolution change for one never disturbs
// another (§4.9).
package sharer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nearcast/nearcast/internal/capture"
	"github.com/nearcast/nearcast/internal/encoder"
	"github.com/nearcast/nearcast/internal/errs"
	"github.com/nearcast/nearcast/internal/logging"
	"github.com/nearcast/nearcast/internal/scaler"
	"github.com/nearcast/nearcast/internal/transport"
	"github.com/nearcast/nearcast/internal/wire"
)

var log = logging.L("sharer")

// idleRecoverySampleEvery spaces out the synthetic non-stalled samples fed
// to the adaptive controller while the frame differ reports the screen has
// stopped changing (see captureScaleEncodeSend).
const idleRecoverySampleEvery = 30

// Config bounds every viewer loop this Sharer forks.
type Config struct {
	FPS            int
	InitialBitrate int
	MinBitrate     int
	MaxBitrate     int
	PreferHardware bool
	Adaptive       bool // enable the send-stall-driven auto bitrate controller
}

func (c Config) withDefaults() Config {
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.InitialBitrate <= 0 {
		c.InitialBitrate = 4_000_000
	}
	if c.MinBitrate <= 0 {
		c.MinBitrate = 500_000
	}
	if c.MaxBitrate <= 0 {
		c.MaxBitrate = 12_000_000
	}
	return c
}

// StreamRequest carries a viewer's requested target box and bitrate, as
// named by either the implicit defaults on first connect or an explicit
// ResolutionRequest (§4.9 "Resolution renegotiation").
type StreamRequest struct {
	TargetWidth  int
	TargetHeight int
	BitrateBps   int
}

// Sharer is the C9 contract: start_sharing(display) / stop_sharing, plus
// per-viewer stream lifecycle driven by the connection handler (C11).
type Sharer struct {
	cfg Config
	cap *capture.Capturer

	mu       sync.Mutex
	sharing  bool
	display  uint32
	sessions map[string]*viewerSession
}

// New constructs a Sharer backed by the ambient platform capture backend.
func New(cfg Config) (*Sharer, error) {
	c, err := capture.New()
	if err != nil {
		return nil, errs.Init("sharer: create capturer", err)
	}
	return &Sharer{
		cfg:      cfg.withDefaults(),
		cap:      c,
		sessions: make(map[string]*viewerSession),
	}, nil
}

// StartSharing begins capturing displayID. Idempotent: restarting while
// already sharing closes the previous session set first (§"Sharer" state
// machine, Idle -> Capturing).
func (s *Sharer) StartSharing(displayID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sharing {
		s.stopAllSessionsLocked()
		if err := s.cap.Stop(); err != nil {
			log.Warn("stop before restart", "error", err)
		}
	}

	if err := s.cap.Start(displayID); err != nil {
		return err
	}
	s.display = displayID
	s.sharing = true
	return nil
}

// StopSharing ends capture and every active viewer stream (`* -> Idle`).
func (s *Sharer) StopSharing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sharing {
		return nil
	}
	s.stopAllSessionsLocked()
	s.sharing = false
	return s.cap.Stop()
}

func (s *Sharer) stopAllSessionsLocked() {
	for id, sess := range s.sessions {
		sess.requestStop()
		delete(s.sessions, id)
	}
}

// IsSharing reports whether StartSharing has run without a matching
// StopSharing.
func (s *Sharer) IsSharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharing
}

// DisplayID reports the currently shared display, valid only while
// IsSharing is true.
func (s *Sharer) DisplayID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

// StartViewerStream forks the per-viewer frame loop (`Capturing ->
// Streaming`): it opens a fresh media stream on conn, negotiates the
// initial StreamStart, and runs the capture/scale/encode/send loop on its
// own goroutine until stopped, the peer disconnects, or a send fails.
func (s *Sharer) StartViewerStream(ctx context.Context, viewerID string, conn *transport.Connection, req StreamRequest) error {
	s.mu.Lock()
	if !s.sharing {
		s.mu.Unlock()
		return errs.NotReady("sharer: not sharing")
	}
	if existing, ok := s.sessions[viewerID]; ok {
		existing.requestStop()
		delete(s.sessions, viewerID)
	}
	cfg := s.cfg
	cap := s.cap
	s.mu.Unlock()

	stream, err := conn.OpenMediaStream(ctx)
	if err != nil {
		return errs.Stream("sharer: open media stream", err)
	}

	sess := newViewerSession(viewerID, stream, cap, cfg, req)
	s.mu.Lock()
	s.sessions[viewerID] = sess
	s.mu.Unlock()

	go func() {
		sess.run()
		s.mu.Lock()
		if s.sessions[viewerID] == sess {
			delete(s.sessions, viewerID)
		}
		s.mu.Unlock()
	}()
	return nil
}

// StopViewerStream signals the named viewer's loop to wind down. Safe to
// call on an unknown or already-stopped viewer id.
func (s *Sharer) StopViewerStream(viewerID string) {
	s.mu.Lock()
	sess, ok := s.sessions[viewerID]
	if ok {
		delete(s.sessions, viewerID)
	}
	s.mu.Unlock()
	if ok {
		sess.requestStop()
	}
}

// RenegotiateViewerStream applies a viewer's ResolutionRequest without
// tearing down the stream (§4.9 "Resolution renegotiation").
func (s *Sharer) RenegotiateViewerStream(viewerID string, req StreamRequest) error {
	s.mu.Lock()
	sess, ok := s.sessions[viewerID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("sharer: no active stream for viewer %s", viewerID)
	}
	sess.requestRenegotiate(req)
	return nil
}

// ActiveViewers lists viewer ids with a running stream.
func (s *Sharer) ActiveViewers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// ViewerStats returns a point-in-time metrics snapshot for one viewer.
func (s *Sharer) ViewerStats(viewerID string) (MetricsSnapshot, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[viewerID]
	s.mu.Unlock()
	if !ok {
		return MetricsSnapshot{}, false
	}
	return sess.metrics.Snapshot(), true
}

// Close releases the underlying capture backend.
func (s *Sharer) Close() error {
	_ = s.StopSharing()
	return nil
}

// viewerSession is C9's per-viewer fork: its own stream, scaler, encoder,
// and frame cadence, independent of every other viewer of the same
// display.
type viewerSession struct {
	id     string
	stream *transport.Stream
	cap    *capture.Capturer
	cfg    Config

	reqMu sync.Mutex
	req   StreamRequest

	renegotiateCh chan StreamRequest
	stopCh        chan struct{}
	stopOnce      sync.Once

	metrics  *StreamMetrics
	differ   *frameDiffer
	adaptive *adaptiveBitrate

	srcW, srcH int
	frameIdx   int
}

func newViewerSession(id string, stream *transport.Stream, cap *capture.Capturer, cfg Config, req StreamRequest) *viewerSession {
	return &viewerSession{
		id:            id,
		stream:        stream,
		cap:           cap,
		cfg:           cfg,
		req:           req,
		renegotiateCh: make(chan StreamRequest, 1),
		stopCh:        make(chan struct{}),
		metrics:       newStreamMetrics(),
		differ:        newFrameDiffer(),
	}
}

func (v *viewerSession) requestStop() {
	v.stopOnce.Do(func() { close(v.stopCh) })
}

func (v *viewerSession) requestRenegotiate(req StreamRequest) {
	select {
	case v.renegotiateCh <- req:
	default:
		// A renegotiation is already pending; the newest request wins.
		select {
		case <-v.renegotiateCh:
		default:
		}
		v.renegotiateCh <- req
	}
}

// run drives the frame loop until stopped, the peer disconnects, or a
// send fails (§4.9, §"Failure semantics").
func (v *viewerSession) run() {
	sc, enc, err := v.negotiate(v.req)
	if err != nil {
		log.Warn("viewer session negotiate failed", "viewer", v.id, "error", err)
		return
	}
	defer enc.Close()

	if v.cfg.Adaptive {
		v.adaptive = newAdaptiveBitrate(adaptiveConfig{
			Encoder:        enc,
			Metrics:        v.metrics,
			InitialBitrate: v.cfg.InitialBitrate,
			MinBitrate:     v.cfg.MinBitrate,
			MaxBitrate:     v.cfg.MaxBitrate,
		})
	}

	frameDuration := time.Second / time.Duration(v.cfg.FPS)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopCh:
			v.sendStop()
			return
		case req := <-v.renegotiateCh:
			newSc, newEnc, err := v.negotiate(req)
			if err != nil {
				log.Warn("viewer session renegotiate failed", "viewer", v.id, "error", err)
				continue
			}
			enc.Close()
			sc, enc = newSc, newEnc
			v.frameIdx = 0
			v.differ.Reset()
			continue
		case <-ticker.C:
			v.drainUpstream()
			if !v.captureScaleEncodeSend(sc, enc, frameDuration) {
				v.sendStop()
				return
			}
		}
	}
}

// negotiate (re)builds the scaler and encoder for req's target box,
// learning the source frame size from one capture if not already known,
// and announces the result via a new StreamStart.
func (v *viewerSession) negotiate(req StreamRequest) (*scaler.Scaler, *encoder.Encoder, error) {
	if v.srcW == 0 || v.srcH == 0 {
		frame, err := v.cap.CaptureFrame()
		if err != nil {
			return nil, nil, err
		}
		v.srcW, v.srcH = frame.Width, frame.Height
	}

	sc := scaler.New(v.srcW, v.srcH, req.TargetWidth, req.TargetHeight)

	bitrate := req.BitrateBps
	if bitrate <= 0 {
		bitrate = v.cfg.InitialBitrate
	}
	enc, err := encoder.New(encoder.Config{
		Width:          sc.DstW(),
		Height:         sc.DstH(),
		FPS:            v.cfg.FPS,
		Bitrate:        bitrate,
		MaxBitrate:     v.cfg.MaxBitrate,
		PreferHardware: v.cfg.PreferHardware,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := v.stream.SendFramed(wire.EncodeMediaStart(wire.MediaStartMsg{
		Width:  uint32(sc.DstW()),
		Height: uint32(sc.DstH()),
	})); err != nil {
		enc.Close()
		return nil, nil, err
	}
	return sc, enc, nil
}

// drainUpstream non-blockingly consumes every pending framed message on
// the stream; the only message a viewer may send upstream here is a
// ResolutionRequest (§4.9).
func (v *viewerSession) drainUpstream() {
	for {
		payload, err := v.stream.TryRecvFramed()
		if err != nil {
			log.Debug("viewer session upstream read error", "viewer", v.id, "error", err)
			return
		}
		if payload == nil {
			return
		}
		msg, err := wire.DecodeMediaMessage(payload)
		if err != nil {
			log.Debug("viewer session dropped malformed upstream message", "viewer", v.id, "error", err)
			continue
		}
		if msg.Type != wire.MediaResolutionRequest {
			continue
		}
		v.requestRenegotiate(StreamRequest{
			TargetWidth:  int(msg.ResolutionRequest.TargetWidth),
			TargetHeight: int(msg.ResolutionRequest.TargetHeight),
			BitrateBps:   int(msg.ResolutionRequest.BitrateBps),
		})
	}
}

// captureScaleEncodeSend runs one tick of the C1->C2->C3->C7->C6 pipeline.
// Returns false when the send failed and the caller should tear the
// session down (capture/encode failures are logged and skipped instead,
// per the Failure semantics section).
func (v *viewerSession) captureScaleEncodeSend(sc *scaler.Scaler, enc *encoder.Encoder, frameDuration time.Duration) bool {
	t0 := time.Now()
	frame, err := v.cap.CaptureFrame()
	if err != nil {
		log.Warn("capture failed, skipping frame", "viewer", v.id, "error", err)
		return true
	}
	v.metrics.RecordCapture(time.Since(t0))

	if !v.differ.HasChanged(frame.Pixels) {
		v.metrics.RecordSkip()
		// An idle screen produces no send outcomes for the adaptive
		// controller to learn from; left alone it would sit at whatever
		// bitrate the last burst of real traffic settled on, however long
		// ago that was. Feed it an occasional non-stalled sample so the
		// EWMA has recovered by the time the screen changes again.
		if v.adaptive != nil && v.differ.IdleStreak()%idleRecoverySampleEvery == 0 {
			v.adaptive.Update(false)
		}
		return true
	}

	scaled, err := sc.Scale(frame.Pixels)
	if err != nil {
		log.Warn("scale failed, skipping frame", "viewer", v.id, "error", err)
		return true
	}

	t1 := time.Now()
	encoded, err := enc.Encode(scaled, frame.TimestampMs)
	if err != nil {
		log.Warn("encode failed, skipping frame", "viewer", v.id, "error", err)
		return true
	}
	v.metrics.RecordEncode(time.Since(t1), len(encoded.Bytes))
	if len(encoded.Bytes) == 0 {
		return true
	}

	t2 := time.Now()
	sendErr := v.stream.SendFramed(wire.EncodeMediaFrame(wire.MediaFrameMsg{
		TimestampMs: encoded.TimestampMs,
		Payload:     encoded.Bytes,
	}))
	stalled := time.Since(t2) >= transport.SendTimeout || sendErr != nil
	if v.adaptive != nil {
		v.adaptive.Update(stalled)
	}
	if sendErr != nil {
		log.Warn("send failed, ending viewer stream", "viewer", v.id, "error", sendErr)
		v.metrics.RecordDrop()
		return false
	}

	v.frameIdx++
	v.metrics.RecordSend(len(encoded.Bytes))
	return true
}

func (v *viewerSession) sendStop() {
	_ = v.stream.SendFramed(wire.EncodeMediaStop())
	_ = v.stream.Close()
}
