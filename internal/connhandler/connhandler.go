// Package connhandler implements C11: the accept/classify/dispatch shape
// that owns every live connection. One control-stream recv loop handles
// Handshake/Heartbeat/Chat/Screen-presence traffic; a second loop accepts
// whatever additional streams a peer opens and routes each to the media
// viewer or the file-transfer subsystem by peeking its first framed
// payload. Grounded on the teacher's session-broker accept/dispatch/
// cleanup shape, stripped of the helper-process auth and rate-limiting it
// carries for a privilege-separated local agent (not applicable to a
// LAN-trust peer transport).
package connhandler

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/nearcast/nearcast/internal/device"
	"github.com/nearcast/nearcast/internal/logging"
	"github.com/nearcast/nearcast/internal/sharer"
	"github.com/nearcast/nearcast/internal/transport"
	"github.com/nearcast/nearcast/internal/viewer"
	"github.com/nearcast/nearcast/internal/wire"
)

var log = logging.L("connhandler")

// handshakeTimeout bounds how long a newly opened control stream waits
// for its peer's Handshake/HandshakeAck before the connection is given up
// on.
const handshakeTimeout = 5 * time.Second

// Self describes the local device, announced in every Handshake.
type Self struct {
	DeviceID    string
	DisplayName string
	Port        uint16
}

// ChatHandler receives every inbound ChatMessage.
type ChatHandler func(peerID string, msg wire.ChatMessage)

// FileControlHandler receives every inbound file-transfer control message
// (offer/accept/reject/chunk/complete/cancel) carried on the control
// stream.
type FileControlHandler func(peerID string, msg wire.Message)

// FileStreamHandler receives an inbound stream whose first framed payload
// did not match a known media tag, along with that payload already read
// off the wire. Left nil, such streams are closed immediately.
type FileStreamHandler func(peerID string, stream *transport.Stream, first []byte)

// Config wires a Handler to the rest of the process.
type Config struct {
	Self Self

	Devices  *device.Registry
	Endpoint *transport.Endpoint
	Sharer   *sharer.Sharer
	Viewers  *viewer.Registry

	ViewerConfig viewer.Config

	OnChatMessage  ChatHandler
	OnFileControl  FileControlHandler
	OnFileStream   FileStreamHandler
	OnConnected    func(d device.Device)
	OnDisconnected func(deviceID string)
}

// Handler owns the accept/dispatch lifecycle for every live connection.
type Handler struct {
	cfg Config
}

func New(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

// HandleInbound drives a freshly accepted connection: waits for the
// peer's Handshake on its control stream, registers the device, replies
// HandshakeAck, then runs the shared dispatch loops until the connection
// ends. Blocks; callers run it on its own goroutine per accepted
// connection.
func (h *Handler) HandleInbound(ctx context.Context, conn *transport.Connection) {
	stream, err := conn.AcceptControlStream(ctx)
	if err != nil {
		log.Debug("accept control stream failed", "error", err)
		return
	}

	codec := wire.NewCodec()
	msg, err := readOneMessage(stream, codec, handshakeTimeout)
	if err != nil || msg.Type != wire.TypeHandshake {
		log.Warn("expected Handshake, dropping connection", "error", err)
		_ = conn.Close()
		return
	}
	hs, err := wire.DecodeHandshake(msg.Payload)
	if err != nil {
		log.Warn("malformed Handshake, dropping connection", "error", err)
		_ = conn.Close()
		return
	}

	h.registerPeer(conn, hs)
	_ = writeControl(stream, wire.HandshakeAck{Accepted: true})

	h.run(ctx, conn, stream, codec, hs.DeviceID)
}

// HandleOutbound drives a connection this process dialed: opens the
// control stream, sends our Handshake, and waits for the peer's ack
// before entering the shared dispatch loops on a new goroutine. Returns
// once the handshake itself completes (success or failure), not when the
// connection ends.
func (h *Handler) HandleOutbound(ctx context.Context, conn *transport.Connection, peerID string) error {
	stream, err := conn.OpenControlStream(ctx)
	if err != nil {
		return err
	}
	if err := writeControl(stream, wire.Handshake{
		DeviceID:    h.cfg.Self.DeviceID,
		DisplayName: h.cfg.Self.DisplayName,
		Port:        h.cfg.Self.Port,
	}); err != nil {
		return err
	}

	codec := wire.NewCodec()
	msg, err := readOneMessage(stream, codec, handshakeTimeout)
	if err != nil {
		return err
	}
	if msg.Type != wire.TypeHandshakeAck {
		return errors.New("connhandler: expected HandshakeAck")
	}
	ack, err := wire.DecodeHandshakeAck(msg.Payload)
	if err != nil {
		return err
	}
	if !ack.Accepted {
		return errors.New("connhandler: handshake rejected: " + ack.Reason)
	}

	h.registerPeer(conn, wire.Handshake{DeviceID: peerID, Port: h.cfg.Self.Port})
	go h.run(ctx, conn, stream, codec, peerID)
	return nil
}

func (h *Handler) registerPeer(conn *transport.Connection, hs wire.Handshake) {
	ip := remoteIP(conn.RemoteAddr())
	d := device.Device{
		ID:          hs.DeviceID,
		DisplayName: hs.DisplayName,
		IP:          ip,
		Port:        int(hs.Port),
		Status:      device.StatusOnline,
		LastSeenMs:  device.NowMs(),
	}
	if h.cfg.Devices != nil {
		h.cfg.Devices.Upsert(d)
	}
	if h.cfg.Endpoint != nil {
		h.cfg.Endpoint.Register(conn.RemoteAddr().String(), conn)
	}
	if h.cfg.OnConnected != nil {
		h.cfg.OnConnected(d)
	}
}

func remoteIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// run drives the control-stream dispatch loop and the extra-stream accept
// loop concurrently until the connection ends, then prunes every
// registry entry for this peer (§4.11 "On connection end").
func (h *Handler) run(ctx context.Context, conn *transport.Connection, stream *transport.Stream, codec *wire.Codec, peerID string) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go h.runAcceptLoop(connCtx, conn, peerID)
	h.runControlLoop(connCtx, conn, stream, codec, peerID)

	h.cleanupPeer(peerID, conn.RemoteAddr().String())
}

func (h *Handler) runControlLoop(ctx context.Context, conn *transport.Connection, stream *transport.Stream, codec *wire.Codec, peerID string) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		msg, ok, err := codec.Decode()
		if err != nil {
			log.Warn("control codec error, dropping connection", "peer", peerID, "error", err)
			return
		}
		if ok {
			h.dispatchControl(ctx, conn, stream, peerID, msg)
			continue
		}

		if err := stream.SetReadDeadline(time.Time{}); err != nil {
			return
		}
		n, err := stream.Read(buf)
		if err != nil {
			log.Debug("control stream ended", "peer", peerID, "error", err)
			return
		}
		if n > 0 {
			codec.Feed(buf[:n])
		}
	}
}

func (h *Handler) dispatchControl(ctx context.Context, conn *transport.Connection, stream *transport.Stream, peerID string, msg wire.Message) {
	if h.cfg.Devices != nil {
		h.cfg.Devices.Touch(peerID, device.NowMs())
	}

	switch msg.Type {
	case wire.TypeHandshake, wire.TypeHandshakeAck:
		log.Debug("ignoring duplicate handshake message on established connection", "peer", peerID)

	case wire.TypeDisconnect:
		d := wire.DecodeDisconnect(msg.Payload)
		log.Info("peer announced disconnect", "peer", peerID, "reason", d.Reason)

	case wire.TypeHeartbeat:
		hb, err := wire.DecodeHeartbeat(msg.Payload)
		if err != nil {
			return
		}
		latency := time.Now().UnixMilli() - hb.TimestampMs
		if latency < 0 {
			latency = 0
		}
		_ = writeControl(stream, wire.HeartbeatAck{LatencyMs: latency})

	case wire.TypeHeartbeatAck:
		// Latency measurement is surfaced through get_stream_stats by the
		// caller that sent the original Heartbeat, not handled here.

	case wire.TypeChatMessage:
		cm, err := wire.DecodeChatMessage(msg.Payload)
		if err != nil {
			return
		}
		if h.cfg.OnChatMessage != nil {
			h.cfg.OnChatMessage(peerID, cm)
		}

	case wire.TypeScreenOffer:
		so, err := wire.DecodeScreenOffer(msg.Payload)
		if err != nil {
			return
		}
		if h.cfg.Devices != nil {
			h.cfg.Devices.SetSharing(peerID, so.DisplayCount > 0)
		}

	case wire.TypeScreenRequest:
		h.handleScreenRequest(ctx, conn, peerID)

	case wire.TypeControlRequest, wire.TypeInputEvent:
		// Reserved (§9 Open Question 2): acknowledge-and-ignore rather than
		// silently dropping, so a future client gets a deterministic reply.
		_ = writeControl(stream, wire.ControlRevoke{Reason: "remote input is not supported"})

	case wire.TypeFileOffer, wire.TypeFileAccept, wire.TypeFileReject,
		wire.TypeFileComplete, wire.TypeFileCancel, wire.TypeFileChunk:
		if h.cfg.OnFileControl != nil {
			h.cfg.OnFileControl(peerID, msg)
		}

	default:
		log.Debug("ignoring unhandled control message", "peer", peerID, "type", msg.Type.String())
	}
}

// handleScreenRequest starts a per-viewer stream for the requesting peer
// (§9 Open Question 1: ScreenRequest is the sole trigger for C9; all
// frame data then moves to the dedicated media stream).
func (h *Handler) handleScreenRequest(ctx context.Context, conn *transport.Connection, peerID string) {
	if h.cfg.Sharer == nil || !h.cfg.Sharer.IsSharing() {
		log.Debug("ScreenRequest received while not sharing", "peer", peerID)
		return
	}
	if err := h.cfg.Sharer.StartViewerStream(ctx, peerID, conn, sharer.StreamRequest{}); err != nil {
		log.Warn("failed to start viewer stream", "peer", peerID, "error", err)
	}
}

// runAcceptLoop accepts every additional stream the peer opens and
// classifies it by its first framed payload (§4.11 "On each new bidi
// stream ... peek first byte").
func (h *Handler) runAcceptLoop(ctx context.Context, conn *transport.Connection, peerID string) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go h.classifyStream(peerID, stream)
	}
}

func (h *Handler) classifyStream(peerID string, stream *transport.Stream) {
	payload, err := stream.RecvFramed()
	if err != nil {
		log.Debug("dropped stream before classification", "peer", peerID, "error", err)
		_ = stream.Close()
		return
	}

	if len(payload) >= 1 && isMediaTag(payload[0]) {
		if h.cfg.Viewers != nil {
			h.cfg.Viewers.Run(peerID, stream, h.cfg.ViewerConfig, payload)
		} else {
			viewer.RunSessionWithFirst(peerID, stream, h.cfg.ViewerConfig, payload)
		}
		return
	}

	if h.cfg.OnFileStream != nil {
		h.cfg.OnFileStream(peerID, stream, payload)
		return
	}

	log.Debug("no handler for non-media stream, closing", "peer", peerID)
	_ = stream.Close()
}

func isMediaTag(b byte) bool {
	switch wire.MediaType(b) {
	case wire.MediaStart, wire.MediaFrame, wire.MediaStop, wire.MediaResolutionRequest:
		return true
	default:
		return false
	}
}

// cleanupPeer prunes every registry this peer appears in once its
// connection ends, and tears down any streaming session it was watching
// (§4.11 "On connection end"; failure semantics: pruning is local and
// never propagates to unrelated viewers).
func (h *Handler) cleanupPeer(peerID, addr string) {
	if h.cfg.Sharer != nil {
		h.cfg.Sharer.StopViewerStream(peerID)
	}
	if h.cfg.Viewers != nil {
		h.cfg.Viewers.Stop(peerID)
	}
	if h.cfg.Endpoint != nil {
		h.cfg.Endpoint.Prune(addr)
	}
	if h.cfg.Devices != nil {
		h.cfg.Devices.Remove(peerID)
	}
	if h.cfg.OnDisconnected != nil {
		h.cfg.OnDisconnected(peerID)
	}
	log.Info("connection ended, peer pruned", "peer", peerID)
}

func writeControl(stream *transport.Stream, m interface{ Encode() wire.Message }) error {
	b, err := wire.Encode(m.Encode())
	if err != nil {
		return err
	}
	return stream.WriteFrame(b)
}

// readOneMessage blocks (bounded by timeout) until codec yields a
// complete Message, feeding it from stream as bytes arrive.
func readOneMessage(stream *transport.Stream, codec *wire.Codec, timeout time.Duration) (wire.Message, error) {
	deadline := time.Now().Add(timeout)
	if err := stream.SetReadDeadline(deadline); err != nil {
		return wire.Message{}, err
	}
	defer stream.SetReadDeadline(time.Time{})

	buf := make([]byte, 4096)
	for {
		msg, ok, err := codec.Decode()
		if err != nil {
			return wire.Message{}, err
		}
		if ok {
			return msg, nil
		}
		n, err := stream.Read(buf)
		if err != nil {
			return wire.Message{}, err
		}
		if n > 0 {
			codec.Feed(buf[:n])
		}
	}
}
