// Package transport wraps QUIC (C6): a listening Endpoint that accepts
// peer connections, a dial function for outbound connects, and a
// Connection type exposing control/media streams with a prune-on-close
// registry. Framing of what travels on those streams belongs to
// internal/wire; this package only moves bytes.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/nearcast/nearcast/internal/errs"
	"github.com/nearcast/nearcast/internal/logging"
)

var log = logging.L("transport")

// SendTimeout bounds how long send_to_peer-style writes may block before
// the caller gives up on a stalled peer (§4.6).
const SendTimeout = 3 * time.Second

// DialTimeout bounds manual-add / explicit connect attempts (§4.8).
const DialTimeout = 5 * time.Second

// Endpoint listens for inbound QUIC connections on one UDP address and
// tracks every live Connection it has accepted or dialed, keyed by the
// connection's observed remote "ip:port" (§4.6: the connection registry is
// address-keyed, separate from the device registry in internal/device).
type Endpoint struct {
	listener *quic.Listener
	tlsConf  interface{} // kept for symmetry; quic.Config is passed at dial/listen time

	mu    sync.Mutex
	conns map[string]*Connection // "ip:port" -> Connection
}

// Listen opens a QUIC listener bound to addr (e.g. "0.0.0.0:19876").
func Listen(addr string) (*Endpoint, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, errs.Init("transport: build tls config", err)
	}

	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, errs.Init(fmt.Sprintf("transport: listen on %s", addr), err)
	}

	return &Endpoint{
		listener: ln,
		conns:    make(map[string]*Connection),
	}, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:        30 * time.Second,
		KeepAlivePeriod:       5 * time.Second,
		MaxIncomingStreams:    1024,
		MaxIncomingUniStreams: 1024,
		EnableDatagrams:       true,
	}
}

// Accept blocks for the next inbound connection. The caller is expected to
// loop calling Accept until ctx is cancelled.
func (e *Endpoint) Accept(ctx context.Context) (*Connection, error) {
	qc, err := e.listener.Accept(ctx)
	if err != nil {
		return nil, errs.ConnectionFailed("transport: accept", err)
	}
	return newConnection(qc), nil
}

// Dial opens a new QUIC connection to addr, bounded by DialTimeout.
func Dial(addr string) (*Connection, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, errs.Init("transport: build tls config", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()

	qc, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, errs.ConnectionFailed(fmt.Sprintf("transport: dial %s", addr), err)
	}
	return newConnection(qc), nil
}

// Register associates a Connection with the address it was observed at
// (typically conn.RemoteAddr().String()) once it has been accepted or
// dialed successfully.
func (e *Endpoint) Register(addr string, c *Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns[addr] = c
}

// Lookup returns the live Connection registered at key, which may be a
// full "ip:port" or a bare ip. A bare ip matches the first registered
// "ip:port" entry whose host part equals it (§4.6: "Lookups accept either
// ip:port or a bare ip, matching on prefix in the latter case").
func (e *Endpoint) Lookup(key string) (*Connection, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, _, ok := e.lookupLocked(key)
	return c, ok
}

// lookupLocked must be called with e.mu held. It returns the matched
// Connection along with the exact key it is registered under, so callers
// that also need to Prune/remove it don't have to repeat the prefix scan.
func (e *Endpoint) lookupLocked(key string) (*Connection, string, bool) {
	if c, ok := e.conns[key]; ok {
		return c, key, true
	}
	prefix := key + ":"
	for storedKey, c := range e.conns {
		if strings.HasPrefix(storedKey, prefix) {
			return c, storedKey, true
		}
	}
	return nil, "", false
}

// pruneDeadLocked must be called with e.mu held. It removes every entry
// whose underlying transport has already closed, so a dead connection
// never satisfies a future Lookup once this runs (§8 invariant 7).
func (e *Endpoint) pruneDeadLocked() {
	for key, c := range e.conns {
		if !c.IsAlive() {
			delete(e.conns, key)
		}
	}
}

// Prune removes the entry registered at key (an "ip:port" or bare ip,
// same matching rules as Lookup), called once its Connection's context is
// done (closed locally, closed remotely, or timed out).
func (e *Endpoint) Prune(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, storedKey, ok := e.lookupLocked(key); ok {
		delete(e.conns, storedKey)
	}
}

// SendToPeer sweeps dead connections, looks up key (full "ip:port" or bare
// ip), and writes payload to the peer's control stream, bounded by
// SendTimeout. It fails fast with ConnectionFailed rather than handing a
// caller a stream that write will only discover is dead 3s later (§4.6,
// §8 invariant 7).
func (e *Endpoint) SendToPeer(ctx context.Context, key string, payload []byte) error {
	e.mu.Lock()
	e.pruneDeadLocked()
	c, _, ok := e.lookupLocked(key)
	e.mu.Unlock()

	if !ok {
		return errs.ConnectionFailed(fmt.Sprintf("transport: no connection for %s", key), nil)
	}

	stream, err := c.OpenControlStream(ctx)
	if err != nil {
		return err
	}
	return stream.WriteFrame(payload)
}

// Connections returns a snapshot of every currently registered address key.
func (e *Endpoint) Connections() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, 0, len(e.conns))
	for key := range e.conns {
		keys = append(keys, key)
	}
	return keys
}

// Close shuts down the listener and every registered connection, emptying
// the registry (§9: teardown empties registries but preserves the cell).
func (e *Endpoint) Close() error {
	e.mu.Lock()
	conns := make([]*Connection, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.conns = make(map[string]*Connection)
	e.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return e.listener.Close()
}

// Connection wraps one peer's QUIC connection, exposing a single shared
// control stream plus on-demand media/file-transfer streams.
type Connection struct {
	qc quic.Connection

	mu            sync.Mutex
	controlStream *Stream
}

func newConnection(qc quic.Connection) *Connection {
	return &Connection{qc: qc}
}

// RemoteAddr is the peer's observed network address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.qc.RemoteAddr()
}

// Context is done when the connection closes for any reason.
func (c *Connection) Context() context.Context {
	return c.qc.Context()
}

// IsAlive reports whether the underlying transport has not yet closed.
func (c *Connection) IsAlive() bool {
	return c.qc.Context().Err() == nil
}

// OpenControlStream opens (once) the single bidirectional stream carrying
// control-message traffic for this connection's lifetime.
func (c *Connection) OpenControlStream(ctx context.Context) (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controlStream != nil {
		return c.controlStream, nil
	}
	qs, err := c.qc.OpenStreamSync(ctx)
	if err != nil {
		return nil, errs.Stream("transport: open control stream", err)
	}
	c.controlStream = &Stream{qs: qs}
	return c.controlStream, nil
}

// AcceptControlStream blocks for the peer-opened control stream on an
// inbound connection.
func (c *Connection) AcceptControlStream(ctx context.Context) (*Stream, error) {
	qs, err := c.qc.AcceptStream(ctx)
	if err != nil {
		return nil, errs.Stream("transport: accept control stream", err)
	}
	s := &Stream{qs: qs}
	c.mu.Lock()
	c.controlStream = s
	c.mu.Unlock()
	return s, nil
}

// OpenMediaStream opens a fresh unidirectional-in-spirit stream dedicated
// to one sharer->viewer frame sequence (§4.9) or one file transfer's chunk
// sequence (§9 Open Question 3).
func (c *Connection) OpenMediaStream(ctx context.Context) (*Stream, error) {
	qs, err := c.qc.OpenStreamSync(ctx)
	if err != nil {
		return nil, errs.Stream("transport: open media stream", err)
	}
	return &Stream{qs: qs}, nil
}

// AcceptStream blocks for the next peer-opened stream of any kind; the
// connection handler classifies it by its first framed payload (§5).
func (c *Connection) AcceptStream(ctx context.Context) (*Stream, error) {
	qs, err := c.qc.AcceptStream(ctx)
	if err != nil {
		return nil, errs.Stream("transport: accept stream", err)
	}
	return &Stream{qs: qs}, nil
}

// Close closes the underlying QUIC connection.
func (c *Connection) Close() error {
	return c.qc.CloseWithError(0, "closed")
}

// Stream wraps one QUIC stream with length-prefixed framed writes/reads,
// mirroring the teacher's mutex-serialized-write, io.ReadFull-exact-read
// idiom (internal/ipc/protocol.go) at the byte level; message parsing
// itself lives in internal/wire.
type Stream struct {
	qs quic.Stream
	mu sync.Mutex // serializes writes, matching protocol.Conn.Send

	frameMu  sync.Mutex
	frameBuf []byte // accumulator for TryRecvFramed
}

// WriteFrame writes raw bytes to the stream (already self-delimiting,
// e.g. a wire.Encode control message whose own MAGIC/LENGTH header lets
// the reader resync), bounded by SendTimeout so a stalled viewer cannot
// block the sharer forever.
func (s *Stream) WriteFrame(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(SendTimeout)
	if err := s.qs.SetWriteDeadline(deadline); err != nil {
		return errs.Stream("transport: set write deadline", err)
	}
	if _, err := s.qs.Write(data); err != nil {
		return errs.Stream("transport: write frame", err)
	}
	return nil
}

// Read reads up to len(buf) bytes, used by the caller to feed a
// wire.Codec or a media-frame length-prefix reader.
func (s *Stream) Read(buf []byte) (int, error) {
	n, err := s.qs.Read(buf)
	if err != nil {
		return n, errs.Stream("transport: read", err)
	}
	return n, nil
}

// SetReadDeadline bounds the next Read call; used by recv loops that need
// to poll for shutdown alongside inbound data (§9: 100ms recv-loop poll).
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.qs.SetReadDeadline(t)
}

// SendFramed writes a 4-byte big-endian length followed by payload (§4.6),
// the generic stream framing media messages use (they carry no self-
// delimiting length of their own, unlike C7 control messages).
func (s *Stream) SendFramed(payload []byte) error {
	if len(payload) > maxFrameSize {
		return errs.Stream("transport: frame too large", nil)
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	return s.WriteFrame(buf)
}

const maxFrameSize = 16 * 1024 * 1024

// RecvFramed blocks until a complete 4-byte-length-prefixed frame has
// been read, or the read deadline (if any) expires.
func (s *Stream) RecvFramed() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(s, header); err != nil {
		return nil, errs.Stream("transport: read frame header", err)
	}
	n := binary.BigEndian.Uint32(header)
	if n > maxFrameSize {
		return nil, errs.Stream("transport: frame too large", nil)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(s, payload); err != nil {
		return nil, errs.Stream("transport: read frame payload", err)
	}
	return payload, nil
}

// TryRecvFramed returns a complete frame if one is already buffered or
// arrives within a brief non-blocking poll, else (nil, nil). It
// maintains its own accumulator independent of Read/RecvFramed, so a
// caller must pick one family or the other per stream.
func (s *Stream) TryRecvFramed() ([]byte, error) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	if err := s.pollNonBlocking(); err != nil {
		return nil, err
	}
	payload, rest, ok := popFramedMessage(s.frameBuf)
	if !ok {
		return nil, nil
	}
	s.frameBuf = rest
	return payload, nil
}

// popFramedMessage extracts one complete 4-byte-length-prefixed message
// from buf, if present, returning the remaining unconsumed bytes.
func popFramedMessage(buf []byte) (payload []byte, rest []byte, ok bool) {
	if len(buf) < 4 {
		return nil, buf, false
	}
	n := binary.BigEndian.Uint32(buf[:4])
	if uint32(len(buf)-4) < n {
		return nil, buf, false
	}
	payload = append([]byte(nil), buf[4:4+n]...)
	return payload, buf[4+n:], true
}

func (s *Stream) pollNonBlocking() error {
	defer s.qs.SetReadDeadline(time.Time{})
	if err := s.qs.SetReadDeadline(time.Now()); err != nil {
		return errs.Stream("transport: set poll deadline", err)
	}

	buf := make([]byte, 4096)
	for {
		n, err := s.qs.Read(buf)
		if n > 0 {
			s.frameBuf = append(s.frameBuf, buf[:n]...)
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil
			}
			return errs.Stream("transport: poll read", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// Close closes the stream in both directions.
func (s *Stream) Close() error {
	return s.qs.Close()
}
