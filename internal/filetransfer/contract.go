// Package filetransfer implements the FileTransfer entity named in spec
// §3: state tracking for a chat-adjacent file send/receive, plus the
// delegate that plugs into C11 so inbound FileOffer/Accept/Reject/Chunk/
// Complete/Cancel traffic updates it. The byte-range store-and-forward
// chunking protocol itself (resumable ranges, parallel chunk requests,
// partial-file reconciliation) is out of scope; this is the sequential,
// whole-file contract the rest of the system can build on.
package filetransfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/nearcast/nearcast/internal/errs"
	"github.com/nearcast/nearcast/internal/logging"
	"github.com/nearcast/nearcast/internal/transport"
	"github.com/nearcast/nearcast/internal/wire"
)

var log = logging.L("filetransfer")

// ChunkSize bounds each frame written to the dedicated per-transfer
// stream (§9 Open Question 3).
const ChunkSize = 256 * 1024

type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusTransferring Status = "transferring"
	StatusCompleted    Status = "completed"
	StatusRejected     Status = "rejected"
	StatusCancelled    Status = "cancelled"
	StatusFailed       Status = "failed"
)

// Info is the file metadata carried on FileOffer.
type Info struct {
	Name   string
	Size   int64
	SHA256 string
	MIME   string
}

// Transfer is the FileTransfer entity from spec §3.
type Transfer struct {
	FileID    string
	Info      Info
	Direction Direction
	Status    Status
	Progress  int // 0-100
	BytesDone int64
	PeerID    string
	LocalPath string
	Error     string

	hasher hash.Hash
	file   *os.File
	stream *transport.Stream
}

func (t *Transfer) snapshot() Transfer {
	return Transfer{
		FileID: t.FileID, Info: t.Info, Direction: t.Direction, Status: t.Status,
		Progress: t.Progress, BytesDone: t.BytesDone, PeerID: t.PeerID,
		LocalPath: t.LocalPath, Error: t.Error,
	}
}

func (t *Transfer) touchProgress() {
	if t.Info.Size > 0 {
		t.Progress = int((t.BytesDone * 100) / t.Info.Size)
	}
}

// Manager owns every in-flight Transfer and is the delegate
// connhandler.Config.OnFileControl/OnFileStream calls into.
type Manager struct {
	mu          sync.Mutex
	transfers   map[string]*Transfer
	endpoint    *transport.Endpoint
	resolveAddr func(peerID string) (string, bool)
	onUpdate    func(Transfer)
}

// NewManager returns a Manager bound to the transport endpoint it uses to
// reply on a peer's control stream. The connection registry is keyed by
// address, not device id (§4.6), so resolveAddr maps a peerID (as handed
// to HandleControl/HandleStream by C11) to the address Lookup/SendToPeer
// expect; it is typically backed by the device registry. onUpdate is
// called (never under the Manager's lock) whenever a Transfer's state
// changes; it may be nil.
func NewManager(endpoint *transport.Endpoint, resolveAddr func(peerID string) (string, bool), onUpdate func(Transfer)) *Manager {
	return &Manager{
		transfers:   make(map[string]*Transfer),
		endpoint:    endpoint,
		resolveAddr: resolveAddr,
		onUpdate:    onUpdate,
	}
}

// lookupConn resolves peerID to its registered address and returns the
// live Connection there, if any.
func (m *Manager) lookupConn(peerID string) (*transport.Connection, bool) {
	if m.endpoint == nil || m.resolveAddr == nil {
		return nil, false
	}
	addr, ok := m.resolveAddr(peerID)
	if !ok {
		return nil, false
	}
	return m.endpoint.Lookup(addr)
}

// Offer starts a send: it stats and hashes localPath, registers a Pending
// Transfer, and returns the FileOffer message the caller writes to the
// peer's control stream; Offer itself sends nothing.
func (m *Manager) Offer(peerID, localPath string) (*Transfer, wire.FileOffer, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, wire.FileOffer{}, errs.Init("open file for transfer", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, wire.FileOffer{}, errs.Init("stat file for transfer", err)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, wire.FileOffer{}, errs.Stream("hash file for transfer", err)
	}
	sum := hex.EncodeToString(h.Sum(nil))

	t := &Transfer{
		FileID:    uuid.New().String(),
		Info:      Info{Name: stat.Name(), Size: stat.Size(), SHA256: sum},
		Direction: DirectionSend,
		Status:    StatusPending,
		PeerID:    peerID,
		LocalPath: localPath,
	}

	m.mu.Lock()
	m.transfers[t.FileID] = t
	m.mu.Unlock()
	m.notify(t)

	return t, wire.FileOffer{FileID: t.FileID, Name: t.Info.Name, Size: t.Info.Size, SHA256: t.Info.SHA256}, nil
}

// Get returns the current snapshot of a transfer, if known.
func (m *Manager) Get(fileID string) (Transfer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[fileID]
	if !ok {
		return Transfer{}, false
	}
	return t.snapshot(), true
}

// List returns a snapshot of every transfer the Manager knows about.
func (m *Manager) List() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transfer, 0, len(m.transfers))
	for _, t := range m.transfers {
		out = append(out, t.snapshot())
	}
	return out
}

// HandleControl is connhandler.FileControlHandler: every inbound
// FileOffer/Accept/Reject/Complete/Cancel (and, per spec.md's note that a
// reimplementation may drive chunks on the control channel instead of
// their own stream, FileChunk too) lands here.
func (m *Manager) HandleControl(peerID string, msg wire.Message) {
	switch msg.Type {
	case wire.TypeFileOffer:
		m.handleOffer(peerID, msg.Payload)
	case wire.TypeFileAccept:
		m.handleAccept(peerID, msg.Payload)
	case wire.TypeFileReject:
		m.handleReject(peerID, msg.Payload)
	case wire.TypeFileComplete:
		m.handleComplete(peerID, msg.Payload)
	case wire.TypeFileCancel:
		m.handleCancel(peerID, msg.Payload)
	case wire.TypeFileChunk:
		fc, err := wire.DecodeFileChunk(msg.Payload)
		if err != nil {
			log.Debug("dropped malformed file chunk on control stream", "peer", peerID, "error", err)
			return
		}
		m.applyChunk(fc)
	}
}

// HandleStream is connhandler.FileStreamHandler: it owns the dedicated
// per-transfer stream for the rest of its life, reading chunks until the
// sender closes it or a FileComplete control message arrives.
func (m *Manager) HandleStream(peerID string, stream *transport.Stream, first []byte) {
	fc, err := wire.DecodeFileChunk(first)
	if err != nil {
		log.Debug("dropped unrecognised file stream", "peer", peerID, "error", err)
		_ = stream.Close()
		return
	}

	m.mu.Lock()
	t, ok := m.transfers[fc.FileID]
	if ok {
		t.stream = stream
	}
	m.mu.Unlock()
	if !ok {
		log.Debug("file chunk stream for unknown transfer", "peer", peerID, "file_id", fc.FileID)
		_ = stream.Close()
		return
	}

	m.applyChunk(fc)

	for {
		raw, err := stream.RecvFramed()
		if err != nil {
			return
		}
		next, err := wire.DecodeFileChunk(raw)
		if err != nil {
			log.Debug("dropped malformed file chunk", "peer", peerID, "file_id", fc.FileID, "error", err)
			continue
		}
		m.applyChunk(next)
	}
}

// Accept opens localPath for writing and tells the sender to start
// streaming chunks.
func (m *Manager) Accept(fileID, localPath string) error {
	m.mu.Lock()
	t, ok := m.transfers[fileID]
	m.mu.Unlock()
	if !ok || t.Direction != DirectionReceive || t.Status != StatusPending {
		return errs.NotReady(fmt.Sprintf("no pending incoming transfer %s", fileID))
	}

	f, err := os.Create(localPath)
	if err != nil {
		return errs.Init("create destination file", err)
	}

	m.mu.Lock()
	t.LocalPath = localPath
	t.Status = StatusTransferring
	t.file = f
	t.hasher = sha256.New()
	m.mu.Unlock()
	m.notify(t)

	return m.sendControl(t.PeerID, wire.FileAccept{FileID: fileID}.Encode())
}

// Reject declines a pending incoming offer.
func (m *Manager) Reject(fileID, reason string) error {
	m.mu.Lock()
	t, ok := m.transfers[fileID]
	if ok {
		t.Status = StatusRejected
		t.Error = reason
	}
	m.mu.Unlock()
	if !ok {
		return errs.NotReady(fmt.Sprintf("no pending incoming transfer %s", fileID))
	}
	m.notify(t)
	return m.sendControl(t.PeerID, wire.FileReject{FileID: fileID, Reason: reason}.Encode())
}

// Cancel aborts a transfer in either direction.
func (m *Manager) Cancel(fileID, reason string) error {
	m.mu.Lock()
	t, ok := m.transfers[fileID]
	if ok {
		t.Status = StatusCancelled
		t.Error = reason
		m.closeLocked(t)
	}
	m.mu.Unlock()
	if !ok {
		return errs.NotReady(fmt.Sprintf("no transfer %s", fileID))
	}
	m.notify(t)
	return m.sendControl(t.PeerID, wire.FileCancel{FileID: fileID, Reason: reason}.Encode())
}

// Send opens a dedicated per-transfer stream on conn, streams the
// transfer's file over it in ChunkSize pieces, then signals completion on
// the control channel.
func (m *Manager) Send(conn *transport.Connection, fileID string) error {
	m.mu.Lock()
	t, ok := m.transfers[fileID]
	m.mu.Unlock()
	if !ok || t.Direction != DirectionSend {
		return errs.NotReady(fmt.Sprintf("no outgoing transfer %s", fileID))
	}

	f, err := os.Open(t.LocalPath)
	if err != nil {
		return errs.Init("reopen file for transfer", err)
	}
	defer f.Close()

	stream, err := conn.OpenMediaStream(conn.Context())
	if err != nil {
		return errs.Stream("open file transfer stream", err)
	}
	defer stream.Close()

	buf := make([]byte, ChunkSize)
	var offset int64
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			raw := wire.FileChunk{FileID: fileID, Offset: offset, Data: buf[:n]}.Encode().Payload
			if err := stream.SendFramed(raw); err != nil {
				m.mu.Lock()
				t.Status = StatusFailed
				t.Error = err.Error()
				m.mu.Unlock()
				m.notify(t)
				return errs.Stream("send file chunk", err)
			}
			offset += int64(n)
			m.mu.Lock()
			t.BytesDone = offset
			t.touchProgress()
			m.mu.Unlock()
			m.notify(t)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			m.mu.Lock()
			t.Status = StatusFailed
			t.Error = readErr.Error()
			m.mu.Unlock()
			m.notify(t)
			return errs.Stream("read file for transfer", readErr)
		}
	}

	return m.sendControl(t.PeerID, wire.FileComplete{FileID: fileID}.Encode())
}

func (m *Manager) handleOffer(peerID string, payload []byte) {
	fo, err := wire.DecodeFileOffer(payload)
	if err != nil {
		log.Debug("dropped malformed file offer", "peer", peerID, "error", err)
		return
	}
	t := &Transfer{
		FileID:    fo.FileID,
		Info:      Info{Name: fo.Name, Size: fo.Size, SHA256: fo.SHA256},
		Direction: DirectionReceive,
		Status:    StatusPending,
		PeerID:    peerID,
	}
	m.mu.Lock()
	m.transfers[fo.FileID] = t
	m.mu.Unlock()
	m.notify(t)
}

func (m *Manager) handleAccept(peerID string, payload []byte) {
	fa := wire.DecodeFileAccept(payload)
	m.mu.Lock()
	t, ok := m.transfers[fa.FileID]
	if ok {
		t.Status = StatusTransferring
	}
	m.mu.Unlock()
	if ok {
		m.notify(t)
	}
	conn, ok2 := m.lookupConn(peerID)
	if !ok || !ok2 {
		return
	}
	go func() {
		if err := m.Send(conn, fa.FileID); err != nil {
			log.Warn("file send failed", "peer", peerID, "file_id", fa.FileID, "error", err)
		}
	}()
}

func (m *Manager) handleReject(peerID string, payload []byte) {
	fr, err := wire.DecodeFileReject(payload)
	if err != nil {
		log.Debug("dropped malformed file reject", "peer", peerID, "error", err)
		return
	}
	m.mu.Lock()
	t, ok := m.transfers[fr.FileID]
	if ok {
		t.Status = StatusRejected
		t.Error = fr.Reason
		m.closeLocked(t)
	}
	m.mu.Unlock()
	if ok {
		m.notify(t)
	}
}

func (m *Manager) handleCancel(peerID string, payload []byte) {
	fc, err := wire.DecodeFileCancel(payload)
	if err != nil {
		log.Debug("dropped malformed file cancel", "peer", peerID, "error", err)
		return
	}
	m.mu.Lock()
	t, ok := m.transfers[fc.FileID]
	if ok {
		t.Status = StatusCancelled
		t.Error = fc.Reason
		m.closeLocked(t)
	}
	m.mu.Unlock()
	if ok {
		m.notify(t)
	}
}

func (m *Manager) handleComplete(peerID string, payload []byte) {
	done := wire.DecodeFileComplete(payload)
	m.mu.Lock()
	t, ok := m.transfers[done.FileID]
	if !ok {
		m.mu.Unlock()
		return
	}
	sum := ""
	if t.hasher != nil {
		sum = hex.EncodeToString(t.hasher.Sum(nil))
	}
	m.closeLocked(t)
	switch {
	case t.Info.SHA256 != "" && sum != "" && sum != t.Info.SHA256:
		t.Status = StatusFailed
		t.Error = "checksum mismatch"
	default:
		t.Status = StatusCompleted
		t.Progress = 100
	}
	m.mu.Unlock()
	m.notify(t)
	if t.Status == StatusFailed {
		log.Warn("file transfer checksum mismatch", "peer", peerID, "file_id", done.FileID)
	}
}

func (m *Manager) applyChunk(fc wire.FileChunk) {
	m.mu.Lock()
	t, ok := m.transfers[fc.FileID]
	if !ok || t.file == nil {
		m.mu.Unlock()
		return
	}
	if _, err := t.file.WriteAt(fc.Data, fc.Offset); err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
		m.closeLocked(t)
		m.mu.Unlock()
		m.notify(t)
		return
	}
	if t.hasher != nil {
		// Assumes in-order arrival, true for chunks on a single QUIC stream.
		t.hasher.Write(fc.Data)
	}
	end := fc.Offset + int64(len(fc.Data))
	if end > t.BytesDone {
		t.BytesDone = end
	}
	t.touchProgress()
	m.mu.Unlock()
	m.notify(t)
}

// closeLocked releases the file handle and stream a Transfer holds. Caller
// must hold m.mu.
func (m *Manager) closeLocked(t *Transfer) {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
	if t.stream != nil {
		_ = t.stream.Close()
		t.stream = nil
	}
}

func (m *Manager) sendControl(peerID string, msg wire.Message) error {
	if m.resolveAddr == nil {
		return errs.ConnectionFailed(fmt.Sprintf("peer %s not connected", peerID), nil)
	}
	addr, ok := m.resolveAddr(peerID)
	if !ok {
		return errs.ConnectionFailed(fmt.Sprintf("peer %s not connected", peerID), nil)
	}
	encoded, err := wire.Encode(msg)
	if err != nil {
		return errs.Protocol(err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), transport.SendTimeout)
	defer cancel()
	return m.endpoint.SendToPeer(ctx, addr, encoded)
}

func (m *Manager) notify(t *Transfer) {
	if m.onUpdate == nil {
		return
	}
	m.onUpdate(t.snapshot())
}
