package wire

import (
	"encoding/binary"
	"fmt"
)

// Connection-management payloads (§6 0x00-0x0F).

// Handshake is sent by the connecting side to announce itself.
type Handshake struct {
	DeviceID    string
	DisplayName string
	Port        uint16
}

func (h Handshake) Encode() Message {
	return Message{Type: TypeHandshake, Payload: encodeHandshake(h)}
}

func encodeHandshake(h Handshake) []byte {
	return append(encodeStrings(h.DeviceID, h.DisplayName), uint16ToBytes(h.Port)...)
}

func DecodeHandshake(p []byte) (Handshake, error) {
	fields, rest, err := decodeStrings(p, 2)
	if err != nil {
		return Handshake{}, err
	}
	if len(rest) < 2 {
		return Handshake{}, fmt.Errorf("wire: Handshake missing port")
	}
	return Handshake{
		DeviceID:    fields[0],
		DisplayName: fields[1],
		Port:        binary.BigEndian.Uint16(rest),
	}, nil
}

// HandshakeAck replies to a Handshake.
type HandshakeAck struct {
	Accepted bool
	Reason   string
}

func (a HandshakeAck) Encode() Message {
	payload := make([]byte, 1)
	if a.Accepted {
		payload[0] = 1
	}
	payload = append(payload, []byte(a.Reason)...)
	return Message{Type: TypeHandshakeAck, Payload: payload}
}

func DecodeHandshakeAck(p []byte) (HandshakeAck, error) {
	if len(p) < 1 {
		return HandshakeAck{}, fmt.Errorf("wire: HandshakeAck too short")
	}
	return HandshakeAck{Accepted: p[0] != 0, Reason: string(p[1:])}, nil
}

// Disconnect announces a clean, voluntary connection close.
type Disconnect struct {
	Reason string
}

func (d Disconnect) Encode() Message {
	return Message{Type: TypeDisconnect, Payload: []byte(d.Reason)}
}

func DecodeDisconnect(p []byte) Disconnect {
	return Disconnect{Reason: string(p)}
}

// Heartbeat carries the sender's timestamp for a latency round-trip.
type Heartbeat struct {
	TimestampMs int64
}

func (h Heartbeat) Encode() Message {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(h.TimestampMs))
	return Message{Type: TypeHeartbeat, Payload: payload}
}

func DecodeHeartbeat(p []byte) (Heartbeat, error) {
	if len(p) < 8 {
		return Heartbeat{}, fmt.Errorf("wire: Heartbeat too short")
	}
	return Heartbeat{TimestampMs: int64(binary.BigEndian.Uint64(p))}, nil
}

// HeartbeatAck answers a Heartbeat with the measured latency.
type HeartbeatAck struct {
	LatencyMs int64
}

func (a HeartbeatAck) Encode() Message {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(a.LatencyMs))
	return Message{Type: TypeHeartbeatAck, Payload: payload}
}

func DecodeHeartbeatAck(p []byte) (HeartbeatAck, error) {
	if len(p) < 8 {
		return HeartbeatAck{}, fmt.Errorf("wire: HeartbeatAck too short")
	}
	return HeartbeatAck{LatencyMs: int64(binary.BigEndian.Uint64(p))}, nil
}

// Screen-session control payloads (§6 0x10-0x1F). ScreenOffer is the only
// one this implementation produces on the control channel; the rest are
// decoded for protocol completeness (§9 Open Question 1) but superseded by
// the dedicated media stream.

// ScreenOffer announces whether the sender currently has any display
// available to share.
type ScreenOffer struct {
	DisplayCount int
}

func (o ScreenOffer) Encode() Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(o.DisplayCount))
	return Message{Type: TypeScreenOffer, Payload: payload}
}

func DecodeScreenOffer(p []byte) (ScreenOffer, error) {
	if len(p) < 4 {
		return ScreenOffer{}, fmt.Errorf("wire: ScreenOffer too short")
	}
	return ScreenOffer{DisplayCount: int(binary.BigEndian.Uint32(p))}, nil
}

// ScreenRequest asks a peer to begin sharing a given display index.
type ScreenRequest struct {
	DisplayIndex int
}

func (r ScreenRequest) Encode() Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(r.DisplayIndex))
	return Message{Type: TypeScreenRequest, Payload: payload}
}

func DecodeScreenRequest(p []byte) (ScreenRequest, error) {
	if len(p) < 4 {
		return ScreenRequest{}, fmt.Errorf("wire: ScreenRequest too short")
	}
	return ScreenRequest{DisplayIndex: int(binary.BigEndian.Uint32(p))}, nil
}

// ScreenStart, ScreenFrame, ScreenStop are reserved, unused tags (§9 Open
// Question 1): the legacy control-channel streaming path superseded by the
// dedicated media stream framing in this file's media.go.
type ScreenStart struct{}
type ScreenFrame struct{}
type ScreenStop struct{}

func (ScreenStart) Encode() Message { return Message{Type: TypeScreenStart} }
func (ScreenFrame) Encode() Message { return Message{Type: TypeScreenFrame} }
func (ScreenStop) Encode() Message  { return Message{Type: TypeScreenStop} }

// Remote input payloads (§6 0x20-0x2F). Reserved: decoded and
// acknowledge-and-ignored per §9 Open Question 2.

type ControlRequest struct{}
type ControlGrant struct{}
type ControlRevoke struct {
	Reason string
}
type InputEvent struct {
	Raw []byte
}

func (ControlRequest) Encode() Message { return Message{Type: TypeControlRequest} }
func (ControlGrant) Encode() Message   { return Message{Type: TypeControlGrant} }
func (r ControlRevoke) Encode() Message {
	return Message{Type: TypeControlRevoke, Payload: []byte(r.Reason)}
}
func DecodeControlRevoke(p []byte) ControlRevoke { return ControlRevoke{Reason: string(p)} }
func DecodeInputEvent(p []byte) InputEvent       { return InputEvent{Raw: p} }

// ChatMessage payload (§6 0x30-0x3F).
type ChatMessage struct {
	SenderID  string
	Text      string
	SentAtMs  int64
}

func (c ChatMessage) Encode() Message {
	payload := encodeStrings(c.SenderID, c.Text)
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(c.SentAtMs))
	return Message{Type: TypeChatMessage, Payload: append(payload, ts...)}
}

func DecodeChatMessage(p []byte) (ChatMessage, error) {
	fields, rest, err := decodeStrings(p, 2)
	if err != nil {
		return ChatMessage{}, err
	}
	if len(rest) < 8 {
		return ChatMessage{}, fmt.Errorf("wire: ChatMessage missing timestamp")
	}
	return ChatMessage{
		SenderID: fields[0],
		Text:     fields[1],
		SentAtMs: int64(binary.BigEndian.Uint64(rest)),
	}, nil
}

// File-transfer payloads (§6 0x40-0x4F). Bulk chunk bytes travel on their
// own per-transfer media-style stream (§9 Open Question 3); these control
// messages only carry metadata and control signals.

type FileOffer struct {
	FileID   string
	Name     string
	Size     int64
	SHA256   string
}

func (o FileOffer) Encode() Message {
	payload := encodeStrings(o.FileID, o.Name, o.SHA256)
	sz := make([]byte, 8)
	binary.BigEndian.PutUint64(sz, uint64(o.Size))
	return Message{Type: TypeFileOffer, Payload: append(payload, sz...)}
}

func DecodeFileOffer(p []byte) (FileOffer, error) {
	fields, rest, err := decodeStrings(p, 3)
	if err != nil {
		return FileOffer{}, err
	}
	if len(rest) < 8 {
		return FileOffer{}, fmt.Errorf("wire: FileOffer missing size")
	}
	return FileOffer{
		FileID: fields[0],
		Name:   fields[1],
		SHA256: fields[2],
		Size:   int64(binary.BigEndian.Uint64(rest)),
	}, nil
}

type FileAccept struct{ FileID string }
type FileReject struct {
	FileID string
	Reason string
}
type FileComplete struct{ FileID string }
type FileCancel struct {
	FileID string
	Reason string
}

func (a FileAccept) Encode() Message   { return Message{Type: TypeFileAccept, Payload: []byte(a.FileID)} }
func (c FileComplete) Encode() Message { return Message{Type: TypeFileComplete, Payload: []byte(c.FileID)} }

func (r FileReject) Encode() Message {
	return Message{Type: TypeFileReject, Payload: encodeStrings(r.FileID, r.Reason)}
}
func (c FileCancel) Encode() Message {
	return Message{Type: TypeFileCancel, Payload: encodeStrings(c.FileID, c.Reason)}
}

func DecodeFileAccept(p []byte) FileAccept     { return FileAccept{FileID: string(p)} }
func DecodeFileComplete(p []byte) FileComplete { return FileComplete{FileID: string(p)} }

func DecodeFileReject(p []byte) (FileReject, error) {
	fields, _, err := decodeStrings(p, 2)
	if err != nil {
		return FileReject{}, err
	}
	return FileReject{FileID: fields[0], Reason: fields[1]}, nil
}

func DecodeFileCancel(p []byte) (FileCancel, error) {
	fields, _, err := decodeStrings(p, 2)
	if err != nil {
		return FileCancel{}, err
	}
	return FileCancel{FileID: fields[0], Reason: fields[1]}, nil
}

// FileChunk carries one chunk of file data inline on the control stream
// for small transfers; larger transfers use the dedicated per-transfer
// stream instead (§9 Open Question 3), framed the same way.
type FileChunk struct {
	FileID string
	Offset int64
	Data   []byte
}

func (c FileChunk) Encode() Message {
	idLen := make([]byte, 2)
	binary.BigEndian.PutUint16(idLen, uint16(len(c.FileID)))
	payload := append([]byte{}, idLen...)
	payload = append(payload, []byte(c.FileID)...)
	off := make([]byte, 8)
	binary.BigEndian.PutUint64(off, uint64(c.Offset))
	payload = append(payload, off...)
	payload = append(payload, c.Data...)
	return Message{Type: TypeFileChunk, Payload: payload}
}

func DecodeFileChunk(p []byte) (FileChunk, error) {
	if len(p) < 2 {
		return FileChunk{}, fmt.Errorf("wire: FileChunk too short")
	}
	idLen := int(binary.BigEndian.Uint16(p))
	p = p[2:]
	if len(p) < idLen+8 {
		return FileChunk{}, fmt.Errorf("wire: FileChunk truncated")
	}
	id := string(p[:idLen])
	p = p[idLen:]
	offset := int64(binary.BigEndian.Uint64(p[:8]))
	data := p[8:]
	return FileChunk{FileID: id, Offset: offset, Data: data}, nil
}

// --- shared string-field helpers ---
//
// Each string field is length-prefixed with a 2-byte BE count so payloads
// with several strings can be split and rejoined without ambiguity.

func encodeStrings(fields ...string) []byte {
	var out []byte
	for _, f := range fields {
		lb := make([]byte, 2)
		binary.BigEndian.PutUint16(lb, uint16(len(f)))
		out = append(out, lb...)
		out = append(out, []byte(f)...)
	}
	return out
}

func uint16ToBytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func decodeStrings(p []byte, count int) (fields []string, rest []byte, err error) {
	fields = make([]string, 0, count)
	for i := 0; i < count; i++ {
		if len(p) < 2 {
			return nil, nil, fmt.Errorf("wire: truncated string field %d", i)
		}
		l := int(binary.BigEndian.Uint16(p))
		p = p[2:]
		if len(p) < l {
			return nil, nil, fmt.Errorf("wire: truncated string field %d body", i)
		}
		fields = append(fields, string(p[:l]))
		p = p[l:]
	}
	return fields, p, nil
}
