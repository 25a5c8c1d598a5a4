// Package wire implements the framed control-message codec (C7): a
// streaming decoder that accepts arbitrary byte chunks and yields one
// Message at a time, plus the encoders for every tagged-union message type
// named in spec §4.7/§6.
//
// Wire format: MAGIC(2) | VERSION(1) | TYPE(1) | LENGTH(4 BE) | PAYLOAD.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Magic is the fixed two-byte literal every control frame starts with.
var Magic = [2]byte{0x4e, 0x43} // "NC"

const Version = 1

// MaxPayloadSize is the protocol-error threshold named in §4.7/§6.
const MaxPayloadSize = 16 * 1024 * 1024

const headerLen = 2 + 1 + 1 + 4 // magic + version + type + length

// Type is the one-byte TYPE tag, partitioned by category per §6.
type Type byte

const (
	TypeHandshake    Type = 0x00
	TypeHandshakeAck Type = 0x01
	TypeDisconnect   Type = 0x02
	TypeHeartbeat    Type = 0x03
	TypeHeartbeatAck Type = 0x04

	TypeScreenOffer   Type = 0x10
	TypeScreenRequest Type = 0x11
	TypeScreenStart   Type = 0x12
	TypeScreenFrame   Type = 0x13
	TypeScreenStop    Type = 0x14

	TypeControlRequest Type = 0x20
	TypeControlGrant   Type = 0x21
	TypeControlRevoke  Type = 0x22
	TypeInputEvent     Type = 0x23

	TypeChatMessage Type = 0x30

	TypeFileOffer    Type = 0x40
	TypeFileAccept   Type = 0x41
	TypeFileReject   Type = 0x42
	TypeFileChunk    Type = 0x43
	TypeFileComplete Type = 0x44
	TypeFileCancel   Type = 0x45
)

func (t Type) String() string {
	switch t {
	case TypeHandshake:
		return "Handshake"
	case TypeHandshakeAck:
		return "HandshakeAck"
	case TypeDisconnect:
		return "Disconnect"
	case TypeHeartbeat:
		return "Heartbeat"
	case TypeHeartbeatAck:
		return "HeartbeatAck"
	case TypeScreenOffer:
		return "ScreenOffer"
	case TypeScreenRequest:
		return "ScreenRequest"
	case TypeScreenStart:
		return "ScreenStart"
	case TypeScreenFrame:
		return "ScreenFrame"
	case TypeScreenStop:
		return "ScreenStop"
	case TypeControlRequest:
		return "ControlRequest"
	case TypeControlGrant:
		return "ControlGrant"
	case TypeControlRevoke:
		return "ControlRevoke"
	case TypeInputEvent:
		return "InputEvent"
	case TypeChatMessage:
		return "ChatMessage"
	case TypeFileOffer:
		return "FileOffer"
	case TypeFileAccept:
		return "FileAccept"
	case TypeFileReject:
		return "FileReject"
	case TypeFileChunk:
		return "FileChunk"
	case TypeFileComplete:
		return "FileComplete"
	case TypeFileCancel:
		return "FileCancel"
	default:
		return fmt.Sprintf("Type(0x%02x)", byte(t))
	}
}

// Message is a decoded control frame: the TYPE tag plus its raw payload.
// Handlers further decode Payload according to Type.
type Message struct {
	Type    Type
	Payload []byte
}

// Encode serialises a Message into its on-the-wire representation.
func Encode(m Message) ([]byte, error) {
	if len(m.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("wire: payload %d exceeds max %d", len(m.Payload), MaxPayloadSize)
	}
	buf := make([]byte, headerLen+len(m.Payload))
	buf[0], buf[1] = Magic[0], Magic[1]
	buf[2] = Version
	buf[3] = byte(m.Type)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(m.Payload)))
	copy(buf[8:], m.Payload)
	return buf, nil
}

// Codec is a streaming decoder: Feed appends newly-read bytes, Decode pulls
// as many complete messages as are buffered. It resyncs on magic mismatch
// rather than failing the whole connection, per §4.7.
type Codec struct {
	buf bytes.Buffer
}

// NewCodec returns an empty streaming decoder.
func NewCodec() *Codec {
	return &Codec{}
}

// Feed appends bytes read off the wire to the internal buffer.
func (c *Codec) Feed(b []byte) {
	c.buf.Write(b)
}

// Decode returns the next complete Message buffered, or ok=false if fewer
// than a full header-plus-payload are available yet. On magic mismatch it
// advances past the bad byte and retries, so a handful of corrupted bytes
// self-heal onto the next valid frame (§8 S6) instead of wedging the
// connection.
func (c *Codec) Decode() (msg Message, ok bool, err error) {
	for {
		data := c.buf.Bytes()
		if len(data) < 2 {
			return Message{}, false, nil
		}
		if data[0] != Magic[0] || data[1] != Magic[1] {
			c.buf.Next(1)
			continue
		}
		if len(data) < headerLen {
			return Message{}, false, nil
		}
		version := data[2]
		if version != Version {
			return Message{}, false, fmt.Errorf("wire: unsupported version %d", version)
		}
		typ := Type(data[3])
		length := binary.BigEndian.Uint32(data[4:8])
		if length > MaxPayloadSize {
			return Message{}, false, fmt.Errorf("wire: payload length %d exceeds max %d", length, MaxPayloadSize)
		}
		total := headerLen + int(length)
		if len(data) < total {
			return Message{}, false, nil
		}
		payload := make([]byte, length)
		copy(payload, data[headerLen:total])
		c.buf.Next(total)
		return Message{Type: typ, Payload: payload}, true, nil
	}
}
