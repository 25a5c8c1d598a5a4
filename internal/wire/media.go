package wire

import (
	"encoding/binary"
	"fmt"
)

// Media-stream framing (§6): distinct from control-message framing, each
// payload begins with a single byte type that cannot collide with the
// control MAGIC bytes.
type MediaType byte

const (
	MediaStart             MediaType = 0x01
	MediaFrame             MediaType = 0x02
	MediaStop              MediaType = 0x03
	MediaResolutionRequest MediaType = 0x04
)

// MediaStart opens a stream, announcing the frame dimensions that follow
// until the next MediaStart or MediaStop.
type MediaStartMsg struct {
	Width  uint32
	Height uint32
}

func EncodeMediaStart(m MediaStartMsg) []byte {
	b := make([]byte, 1+8)
	b[0] = byte(MediaStart)
	binary.BigEndian.PutUint32(b[1:5], m.Width)
	binary.BigEndian.PutUint32(b[5:9], m.Height)
	return b
}

// MediaFrameMsg carries one encoded H.264 access unit.
type MediaFrameMsg struct {
	TimestampMs int64
	Payload     []byte
}

func EncodeMediaFrame(m MediaFrameMsg) []byte {
	b := make([]byte, 1+8+4+len(m.Payload))
	b[0] = byte(MediaFrame)
	binary.BigEndian.PutUint64(b[1:9], uint64(m.TimestampMs))
	binary.BigEndian.PutUint32(b[9:13], uint32(len(m.Payload)))
	copy(b[13:], m.Payload)
	return b
}

func EncodeMediaStop() []byte {
	return []byte{byte(MediaStop)}
}

// MediaResolutionRequestMsg is sent by a viewer asking the sharer to
// renegotiate to a new target resolution and bitrate.
type MediaResolutionRequestMsg struct {
	TargetWidth  uint32
	TargetHeight uint32
	BitrateBps   uint32
}

func EncodeMediaResolutionRequest(m MediaResolutionRequestMsg) []byte {
	b := make([]byte, 1+12)
	b[0] = byte(MediaResolutionRequest)
	binary.BigEndian.PutUint32(b[1:5], m.TargetWidth)
	binary.BigEndian.PutUint32(b[5:9], m.TargetHeight)
	binary.BigEndian.PutUint32(b[9:13], m.BitrateBps)
	return b
}

// MediaMessage is the decoded form of a single media-stream frame.
type MediaMessage struct {
	Type               MediaType
	Start              MediaStartMsg
	Frame              MediaFrameMsg
	ResolutionRequest  MediaResolutionRequestMsg
}

// DecodeMediaMessage parses one complete media-framed payload. Unlike the
// control Codec, the caller is responsible for knowing how many bytes
// constitute "one" frame on the wire (4-byte length prefix per §6 "Stream
// framing"); DecodeMediaMessage receives exactly that many bytes.
func DecodeMediaMessage(b []byte) (MediaMessage, error) {
	if len(b) < 1 {
		return MediaMessage{}, fmt.Errorf("wire: empty media frame")
	}
	switch MediaType(b[0]) {
	case MediaStart:
		if len(b) < 9 {
			return MediaMessage{}, fmt.Errorf("wire: MediaStart too short")
		}
		return MediaMessage{
			Type: MediaStart,
			Start: MediaStartMsg{
				Width:  binary.BigEndian.Uint32(b[1:5]),
				Height: binary.BigEndian.Uint32(b[5:9]),
			},
		}, nil
	case MediaFrame:
		if len(b) < 13 {
			return MediaMessage{}, fmt.Errorf("wire: MediaFrame header too short")
		}
		ts := int64(binary.BigEndian.Uint64(b[1:9]))
		plen := binary.BigEndian.Uint32(b[9:13])
		if uint32(len(b)-13) < plen {
			return MediaMessage{}, fmt.Errorf("wire: MediaFrame payload truncated")
		}
		payload := make([]byte, plen)
		copy(payload, b[13:13+plen])
		return MediaMessage{Type: MediaFrame, Frame: MediaFrameMsg{TimestampMs: ts, Payload: payload}}, nil
	case MediaStop:
		return MediaMessage{Type: MediaStop}, nil
	case MediaResolutionRequest:
		if len(b) < 13 {
			return MediaMessage{}, fmt.Errorf("wire: MediaResolutionRequest too short")
		}
		return MediaMessage{
			Type: MediaResolutionRequest,
			ResolutionRequest: MediaResolutionRequestMsg{
				TargetWidth:  binary.BigEndian.Uint32(b[1:5]),
				TargetHeight: binary.BigEndian.Uint32(b[5:9]),
				BitrateBps:   binary.BigEndian.Uint32(b[9:13]),
			},
		}, nil
	default:
		return MediaMessage{}, fmt.Errorf("wire: unknown media type 0x%02x", b[0])
	}
}
