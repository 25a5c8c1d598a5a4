package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"handshake", Handshake{DeviceID: "abc-123", DisplayName: "desk", Port: 19876}.Encode()},
		{"chat", ChatMessage{SenderID: "abc-123", Text: "hi there", SentAtMs: 1234567890}.Encode()},
		{"screen offer", ScreenOffer{DisplayCount: 2}.Encode()},
		{"file offer", FileOffer{FileID: "f1", Name: "photo.png", Size: 4096, SHA256: "deadbeef"}.Encode()},
		{"empty payload", Disconnect{}.Encode()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			c := NewCodec()
			c.Feed(encoded)
			got, ok, err := c.Decode()
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !ok {
				t.Fatal("Decode: expected a complete message")
			}
			if got.Type != tt.msg.Type {
				t.Fatalf("Type = %v, want %v", got.Type, tt.msg.Type)
			}
			if !bytes.Equal(got.Payload, tt.msg.Payload) {
				t.Fatalf("Payload = %v, want %v", got.Payload, tt.msg.Payload)
			}
		})
	}
}

func TestDecodeIncompleteReturnsNotOK(t *testing.T) {
	encoded, err := Encode(Heartbeat{TimestampMs: 42}.Encode())
	if err != nil {
		t.Fatal(err)
	}
	c := NewCodec()
	c.Feed(encoded[:len(encoded)-1])
	_, ok, err := c.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ok {
		t.Fatal("Decode should report incomplete when a byte is missing")
	}
}

// TestDecodeSplitAcrossFeeds drives bytes in one at a time, confirming the
// codec buffers correctly regardless of how reads are chunked off the wire.
func TestDecodeSplitAcrossFeeds(t *testing.T) {
	encoded, err := Encode(ChatMessage{SenderID: "x", Text: "split me", SentAtMs: 99}.Encode())
	if err != nil {
		t.Fatal(err)
	}
	c := NewCodec()
	for i := 0; i < len(encoded); i++ {
		c.Feed(encoded[i : i+1])
		msg, ok, err := c.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if ok {
			if i != len(encoded)-1 {
				t.Fatalf("Decode reported complete too early at byte %d", i)
			}
			got, err := DecodeChatMessage(msg.Payload)
			if err != nil {
				t.Fatalf("DecodeChatMessage: %v", err)
			}
			if got.Text != "split me" {
				t.Fatalf("Text = %q, want %q", got.Text, "split me")
			}
		}
	}
}

// TestDecodeResyncsOnCorruption exercises S6: three garbage bytes followed
// by a valid Heartbeat frame should resync on MAGIC and decode cleanly.
func TestDecodeResyncsOnCorruption(t *testing.T) {
	encoded, err := Encode(Heartbeat{TimestampMs: 555}.Encode())
	if err != nil {
		t.Fatal(err)
	}
	c := NewCodec()
	c.Feed([]byte{0xff, 0xee, 0xdd})
	c.Feed(encoded)

	msg, ok, err := c.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ok {
		t.Fatal("Decode should have resynced and found the Heartbeat frame")
	}
	if msg.Type != TypeHeartbeat {
		t.Fatalf("Type = %v, want Heartbeat", msg.Type)
	}
	hb, err := DecodeHeartbeat(msg.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if hb.TimestampMs != 555 {
		t.Fatalf("TimestampMs = %d, want 555", hb.TimestampMs)
	}
}

func TestDecodeMultipleMessagesInOneFeed(t *testing.T) {
	a, _ := Encode(Heartbeat{TimestampMs: 1}.Encode())
	b, _ := Encode(Heartbeat{TimestampMs: 2}.Encode())
	c := NewCodec()
	c.Feed(a)
	c.Feed(b)

	first, ok, err := c.Decode()
	if err != nil || !ok {
		t.Fatalf("first Decode: ok=%v err=%v", ok, err)
	}
	second, ok, err := c.Decode()
	if err != nil || !ok {
		t.Fatalf("second Decode: ok=%v err=%v", ok, err)
	}
	hb1, _ := DecodeHeartbeat(first.Payload)
	hb2, _ := DecodeHeartbeat(second.Payload)
	if hb1.TimestampMs != 1 || hb2.TimestampMs != 2 {
		t.Fatalf("got timestamps %d, %d, want 1, 2", hb1.TimestampMs, hb2.TimestampMs)
	}
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	_, err := Encode(Message{Type: TypeFileChunk, Payload: make([]byte, MaxPayloadSize+1)})
	if err == nil {
		t.Fatal("expected error for oversize payload")
	}
}

func TestMediaFrameRoundTrip(t *testing.T) {
	encoded := EncodeMediaFrame(MediaFrameMsg{TimestampMs: 12345, Payload: []byte{0x00, 0x00, 0x00, 0x01, 0x65}})
	msg, err := DecodeMediaMessage(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != MediaFrame {
		t.Fatalf("Type = %v, want MediaFrame", msg.Type)
	}
	if msg.Frame.TimestampMs != 12345 {
		t.Fatalf("TimestampMs = %d, want 12345", msg.Frame.TimestampMs)
	}
	if !bytes.Equal(msg.Frame.Payload, []byte{0x00, 0x00, 0x00, 0x01, 0x65}) {
		t.Fatal("payload mismatch")
	}
}

func TestMediaStartRoundTrip(t *testing.T) {
	encoded := EncodeMediaStart(MediaStartMsg{Width: 1920, Height: 1080})
	msg, err := DecodeMediaMessage(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Start.Width != 1920 || msg.Start.Height != 1080 {
		t.Fatalf("Start = %+v, want 1920x1080", msg.Start)
	}
}

func TestMediaResolutionRequestRoundTrip(t *testing.T) {
	encoded := EncodeMediaResolutionRequest(MediaResolutionRequestMsg{TargetWidth: 1280, TargetHeight: 720, BitrateBps: 4_000_000})
	msg, err := DecodeMediaMessage(encoded)
	if err != nil {
		t.Fatal(err)
	}
	r := msg.ResolutionRequest
	if r.TargetWidth != 1280 || r.TargetHeight != 720 || r.BitrateBps != 4_000_000 {
		t.Fatalf("ResolutionRequest = %+v", r)
	}
}

func TestMediaStopRoundTrip(t *testing.T) {
	encoded := EncodeMediaStop()
	msg, err := DecodeMediaMessage(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != MediaStop {
		t.Fatalf("Type = %v, want MediaStop", msg.Type)
	}
}

func TestDecodeMediaMessageRejectsUnknownType(t *testing.T) {
	_, err := DecodeMediaMessage([]byte{0xaa})
	if err == nil {
		t.Fatal("expected error for unknown media type")
	}
}
