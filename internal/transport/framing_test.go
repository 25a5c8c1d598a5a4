package transport

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildFramed(payload []byte) []byte {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	return append(header, payload...)
}

func TestPopFramedMessageCompleteFrame(t *testing.T) {
	want := []byte("hello")
	buf := buildFramed(want)

	got, rest, ok := popFramedMessage(buf)
	if !ok {
		t.Fatal("expected a complete frame")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	if len(rest) != 0 {
		t.Fatalf("rest = %q, want empty", rest)
	}
}

func TestPopFramedMessageIncompleteHeader(t *testing.T) {
	_, rest, ok := popFramedMessage([]byte{0x00, 0x00})
	if ok {
		t.Fatal("expected no frame with fewer than 4 header bytes")
	}
	if len(rest) != 2 {
		t.Fatalf("rest should be untouched, got %d bytes", len(rest))
	}
}

func TestPopFramedMessageIncompletePayload(t *testing.T) {
	buf := buildFramed([]byte("hello"))
	truncated := buf[:len(buf)-2]

	_, _, ok := popFramedMessage(truncated)
	if ok {
		t.Fatal("expected no frame when payload is truncated")
	}
}

func TestPopFramedMessageLeavesTrailingBytes(t *testing.T) {
	buf := append(buildFramed([]byte("one")), buildFramed([]byte("two"))...)

	first, rest, ok := popFramedMessage(buf)
	if !ok || string(first) != "one" {
		t.Fatalf("first = %q, ok = %v", first, ok)
	}
	second, rest2, ok := popFramedMessage(rest)
	if !ok || string(second) != "two" {
		t.Fatalf("second = %q, ok = %v", second, ok)
	}
	if len(rest2) != 0 {
		t.Fatalf("rest2 = %q, want empty", rest2)
	}
}

func TestPopFramedMessageEmptyPayload(t *testing.T) {
	buf := buildFramed(nil)
	got, rest, ok := popFramedMessage(buf)
	if !ok {
		t.Fatal("expected a complete zero-length frame")
	}
	if len(got) != 0 {
		t.Fatalf("got %q, want empty", got)
	}
	if len(rest) != 0 {
		t.Fatalf("rest = %q, want empty", rest)
	}
}
