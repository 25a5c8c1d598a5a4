package filetransfer

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/nearcast/nearcast/internal/wire"
)

func TestOfferHashesAndStatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	content := []byte("not actually a png, just test bytes")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	sum := sha256.Sum256(content)
	want := hex.EncodeToString(sum[:])

	m := NewManager(nil, nil, nil)
	transfer, offer, err := m.Offer("peer-1", path)
	if err != nil {
		t.Fatalf("Offer() error: %v", err)
	}
	if transfer.Direction != DirectionSend || transfer.Status != StatusPending {
		t.Fatalf("unexpected transfer state: %+v", transfer)
	}
	if transfer.Info.Size != int64(len(content)) {
		t.Fatalf("Info.Size = %d, want %d", transfer.Info.Size, len(content))
	}
	if transfer.Info.SHA256 != want {
		t.Fatalf("Info.SHA256 = %s, want %s", transfer.Info.SHA256, want)
	}
	if offer.FileID != transfer.FileID || offer.SHA256 != want {
		t.Fatalf("returned FileOffer does not match transfer: %+v", offer)
	}

	got, ok := m.Get(transfer.FileID)
	if !ok || got.FileID != transfer.FileID {
		t.Fatal("Offer() did not register the transfer for Get()")
	}
}

func TestHandleControlOfferCreatesPendingReceiveTransfer(t *testing.T) {
	m := NewManager(nil, nil, nil)
	msg := wire.FileOffer{FileID: "f1", Name: "doc.txt", Size: 42, SHA256: "abc"}.Encode()

	m.HandleControl("peer-2", msg)

	got, ok := m.Get("f1")
	if !ok {
		t.Fatal("expected a transfer to be registered from FileOffer")
	}
	if got.Direction != DirectionReceive || got.Status != StatusPending || got.PeerID != "peer-2" {
		t.Fatalf("unexpected transfer: %+v", got)
	}
	if got.Info.Name != "doc.txt" || got.Info.Size != 42 {
		t.Fatalf("unexpected transfer info: %+v", got.Info)
	}
}

func TestHandleControlRejectUpdatesStatus(t *testing.T) {
	m := NewManager(nil, nil, nil)
	m.HandleControl("peer-2", wire.FileOffer{FileID: "f2", Name: "x", Size: 1}.Encode())

	m.HandleControl("peer-2", wire.FileReject{FileID: "f2", Reason: "no thanks"}.Encode())

	got, ok := m.Get("f2")
	if !ok || got.Status != StatusRejected || got.Error != "no thanks" {
		t.Fatalf("expected rejected status, got %+v", got)
	}
}

func TestHandleControlCancelUpdatesStatus(t *testing.T) {
	m := NewManager(nil, nil, nil)
	m.HandleControl("peer-2", wire.FileOffer{FileID: "f3", Name: "x", Size: 1}.Encode())

	m.HandleControl("peer-2", wire.FileCancel{FileID: "f3", Reason: "changed my mind"}.Encode())

	got, ok := m.Get("f3")
	if !ok || got.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %+v", got)
	}
}

func TestApplyChunkWritesDataAndUpdatesProgress(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "incoming.bin")
	f, err := os.Create(dest)
	if err != nil {
		t.Fatalf("create dest file: %v", err)
	}

	m := NewManager(nil, nil, nil)
	m.transfers["f4"] = &Transfer{
		FileID:    "f4",
		Info:      Info{Size: 10},
		Direction: DirectionReceive,
		Status:    StatusTransferring,
		file:      f,
		hasher:    sha256.New(),
	}

	m.applyChunk(wire.FileChunk{FileID: "f4", Offset: 0, Data: []byte("hello")})
	m.applyChunk(wire.FileChunk{FileID: "f4", Offset: 5, Data: []byte("world")})

	got, ok := m.Get("f4")
	if !ok {
		t.Fatal("expected transfer f4 to exist")
	}
	if got.BytesDone != 10 || got.Progress != 100 {
		t.Fatalf("expected fully received, got %+v", got)
	}

	f.Close()
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest file: %v", err)
	}
	if string(data) != "helloworld" {
		t.Fatalf("dest file contents = %q, want helloworld", data)
	}
}

func TestHandleCompleteDetectsChecksumMismatch(t *testing.T) {
	m := NewManager(nil, nil, nil)
	h := sha256.New()
	h.Write([]byte("hello"))

	m.transfers["f5"] = &Transfer{
		FileID:    "f5",
		Info:      Info{SHA256: "does-not-match"},
		Direction: DirectionReceive,
		Status:    StatusTransferring,
		hasher:    h,
	}

	m.handleComplete("peer-2", wire.FileComplete{FileID: "f5"}.Encode().Payload)

	got, ok := m.Get("f5")
	if !ok || got.Status != StatusFailed {
		t.Fatalf("expected failed status on checksum mismatch, got %+v", got)
	}
}

func TestHandleCompleteSucceedsOnMatchingChecksum(t *testing.T) {
	m := NewManager(nil, nil, nil)
	sum := sha256.Sum256([]byte("hello"))
	h := sha256.New()
	h.Write([]byte("hello"))

	m.transfers["f6"] = &Transfer{
		FileID:    "f6",
		Info:      Info{SHA256: hex.EncodeToString(sum[:])},
		Direction: DirectionReceive,
		Status:    StatusTransferring,
		hasher:    h,
	}

	m.handleComplete("peer-2", wire.FileComplete{FileID: "f6"}.Encode().Payload)

	got, ok := m.Get("f6")
	if !ok || got.Status != StatusCompleted || got.Progress != 100 {
		t.Fatalf("expected completed status, got %+v", got)
	}
}

func TestListReturnsEverySnapshot(t *testing.T) {
	m := NewManager(nil, nil, nil)
	m.HandleControl("peer-2", wire.FileOffer{FileID: "f7", Name: "a"}.Encode())
	m.HandleControl("peer-2", wire.FileOffer{FileID: "f8", Name: "b"}.Encode())

	if got := m.List(); len(got) != 2 {
		t.Fatalf("List() returned %d transfers, want 2", len(got))
	}
}
