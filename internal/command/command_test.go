package command

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte{}, 0600); err != nil {
		t.Fatalf("seed config file: %v", err)
	}
	s, err := New(path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func TestDispatchUnknownCommand(t *testing.T) {
	s := newTestService(t)
	result := Dispatch(s, "not_a_real_command", nil)
	if result.Status != "failed" {
		t.Fatalf("expected failed status for unknown command, got %q", result.Status)
	}
}

func TestGetDevicesEmptyBeforeServiceStarted(t *testing.T) {
	s := newTestService(t)
	result := s.GetDevices(nil)
	if result.Status != "completed" {
		t.Fatalf("expected completed status, got %q: %s", result.Status, result.Error)
	}
	if result.Data != "[]" {
		t.Fatalf("expected an empty device list, got %q", result.Data)
	}
}

func TestStartSharingFailsWithoutRunningService(t *testing.T) {
	s := newTestService(t)
	result := s.StartSharing(map[string]any{"display_id": 0})
	if result.Status != "failed" {
		t.Fatal("expected StartSharing to fail before start_service")
	}
}

func TestRequestStreamFailsForUnknownPeer(t *testing.T) {
	s := newTestService(t)
	result := s.RequestStream(map[string]any{"peer_ip": "10.0.0.9"})
	if result.Status != "failed" {
		t.Fatal("expected RequestStream to fail for an unknown peer ip")
	}
}

func TestStopViewingFailsForUnknownPeer(t *testing.T) {
	s := newTestService(t)
	result := s.StopViewing(map[string]any{"peer_ip": "10.0.0.9"})
	if result.Status != "failed" {
		t.Fatal("expected StopViewing to fail for an unknown peer ip")
	}
}

func TestStopServiceIdempotentWhenNeverStarted(t *testing.T) {
	s := newTestService(t)
	result := s.StopService(nil)
	if result.Status != "completed" {
		t.Fatalf("expected StopService on an idle service to succeed, got %s", result.Error)
	}
}

func TestSaveSettingsPersistsChangedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte{}, 0600); err != nil {
		t.Fatalf("seed config file: %v", err)
	}
	s, err := New(path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	result := s.SaveSettings(map[string]any{
		"device_name": "my-laptop",
		"fps":         float64(60),
	})
	if result.Status != "completed" {
		t.Fatalf("expected SaveSettings to succeed, got %s", result.Error)
	}

	got := s.GetSettings(nil)
	if got.Status != "completed" {
		t.Fatalf("expected GetSettings to succeed, got %s", got.Error)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected settings file to be written: %v", err)
	}
}

func TestGetPayloadHelpers(t *testing.T) {
	payload := map[string]any{
		"name":    "peer-a",
		"count":   float64(4),
		"enabled": true,
		"tags":    []any{"a", "b"},
	}

	if got := GetPayloadString(payload, "name", "x"); got != "peer-a" {
		t.Errorf("GetPayloadString() = %q, want peer-a", got)
	}
	if got := GetPayloadString(payload, "missing", "x"); got != "x" {
		t.Errorf("GetPayloadString() missing key = %q, want default x", got)
	}
	if got := GetPayloadInt(payload, "count", 0); got != 4 {
		t.Errorf("GetPayloadInt() = %d, want 4", got)
	}
	if got := GetPayloadBool(payload, "enabled", false); !got {
		t.Error("GetPayloadBool() = false, want true")
	}
	if got := GetPayloadStringSlice(payload, "tags"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("GetPayloadStringSlice() = %v, want [a b]", got)
	}
	if got := GetPayloadStringSlice(payload, "missing"); got != nil {
		t.Errorf("GetPayloadStringSlice() missing key = %v, want nil", got)
	}
}
