package command

import (
	"encoding/json"
	"fmt"

	"github.com/nearcast/nearcast/internal/errs"
)

// CommandResult is the uniform shape every C12 operation returns: either a
// JSON-encoded success payload, or a translated error string. The UI layer
// on the other side of the command surface never needs to know a Go error
// type, only this struct (§4.12: "returning either a value or a structured
// error string").
type CommandResult struct {
	Status     string `json:"status"` // completed, failed
	Data       string `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// NewSuccessResult JSON-marshals data into Data on success.
func NewSuccessResult(data any, durationMs int64) CommandResult {
	raw, err := json.Marshal(data)
	if err != nil {
		return CommandResult{
			Status:     "failed",
			Error:      fmt.Sprintf("failed to marshal result: %v", err),
			DurationMs: durationMs,
		}
	}
	return CommandResult{
		Status:     "completed",
		Data:       string(raw),
		DurationMs: durationMs,
	}
}

// NewErrorResult translates err through the errs taxonomy into the single
// line a caller sees, rather than a raw Go error string.
func NewErrorResult(err error, durationMs int64) CommandResult {
	return CommandResult{
		Status:     "failed",
		Error:      errs.UserMessage(err),
		DurationMs: durationMs,
	}
}

func errorResultf(durationMs int64, format string, args ...any) CommandResult {
	return CommandResult{Status: "failed", Error: fmt.Sprintf(format, args...), DurationMs: durationMs}
}

// Payload helpers: every operation's input arrives as a loosely-typed
// map[string]any (already JSON-decoded by the UI-facing transport), not a
// generated struct, matching the "thin, serialisable" command contract.
func GetPayloadString(payload map[string]any, key, defaultVal string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

func GetPayloadInt(payload map[string]any, key string, defaultVal int) int {
	if v, ok := payload[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return defaultVal
}

func GetPayloadBool(payload map[string]any, key string, defaultVal bool) bool {
	if v, ok := payload[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

func GetPayloadStringSlice(payload map[string]any, key string) []string {
	raw, ok := payload[key]
	if !ok {
		return nil
	}
	slice, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
