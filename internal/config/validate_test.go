package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredUnknownQualityIsFatal(t *testing.T) {
	cfg := Default()
	cfg.Quality = "bogus"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("unknown quality should be fatal")
	}
}

func TestValidateTieredOutOfRangeResolutionIndexIsFatal(t *testing.T) {
	cfg := Default()
	cfg.DefaultResolutionIndex = 9
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("out-of-range resolution index should be fatal")
	}
}

func TestValidateTieredOutOfRangeBitrateIndexIsFatal(t *testing.T) {
	cfg := Default()
	cfg.DefaultBitrateIndex = -1
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("out-of-range bitrate index should be fatal")
	}
}

func TestValidateTieredBadBindAddrIsFatal(t *testing.T) {
	cfg := Default()
	cfg.BindAddr = "not-a-host-port"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("malformed bind_addr should be fatal")
	}
}

func TestValidateTieredFPSClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.FPS = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped fps should be a warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning for clamped fps")
	}
	if cfg.FPS != 1 {
		t.Fatalf("FPS = %d, want 1 (clamped)", cfg.FPS)
	}
}

func TestValidateTieredHighFPSClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.FPS = 240
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped fps should be a warning, not fatal: %v", result.Fatals)
	}
	if cfg.FPS != 60 {
		t.Fatalf("FPS = %d, want 60 (clamped)", cfg.FPS)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info (defaulted)", cfg.LogLevel)
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	found := false
	for _, e := range result.Warnings {
		if strings.Contains(e.Error(), "log_format") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning about log_format")
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.Quality = "bogus"        // fatal
	cfg.LogFormat = "xml"        // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}
