package config

import (
	"fmt"
	"net"
	"strings"
)

var validQualities = map[string]bool{
	"auto": true, "high": true, "medium": true, "low": true,
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// ValidationResult splits validation problems into fatals (the config
// cannot be used as-is) and warnings (an out-of-range value was clamped to
// a safe default and the process can continue).
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool { return len(r.Fatals) > 0 }

func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the settings for invalid values. Unknown quality or
// resolution/bitrate indices (§6) are rejected outright as fatal: there is
// no safe value to clamp them to since each index selects a distinct,
// user-visible preset. Everything else that can be clamped to a safe
// default is a warning.
func (c *Settings) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.Quality != "" && !validQualities[c.Quality] {
		result.Fatals = append(result.Fatals, fmt.Errorf("quality %q is not one of auto, high, medium, low", c.Quality))
	}

	if c.DefaultResolutionIndex < 0 || c.DefaultResolutionIndex > 3 {
		result.Fatals = append(result.Fatals, fmt.Errorf("default_resolution_index %d is not in 0..3", c.DefaultResolutionIndex))
	}

	if c.DefaultBitrateIndex < 0 || c.DefaultBitrateIndex > 3 {
		result.Fatals = append(result.Fatals, fmt.Errorf("default_bitrate_index %d is not in 0..3", c.DefaultBitrateIndex))
	}

	if c.BindAddr != "" {
		if _, _, err := net.SplitHostPort(c.BindAddr); err != nil {
			result.Fatals = append(result.Fatals, fmt.Errorf("bind_addr %q is not host:port: %w", c.BindAddr, err))
		}
	}

	if c.FPS < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("fps %d is below minimum 1, clamping", c.FPS))
		c.FPS = 1
	} else if c.FPS > 60 {
		result.Warnings = append(result.Warnings, fmt.Errorf("fps %d exceeds maximum 60, clamping", c.FPS))
		c.FPS = 60
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid, defaulting to info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid, defaulting to text", c.LogFormat))
		c.LogFormat = "text"
	}

	if c.MDNSServiceName == "" {
		result.Warnings = append(result.Warnings, fmt.Errorf("mdns_service_name is empty, defaulting to _nearcast._udp"))
		c.MDNSServiceName = "_nearcast._udp"
	}

	return result
}
