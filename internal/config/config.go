package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/nearcast/nearcast/internal/logging"
)

var log = logging.L("config")

// Settings is the process-local configuration described in spec §6: the
// device's announced identity plus the defaults a new sharing/viewing
// session starts from.
type Settings struct {
	DeviceName             string `mapstructure:"device_name"`
	Quality                string `mapstructure:"quality"` // auto, high, medium, low
	FPS                    int    `mapstructure:"fps"`
	DefaultResolutionIndex int    `mapstructure:"default_resolution_index"` // 0..3
	DefaultBitrateIndex    int    `mapstructure:"default_bitrate_index"`    // 0..3
	BindAddr               string `mapstructure:"bind_addr"`
	MDNSServiceName        string `mapstructure:"mdns_service_name"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Resolution options named in spec §6: 0=720p, 1=1080p, 2=1440p, 3=Original.
var ResolutionBoxes = [4][2]int{
	{1280, 720},
	{1920, 1080},
	{2560, 1440},
	{3840, 2160}, // "Original", clamped to the encoder maximum
}

// Bitrate options named in spec §6, in bits per second.
var BitrateOptions = [4]int{2_000_000, 4_000_000, 8_000_000, 12_000_000}

// QualityBitrate maps a quality setting to its bitrate, per spec §6.
func QualityBitrate(quality string) int {
	switch quality {
	case "medium":
		return 4_000_000
	case "low":
		return 2_000_000
	default: // "auto", "high", or unset
		return 8_000_000
	}
}

func Default() *Settings {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "nearcast-peer"
	}
	return &Settings{
		DeviceName:             hostname,
		Quality:                "auto",
		FPS:                    30,
		DefaultResolutionIndex: 3,
		DefaultBitrateIndex:    2,
		BindAddr:               "0.0.0.0:19876",
		MDNSServiceName:        "_nearcast._udp",
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// Load reads settings from cfgFile, or the default config path if empty,
// overridable by NEARCAST_-prefixed environment variables. Fatal validation
// errors abort the load; warnings are logged and the corrected value kept.
func Load(cfgFile string) (*Settings, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("NEARCAST")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, e := range result.Warnings {
		log.Warn("config validation", "error", e)
	}
	if result.HasFatals() {
		for _, e := range result.Fatals {
			log.Error("config validation fatal", "error", e)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func Save(cfg *Settings) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Settings, cfgFile string) error {
	viper.Set("device_name", cfg.DeviceName)
	viper.Set("quality", cfg.Quality)
	viper.Set("fps", cfg.FPS)
	viper.Set("default_resolution_index", cfg.DefaultResolutionIndex)
	viper.Set("default_bitrate_index", cfg.DefaultBitrateIndex)
	viper.Set("bind_addr", cfg.BindAddr)
	viper.Set("mdns_service_name", cfg.MDNSServiceName)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
	} else {
		cfgPath = filepath.Join(configDir(), "config.yaml")
	}
	dir := filepath.Dir(cfgPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	return viper.WriteConfigAs(cfgPath)
}

func configDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "nearcast")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nearcast"
	}
	return filepath.Join(home, ".config", "nearcast")
}
