package config

import (
	"fmt"
	"strings"
)

const (
	minI2CAddress = 0x03
	maxI2CAddress = 0x77

	maxHeaderGPIO = 27
)

var logLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	paths := []struct {
		key   string
		value string
	}{
		{"paths.boot_config", cfg.Paths.BootConfig},
		{"paths.overlay_dir", cfg.Paths.OverlayDir},
		{"paths.bundled_overlay_dir", cfg.Paths.BundledOverlayDir},
		{"paths.device_tree", cfg.Paths.DeviceTree},
		{"paths.asound_conf", cfg.Paths.AsoundConf},
		{"paths.state_file", cfg.Paths.StateFile},
	}
	for _, p := range paths {
		if strings.TrimSpace(p.value) == "" {
			return nil, fmt.Errorf("%s must not be empty", p.key)
		}
	}

	if len(cfg.Detect.HatUUIDs) == 0 {
		warnings = append(warnings, Warning{Message: "detect.hat_uuids is empty; only the bus scan can detect the microphone variant"})
	}
	for _, uuid := range cfg.Detect.HatUUIDs {
		if strings.TrimSpace(uuid) == "" {
			return nil, fmt.Errorf("detect.hat_uuids must not contain empty entries")
		}
	}
	if cfg.Detect.I2CBus < 0 {
		return nil, fmt.Errorf("detect.i2c_bus must be >= 0")
	}
	for _, addr := range cfg.Detect.I2CAddresses {
		if addr < minI2CAddress || addr > maxI2CAddress {
			return nil, fmt.Errorf("detect.i2c_addresses: 0x%02x outside 0x%02x..0x%02x", addr, minI2CAddress, maxI2CAddress)
		}
	}

	if cfg.Activate.SettleMS < 0 {
		return nil, fmt.Errorf("activate.settle_ms must be >= 0")
	}
	if cfg.Activate.PollAttempts < 1 {
		return nil, fmt.Errorf("activate.poll_attempts must be >= 1")
	}
	if cfg.Activate.PollIntervalMS < 0 {
		return nil, fmt.Errorf("activate.poll_interval_ms must be >= 0")
	}

	if cfg.Volume.Playback < 0 || cfg.Volume.Playback > 100 {
		return nil, fmt.Errorf("volume.playback must be within 0..100")
	}
	if cfg.Volume.Capture < 0 || cfg.Volume.Capture > 100 {
		return nil, fmt.Errorf("volume.capture must be within 0..100")
	}
	if cfg.Volume.Playback == 0 {
		warnings = append(warnings, Warning{Message: "volume.playback is 0; the speaker starts muted"})
	}

	if cfg.Speaker.EnablePin < 0 || cfg.Speaker.EnablePin > maxHeaderGPIO {
		return nil, fmt.Errorf("speaker.enable_pin must be within 0..%d (0 picks the pin from the board)", maxHeaderGPIO)
	}

	commands := []struct {
		key string
		cmd CommandConfig
	}{
		{"commands.dtoverlay", cfg.Commands.DTOverlay},
		{"commands.aplay", cfg.Commands.APlay},
		{"commands.arecord", cfg.Commands.ARecord},
		{"commands.amixer", cfg.Commands.AMixer},
		{"commands.session_check", cfg.Commands.SessionCheck},
		{"commands.session_start", cfg.Commands.SessionStart},
	}
	for _, c := range commands {
		if len(c.cmd.Argv) == 0 {
			return nil, fmt.Errorf("%s must not be empty", c.key)
		}
	}
	if len(cfg.Commands.RunAsUser.Argv) > 0 && !strings.Contains(cfg.Commands.RunAsUser.Raw, "{user}") && !strings.Contains(cfg.Commands.RunAsUser.Raw, "{uid}") {
		warnings = append(warnings, Warning{Message: "commands.run_as_user has no {user} or {uid} placeholder; session commands will run as root"})
	}

	if _, ok := logLevels[strings.ToLower(strings.TrimSpace(cfg.Log.Level))]; !ok {
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}
