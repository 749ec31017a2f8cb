package config

import (
	"os"
	"strings"
)

const (
	// EnvPath overrides the config location when --config is not given.
	EnvPath = "ROBOT_HAT_AUDIO_CONFIG"
	// DefaultPath is the system-wide config file.
	DefaultPath = "/etc/robot-hat/audio.yaml"
)

// ResolvePath applies CLI/env/system fallback rules for the config location.
func ResolvePath(explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	if env := strings.TrimSpace(os.Getenv(EnvPath)); env != "" {
		return env
	}
	return DefaultPath
}
