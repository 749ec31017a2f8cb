// Package config resolves, parses, validates, and defaults robot-hat-audio configuration.
package config

import "time"

// Config is the fully materialized runtime configuration.
type Config struct {
	Paths    PathsConfig
	Detect   DetectConfig
	Activate ActivateConfig
	Volume   VolumeConfig
	Speaker  SpeakerConfig
	Commands CommandsConfig
	Log      LogConfig
}

// PathsConfig locates every file the pipeline reads or writes.
type PathsConfig struct {
	BootConfig        string
	OverlayDir        string
	BundledOverlayDir string
	DeviceTree        string
	AsoundConf        string
	StateFile         string
}

// DetectConfig controls Hat classification.
type DetectConfig struct {
	HatUUIDs     []string
	MicRevision  uint64
	I2CBus       int
	I2CAddresses []uint16
}

// ActivateConfig controls the post-load confirmation poll.
type ActivateConfig struct {
	SettleMS       int
	PollAttempts   int
	PollIntervalMS int
}

// Settle is the delay before the first card listing.
func (a ActivateConfig) Settle() time.Duration {
	return time.Duration(a.SettleMS) * time.Millisecond
}

// PollInterval is the delay between card listings.
func (a ActivateConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMS) * time.Millisecond
}

// VolumeConfig holds initial softvol percentages.
type VolumeConfig struct {
	Playback int
	Capture  int
}

// SpeakerConfig controls the amplifier enable line and the activation chime.
// EnablePin 0 picks the pin from the detected board.
type SpeakerConfig struct {
	EnablePin int
	Chime     bool
}

// CommandsConfig holds the external utilities the pipeline drives.
type CommandsConfig struct {
	DTOverlay    CommandConfig
	APlay        CommandConfig
	ARecord      CommandConfig
	AMixer       CommandConfig
	SessionCheck CommandConfig
	SessionStart CommandConfig
	RunAsUser    CommandConfig
	GPIO         CommandConfig
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// LogConfig controls the structured log file.
type LogConfig struct {
	Level string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
