package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty boot config", mutate: func(c *Config) { c.Paths.BootConfig = "" }, wantErr: "paths.boot_config"},
		{name: "empty asound path", mutate: func(c *Config) { c.Paths.AsoundConf = " " }, wantErr: "paths.asound_conf"},
		{name: "blank uuid", mutate: func(c *Config) { c.Detect.HatUUIDs = []string{""} }, wantErr: "detect.hat_uuids"},
		{name: "negative bus", mutate: func(c *Config) { c.Detect.I2CBus = -1 }, wantErr: "detect.i2c_bus"},
		{name: "reserved address", mutate: func(c *Config) { c.Detect.I2CAddresses = []uint16{0x78} }, wantErr: "detect.i2c_addresses"},
		{name: "negative settle", mutate: func(c *Config) { c.Activate.SettleMS = -1 }, wantErr: "activate.settle_ms"},
		{name: "zero attempts", mutate: func(c *Config) { c.Activate.PollAttempts = 0 }, wantErr: "activate.poll_attempts"},
		{name: "negative interval", mutate: func(c *Config) { c.Activate.PollIntervalMS = -5 }, wantErr: "activate.poll_interval_ms"},
		{name: "playback over 100", mutate: func(c *Config) { c.Volume.Playback = 101 }, wantErr: "volume.playback"},
		{name: "negative capture", mutate: func(c *Config) { c.Volume.Capture = -1 }, wantErr: "volume.capture"},
		{name: "negative speaker pin", mutate: func(c *Config) { c.Speaker.EnablePin = -1 }, wantErr: "speaker.enable_pin"},
		{name: "empty amixer", mutate: func(c *Config) { c.Commands.AMixer = CommandConfig{} }, wantErr: "commands.amixer"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "log.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Detect.HatUUIDs = nil
	cfg.Volume.Playback = 0
	cfg.Commands.RunAsUser = CommandConfig{Raw: "runuser", Argv: []string{"runuser"}}

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 3)
	require.Contains(t, warnings[0].Message, "hat_uuids")
	require.Contains(t, warnings[1].Message, "muted")
	require.Contains(t, warnings[2].Message, "run_as_user")
}

func TestActivateDurations(t *testing.T) {
	a := Default().Activate
	require.Equal(t, "2s", a.Settle().String())
	require.Equal(t, "1s", a.PollInterval().String())
}
