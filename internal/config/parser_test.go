package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEmptyUsesBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseCommentOnlyUsesBase(t *testing.T) {
	cfg, _, err := Parse("# nothing configured yet\n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParseOverridesOnlyGivenKeys(t *testing.T) {
	content := `
paths:
  boot_config: /boot/config.txt
detect:
  mic_revision: 6
  i2c_addresses: [0x14]
activate:
  poll_attempts: 10
volume:
  capture: 65
speaker:
  enable_pin: 20
  chime: false
commands:
  dtoverlay: /usr/bin/dtoverlay -v
  gpio: raspi-gpio
  run_as_user: runuser -u {user} -- env XDG_RUNTIME_DIR={runtime_dir}
log:
  level: debug
`
	cfg, warnings, err := Parse(content, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	def := Default()
	require.Equal(t, "/boot/config.txt", cfg.Paths.BootConfig)
	require.Equal(t, def.Paths.AsoundConf, cfg.Paths.AsoundConf)
	require.Equal(t, uint64(6), cfg.Detect.MicRevision)
	require.Equal(t, []uint16{0x14}, cfg.Detect.I2CAddresses)
	require.Equal(t, def.Detect.HatUUIDs, cfg.Detect.HatUUIDs)
	require.Equal(t, 10, cfg.Activate.PollAttempts)
	require.Equal(t, def.Activate.SettleMS, cfg.Activate.SettleMS)
	require.Equal(t, 80, cfg.Volume.Playback)
	require.Equal(t, 65, cfg.Volume.Capture)
	require.Equal(t, 20, cfg.Speaker.EnablePin)
	require.False(t, cfg.Speaker.Chime)
	require.Equal(t, []string{"raspi-gpio"}, cfg.Commands.GPIO.Argv)
	require.Equal(t, []string{"/usr/bin/dtoverlay", "-v"}, cfg.Commands.DTOverlay.Argv)
	require.Equal(t, []string{"runuser", "-u", "{user}", "--", "env", "XDG_RUNTIME_DIR={runtime_dir}"}, cfg.Commands.RunAsUser.Argv)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestParseDoesNotAliasBase(t *testing.T) {
	base := Default()
	cfg, _, err := Parse("volume:\n  playback: 50\n", base)
	require.NoError(t, err)

	cfg.Detect.HatUUIDs[0] = "changed"
	require.Equal(t, RobotHatUUID, base.Detect.HatUUIDs[0])
}

func TestParseEmptyGPIODisablesSpeakerEnable(t *testing.T) {
	cfg, _, err := Parse("commands:\n  gpio: \"\"\n", Default())
	require.NoError(t, err)
	require.Empty(t, cfg.Commands.GPIO.Argv)
	require.True(t, cfg.Speaker.Chime)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown top-level key", content: "speakers: 2\n", wantErr: "speakers"},
		{name: "unknown nested key", content: "volume:\n  master: 10\n", wantErr: "master"},
		{name: "wrong type", content: "volume:\n  playback: loud\n", wantErr: "cannot unmarshal"},
		{name: "address out of range", content: "detect:\n  i2c_addresses: [0x80]\n", wantErr: "i2c_addresses"},
		{name: "negative mic revision", content: "detect:\n  mic_revision: -1\n", wantErr: "mic_revision"},
		{name: "bad command quoting", content: "commands:\n  amixer: 'amixer \"-c'\n", wantErr: "commands.amixer"},
		{name: "empty command", content: "commands:\n  aplay: \"\"\n", wantErr: "commands.aplay"},
		{name: "validation failure", content: "activate:\n  poll_attempts: 0\n", wantErr: "poll_attempts"},
		{name: "speaker pin off the header", content: "speaker:\n  enable_pin: 40\n", wantErr: "speaker.enable_pin"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.content, Default())
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
