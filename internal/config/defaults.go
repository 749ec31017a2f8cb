package config

// RobotHatUUID is the product uuid the Hat's EEPROM publishes in the device tree.
const RobotHatUUID = "9daeea78-0000-076e-0032-582369ac3e02"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			BootConfig:        "/boot/firmware/config.txt",
			OverlayDir:        "/boot/firmware/overlays",
			BundledOverlayDir: "/usr/share/robot-hat/overlays",
			DeviceTree:        "/proc/device-tree",
			AsoundConf:        "/etc/asound.conf",
			StateFile:         "/var/lib/robot-hat/audio-state.yaml",
		},
		Detect: DetectConfig{
			HatUUIDs:     []string{RobotHatUUID},
			MicRevision:  5,
			I2CBus:       1,
			I2CAddresses: []uint16{0x14, 0x15},
		},
		Activate: ActivateConfig{
			SettleMS:       2000,
			PollAttempts:   5,
			PollIntervalMS: 1000,
		},
		Volume:  VolumeConfig{Playback: 80, Capture: 80},
		Speaker: SpeakerConfig{Chime: true},
		Commands: CommandsConfig{
			DTOverlay:    command("dtoverlay"),
			APlay:        command("aplay"),
			ARecord:      command("arecord"),
			AMixer:       command("amixer"),
			SessionCheck: command("pulseaudio --check"),
			SessionStart: command("pulseaudio --start"),
			RunAsUser:    command("sudo -u {user} env XDG_RUNTIME_DIR={runtime_dir}"),
			GPIO:         command("pinctrl"),
		},
		Log: LogConfig{Level: "info"},
	}
}

func command(raw string) CommandConfig {
	return CommandConfig{Raw: raw, Argv: mustParseArgv(raw)}
}
