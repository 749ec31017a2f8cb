package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlConfig struct {
	Paths    *yamlPaths    `yaml:"paths"`
	Detect   *yamlDetect   `yaml:"detect"`
	Activate *yamlActivate `yaml:"activate"`
	Volume   *yamlVolume   `yaml:"volume"`
	Speaker  *yamlSpeaker  `yaml:"speaker"`
	Commands *yamlCommands `yaml:"commands"`
	Log      *yamlLog      `yaml:"log"`
}

type yamlPaths struct {
	BootConfig        *string `yaml:"boot_config"`
	OverlayDir        *string `yaml:"overlay_dir"`
	BundledOverlayDir *string `yaml:"bundled_overlay_dir"`
	DeviceTree        *string `yaml:"device_tree"`
	AsoundConf        *string `yaml:"asound_conf"`
	StateFile         *string `yaml:"state_file"`
}

type yamlDetect struct {
	HatUUIDs     []string `yaml:"hat_uuids"`
	MicRevision  *int64   `yaml:"mic_revision"`
	I2CBus       *int     `yaml:"i2c_bus"`
	I2CAddresses []int    `yaml:"i2c_addresses"`
}

type yamlActivate struct {
	SettleMS       *int `yaml:"settle_ms"`
	PollAttempts   *int `yaml:"poll_attempts"`
	PollIntervalMS *int `yaml:"poll_interval_ms"`
}

type yamlVolume struct {
	Playback *int `yaml:"playback"`
	Capture  *int `yaml:"capture"`
}

type yamlSpeaker struct {
	EnablePin *int  `yaml:"enable_pin"`
	Chime     *bool `yaml:"chime"`
}

type yamlCommands struct {
	DTOverlay    *string `yaml:"dtoverlay"`
	APlay        *string `yaml:"aplay"`
	ARecord      *string `yaml:"arecord"`
	AMixer       *string `yaml:"amixer"`
	SessionCheck *string `yaml:"session_check"`
	SessionStart *string `yaml:"session_start"`
	RunAsUser    *string `yaml:"run_as_user"`
	GPIO         *string `yaml:"gpio"`
}

type yamlLog struct {
	Level *string `yaml:"level"`
}

// Parse decodes YAML content over base. Unknown keys are rejected.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	decoder := yaml.NewDecoder(strings.NewReader(content))
	decoder.KnownFields(true)

	var payload yamlConfig
	if err := decoder.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, nil, err
	}

	cfg, err := payload.applyTo(cloneConfig(base))
	if err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (p *yamlConfig) applyTo(cfg Config) (Config, error) {
	if p.Paths != nil {
		setString(&cfg.Paths.BootConfig, p.Paths.BootConfig)
		setString(&cfg.Paths.OverlayDir, p.Paths.OverlayDir)
		setString(&cfg.Paths.BundledOverlayDir, p.Paths.BundledOverlayDir)
		setString(&cfg.Paths.DeviceTree, p.Paths.DeviceTree)
		setString(&cfg.Paths.AsoundConf, p.Paths.AsoundConf)
		setString(&cfg.Paths.StateFile, p.Paths.StateFile)
	}

	if p.Detect != nil {
		if p.Detect.HatUUIDs != nil {
			cfg.Detect.HatUUIDs = append([]string(nil), p.Detect.HatUUIDs...)
		}
		if p.Detect.MicRevision != nil {
			if *p.Detect.MicRevision < 0 {
				return Config{}, fmt.Errorf("detect.mic_revision must be >= 0")
			}
			cfg.Detect.MicRevision = uint64(*p.Detect.MicRevision)
		}
		setInt(&cfg.Detect.I2CBus, p.Detect.I2CBus)
		if p.Detect.I2CAddresses != nil {
			addrs := make([]uint16, 0, len(p.Detect.I2CAddresses))
			for _, addr := range p.Detect.I2CAddresses {
				if addr < minI2CAddress || addr > maxI2CAddress {
					return Config{}, fmt.Errorf("detect.i2c_addresses: 0x%02x outside 0x%02x..0x%02x", addr, minI2CAddress, maxI2CAddress)
				}
				addrs = append(addrs, uint16(addr))
			}
			cfg.Detect.I2CAddresses = addrs
		}
	}

	if p.Activate != nil {
		setInt(&cfg.Activate.SettleMS, p.Activate.SettleMS)
		setInt(&cfg.Activate.PollAttempts, p.Activate.PollAttempts)
		setInt(&cfg.Activate.PollIntervalMS, p.Activate.PollIntervalMS)
	}

	if p.Volume != nil {
		setInt(&cfg.Volume.Playback, p.Volume.Playback)
		setInt(&cfg.Volume.Capture, p.Volume.Capture)
	}

	if p.Speaker != nil {
		setInt(&cfg.Speaker.EnablePin, p.Speaker.EnablePin)
		if p.Speaker.Chime != nil {
			cfg.Speaker.Chime = *p.Speaker.Chime
		}
	}

	if p.Commands != nil {
		commands := []struct {
			key    string
			raw    *string
			target *CommandConfig
		}{
			{"commands.dtoverlay", p.Commands.DTOverlay, &cfg.Commands.DTOverlay},
			{"commands.aplay", p.Commands.APlay, &cfg.Commands.APlay},
			{"commands.arecord", p.Commands.ARecord, &cfg.Commands.ARecord},
			{"commands.amixer", p.Commands.AMixer, &cfg.Commands.AMixer},
			{"commands.session_check", p.Commands.SessionCheck, &cfg.Commands.SessionCheck},
			{"commands.session_start", p.Commands.SessionStart, &cfg.Commands.SessionStart},
			{"commands.run_as_user", p.Commands.RunAsUser, &cfg.Commands.RunAsUser},
			{"commands.gpio", p.Commands.GPIO, &cfg.Commands.GPIO},
		}
		for _, c := range commands {
			if c.raw == nil {
				continue
			}
			argv, err := parseArgv(*c.raw)
			if err != nil {
				return Config{}, fmt.Errorf("%s: %w", c.key, err)
			}
			*c.target = CommandConfig{Raw: *c.raw, Argv: argv}
		}
	}

	if p.Log != nil {
		setString(&cfg.Log.Level, p.Log.Level)
	}
	return cfg, nil
}

func setString(target *string, value *string) {
	if value != nil {
		*target = strings.TrimSpace(*value)
	}
}

func setInt(target *int, value *int) {
	if value != nil {
		*target = *value
	}
}

// cloneConfig copies slices so callers never alias Default().
func cloneConfig(cfg Config) Config {
	cfg.Detect.HatUUIDs = append([]string(nil), cfg.Detect.HatUUIDs...)
	cfg.Detect.I2CAddresses = append([]uint16(nil), cfg.Detect.I2CAddresses...)
	return cfg
}
