package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/justinbetabox/robot-hat/internal/hat"
	"github.com/spf13/pflag"
)

type Command string

const (
	CommandSetup       Command = "setup"
	CommandDetect      Command = "detect"
	CommandStatus      Command = "status"
	CommandOverlays    Command = "overlays"
	CommandUninstall   Command = "uninstall"
	CommandDoctor      Command = "doctor"
	CommandSessionBind Command = "session-bind"
	CommandVersion     Command = "version"
	CommandHelp        Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandSetup:       {},
	CommandDetect:      {},
	CommandStatus:      {},
	CommandOverlays:    {},
	CommandUninstall:   {},
	CommandDoctor:      {},
	CommandSessionBind: {},
	CommandVersion:     {},
	CommandHelp:        {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Variant    hat.Variant
	Capture    bool
	Chime      bool
	ShowHelp   bool
}

// Parse reads global flags up to the first positional argument, then the
// command and its own flags. Only session-bind takes command flags.
func Parse(args []string) (Parsed, error) {
	fs := pflag.NewFlagSet("robot-hat-audio", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	configPath := fs.String("config", "", "config file path")
	variant := fs.String("variant", "", "skip detection and use with-mic or without-mic")
	help := fs.BoolP("help", "h", false, "show help")
	showVersion := fs.Bool("version", false, "show version")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Parsed{Command: CommandHelp, ShowHelp: true}, nil
		}
		return Parsed{}, err
	}

	parsed := Parsed{Command: CommandHelp, ShowHelp: true, ConfigPath: *configPath}
	if *variant != "" {
		v, err := hat.ParseVariant(*variant)
		if err != nil {
			return Parsed{}, err
		}
		parsed.Variant = v
	}

	if *help {
		return parsed, nil
	}
	if *showVersion {
		parsed.Command = CommandVersion
		parsed.ShowHelp = false
		return parsed, nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return parsed, nil
	}

	cmd := Command(rest[0])
	if _, ok := validCommands[cmd]; !ok {
		return Parsed{}, fmt.Errorf("unknown command: %s", rest[0])
	}
	parsed.Command = cmd
	parsed.ShowHelp = cmd == CommandHelp

	if cmd == CommandSessionBind {
		capture, chime, err := parseSessionBind(rest[1:])
		if err != nil {
			return Parsed{}, err
		}
		parsed.Capture = capture
		parsed.Chime = chime
		return parsed, nil
	}

	if len(rest) > 1 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", rest[0])
	}
	return parsed, nil
}

func parseSessionBind(args []string) (capture, chime bool, err error) {
	fs := pflag.NewFlagSet(string(CommandSessionBind), pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.BoolVar(&capture, "capture", false, "also bind the microphone source")
	fs.BoolVar(&chime, "chime", false, "play a short cue on the bound sink")
	if err := fs.Parse(args); err != nil {
		return false, false, fmt.Errorf("%s: %w", CommandSessionBind, err)
	}
	if fs.NArg() > 0 {
		return false, false, fmt.Errorf("unexpected arguments after command %q", CommandSessionBind)
	}
	return capture, chime, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--variant VARIANT] <command>

Commands:
  setup       Detect the Hat, activate its overlay, write routing, set volume and sink
  detect      Print the detection report without changing anything
  status      Print the result of the last setup run
  overlays    List staged overlays and the active boot directive
  uninstall   Remove the boot directive, routing file, and state record
  doctor      Run configuration and environment checks
  version     Print version information
  help        Show this help

Flags:
  --config PATH       Config file path (default: $ROBOT_HAT_AUDIO_CONFIG or /etc/robot-hat/audio.yaml)
  --variant VARIANT   Skip detection: with-mic or without-mic
  -h, --help          Show help
  --version           Show version
`, binaryName)
}
