package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/justinbetabox/robot-hat/internal/alsa"
	"github.com/justinbetabox/robot-hat/internal/audio"
	"github.com/justinbetabox/robot-hat/internal/bootconfig"
	"github.com/justinbetabox/robot-hat/internal/cli"
	"github.com/justinbetabox/robot-hat/internal/config"
	"github.com/justinbetabox/robot-hat/internal/doctor"
	"github.com/justinbetabox/robot-hat/internal/errcode"
	"github.com/justinbetabox/robot-hat/internal/hat"
	"github.com/justinbetabox/robot-hat/internal/indicator"
	"github.com/justinbetabox/robot-hat/internal/logging"
	"github.com/justinbetabox/robot-hat/internal/overlay"
	"github.com/justinbetabox/robot-hat/internal/pipeline"
	"github.com/justinbetabox/robot-hat/internal/privilege"
	"github.com/justinbetabox/robot-hat/internal/routing"
	"github.com/justinbetabox/robot-hat/internal/state"
	"github.com/justinbetabox/robot-hat/internal/sysexec"
	"github.com/justinbetabox/robot-hat/internal/version"
)

const (
	binaryName = "robot-hat-audio"

	exitUsage  = 2
	exitConfig = 78
)

// Runner executes one CLI invocation. Zero-valued hooks use the real system.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	Exec       sysexec.Runner
	EUID       func() int
	Getenv     func(string) string
	OpenBus    func(bus int) hat.BusOpener
	Sleep      func(ctx context.Context, d time.Duration) error
	Executable func() (string, error)
	Bind       func(ctx context.Context, capture bool) (audio.Binding, error)
	Chime      func(ctx context.Context) error
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	r = r.withDefaults()

	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return exitUsage
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return exitConfig
	}

	logRuntime, err := logging.New(cfgLoaded.Config.Log.Level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		// session-bind output is captured by the parent run; keep it clean.
		if parsed.Command != cli.CommandSessionBind {
			fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		}
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	cfg := cfgLoaded.Config
	switch parsed.Command {
	case cli.CommandSetup:
		return r.commandSetup(ctx, cfgLoaded, parsed.Variant, logger)
	case cli.CommandDetect:
		return r.commandDetect(ctx, cfg, parsed.Variant, logger)
	case cli.CommandStatus:
		return r.commandStatus(cfg)
	case cli.CommandOverlays:
		return r.commandOverlays(cfg)
	case cli.CommandUninstall:
		return r.commandUninstall(cfg, logger)
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded, r.EUID())
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandSessionBind:
		return r.commandSessionBind(ctx, parsed, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return exitUsage
	}
}

func (r Runner) withDefaults() Runner {
	if r.Exec == nil {
		r.Exec = sysexec.Exec{}
	}
	if r.EUID == nil {
		r.EUID = privilege.EUID
	}
	if r.Getenv == nil {
		r.Getenv = os.Getenv
	}
	if r.OpenBus == nil {
		r.OpenBus = hat.Opener
	}
	if r.Sleep == nil {
		r.Sleep = overlay.Sleep
	}
	if r.Executable == nil {
		r.Executable = os.Executable
	}
	if r.Bind == nil {
		r.Bind = audio.BindDefaults
	}
	if r.Chime == nil {
		r.Chime = audio.PlayChime
	}
	return r
}

func (r Runner) identifier(cfg config.Config, logger *slog.Logger) *hat.Identifier {
	return &hat.Identifier{
		Store:       hat.DeviceTree{Root: cfg.Paths.DeviceTree},
		OpenBus:     r.OpenBus(cfg.Detect.I2CBus),
		UUIDs:       cfg.Detect.HatUUIDs,
		MicRevision: cfg.Detect.MicRevision,
		Addresses:   cfg.Detect.I2CAddresses,
		Logger:      logger,
	}
}

func (r Runner) activator(cfg config.Config, logger *slog.Logger) *overlay.Activator {
	return &overlay.Activator{
		OverlayDir: cfg.Paths.OverlayDir,
		BundledDir: cfg.Paths.BundledOverlayDir,
		Boot:       bootconfig.File{Path: cfg.Paths.BootConfig},
		Loader:     overlay.DTOverlay{Runner: r.Exec, Argv: cfg.Commands.DTOverlay.Argv},
		Lister:     alsa.CommandLister{Runner: r.Exec, Argv: sysexec.With(cfg.Commands.APlay.Argv, "-l")},
		Settle:     cfg.Activate.Settle(),
		Attempts:   cfg.Activate.PollAttempts,
		Interval:   cfg.Activate.PollInterval(),
		Sleep:      r.Sleep,
		Logger:     logger,
	}
}

func (r Runner) controller(cfg config.Config, configPath string, logger *slog.Logger) *audio.Controller {
	cmds := cfg.Commands
	ctl := &audio.Controller{
		Mixer: alsa.Mixer{
			Runner:  r.Exec,
			AMixer:  cmds.AMixer.Argv,
			APlay:   cmds.APlay.Argv,
			ARecord: cmds.ARecord.Argv,
		},
		Playback:     cfg.Volume.Playback,
		Capture:      cfg.Volume.Capture,
		GPIO:         cmds.GPIO.Argv,
		SpeakerPin:   cfg.Speaker.EnablePin,
		Chime:        cfg.Speaker.Chime,
		Runner:       r.Exec,
		User:         func() (sysexec.User, error) { return privilege.InvokingUser(r.Getenv) },
		AsUser:       cmds.RunAsUser.Argv,
		SessionCheck: cmds.SessionCheck.Argv,
		SessionStart: cmds.SessionStart.Argv,
		Logger:       logger,
	}
	if exe, err := r.Executable(); err == nil {
		ctl.Bind = []string{exe, "--config", configPath}
	} else {
		logger.Warn("resolve own executable", "error", err.Error())
	}
	return ctl
}

func (r Runner) commandSetup(ctx context.Context, loaded config.Loaded, variant hat.Variant, logger *slog.Logger) int {
	cfg := loaded.Config
	printer := indicator.NewPrinter(r.Stdout)

	p := pipeline.New(pipeline.Deps{
		Identifier: r.identifier(cfg, logger),
		Activator:  r.activator(cfg, logger),
		Routing:    routing.Writer{Path: cfg.Paths.AsoundConf},
		Controller: r.controller(cfg, loaded.Path, logger),
		Store:      state.Store{Path: cfg.Paths.StateFile},
		Reporter:   printer,
		Logger:     logger,
		EUID:       r.EUID,
	}, pipeline.Options{Variant: variant})

	result := p.Run(ctx)
	logPipelineResult(logger, result)

	if result.Err != nil {
		return errcode.ExitCode(result.Err)
	}
	printer.Done(result.NeedsReboot)
	return 0
}

func (r Runner) commandDetect(ctx context.Context, cfg config.Config, variant hat.Variant, logger *slog.Logger) int {
	if variant != "" {
		fmt.Fprintf(r.Stdout, "variant: %s (source: %s)\n", variant, hat.SourceOverride)
		return 0
	}
	det, err := r.identifier(cfg, logger).Identify(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, det.Report())
	spec, err := overlay.Select(det.Variant)
	if err == nil {
		fmt.Fprintf(r.Stdout, "overlay: %s (card %s)\n", spec.Overlay, spec.DeviceName)
	}
	return 0
}

func (r Runner) commandStatus(cfg config.Config) int {
	rec, found, err := state.Store{Path: cfg.Paths.StateFile}.Load()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !found {
		fmt.Fprintln(r.Stdout, "no setup run recorded")
		return 0
	}

	fmt.Fprintf(r.Stdout, "state: %s\n", rec.State)
	fmt.Fprintf(r.Stdout, "variant: %s (source: %s)\n", rec.Variant, rec.Source)
	if rec.Overlay != "" {
		fmt.Fprintf(r.Stdout, "overlay: %s\n", rec.Overlay)
	}
	if rec.Card != "" {
		fmt.Fprintf(r.Stdout, "card: %s\n", rec.Card)
	}
	fmt.Fprintf(r.Stdout, "needs reboot: %t\n", rec.NeedsReboot)
	if rec.Reason != "" {
		fmt.Fprintf(r.Stdout, "reason: %s\n", rec.Reason)
	}
	for _, w := range rec.Warnings {
		fmt.Fprintf(r.Stdout, "warning: %s\n", w)
	}
	fmt.Fprintf(r.Stdout, "updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
	return 0
}

func (r Runner) commandOverlays(cfg config.Config) int {
	entries, err := os.ReadDir(cfg.Paths.OverlayDir)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: read overlay dir: %v\n", err)
		return 1
	}

	known := overlay.KnownNames()
	var active []string
	if lines, err := (bootconfig.File{Path: cfg.Paths.BootConfig}).Lines(); err == nil {
		active = bootconfig.Active(lines, known)
	} else {
		fmt.Fprintf(r.Stderr, "warning: read boot config: %v\n", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".dtbo" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".dtbo"))
	}
	sort.Strings(names)

	for _, name := range names {
		mark := " "
		if contains(active, name) {
			mark = "*"
		}
		note := ""
		if contains(known, name) {
			note = "hat"
		}
		fmt.Fprintln(r.Stdout, strings.TrimRight(fmt.Sprintf("%s %-28s %s", mark, name, note), " "))
	}
	if len(active) == 0 {
		fmt.Fprintln(r.Stdout, "no hat overlay configured in "+cfg.Paths.BootConfig)
	}
	return 0
}

func (r Runner) commandUninstall(cfg config.Config, logger *slog.Logger) int {
	if err := privilege.Require(r.EUID(), string(cli.CommandUninstall)); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return errcode.ExitCode(err)
	}

	boot := bootconfig.File{Path: cfg.Paths.BootConfig}
	changed, err := boot.Remove(overlay.KnownNames())
	if err != nil {
		err = errcode.New(errcode.ConfigWriteError, "remove overlay directives", boot.Path, err)
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("uninstall failed", "code", string(errcode.Of(err)), "error", err.Error())
		return errcode.ExitCode(err)
	}
	printChange(r.Stdout, changed, "removed hat overlay from "+boot.Path, "no hat overlay in "+boot.Path)

	removed, err := routing.Writer{Path: cfg.Paths.AsoundConf}.Remove()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("uninstall failed", "code", string(errcode.Of(err)), "error", err.Error())
		return errcode.ExitCode(err)
	}
	printChange(r.Stdout, removed, "removed "+cfg.Paths.AsoundConf+" (backup kept)", "no routing file at "+cfg.Paths.AsoundConf)

	if err := (state.Store{Path: cfg.Paths.StateFile}).Remove(); err != nil {
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
		logger.Warn("state record not removed", "error", err.Error())
	}

	logger.Info("uninstall complete", "boot_changed", changed, "routing_removed", removed)
	if changed {
		fmt.Fprintln(r.Stdout, "reboot to unload the overlay")
	}
	return 0
}

func (r Runner) commandSessionBind(ctx context.Context, parsed cli.Parsed, logger *slog.Logger) int {
	binding, err := r.Bind(ctx, parsed.Capture)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("session bind failed", "capture", parsed.Capture, "error", err.Error())
		return 1
	}
	if parsed.Chime {
		if err := r.Chime(ctx); err != nil {
			fmt.Fprintf(r.Stderr, "warning: chime: %v\n", err)
			logger.Warn("chime failed", "sink", binding.Sink, "error", err.Error())
		}
	}
	logger.Info("session bind complete",
		"sink", binding.Sink,
		"source", binding.Source,
		"loaded_sink", binding.LoadedSink,
		"loaded_source", binding.LoadedSource,
	)
	fmt.Fprintln(r.Stdout, binding.Summary())
	return 0
}

func printChange(w io.Writer, changed bool, yes, no string) {
	if changed {
		fmt.Fprintln(w, yes)
		return
	}
	fmt.Fprintln(w, no)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func logPipelineResult(logger *slog.Logger, result pipeline.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"variant", result.Variant,
		"source", result.Detection.Source,
		"overlay", result.Spec.Overlay,
		"card", result.Device.Ref(),
		"needs_reboot", result.NeedsReboot,
		"warnings", len(result.Warnings),
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}

	if result.Err != nil {
		logger.Error("setup failed", append(fields, "code", string(errcode.Of(result.Err)), "error", result.Err.Error())...)
		return
	}
	logger.Info("setup complete", fields...)
}
