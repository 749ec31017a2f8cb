package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/justinbetabox/robot-hat/internal/alsa"
	"github.com/justinbetabox/robot-hat/internal/hat"
	"github.com/justinbetabox/robot-hat/internal/routing"
	"github.com/justinbetabox/robot-hat/internal/sysexec"
)

// Step names a controller stage reported to the Observer.
type Step string

const (
	StepSpeaker Step = "speaker"
	StepVolume  Step = "volume"
	StepSink    Step = "sink"
)

// Observer receives one call per controller step, after its warnings were collected.
type Observer func(step Step, detail string)

// Mixer is the subset of alsa.Mixer the controller drives.
type Mixer interface {
	PrimePlayback(ctx context.Context) error
	PrimeCapture(ctx context.Context) error
	SetVolume(ctx context.Context, card alsa.Card, control string, percent int) error
}

// Controller enables the speaker amplifier, applies initial volumes, and binds the
// session defaults. Nothing it does is fatal.
type Controller struct {
	Mixer    Mixer
	Playback int
	Capture  int

	// GPIO is a pinctrl-style command taking "set <pin> op dh". Empty skips the step.
	GPIO []string
	// SpeakerPin overrides the board's amplifier enable pin when non-zero.
	SpeakerPin int
	// Chime asks session-bind to play a short cue on the new default sink.
	Chime bool

	Runner       sysexec.Runner
	User         func() (sysexec.User, error)
	AsUser       []string
	SessionCheck []string
	SessionStart []string
	// Bind is the argv that re-enters this binary as the session user, without its subcommand.
	Bind []string

	Logger *slog.Logger
}

// Apply runs the speaker, volume, and sink steps and returns every warning raised along the way.
func (c *Controller) Apply(ctx context.Context, det hat.Detection, card alsa.Card, observe Observer) []string {
	if observe == nil {
		observe = func(Step, string) {}
	}
	variant := det.Variant
	var warnings []string
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		warnings = append(warnings, msg)
		c.logger().Warn(msg, "card", card.Ref(), "variant", string(variant))
	}

	// The amplifier comes up before priming so the silent priming pass settles it.
	observe(StepSpeaker, c.enableSpeaker(ctx, det, warn))
	observe(StepVolume, c.setVolumes(ctx, variant, card, warn))
	observe(StepSink, c.bindSession(ctx, variant, warn))
	return warnings
}

func (c *Controller) enableSpeaker(ctx context.Context, det hat.Detection, warn func(string, ...any)) string {
	if len(c.GPIO) == 0 {
		return "speaker enable disabled"
	}
	if c.Runner == nil {
		warn("no command runner configured; speaker amplifier not enabled")
		return "skipped"
	}
	pin := c.SpeakerPin
	if pin == 0 {
		pin = det.SpeakerPin()
	}
	argv := sysexec.With(c.GPIO, "set", strconv.Itoa(pin), "op", "dh")
	if _, err := c.Runner.Run(ctx, argv...); err != nil {
		warn("enable speaker amplifier on GPIO %d: %v", pin, err)
		return "speaker amplifier not enabled"
	}
	c.logger().Info("speaker amplifier enabled", "pin", pin)
	return fmt.Sprintf("speaker amplifier enabled on GPIO %d", pin)
}

func (c *Controller) setVolumes(ctx context.Context, variant hat.Variant, card alsa.Card, warn func(string, ...any)) string {
	controls := routing.ControlsFor(variant)
	if c.Mixer == nil {
		warn("no mixer configured; volumes left unchanged")
		return "skipped"
	}

	// Softvol controls only exist once their PCM has been opened.
	if err := c.Mixer.PrimePlayback(ctx); err != nil {
		warn("open playback path: %v", err)
	}
	if variant.HasCapture() {
		if err := c.Mixer.PrimeCapture(ctx); err != nil {
			warn("open capture path: %v", err)
		}
	}

	var set []string
	if err := c.Mixer.SetVolume(ctx, card, controls.Playback, c.Playback); err != nil {
		warn("%v", err)
	} else {
		set = append(set, fmt.Sprintf("%s %d%%", controls.Playback, c.Playback))
	}
	if controls.Capture != "" {
		if err := c.Mixer.SetVolume(ctx, card, controls.Capture, c.Capture); err != nil {
			warn("%v", err)
		} else {
			set = append(set, fmt.Sprintf("%s %d%%", controls.Capture, c.Capture))
		}
	}
	if len(set) == 0 {
		return "volumes left unchanged"
	}
	return strings.Join(set, ", ")
}

func (c *Controller) bindSession(ctx context.Context, variant hat.Variant, warn func(string, ...any)) string {
	if c.User == nil || c.Runner == nil {
		warn("no session user resolver configured; default sink not bound")
		return "skipped"
	}
	user, err := c.User()
	if err != nil {
		warn("resolve session user: %v; default sink not bound", err)
		return "skipped"
	}
	if user.UID == 0 {
		warn("invoked directly as root with no session user; default sink not bound")
		return "skipped"
	}

	if len(c.SessionCheck) > 0 {
		if _, err := c.Runner.Run(ctx, sysexec.AsUser(c.AsUser, user, c.SessionCheck...)...); err != nil {
			c.logger().Info("session audio server not running; starting it", "user", user.Name)
			if len(c.SessionStart) == 0 {
				warn("session audio server not running for %s", user.Name)
				return "skipped"
			}
			if _, err := c.Runner.Run(ctx, sysexec.AsUser(c.AsUser, user, c.SessionStart...)...); err != nil {
				warn("start session audio server for %s: %v", user.Name, err)
				return "skipped"
			}
		}
	}

	if len(c.Bind) == 0 {
		warn("no bind command configured; default sink not bound")
		return "skipped"
	}
	argv := sysexec.With(c.Bind, "session-bind")
	if variant.HasCapture() {
		argv = append(argv, "--capture")
	}
	if c.Chime {
		argv = append(argv, "--chime")
	}
	out, err := c.Runner.Run(ctx, sysexec.AsUser(c.AsUser, user, argv...)...)
	if err != nil {
		warn("bind default sink for %s: %v", user.Name, err)
		return "not bound"
	}
	detail := strings.TrimSpace(string(out))
	if detail == "" {
		detail = "default sink " + SinkName
	}
	return detail + " for " + user.Name
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}
