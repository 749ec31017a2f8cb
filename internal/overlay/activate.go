package overlay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/justinbetabox/robot-hat/internal/alsa"
	"github.com/justinbetabox/robot-hat/internal/bootconfig"
	"github.com/justinbetabox/robot-hat/internal/errcode"
	"github.com/justinbetabox/robot-hat/internal/fsutil"
	"github.com/justinbetabox/robot-hat/internal/sysexec"
)

// Step names an activation stage reported to the Observer.
type Step string

const (
	StepStaged    Step = "staged"
	StepPersisted Step = "persisted"
	StepLoaded    Step = "loaded"
	StepConfirmed Step = "confirmed"
)

// Observer receives one call per completed activation step.
type Observer func(step Step, detail string)

// Loader is the kernel's runtime overlay facility.
type Loader interface {
	Loaded(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) error
}

// DTOverlay drives the Raspberry Pi `dtoverlay` utility.
type DTOverlay struct {
	Runner sysexec.Runner
	Argv   []string
}

var loadedLine = regexp.MustCompile(`^\d+:\s+(\S+)`)

// Loaded parses `dtoverlay -l`, whose entries look like "0:  hifiberry-dac".
func (d DTOverlay) Loaded(ctx context.Context) ([]string, error) {
	out, err := d.Runner.Run(ctx, sysexec.With(d.Argv, "-l")...)
	if err != nil {
		return nil, err
	}
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		if m := loadedLine.FindStringSubmatch(strings.TrimSpace(scanner.Text())); m != nil {
			names = append(names, m[1])
		}
	}
	return names, nil
}

func (d DTOverlay) Load(ctx context.Context, name string) error {
	_, err := d.Runner.Run(ctx, sysexec.With(d.Argv, name)...)
	return err
}

// Activation is the outcome of a successful Activate call.
type Activation struct {
	Device            alsa.Card
	Staged            bool
	Persisted         bool
	AlreadyEnumerated bool
	AlreadyLoaded     bool
	LoadErr           error
	Deferred          bool
	Attempts          int
}

// Activator stages, persists, loads, and confirms an overlay.
type Activator struct {
	OverlayDir string
	BundledDir string
	Boot       bootconfig.File
	Loader     Loader
	Lister     alsa.Lister

	Settle   time.Duration
	Attempts int
	Interval time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// Activate runs every step in order. A card that is already enumerated, typically because
// the firmware applied the overlay at boot, skips the runtime load and the confirm poll.
// An overlay load failure is carried in Activation.LoadErr. When the card then never
// appears the result is Deferred rather than an error, since the persisted boot config
// will bring it up after a reboot.
func (a *Activator) Activate(ctx context.Context, spec Spec, observe Observer) (Activation, error) {
	if observe == nil {
		observe = func(Step, string) {}
	}
	act := Activation{}

	staged, err := a.Stage(spec)
	if err != nil {
		return act, err
	}
	act.Staged = staged
	if staged {
		observe(StepStaged, "copied "+spec.Overlay+".dtbo from the bundled overlay set")
	} else {
		observe(StepStaged, spec.Overlay+".dtbo already present")
	}

	persisted, err := a.Persist(spec)
	if err != nil {
		return act, err
	}
	act.Persisted = persisted
	if persisted {
		observe(StepPersisted, "added "+bootconfig.Directive(spec.Overlay)+" to "+a.Boot.Path)
	} else {
		observe(StepPersisted, a.Boot.Path+" already selects "+spec.Overlay)
	}

	if card, ok := a.Enumerated(ctx, spec); ok {
		act.AlreadyEnumerated = true
		act.Device = card
		act.Attempts = 1
		observe(StepLoaded, card.ID+" already enumerated; runtime load skipped")
		observe(StepConfirmed, describeCard(card))
		return act, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return act, ctxErr
	}

	already, loadErr := a.Load(ctx, spec)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return act, ctxErr
	}
	act.AlreadyLoaded = already
	act.LoadErr = loadErr
	switch {
	case loadErr != nil:
		a.logger().Warn("overlay load failed", "overlay", spec.Overlay, "error", loadErr.Error())
		observe(StepLoaded, "runtime load failed; active after reboot")
	case already:
		observe(StepLoaded, spec.Overlay+" already loaded")
	default:
		observe(StepLoaded, "loaded "+spec.Overlay)
	}

	card, attempts, err := a.Confirm(ctx, spec)
	act.Attempts = attempts
	if err != nil {
		if loadErr != nil && errors.Is(err, errcode.DeviceNotEnumerated) {
			act.Deferred = true
			act.Device = alsa.Card{Index: -1, ID: spec.DeviceName}
			observe(StepConfirmed, "sound card deferred until reboot")
			return act, nil
		}
		return act, err
	}
	act.Device = card
	observe(StepConfirmed, describeCard(card))
	return act, nil
}

func describeCard(card alsa.Card) string {
	return fmt.Sprintf("card %d: %s [%s]", card.Index, card.ID, card.Name)
}

// Enumerated lists cards once without waiting. A listing error counts as absent.
func (a *Activator) Enumerated(ctx context.Context, spec Spec) (alsa.Card, bool) {
	cards, err := a.Lister.Cards(ctx)
	if err != nil {
		a.logger().Debug("card listing failed", "error", err.Error())
		return alsa.Card{}, false
	}
	card, ok := alsa.Find(cards, spec.DeviceNames()...)
	if ok {
		a.logger().Info("sound card already enumerated", "card", card.ID, "index", card.Index)
	}
	return card, ok
}

// Stage makes sure <OverlayDir>/<name>.dtbo exists. It reports whether a copy was made.
func (a *Activator) Stage(spec Spec) (bool, error) {
	file := spec.Overlay + ".dtbo"
	target := filepath.Join(a.OverlayDir, file)
	if fsutil.Exists(target) {
		return false, nil
	}

	source := filepath.Join(a.BundledDir, file)
	if !fsutil.Exists(source) {
		return false, errcode.New(errcode.OverlayNotStaged, "stage overlay",
			fmt.Sprintf("%s not found in %s or %s", file, a.OverlayDir, a.BundledDir), nil)
	}
	if err := os.MkdirAll(a.OverlayDir, 0o755); err != nil {
		return false, errcode.New(errcode.ConfigWriteError, "stage overlay", "create "+a.OverlayDir, err)
	}
	if err := fsutil.CopyFile(source, target, 0o644); err != nil {
		return false, errcode.New(errcode.ConfigWriteError, "stage overlay", "copy "+file, err)
	}
	a.logger().Info("overlay staged", "source", source, "target", target)
	return true, nil
}

// Persist converges the boot config on a single directive for spec.
func (a *Activator) Persist(spec Spec) (bool, error) {
	changed, err := a.Boot.Ensure(spec.Overlay, KnownNames())
	if err != nil {
		return false, errcode.New(errcode.ConfigWriteError, "persist overlay", a.Boot.Path, err)
	}
	if changed {
		a.logger().Info("boot config updated", "path", a.Boot.Path, "overlay", spec.Overlay)
	}
	return changed, nil
}

// Load applies the overlay to the running kernel unless it is already loaded.
func (a *Activator) Load(ctx context.Context, spec Spec) (bool, error) {
	if a.Loader == nil {
		return false, errcode.New(errcode.OverlayLoadError, "load overlay", "no runtime overlay loader configured", nil)
	}
	loaded, err := a.Loader.Loaded(ctx)
	if err != nil {
		a.logger().Debug("list loaded overlays failed", "error", err.Error())
	}
	for _, name := range loaded {
		if name == spec.Overlay {
			return true, nil
		}
	}
	if err := a.Loader.Load(ctx, spec.Overlay); err != nil {
		return false, errcode.New(errcode.OverlayLoadError, "load overlay", spec.Overlay, err)
	}
	a.logger().Info("overlay loaded", "overlay", spec.Overlay)
	return false, nil
}

// Confirm waits for the settle delay, then polls the card list up to Attempts times.
// It returns the matched card and the number of listings taken.
func (a *Activator) Confirm(ctx context.Context, spec Spec) (alsa.Card, int, error) {
	attempts := a.Attempts
	if attempts < 1 {
		attempts = 1
	}
	if err := a.sleep(ctx, a.Settle); err != nil {
		return alsa.Card{}, 0, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		cards, err := a.Lister.Cards(ctx)
		if err != nil {
			lastErr = err
			a.logger().Debug("card listing failed", "attempt", attempt, "error", err.Error())
		} else if card, ok := alsa.Find(cards, spec.DeviceNames()...); ok {
			a.logger().Info("sound card confirmed", "card", card.ID, "index", card.Index, "attempt", attempt)
			return card, attempt, nil
		}
		if attempt < attempts {
			if err := a.sleep(ctx, a.Interval); err != nil {
				return alsa.Card{}, attempt, err
			}
		}
	}
	return alsa.Card{}, attempts, errcode.New(errcode.DeviceNotEnumerated, "confirm sound card",
		fmt.Sprintf("%s not listed after %d attempts", spec.DeviceName, attempts), lastErr)
}

func (a *Activator) sleep(ctx context.Context, d time.Duration) error {
	if a.Sleep != nil {
		return a.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

func (a *Activator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
