// Package pipeline sequences detection, overlay activation, routing, and session binding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/justinbetabox/robot-hat/internal/alsa"
	"github.com/justinbetabox/robot-hat/internal/audio"
	"github.com/justinbetabox/robot-hat/internal/errcode"
	"github.com/justinbetabox/robot-hat/internal/fsm"
	"github.com/justinbetabox/robot-hat/internal/hat"
	"github.com/justinbetabox/robot-hat/internal/overlay"
	"github.com/justinbetabox/robot-hat/internal/privilege"
	"github.com/justinbetabox/robot-hat/internal/routing"
	"github.com/justinbetabox/robot-hat/internal/state"
)

// Result is the complete outcome of one Run.
type Result struct {
	State       fsm.State
	Variant     hat.Variant
	Detection   hat.Detection
	Spec        overlay.Spec
	Device      alsa.Card
	NeedsReboot bool
	Warnings    []string
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Identifier classifies the attached Hat.
type Identifier interface {
	Identify(ctx context.Context) (hat.Detection, error)
}

// Activator brings up the overlay for a spec.
type Activator interface {
	Activate(ctx context.Context, spec overlay.Spec, observe overlay.Observer) (overlay.Activation, error)
}

// RoutingWriter persists the routing graph.
type RoutingWriter interface {
	Write(g routing.Graph) (bool, error)
}

// Controller enables the speaker, applies volumes, and binds session defaults. It never fails.
type Controller interface {
	Apply(ctx context.Context, det hat.Detection, card alsa.Card, observe audio.Observer) []string
}

// StateStore records the outcome for `status`.
type StateStore interface {
	Save(rec state.Record) error
}

// Reporter is the pipeline-facing subset of progress output.
type Reporter interface {
	Stage(state fsm.State, detail string)
	Info(detail string)
	Warn(detail string)
	Fail(state fsm.State, err error)
}

type noopReporter struct{}

func (noopReporter) Stage(fsm.State, string) {}
func (noopReporter) Info(string)             {}
func (noopReporter) Warn(string)             {}
func (noopReporter) Fail(fsm.State, error)   {}

// Deps are the collaborators a Pipeline drives. Store and Reporter are optional.
type Deps struct {
	Identifier Identifier
	Activator  Activator
	Routing    RoutingWriter
	Controller Controller
	Store      StateStore
	Reporter   Reporter
	Logger     *slog.Logger

	EUID func() int
	Now  func() time.Time
}

// Options tune one run.
type Options struct {
	// Variant skips detection when set to WithMic or WithoutMic.
	Variant hat.Variant
}

// Pipeline runs the setup sequence once per Run call.
type Pipeline struct {
	deps Deps
	opts Options

	mu    sync.Mutex
	state fsm.State
}

// New constructs a pipeline with safe fallbacks for optional collaborators.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Reporter == nil {
		deps.Reporter = noopReporter{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.EUID == nil {
		deps.EUID = privilege.EUID
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{deps: deps, opts: opts, state: fsm.StateStart}
}

// State returns the current FSM state snapshot.
func (p *Pipeline) State() fsm.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) transition(event fsm.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := fsm.Transition(p.state, event)
	if err != nil {
		return err
	}
	p.state = next
	return nil
}

// advance moves one step forward and reports the new state.
func (p *Pipeline) advance(event fsm.Event, detail string) error {
	if err := p.transition(event); err != nil {
		return err
	}
	current := p.State()
	p.deps.Logger.Info("pipeline stage", "stage", string(event), "state", string(current), "detail", detail)
	p.deps.Reporter.Stage(current, detail)
	return nil
}

// Run executes the whole pipeline. Privilege is a precondition: without it the state stays start.
func (p *Pipeline) Run(ctx context.Context) Result {
	result := Result{State: p.State(), StartedAt: p.deps.Now()}

	if err := privilege.Require(p.deps.EUID(), "setup"); err != nil {
		p.deps.Logger.Error("privilege check failed", "code", string(errcode.Of(err)), "error", err.Error())
		p.deps.Reporter.Fail(p.State(), err)
		result.Err = err
		result.FinishedAt = p.deps.Now()
		return result
	}
	if p.State() != fsm.StateStart {
		result.Err = fmt.Errorf("pipeline already ran (state %s)", p.State())
		result.FinishedAt = p.deps.Now()
		return result
	}

	p.run(ctx, &result)

	result.State = p.State()
	result.FinishedAt = p.deps.Now()
	p.save(&result)
	return result
}

func (p *Pipeline) run(ctx context.Context, result *Result) {
	det, err := p.detect(ctx)
	if err != nil {
		p.fail(result, err)
		return
	}
	result.Detection = det
	result.Variant = det.Variant
	for _, line := range det.Lines {
		p.deps.Reporter.Info(line)
	}
	if err := p.advance(fsm.EventDetect, fmt.Sprintf("%s (source: %s)", det.Variant, det.Source)); err != nil {
		p.fail(result, err)
		return
	}

	spec, err := overlay.Select(det.Variant)
	if err != nil {
		p.fail(result, err)
		return
	}
	result.Spec = spec

	var stepErr error
	act, err := p.deps.Activator.Activate(ctx, spec, func(step overlay.Step, detail string) {
		if stepErr != nil {
			return
		}
		switch step {
		case overlay.StepPersisted:
			stepErr = p.advance(fsm.EventPersist, detail)
		case overlay.StepLoaded:
			stepErr = p.advance(fsm.EventLoad, detail)
		case overlay.StepConfirmed:
			stepErr = p.advance(fsm.EventConfirm, detail)
		default:
			p.deps.Reporter.Info(detail)
		}
	})
	if err == nil {
		err = stepErr
	}
	if err != nil {
		p.fail(result, err)
		return
	}
	result.Device = act.Device
	switch {
	case act.Deferred:
		result.NeedsReboot = true
		p.warn(result, fmt.Sprintf("%s: %s", act.LoadErr, errcode.Hint(errcode.OverlayLoadError)))
	case act.LoadErr != nil:
		p.warn(result, fmt.Sprintf("%s; %s is enumerated anyway", act.LoadErr, act.Device.Ref()))
	}

	graph := routing.Build(det.Variant, act.Device)
	if _, err := p.deps.Routing.Write(graph); err != nil {
		p.fail(result, err)
		return
	}
	if err := p.advance(fsm.EventRoute, fmt.Sprintf("%d nodes on card %s", len(graph.Nodes), act.Device.Ref())); err != nil {
		p.fail(result, err)
		return
	}

	if act.Deferred {
		p.warn(result, "sound card is not enumerated yet; volumes are applied on the next setup run after reboot")
		if err := p.advance(fsm.EventSetVolume, "skipped"); err != nil {
			p.fail(result, err)
			return
		}
		p.warn(result, "sound card is not enumerated yet; default sink is bound on the next setup run after reboot")
		if err := p.advance(fsm.EventBindSink, "skipped"); err != nil {
			p.fail(result, err)
			return
		}
	} else if err := p.control(ctx, result, act.Device); err != nil {
		p.fail(result, err)
		return
	}

	detail := "audio configured"
	if result.NeedsReboot {
		detail = "audio configured; reboot required"
	}
	if err := p.advance(fsm.EventFinish, detail); err != nil {
		p.fail(result, err)
	}
}

func (p *Pipeline) detect(ctx context.Context) (hat.Detection, error) {
	switch p.opts.Variant {
	case hat.WithMic, hat.WithoutMic:
		return hat.Detection{
			Variant: p.opts.Variant,
			Source:  hat.SourceOverride,
			Lines:   []string{"variant forced to " + string(p.opts.Variant)},
		}, nil
	}
	det, err := p.deps.Identifier.Identify(ctx)
	if err != nil {
		return det, err
	}
	if det.Variant != hat.WithMic && det.Variant != hat.WithoutMic {
		return det, fmt.Errorf("identifier returned unusable variant %q", det.Variant)
	}
	return det, nil
}

func (p *Pipeline) control(ctx context.Context, result *Result, card alsa.Card) error {
	var stepErr error
	warnings := p.deps.Controller.Apply(ctx, result.Detection, card, func(step audio.Step, detail string) {
		if stepErr != nil {
			return
		}
		switch step {
		case audio.StepSpeaker:
			p.deps.Logger.Info("pipeline step", "step", string(step), "detail", detail)
			p.deps.Reporter.Info(detail)
		case audio.StepVolume:
			stepErr = p.advance(fsm.EventSetVolume, detail)
		case audio.StepSink:
			stepErr = p.advance(fsm.EventBindSink, detail)
		}
	})
	for _, w := range warnings {
		p.warn(result, w)
	}
	if stepErr != nil {
		return stepErr
	}
	// Controllers report both steps; tolerate one that does not.
	if p.State() == fsm.StateRoutingWritten {
		if err := p.advance(fsm.EventSetVolume, ""); err != nil {
			return err
		}
	}
	if p.State() == fsm.StateVolumeSet {
		return p.advance(fsm.EventBindSink, "")
	}
	return nil
}

func (p *Pipeline) warn(result *Result, msg string) {
	result.Warnings = append(result.Warnings, msg)
	p.deps.Logger.Warn("pipeline warning", "state", string(p.State()), "warning", msg)
	p.deps.Reporter.Warn(msg)
}

func (p *Pipeline) fail(result *Result, err error) {
	failedAt := p.State()
	code := errcode.Of(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = errcode.Unknown
	}
	if code == errcode.DeviceNotEnumerated || code == errcode.OverlayLoadError {
		result.NeedsReboot = true
	}
	result.Err = err
	p.deps.Logger.Error("pipeline failed", "state", string(failedAt), "code", string(code), "error", err.Error())
	if terr := p.transition(fsm.EventFail); terr != nil {
		p.deps.Logger.Error("fail transition rejected", "error", terr.Error())
	}
	p.deps.Reporter.Fail(failedAt, err)
}

func (p *Pipeline) save(result *Result) {
	if p.deps.Store == nil {
		return
	}
	rec := state.Record{
		Variant:     string(result.Variant),
		Source:      string(result.Detection.Source),
		Overlay:     result.Spec.Overlay,
		Card:        result.Device.Ref(),
		State:       string(result.State),
		NeedsReboot: result.NeedsReboot,
		Warnings:    result.Warnings,
		UpdatedAt:   result.FinishedAt.UTC(),
	}
	if !result.Device.Valid() {
		rec.Card = ""
	}
	if result.Err != nil {
		rec.Reason = result.Err.Error()
	}
	if err := p.deps.Store.Save(rec); err != nil {
		p.deps.Logger.Warn("state record not saved", "error", err.Error())
	}
}
