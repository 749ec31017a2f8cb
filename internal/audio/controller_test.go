package audio

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/justinbetabox/robot-hat/internal/alsa"
	"github.com/justinbetabox/robot-hat/internal/hat"
	"github.com/justinbetabox/robot-hat/internal/sysexec"
	"github.com/stretchr/testify/require"
)

type fakeMixer struct {
	primeErr  error
	volumeErr map[string]error
	primed    []string
	volumes   map[string]int
}

func (m *fakeMixer) PrimePlayback(context.Context) error {
	m.primed = append(m.primed, "playback")
	return m.primeErr
}

func (m *fakeMixer) PrimeCapture(context.Context) error {
	m.primed = append(m.primed, "capture")
	return m.primeErr
}

func (m *fakeMixer) SetVolume(_ context.Context, _ alsa.Card, control string, percent int) error {
	if err := m.volumeErr[control]; err != nil {
		return err
	}
	if m.volumes == nil {
		m.volumes = map[string]int{}
	}
	m.volumes[control] = percent
	return nil
}

type recorder struct {
	calls [][]string
	fail  map[string]error
}

func (r *recorder) Run(_ context.Context, argv ...string) ([]byte, error) {
	r.calls = append(r.calls, argv)
	for marker, err := range r.fail {
		if strings.Contains(strings.Join(argv, " "), marker) {
			return nil, err
		}
	}
	if strings.Contains(strings.Join(argv, " "), "session-bind") {
		return []byte("default sink robot_hat_speaker\n"), nil
	}
	return nil, nil
}

var (
	card = alsa.Card{Index: 1, ID: "sndrpigooglevoi", Name: "snd_rpi_googlevoicehat_soundcard"}

	withMic    = hat.Detection{Variant: hat.WithMic, Source: hat.SourceDescriptor, Descriptor: &hat.Descriptor{ProductVer: 5}}
	withoutMic = hat.Detection{Variant: hat.WithoutMic, Source: hat.SourceDefault}
)

func newController(mixer Mixer, runner sysexec.Runner) *Controller {
	return &Controller{
		Mixer:        mixer,
		Playback:     80,
		Capture:      70,
		Runner:       runner,
		User:         func() (sysexec.User, error) { return sysexec.User{Name: "pi", UID: 1000}, nil },
		AsUser:       []string{"sudo", "-u", "{user}", "env", "XDG_RUNTIME_DIR={runtime_dir}"},
		SessionCheck: []string{"pulseaudio", "--check"},
		SessionStart: []string{"pulseaudio", "--start"},
		Bind:         []string{"/usr/local/bin/robot-hat-audio"},
	}
}

func TestApplyWithMicSetsBothControlsAndBindsCapture(t *testing.T) {
	mixer := &fakeMixer{}
	runner := &recorder{}
	c := newController(mixer, runner)

	var steps []Step
	warnings := c.Apply(context.Background(), withMic, card, func(step Step, _ string) {
		steps = append(steps, step)
	})

	require.Empty(t, warnings)
	require.Equal(t, []Step{StepSpeaker, StepVolume, StepSink}, steps)
	require.Equal(t, []string{"playback", "capture"}, mixer.primed)
	require.Equal(t, map[string]int{"Speaker": 80, "Mic": 70}, mixer.volumes)
	require.Equal(t, [][]string{
		{"sudo", "-u", "pi", "env", "XDG_RUNTIME_DIR=/run/user/1000", "pulseaudio", "--check"},
		{"sudo", "-u", "pi", "env", "XDG_RUNTIME_DIR=/run/user/1000", "/usr/local/bin/robot-hat-audio", "session-bind", "--capture"},
	}, runner.calls)
}

func TestApplyWithoutMicTouchesPlaybackOnly(t *testing.T) {
	mixer := &fakeMixer{}
	runner := &recorder{}
	c := newController(mixer, runner)

	warnings := c.Apply(context.Background(), withoutMic, card, nil)

	require.Empty(t, warnings)
	require.Equal(t, []string{"playback"}, mixer.primed)
	require.Equal(t, map[string]int{"PCM": 80}, mixer.volumes)
	last := runner.calls[len(runner.calls)-1]
	require.Equal(t, "session-bind", last[len(last)-1])
}

func TestApplyStartsSessionServerWhenNotRunning(t *testing.T) {
	runner := &recorder{fail: map[string]error{"--check": errors.New("exit status 1")}}
	c := newController(&fakeMixer{}, runner)

	warnings := c.Apply(context.Background(), withoutMic, card, nil)

	require.Empty(t, warnings)
	require.Len(t, runner.calls, 3)
	require.Equal(t, "--start", runner.calls[1][len(runner.calls[1])-1])
}

func TestApplyFailuresAreWarningsNotErrors(t *testing.T) {
	mixer := &fakeMixer{
		primeErr:  errors.New("aplay: main:831: audio open error: No such file or directory"),
		volumeErr: map[string]error{"Speaker": errors.New("amixer: Unable to find simple control 'Speaker',0")},
	}
	runner := &recorder{fail: map[string]error{
		"--check": errors.New("exit status 1"),
		"--start": errors.New("pulseaudio: not found"),
	}}
	c := newController(mixer, runner)

	details := map[Step]string{}
	warnings := c.Apply(context.Background(), withMic, card, func(step Step, detail string) {
		details[step] = detail
	})

	require.Len(t, warnings, 4)
	require.Equal(t, "Mic 70%", details[StepVolume])
	require.Equal(t, "skipped", details[StepSink])
	require.Len(t, runner.calls, 2, "bind is not attempted without a session server")
}

func TestApplySkipsSessionForRootOrUnknownUser(t *testing.T) {
	tests := []struct {
		name string
		user func() (sysexec.User, error)
	}{
		{"root", func() (sysexec.User, error) { return sysexec.User{Name: "root", UID: 0}, nil }},
		{"unresolved", func() (sysexec.User, error) { return sysexec.User{}, errors.New("SUDO_USER not set") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &recorder{}
			c := newController(&fakeMixer{}, runner)
			c.User = tc.user

			warnings := c.Apply(context.Background(), withoutMic, card, nil)
			require.Len(t, warnings, 1)
			require.Contains(t, warnings[0], "not bound")
			require.Empty(t, runner.calls)
		})
	}
}

func TestApplyBindFailureIsWarning(t *testing.T) {
	runner := &recorder{fail: map[string]error{"session-bind": errors.New("connect pulse server: refused")}}
	c := newController(&fakeMixer{}, runner)

	warnings := c.Apply(context.Background(), withoutMic, card, nil)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "bind default sink for pi")
}

func TestApplyEnablesSpeakerOnBoardPin(t *testing.T) {
	tests := []struct {
		name     string
		det      hat.Detection
		override int
		wantPin  string
	}{
		{name: "described board", det: withMic, wantPin: "12"},
		{name: "legacy board", det: withoutMic, wantPin: "20"},
		{name: "configured pin", det: withMic, override: 6, wantPin: "6"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &recorder{}
			c := newController(&fakeMixer{}, runner)
			c.GPIO = []string{"pinctrl"}
			c.SpeakerPin = tc.override

			details := map[Step]string{}
			warnings := c.Apply(context.Background(), tc.det, card, func(step Step, detail string) {
				details[step] = detail
			})

			require.Empty(t, warnings)
			require.Equal(t, []string{"pinctrl", "set", tc.wantPin, "op", "dh"}, runner.calls[0])
			require.Equal(t, "speaker amplifier enabled on GPIO "+tc.wantPin, details[StepSpeaker])
		})
	}
}

func TestApplySpeakerEnableFailureIsWarning(t *testing.T) {
	runner := &recorder{fail: map[string]error{"pinctrl": errors.New("exec: \"pinctrl\": executable file not found in $PATH")}}
	c := newController(&fakeMixer{}, runner)
	c.GPIO = []string{"pinctrl"}

	warnings := c.Apply(context.Background(), withoutMic, card, nil)

	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "enable speaker amplifier on GPIO 20")
	last := runner.calls[len(runner.calls)-1]
	require.Equal(t, "session-bind", last[len(last)-1], "later steps still run")
}

func TestApplyRequestsChimeFromSessionBind(t *testing.T) {
	runner := &recorder{}
	c := newController(&fakeMixer{}, runner)
	c.Chime = true

	warnings := c.Apply(context.Background(), withMic, card, nil)

	require.Empty(t, warnings)
	last := runner.calls[len(runner.calls)-1]
	require.Equal(t, []string{"session-bind", "--capture", "--chime"}, last[len(last)-3:])
}
