package alsa

import (
	"context"
	"fmt"

	"github.com/justinbetabox/robot-hat/internal/sysexec"
)

// Mixer sets softvol controls and opens PCMs so that softvol controls get created.
type Mixer struct {
	Runner  sysexec.Runner
	AMixer  []string
	APlay   []string
	ARecord []string
}

// SetVolume runs `amixer -c <card> -M sset <control> <pct>%`.
func (m Mixer) SetVolume(ctx context.Context, card Card, control string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("volume %d%% out of range", percent)
	}
	argv := sysexec.With(m.AMixer, "-c", card.Ref(), "-M", "sset", control, fmt.Sprintf("%d%%", percent))
	if _, err := m.Runner.Run(ctx, argv...); err != nil {
		return fmt.Errorf("set %s volume: %w", control, err)
	}
	return nil
}

// PrimePlayback opens the default PCM for one second of silence.
// A softvol control only appears in the mixer after its PCM was opened once.
func (m Mixer) PrimePlayback(ctx context.Context) error {
	argv := sysexec.With(m.APlay, "-q", "-D", "default", "-d", "1", "-f", "cd", "/dev/zero")
	if _, err := m.Runner.Run(ctx, argv...); err != nil {
		return fmt.Errorf("prime playback path: %w", err)
	}
	return nil
}

// PrimeCapture records one second from the default PCM into /dev/null.
func (m Mixer) PrimeCapture(ctx context.Context) error {
	argv := sysexec.With(m.ARecord, "-q", "-D", "default", "-d", "1", "-f", "cd", "/dev/null")
	if _, err := m.Runner.Run(ctx, argv...); err != nil {
		return fmt.Errorf("prime capture path: %w", err)
	}
	return nil
}
