package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/justinbetabox/robot-hat/internal/audio"
	"github.com/justinbetabox/robot-hat/internal/config"
	"github.com/justinbetabox/robot-hat/internal/hat"
	"github.com/justinbetabox/robot-hat/internal/state"
	"github.com/justinbetabox/robot-hat/internal/sysexec"
	"github.com/stretchr/testify/require"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "robot-hat-audio")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteInvalidConfigIsConfigDefect(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	require.NoError(t, os.WriteFile(env.configPath, []byte("speakers: 2\n"), 0o600))

	h := newHarness(t, env, 0)
	exitCode := h.run("status")
	require.Equal(t, 78, exitCode)
	require.Contains(t, h.stderr.String(), "speakers")
}

func TestStatusWithoutRecord(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	h := newHarness(t, env, 1000)

	require.Equal(t, 0, h.run("status"))
	require.Equal(t, "no setup run recorded\n", h.stdout.String())
}

func TestStatusPrintsRecord(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	require.NoError(t, state.Store{Path: env.cfg.Paths.StateFile}.Save(state.Record{
		Variant:     "with-mic",
		Source:      "descriptor",
		Overlay:     "googlevoicehat-soundcard",
		Card:        "sndrpigooglevoi",
		State:       "complete",
		NeedsReboot: true,
		Warnings:    []string{"volume skipped"},
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}))

	h := newHarness(t, env, 1000)
	require.Equal(t, 0, h.run("status"))

	out := h.stdout.String()
	require.Contains(t, out, "state: complete")
	require.Contains(t, out, "variant: with-mic (source: descriptor)")
	require.Contains(t, out, "card: sndrpigooglevoi")
	require.Contains(t, out, "needs reboot: true")
	require.Contains(t, out, "warning: volume skipped")
	require.Contains(t, out, "updated: 2026-03-01T12:00:00Z")
}

func TestDetectReportsDescriptorVariant(t *testing.T) {
	env := setupRunnerEnv(t, 5)
	h := newHarness(t, env, 1000)

	require.Equal(t, 0, h.run("detect"))
	require.Contains(t, h.stdout.String(), "variant: with-mic (source: descriptor)")
	require.Contains(t, h.stdout.String(), "overlay: googlevoicehat-soundcard")
	require.Empty(t, h.exec.calls())
}

func TestDetectHonorsVariantOverride(t *testing.T) {
	env := setupRunnerEnv(t, 5)
	h := newHarness(t, env, 1000)

	require.Equal(t, 0, h.run("--variant", "without-mic", "detect"))
	require.Equal(t, "variant: without-mic (source: override)\n", h.stdout.String())
}

func TestOverlaysMarksHatAndActiveDirective(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	for _, name := range []string{"hifiberry-dac", "googlevoicehat-soundcard", "i2c-gpio"} {
		require.NoError(t, os.WriteFile(filepath.Join(env.cfg.Paths.OverlayDir, name+".dtbo"), []byte("dtb"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(env.cfg.Paths.OverlayDir, "README"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(env.cfg.Paths.BootConfig, []byte("dtoverlay=googlevoicehat-soundcard\n"), 0o644))

	h := newHarness(t, env, 1000)
	require.Equal(t, 0, h.run("overlays"))

	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "* googlevoicehat-soundcard"))
	require.True(t, strings.HasSuffix(lines[0], "hat"))
	require.True(t, strings.HasPrefix(lines[1], "  hifiberry-dac"))
	require.Equal(t, "  i2c-gpio", lines[2])
}

func TestUninstallRequiresRoot(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	h := newHarness(t, env, 1000)

	require.Equal(t, 77, h.run("uninstall"))
	require.Contains(t, h.stderr.String(), "sudo robot-hat-audio uninstall")
}

func TestUninstallRemovesEveryArtifact(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	require.NoError(t, os.WriteFile(env.cfg.Paths.BootConfig, []byte("dtparam=audio=off\ndtoverlay=hifiberry-dac\n"), 0o644))
	require.NoError(t, os.WriteFile(env.cfg.Paths.AsoundConf, []byte("pcm.!default {}\n"), 0o644))
	require.NoError(t, state.Store{Path: env.cfg.Paths.StateFile}.Save(state.Record{State: "complete"}))

	h := newHarness(t, env, 0)
	require.Equal(t, 0, h.run("uninstall"))

	boot, err := os.ReadFile(env.cfg.Paths.BootConfig)
	require.NoError(t, err)
	require.Equal(t, "dtparam=audio=off\n", string(boot))
	require.NoFileExists(t, env.cfg.Paths.AsoundConf)
	require.FileExists(t, env.cfg.Paths.AsoundConf+".old")
	require.NoFileExists(t, env.cfg.Paths.StateFile)
	require.Contains(t, h.stdout.String(), "reboot to unload the overlay")

	h = newHarness(t, env, 0)
	require.Equal(t, 0, h.run("uninstall"))
	require.Contains(t, h.stdout.String(), "no hat overlay in")
	require.Contains(t, h.stdout.String(), "no routing file at")
}

func TestSetupRequiresRoot(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	h := newHarness(t, env, 1000)

	require.Equal(t, 77, h.run("setup"))
	require.Contains(t, h.stdout.String(), "[FAIL]")
	require.Empty(t, h.exec.calls())
	require.NoFileExists(t, env.cfg.Paths.StateFile)
}

func TestSetupEndToEndWithoutMic(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	h := newHarness(t, env, 0)

	require.Equal(t, 0, h.run("setup"), h.stdout.String()+h.stderr.String())

	boot, err := os.ReadFile(env.cfg.Paths.BootConfig)
	require.NoError(t, err)
	require.Equal(t, "dtparam=audio=on\ndtoverlay=hifiberry-dac\n", string(boot))
	require.FileExists(t, filepath.Join(env.cfg.Paths.OverlayDir, "hifiberry-dac.dtbo"))

	asound, err := os.ReadFile(env.cfg.Paths.AsoundConf)
	require.NoError(t, err)
	require.Contains(t, string(asound), "sndrpihifiberry")

	rec, found, err := state.Store{Path: env.cfg.Paths.StateFile}.Load()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "complete", rec.State)
	require.Equal(t, "without-mic", rec.Variant)
	require.False(t, rec.NeedsReboot)

	var sawLoad, sawSpeaker, sawVolume, sawBind bool
	for _, argv := range h.exec.calls() {
		joined := strings.Join(argv, " ")
		switch {
		case joined == "dtoverlay hifiberry-dac":
			sawLoad = true
		case joined == "pinctrl set 12 op dh":
			sawSpeaker = true
		case strings.HasPrefix(joined, "amixer -c sndrpihifiberry -M sset PCM 80%"):
			sawVolume = true
		case strings.Contains(joined, "session-bind"):
			sawBind = true
			require.Equal(t, []string{"sudo", "-u", "pi", "env", "XDG_RUNTIME_DIR=/run/user/1000", "/usr/bin/robot-hat-audio", "--config", env.configPath, "session-bind", "--chime"}, argv)
		}
	}
	require.True(t, sawLoad)
	require.True(t, sawSpeaker, "the amplifier is enabled on the descriptor board's pin")
	require.True(t, sawVolume)
	require.True(t, sawBind)

	out := h.stdout.String()
	require.Contains(t, out, "[ OK ]")
	require.NotContains(t, out, "[FAIL]")
}

func TestSetupIsIdempotent(t *testing.T) {
	env := setupRunnerEnv(t, 5)
	h := newHarness(t, env, 0)
	require.Equal(t, 0, h.run("setup"))

	bootFirst, err := os.ReadFile(env.cfg.Paths.BootConfig)
	require.NoError(t, err)
	asoundFirst, err := os.ReadFile(env.cfg.Paths.AsoundConf)
	require.NoError(t, err)

	h = newHarness(t, env, 0)
	require.Equal(t, 0, h.run("setup"))

	bootSecond, err := os.ReadFile(env.cfg.Paths.BootConfig)
	require.NoError(t, err)
	asoundSecond, err := os.ReadFile(env.cfg.Paths.AsoundConf)
	require.NoError(t, err)
	require.Equal(t, bootFirst, bootSecond)
	require.Equal(t, asoundFirst, asoundSecond)
	require.Contains(t, string(bootSecond), "dtoverlay=googlevoicehat-soundcard")
}

func TestSetupNeverEnumeratedExitsNeedsReboot(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	h := newHarness(t, env, 0)
	h.exec.cards = ""

	require.Equal(t, 75, h.run("setup"))
	require.Contains(t, h.stdout.String(), "needs reboot")

	boot, err := os.ReadFile(env.cfg.Paths.BootConfig)
	require.NoError(t, err)
	require.Contains(t, string(boot), "dtoverlay=hifiberry-dac")

	rec, found, err := state.Store{Path: env.cfg.Paths.StateFile}.Load()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "failed", rec.State)
	require.True(t, rec.NeedsReboot)
}

func TestSessionBindPrintsSummary(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	h := newHarness(t, env, 1000)

	var gotCapture bool
	h.runner.Bind = func(_ context.Context, capture bool) (audio.Binding, error) {
		gotCapture = capture
		return audio.Binding{Sink: audio.SinkName, Source: audio.SourceName, LoadedSink: true}, nil
	}

	require.Equal(t, 0, h.run("session-bind", "--capture"))
	require.True(t, gotCapture)
	require.Contains(t, h.stdout.String(), audio.SinkName)
	require.Empty(t, h.stderr.String())
}

func TestSessionBindPlaysChimeWhenAsked(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	h := newHarness(t, env, 1000)
	h.runner.Bind = func(context.Context, bool) (audio.Binding, error) {
		return audio.Binding{Sink: audio.SinkName}, nil
	}
	chimes := 0
	h.runner.Chime = func(context.Context) error {
		chimes++
		return nil
	}

	require.Equal(t, 0, h.run("session-bind"))
	require.Zero(t, chimes)

	require.Equal(t, 0, h.run("session-bind", "--chime"))
	require.Equal(t, 1, chimes)
}

func TestSessionBindChimeFailureIsWarning(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	h := newHarness(t, env, 1000)
	h.runner.Bind = func(context.Context, bool) (audio.Binding, error) {
		return audio.Binding{Sink: audio.SinkName}, nil
	}
	h.runner.Chime = func(context.Context) error { return errors.New("create pulse playback stream: refused") }

	require.Equal(t, 0, h.run("session-bind", "--chime"))
	require.Contains(t, h.stdout.String(), audio.SinkName)
	require.Contains(t, h.stderr.String(), "warning: chime")
}

func TestSessionBindFailure(t *testing.T) {
	env := setupRunnerEnv(t, 4)
	h := newHarness(t, env, 1000)
	h.runner.Bind = func(context.Context, bool) (audio.Binding, error) {
		return audio.Binding{}, errors.New("connection refused")
	}

	require.Equal(t, 1, h.run("session-bind"))
	require.Contains(t, h.stderr.String(), "connection refused")
}

type runnerEnv struct {
	configPath string
	cfg        config.Config
}

// setupRunnerEnv lays out a fake board: device tree descriptor, bundled overlays, and a boot config.
func setupRunnerEnv(t *testing.T, productVer int) runnerEnv {
	t.Helper()
	root := t.TempDir()
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state-home"))

	cfg := config.Default()
	cfg.Paths.BootConfig = filepath.Join(root, "boot", "config.txt")
	cfg.Paths.OverlayDir = filepath.Join(root, "boot", "overlays")
	cfg.Paths.BundledOverlayDir = filepath.Join(root, "bundled")
	cfg.Paths.DeviceTree = filepath.Join(root, "device-tree")
	cfg.Paths.AsoundConf = filepath.Join(root, "etc", "asound.conf")
	cfg.Paths.StateFile = filepath.Join(root, "var", "audio-state.yaml")

	for _, dir := range []string{
		cfg.Paths.OverlayDir,
		cfg.Paths.BundledOverlayDir,
		filepath.Dir(cfg.Paths.AsoundConf),
	} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(cfg.Paths.BootConfig, []byte("dtparam=audio=on\n"), 0o644))
	for _, name := range []string{"hifiberry-dac", "googlevoicehat-soundcard"} {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.BundledOverlayDir, name+".dtbo"), []byte("dtb:"+name), 0o644))
	}

	hatDir := filepath.Join(cfg.Paths.DeviceTree, "hat")
	require.NoError(t, os.MkdirAll(hatDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(hatDir, "uuid"), []byte(config.RobotHatUUID+"\x00"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(hatDir, "product"), []byte("Robot HAT\x00"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(hatDir, "product_ver"), []byte(fmt.Sprintf("0x%04x\x00", productVer)), 0o644))

	configPath := filepath.Join(root, "audio.yaml")
	contents := fmt.Sprintf(`
paths:
  boot_config: %s
  overlay_dir: %s
  bundled_overlay_dir: %s
  device_tree: %s
  asound_conf: %s
  state_file: %s
activate:
  settle_ms: 0
  poll_interval_ms: 0
`, cfg.Paths.BootConfig, cfg.Paths.OverlayDir, cfg.Paths.BundledOverlayDir, cfg.Paths.DeviceTree, cfg.Paths.AsoundConf, cfg.Paths.StateFile)
	require.NoError(t, os.WriteFile(configPath, []byte(contents), 0o600))

	cfg.Activate.SettleMS = 0
	cfg.Activate.PollIntervalMS = 0
	return runnerEnv{configPath: configPath, cfg: cfg}
}

// fakeSystem answers the external tools the setup drives. Loaded overlays become cards.
type fakeSystem struct {
	mu     sync.Mutex
	argvs  [][]string
	loaded []string
	cards  string
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{cards: "auto"}
}

func (f *fakeSystem) Run(_ context.Context, argv ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.argvs = append(f.argvs, append([]string(nil), argv...))

	switch {
	case len(argv) == 2 && argv[0] == "dtoverlay" && argv[1] == "-l":
		var b strings.Builder
		for i, name := range f.loaded {
			fmt.Fprintf(&b, "%d:  %s\n", i, name)
		}
		return []byte(b.String()), nil
	case len(argv) == 2 && argv[0] == "dtoverlay":
		f.loaded = append(f.loaded, argv[1])
		return nil, nil
	case len(argv) == 2 && argv[0] == "aplay" && argv[1] == "-l":
		if f.cards != "auto" {
			return []byte(f.cards), nil
		}
		var b strings.Builder
		for _, name := range f.loaded {
			switch name {
			case "hifiberry-dac":
				b.WriteString("card 1: sndrpihifiberry [snd_rpi_hifiberry_dac], device 0: HifiBerry DAC HiFi pcm5102a-hifi-0 []\n")
			case "googlevoicehat-soundcard":
				b.WriteString("card 1: sndrpigooglevoi [snd_rpi_googlevoicehat_soundcard], device 0: Google voiceHAT SoundCard HiFi []\n")
			}
		}
		return []byte(b.String()), nil
	case argv[0] == "sudo" && strings.Contains(strings.Join(argv, " "), "session-bind"):
		return []byte("default sink robot_hat_speaker"), nil
	default:
		return nil, nil
	}
}

func (f *fakeSystem) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.argvs...)
}

type harness struct {
	t      *testing.T
	env    runnerEnv
	exec   *fakeSystem
	runner Runner
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness(t *testing.T, env runnerEnv, euid int) *harness {
	t.Helper()
	h := &harness{t: t, env: env, exec: newFakeSystem(), stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.runner = Runner{
		Stdout: h.stdout,
		Stderr: h.stderr,
		Exec:   h.exec,
		EUID:   func() int { return euid },
		Getenv: func(key string) string {
			switch key {
			case "SUDO_USER":
				return "pi"
			case "SUDO_UID":
				return "1000"
			}
			return ""
		},
		Sleep:      func(context.Context, time.Duration) error { return nil },
		Executable: func() (string, error) { return "/usr/bin/robot-hat-audio", nil },
		OpenBus:    func(int) hat.BusOpener { return nil },
	}
	return h
}

func (h *harness) run(args ...string) int {
	h.t.Helper()
	return h.runner.Execute(context.Background(), append([]string{"--config", h.env.configPath}, args...))
}

var _ sysexec.Runner = (*fakeSystem)(nil)
