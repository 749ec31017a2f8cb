// Package doctor runs readiness diagnostics for the boot config, overlays, and audio tools.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/justinbetabox/robot-hat/internal/bootconfig"
	"github.com/justinbetabox/robot-hat/internal/config"
	"github.com/justinbetabox/robot-hat/internal/fsutil"
	"github.com/justinbetabox/robot-hat/internal/hat"
	"github.com/justinbetabox/robot-hat/internal/overlay"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment and config checks for a loaded config.
func Run(cfg config.Loaded, euid int) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkRoot(euid))

	cmds := cfg.Config.Commands
	checks = append(checks,
		checkCommand(cmds.DTOverlay.Argv, "dtoverlay"),
		checkCommand(cmds.APlay.Argv, "aplay"),
		checkCommand(cmds.ARecord.Argv, "arecord"),
		checkCommand(cmds.AMixer.Argv, "amixer"),
		checkCommand(cmds.SessionCheck.Argv, "session_check"),
	)
	if len(cmds.RunAsUser.Argv) > 0 {
		checks = append(checks, checkCommand(cmds.RunAsUser.Argv, "run_as_user"))
	}
	if len(cmds.GPIO.Argv) > 0 {
		checks = append(checks, checkCommand(cmds.GPIO.Argv, "gpio"))
	}

	paths := cfg.Config.Paths
	checks = append(checks, checkBootConfig(paths.BootConfig))
	checks = append(checks, checkDir("overlay_dir", paths.OverlayDir))
	for _, spec := range overlay.Known() {
		checks = append(checks, checkOverlay(spec, paths.OverlayDir, paths.BundledOverlayDir))
	}
	checks = append(checks, checkDescriptor(cfg.Config))
	checks = append(checks, checkRouting(paths.AsoundConf))

	return Report{Checks: checks}
}

func checkRoot(euid int) Check {
	if euid == 0 {
		return Check{Name: "root", Pass: true, Message: "running as root"}
	}
	return Check{Name: "root", Pass: false, Message: fmt.Sprintf("euid %d; setup and uninstall need sudo", euid)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkBootConfig(path string) Check {
	lines, err := bootconfig.File{Path: path}.Lines()
	if err != nil {
		return Check{Name: "boot_config", Pass: false, Message: err.Error()}
	}
	active := bootconfig.Active(lines, overlay.KnownNames())
	if len(active) == 0 {
		return Check{Name: "boot_config", Pass: true, Message: fmt.Sprintf("%s readable; no hat overlay configured", path)}
	}
	return Check{Name: "boot_config", Pass: true, Message: fmt.Sprintf("%s readable; active: %s", path, strings.Join(active, ", "))}
}

func checkDir(name, path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is not a directory", path)}
	}
	return Check{Name: name, Pass: true, Message: path}
}

// checkOverlay passes when the overlay is staged or can be staged from the bundled copy.
func checkOverlay(spec overlay.Spec, overlayDir, bundledDir string) Check {
	name := "overlay." + spec.Overlay
	file := spec.Overlay + ".dtbo"
	if staged := filepath.Join(overlayDir, file); fsutil.Exists(staged) {
		return Check{Name: name, Pass: true, Message: "staged at " + staged}
	}
	if bundled := filepath.Join(bundledDir, file); fsutil.Exists(bundled) {
		return Check{Name: name, Pass: true, Message: "bundled at " + bundled}
	}
	return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s missing from %s and %s", file, overlayDir, bundledDir)}
}

// checkDescriptor is informational: a missing descriptor only means detection falls back to the bus scan.
func checkDescriptor(cfg config.Config) Check {
	desc, found, err := hat.DeviceTree{Root: cfg.Paths.DeviceTree}.Find(cfg.Detect.HatUUIDs)
	switch {
	case err != nil:
		return Check{Name: "hat.descriptor", Pass: true, Message: fmt.Sprintf("unreadable (%v); bus scan will be used", err)}
	case !found:
		return Check{Name: "hat.descriptor", Pass: true, Message: "not present; bus scan will be used"}
	default:
		return Check{Name: "hat.descriptor", Pass: true, Message: fmt.Sprintf("%s product_ver=%d at %s", desc.Product, desc.ProductVer, desc.Dir)}
	}
}

func checkRouting(path string) Check {
	if fsutil.Exists(path) {
		return Check{Name: "routing", Pass: true, Message: path}
	}
	return Check{Name: "routing", Pass: false, Message: fmt.Sprintf("%s missing; run setup", path)}
}
