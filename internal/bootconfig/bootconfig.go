// Package bootconfig edits overlay directives in the firmware boot configuration file.
//
// Only lines of the exact form "dtoverlay=<name>" for the known Hat overlays are
// ever added or removed; every other line keeps its content and position.
package bootconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/justinbetabox/robot-hat/internal/fsutil"
)

// Key is the firmware directive that enables a device-tree overlay.
const Key = "dtoverlay"

// Directive renders the boot config line for an overlay.
func Directive(name string) string {
	return Key + "=" + name
}

// Converge returns lines with exactly one directive for want and none for the other known overlays.
// The kept directive applies to every model: one under a conditional filter section such as
// [pi4] or [cm4] is dropped, and an appended one goes under an [all] section, which is added
// when the file ends inside a conditional section. changed is false when the input already
// satisfied that.
func Converge(lines []string, want string, known []string) (out []string, changed bool) {
	wantLine := Directive(want)
	others := make(map[string]struct{}, len(known))
	for _, name := range known {
		if name != want {
			others[Directive(name)] = struct{}{}
		}
	}

	out = make([]string, 0, len(lines)+2)
	kept := false
	conditional := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if filter, ok := sectionFilter(trimmed); ok {
			conditional = !strings.EqualFold(filter, "all")
		}
		if _, other := others[trimmed]; other {
			changed = true
			continue
		}
		if trimmed == wantLine {
			if kept || conditional {
				changed = true
				continue
			}
			kept = true
		}
		out = append(out, line)
	}

	if !kept {
		if conditional {
			out = append(out, "[all]")
		}
		out = append(out, wantLine)
		changed = true
	}
	return out, changed
}

// sectionFilter returns the filter name of a "[filter]" section header line.
func sectionFilter(trimmed string) (string, bool) {
	if !strings.HasPrefix(trimmed, "[") {
		return "", false
	}
	end := strings.Index(trimmed, "]")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(trimmed[1:end]), true
}

// Strip removes every directive for the given overlays.
func Strip(lines []string, known []string) (out []string, changed bool) {
	drop := make(map[string]struct{}, len(known))
	for _, name := range known {
		drop[Directive(name)] = struct{}{}
	}
	out = make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := drop[strings.TrimSpace(line)]; ok {
			changed = true
			continue
		}
		out = append(out, line)
	}
	return out, changed
}

// Active returns the known overlays that currently have a directive, in file order.
func Active(lines []string, known []string) []string {
	var active []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, name := range known {
			if trimmed == Directive(name) {
				active = append(active, name)
			}
		}
	}
	return active
}

// File is the on-disk boot configuration.
type File struct {
	Path string
}

// Lines reads the file split on newlines. A trailing newline does not produce an empty last line.
func (f File) Lines() ([]string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	return splitLines(data), nil
}

// Ensure converges the file on a single directive for want. It writes nothing when already converged.
func (f File) Ensure(want string, known []string) (bool, error) {
	lines, err := f.Lines()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", f.Path, err)
	}
	out, changed := Converge(lines, want, known)
	if !changed {
		return false, nil
	}
	return true, f.replace(out)
}

// Remove strips every known directive from the file.
func (f File) Remove(known []string) (bool, error) {
	lines, err := f.Lines()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", f.Path, err)
	}
	out, changed := Strip(lines, known)
	if !changed {
		return false, nil
	}
	return true, f.replace(out)
}

// replace keeps a single-generation backup at <path>.old, then swaps the file in via rename.
func (f File) replace(lines []string) error {
	mode, _, err := fsutil.Backup(f.Path, 0o644)
	if err != nil {
		return err
	}
	return fsutil.WriteAtomic(f.Path, joinLines(lines), mode)
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	text := string(bytes.TrimSuffix(data, []byte("\n")))
	return strings.Split(text, "\n")
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}
