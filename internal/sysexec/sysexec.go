// Package sysexec runs the external system utilities the audio setup depends on.
package sysexec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one argv and returns its combined output.
type Runner interface {
	Run(ctx context.Context, argv ...string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, argv ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, argv ...string) ([]byte, error) {
	return f(ctx, argv...)
}

// Exec is the os/exec backed Runner.
type Exec struct{}

func (Exec) Run(ctx context.Context, argv ...string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("command argv cannot be empty")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return out, fmt.Errorf("%s %v failed: %w", argv[0], argv[1:], err)
		}
		return out, fmt.Errorf("%s %v failed: %w (%s)", argv[0], argv[1:], err, trimmed)
	}
	return out, nil
}

// User identifies the human session an audio server belongs to.
type User struct {
	Name string
	UID  int
}

// RuntimeDir is the XDG runtime directory of the session.
func (u User) RuntimeDir() string {
	return fmt.Sprintf("/run/user/%d", u.UID)
}

// AsUser prefixes argv with a wrapper template that drops to the session user.
// The template tokens may contain {user}, {uid}, and {runtime_dir}.
func AsUser(wrapper []string, user User, argv ...string) []string {
	replacer := strings.NewReplacer(
		"{user}", user.Name,
		"{uid}", fmt.Sprint(user.UID),
		"{runtime_dir}", user.RuntimeDir(),
	)
	out := make([]string, 0, len(wrapper)+len(argv))
	for _, token := range wrapper {
		out = append(out, replacer.Replace(token))
	}
	return append(out, argv...)
}

// With appends extra arguments to a configured base argv without aliasing it.
func With(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
