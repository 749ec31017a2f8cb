// Package privilege checks the root precondition and finds the human user behind sudo.
package privilege

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/justinbetabox/robot-hat/internal/errcode"
	"github.com/justinbetabox/robot-hat/internal/sysexec"
	"golang.org/x/sys/unix"
)

// EUID returns the effective user id of the process.
func EUID() int {
	return unix.Geteuid()
}

// Require fails with PermissionError unless euid is 0. command names the invocation to suggest.
func Require(euid int, command string) error {
	if euid == 0 {
		return nil
	}
	return errcode.New(errcode.PermissionError, "check privilege",
		fmt.Sprintf("must run as root (euid %d); use: sudo robot-hat-audio %s", euid, command), nil)
}

// InvokingUser resolves the session user from SUDO_USER/SUDO_UID, falling back to LOGNAME.
// getenv is os.Getenv outside tests.
func InvokingUser(getenv func(string) string) (sysexec.User, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	name := strings.TrimSpace(getenv("SUDO_USER"))
	if name != "" {
		if raw := strings.TrimSpace(getenv("SUDO_UID")); raw != "" {
			uid, err := strconv.Atoi(raw)
			if err != nil {
				return sysexec.User{}, fmt.Errorf("parse SUDO_UID %q: %w", raw, err)
			}
			return sysexec.User{Name: name, UID: uid}, nil
		}
		return lookup(name)
	}

	name = strings.TrimSpace(getenv("LOGNAME"))
	if name == "" {
		return sysexec.User{}, fmt.Errorf("neither SUDO_USER nor LOGNAME is set")
	}
	return lookup(name)
}

func lookup(name string) (sysexec.User, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return sysexec.User{}, fmt.Errorf("look up user %q: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return sysexec.User{}, fmt.Errorf("parse uid %q of %s: %w", u.Uid, name, err)
	}
	return sysexec.User{Name: name, UID: uid}, nil
}
