// Package errcode defines the stable failure taxonomy of the audio setup pipeline.
package errcode

import "errors"

// Code is a stable failure identifier. It is a string newtype and implements error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	PermissionError     Code = "permission_error"
	OverlayNotStaged    Code = "overlay_not_staged"
	ConfigWriteError    Code = "config_write_error"
	OverlayLoadError    Code = "overlay_load_error"
	DeviceNotEnumerated Code = "device_not_enumerated"

	Unknown Code = "error"
)

// E carries a Code plus operation context and an optional cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	msg := string(e.C)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.X) match an *E carrying X.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// New builds an *E.
func New(code Code, op string, msg string, cause error) *E {
	return &E{C: code, Op: op, Msg: msg, Err: cause}
}

// Of extracts a Code from an error chain, defaulting to Unknown. Nil yields "".
func Of(err error) Code {
	if err == nil {
		return ""
	}
	var e *E
	if errors.As(err, &e) {
		return e.C
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Unknown
}

// Category groups codes into the three operator-facing failure classes.
func Category(code Code) string {
	switch code {
	case PermissionError:
		return "permission error"
	case OverlayLoadError, DeviceNotEnumerated:
		return "needs reboot"
	case OverlayNotStaged, ConfigWriteError:
		return "configuration defect"
	default:
		return "unexpected error"
	}
}

// Hint returns the remediation shown to the operator for a code.
func Hint(code Code) string {
	switch code {
	case PermissionError:
		return "re-run with root privileges: sudo robot-hat-audio setup"
	case OverlayNotStaged:
		return "the overlay binary is missing from the bundled overlay set; reinstall the robot-hat package"
	case ConfigWriteError:
		return "check that /boot/firmware and /etc are writable and not full, then re-run"
	case OverlayLoadError:
		return "the overlay is persisted for the next boot; reboot to activate the sound card"
	case DeviceNotEnumerated:
		return "the boot configuration is in place; reboot and re-run sudo robot-hat-audio setup"
	default:
		return "see the log file for details"
	}
}

// ExitCode maps an error to a process exit status (sysexits-style).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Of(err) {
	case PermissionError:
		return 77
	case DeviceNotEnumerated, OverlayLoadError:
		return 75
	case OverlayNotStaged, ConfigWriteError:
		return 78
	default:
		return 1
	}
}
