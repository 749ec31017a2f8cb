// Package hat identifies which audio codec variant of the Hat is attached.
package hat

import (
	"fmt"
	"strings"
)

// Variant is the detected codec variant. It drives every downstream decision.
type Variant string

const (
	Unknown    Variant = "unknown"
	WithMic    Variant = "with-mic"
	WithoutMic Variant = "without-mic"
)

// HasCapture reports whether the variant exposes a microphone path.
func (v Variant) HasCapture() bool {
	return v == WithMic
}

// ParseVariant accepts the CLI spellings of a variant.
func ParseVariant(raw string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "with-mic", "withmic", "mic":
		return WithMic, nil
	case "without-mic", "withoutmic", "no-mic", "dac":
		return WithoutMic, nil
	default:
		return Unknown, fmt.Errorf("unknown hat variant %q (want with-mic or without-mic)", raw)
	}
}
