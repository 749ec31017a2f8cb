// Package overlay selects, stages, persists, loads, and confirms the Hat's audio overlay.
package overlay

import (
	"fmt"

	"github.com/justinbetabox/robot-hat/internal/hat"
)

// Spec names the overlay for a variant and the sound card it is expected to produce.
type Spec struct {
	Overlay          string
	DeviceName       string
	LegacyDeviceName string
}

// DeviceNames lists the names a matching sound card may carry.
func (s Spec) DeviceNames() []string {
	if s.LegacyDeviceName == "" {
		return []string{s.DeviceName}
	}
	return []string{s.DeviceName, s.LegacyDeviceName}
}

var (
	withoutMic = Spec{
		Overlay:    "hifiberry-dac",
		DeviceName: "sndrpihifiberry",
	}
	withMic = Spec{
		Overlay:          "googlevoicehat-soundcard",
		DeviceName:       "sndrpigooglevoi",
		LegacyDeviceName: "googlevoicehat",
	}
)

// Select maps a detected variant to its overlay spec.
func Select(variant hat.Variant) (Spec, error) {
	switch variant {
	case hat.WithoutMic:
		return withoutMic, nil
	case hat.WithMic:
		return withMic, nil
	default:
		return Spec{}, fmt.Errorf("no overlay for hat variant %q", variant)
	}
}

// Known returns every Hat overlay spec in a fixed order.
func Known() []Spec {
	return []Spec{withoutMic, withMic}
}

// KnownNames returns the overlay names of Known.
func KnownNames() []string {
	specs := Known()
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Overlay)
	}
	return names
}
