// Package routing builds and serializes the ALSA routing graph for the Hat.
package routing

import (
	"fmt"

	"github.com/justinbetabox/robot-hat/internal/alsa"
	"github.com/justinbetabox/robot-hat/internal/hat"
)

// Kind is the ALSA PCM plugin type of a node.
type Kind string

const (
	KindHW      Kind = "hw"
	KindDMix    Kind = "dmix"
	KindDSnoop  Kind = "dsnoop"
	KindSoftvol Kind = "softvol"
	KindPlug    Kind = "plug"
	KindAsym    Kind = "asym"
)

// Direction is a stream direction a node may be the default for.
type Direction string

const (
	Playback Direction = "playback"
	Capture  Direction = "capture"
)

// DefaultName is the node ALSA uses when an application names no device.
const DefaultName = "!default"

// Node is one named PCM in the graph.
type Node struct {
	Name string
	Kind Kind

	// hw
	Device int

	// dmix, softvol, plug
	Slave string

	// softvol
	Control string
	MinDB   float64
	MaxDB   float64

	// asym
	PlaybackPCM string
	CapturePCM  string

	DefaultFor []Direction
}

// IsDefaultFor reports whether the node is the default for dir.
func (n Node) IsDefaultFor(dir Direction) bool {
	for _, d := range n.DefaultFor {
		if d == dir {
			return true
		}
	}
	return false
}

// Graph is the full routing configuration for one variant on one card.
type Graph struct {
	Variant hat.Variant
	Card    alsa.Card
	Nodes   []Node
}

// Controls are the softvol control names a variant exposes. Capture is empty without a mic.
type Controls struct {
	Playback string
	Capture  string
}

// ControlsFor returns the mixer control names created by the graph of a variant.
func ControlsFor(variant hat.Variant) Controls {
	if variant.HasCapture() {
		return Controls{Playback: "Speaker", Capture: "Mic"}
	}
	return Controls{Playback: "PCM"}
}

const (
	playbackMinDB = -51.0
	playbackMaxDB = 0.0
	captureMinDB  = -3.0
	captureMaxDB  = 30.0
)

// Build constructs the graph for variant. Anything other than WithMic yields the playback-only shape.
func Build(variant hat.Variant, card alsa.Card) Graph {
	controls := ControlsFor(variant)
	if !variant.HasCapture() {
		return Graph{
			Variant: hat.WithoutMic,
			Card:    card,
			Nodes: []Node{
				{Name: "hat_hw", Kind: KindHW, Device: 0},
				{Name: "hat_dmix", Kind: KindDMix, Slave: "hat_hw"},
				{Name: "hat_softvol", Kind: KindSoftvol, Slave: "hat_dmix", Control: controls.Playback, MinDB: playbackMinDB, MaxDB: playbackMaxDB},
				{Name: DefaultName, Kind: KindPlug, Slave: "hat_softvol", DefaultFor: []Direction{Playback}},
			},
		}
	}

	return Graph{
		Variant: hat.WithMic,
		Card:    card,
		Nodes: []Node{
			{Name: "hat_playback_hw", Kind: KindHW, Device: 0},
			{Name: "hat_dmix", Kind: KindDMix, Slave: "hat_playback_hw"},
			{Name: "hat_speaker", Kind: KindSoftvol, Slave: "hat_dmix", Control: controls.Playback, MinDB: playbackMinDB, MaxDB: playbackMaxDB},
			{Name: "hat_playback", Kind: KindPlug, Slave: "hat_speaker"},
			{Name: "hat_capture_hw", Kind: KindHW, Device: 0},
			{Name: "hat_mic", Kind: KindSoftvol, Slave: "hat_capture_hw", Control: controls.Capture, MinDB: captureMinDB, MaxDB: captureMaxDB},
			{Name: "hat_capture", Kind: KindPlug, Slave: "hat_mic"},
			{Name: DefaultName, Kind: KindAsym, PlaybackPCM: "hat_playback", CapturePCM: "hat_capture", DefaultFor: []Direction{Playback, Capture}},
		},
	}
}

// Node looks a node up by name.
func (g Graph) Node(name string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Defaults returns the nodes marked default for dir.
func (g Graph) Defaults(dir Direction) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.IsDefaultFor(dir) {
			out = append(out, n)
		}
	}
	return out
}

// HasCapture reports whether any node carries a capture path.
func (g Graph) HasCapture() bool {
	for _, n := range g.Nodes {
		if n.CapturePCM != "" || n.IsDefaultFor(Capture) {
			return true
		}
	}
	return false
}

// Validate checks references resolve, names are unique, and the default counts match the variant.
func (g Graph) Validate() error {
	if !g.Card.Valid() {
		return fmt.Errorf("routing graph has no card reference")
	}
	names := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := names[n.Name]; dup {
			return fmt.Errorf("duplicate node %q", n.Name)
		}
		names[n.Name] = struct{}{}
	}

	for _, n := range g.Nodes {
		var refs []string
		switch n.Kind {
		case KindHW:
		case KindDMix, KindDSnoop, KindPlug:
			refs = []string{n.Slave}
		case KindSoftvol:
			if n.Control == "" {
				return fmt.Errorf("softvol node %q has no control name", n.Name)
			}
			if n.MinDB >= n.MaxDB {
				return fmt.Errorf("softvol node %q has empty range %.1f..%.1f dB", n.Name, n.MinDB, n.MaxDB)
			}
			refs = []string{n.Slave}
		case KindAsym:
			refs = []string{n.PlaybackPCM}
			if n.CapturePCM != "" {
				refs = append(refs, n.CapturePCM)
			}
		default:
			return fmt.Errorf("node %q has unknown kind %q", n.Name, n.Kind)
		}
		for _, ref := range refs {
			if ref == "" {
				return fmt.Errorf("node %q is missing its slave", n.Name)
			}
			if _, ok := names[ref]; !ok {
				return fmt.Errorf("node %q references unknown node %q", n.Name, ref)
			}
		}
	}

	if got := len(g.Defaults(Playback)); got != 1 {
		return fmt.Errorf("want exactly one playback default, got %d", got)
	}
	wantCapture := 0
	if g.Variant.HasCapture() {
		wantCapture = 1
	}
	if got := len(g.Defaults(Capture)); got != wantCapture {
		return fmt.Errorf("want %d capture default, got %d", wantCapture, got)
	}
	return nil
}
