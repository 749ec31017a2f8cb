package routing

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	dmixIPCKey     = 1024
	dmixPeriodSize = 1024
	dmixBufferSize = 8192
	dmixRate       = 44100
)

// Render serializes the graph as an asound.conf document. Output depends only on the graph.
func (g Graph) Render() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Generated by robot-hat-audio for the %s Hat on card %s.\n", g.Variant, g.Card.Ref())
	b.WriteString("# Rewritten on every setup run; the previous copy is kept as asound.conf.old.\n")

	card := quote(g.Card.Ref())
	for _, n := range g.Nodes {
		b.WriteString("\n")
		fmt.Fprintf(&b, "pcm.%s {\n", n.Name)
		fmt.Fprintf(&b, "    type %s\n", n.Kind)
		switch n.Kind {
		case KindHW:
			fmt.Fprintf(&b, "    card %s\n", card)
			fmt.Fprintf(&b, "    device %d\n", n.Device)
		case KindDMix, KindDSnoop:
			fmt.Fprintf(&b, "    ipc_key %d\n", dmixIPCKey)
			b.WriteString("    ipc_perm 0666\n")
			b.WriteString("    slave {\n")
			fmt.Fprintf(&b, "        pcm %s\n", quote(n.Slave))
			b.WriteString("        period_time 0\n")
			fmt.Fprintf(&b, "        period_size %d\n", dmixPeriodSize)
			fmt.Fprintf(&b, "        buffer_size %d\n", dmixBufferSize)
			fmt.Fprintf(&b, "        rate %d\n", dmixRate)
			b.WriteString("    }\n")
		case KindSoftvol:
			fmt.Fprintf(&b, "    slave.pcm %s\n", quote(n.Slave))
			b.WriteString("    control {\n")
			fmt.Fprintf(&b, "        name %s\n", quote(n.Control))
			fmt.Fprintf(&b, "        card %s\n", card)
			b.WriteString("    }\n")
			fmt.Fprintf(&b, "    min_dB %s\n", decibels(n.MinDB))
			fmt.Fprintf(&b, "    max_dB %s\n", decibels(n.MaxDB))
		case KindPlug:
			fmt.Fprintf(&b, "    slave.pcm %s\n", quote(n.Slave))
		case KindAsym:
			fmt.Fprintf(&b, "    playback.pcm %s\n", quote(n.PlaybackPCM))
			if n.CapturePCM != "" {
				fmt.Fprintf(&b, "    capture.pcm %s\n", quote(n.CapturePCM))
			}
		}
		b.WriteString("}\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "ctl.%s {\n", DefaultName)
	b.WriteString("    type hw\n")
	fmt.Fprintf(&b, "    card %s\n", card)
	b.WriteString("}\n")
	return []byte(b.String())
}

func quote(s string) string {
	return strconv.Quote(s)
}

func decibels(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
