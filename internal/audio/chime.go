package audio

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jfreymuth/pulse"
)

const chimeSampleRate = 16000

type tone struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

// chimePCM is a rising two-note cue, played once the Hat sink is the default.
var chimePCM = synthesize([]tone{
	{frequencyHz: 660, duration: 90 * time.Millisecond, volume: 0.2},
	{frequencyHz: 990, duration: 120 * time.Millisecond, volume: 0.2},
})

// PlayChime plays the activation cue on the session's default sink.
func PlayChime(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(chimePCM) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, chimePCM[cursor:])
		cursor += n
		if cursor >= len(chimePCM) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(chimeSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("robot-hat-audio activation chime"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play chime: %w", err)
	}
	return nil
}

func synthesize(parts []tone) []int16 {
	gap := samplesFor(25 * time.Millisecond)
	var pcm []int16
	for i, part := range parts {
		pcm = append(pcm, synthesizeTone(part)...)
		if i < len(parts)-1 {
			pcm = append(pcm, make([]int16, gap)...)
		}
	}
	return pcm
}

func synthesizeTone(t tone) []int16 {
	n := samplesFor(t.duration)
	if n <= 0 || t.frequencyHz <= 0 || t.volume <= 0 {
		return nil
	}

	// 5ms ramps keep the amplifier from clicking.
	ramp := min(n/10, chimeSampleRate/200)
	ramp = max(ramp, 1)

	pcm := make([]int16, n)
	for i := range n {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			envelope = math.Min(envelope, float64(tail)/float64(ramp))
		}
		phase := 2 * math.Pi * t.frequencyHz * float64(i) / chimeSampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * t.volume * envelope * math.MaxInt16))
	}
	return pcm
}

func samplesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * chimeSampleRate))
}
