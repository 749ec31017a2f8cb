// Package audio applies initial volumes and binds the Hat as the session's default sink and source.
package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// SinkName is the PulseAudio sink created over the ALSA default PCM.
	SinkName = "robot_hat_speaker"
	// SourceName is the PulseAudio source created over the ALSA default PCM.
	SourceName = "robot_hat_mic"
)

// Device describes one Pulse sink or source.
type Device struct {
	ID          string
	Description string
	State       string
	Default     bool
}

// Binding reports what BindDefaults did in the session server.
type Binding struct {
	Sink         string
	Source       string
	LoadedSink   bool
	LoadedSource bool
}

// Summary renders the binding as one status line.
func (b Binding) Summary() string {
	parts := []string{describe("sink", b.Sink, b.LoadedSink)}
	if b.Source != "" {
		parts = append(parts, describe("source", b.Source, b.LoadedSource))
	}
	return strings.Join(parts, ", ")
}

func describe(kind, name string, loaded bool) string {
	if loaded {
		return fmt.Sprintf("default %s %s (module loaded)", kind, name)
	}
	return fmt.Sprintf("default %s %s", kind, name)
}

func connect() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("robot-hat-audio"),
		pulse.ClientApplicationIconName("audio-card"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListSinks returns the session's sinks with default metadata.
func ListSinks(_ context.Context) ([]Device, error) {
	client, err := connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return listSinks(client)
}

// ListSources returns the session's sources with default metadata.
func ListSources(_ context.Context) ([]Device, error) {
	client, err := connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return listSources(client)
}

// BindDefaults runs inside the user's session. It creates the Hat sink (and source when capture
// is set) over the ALSA default PCM if missing, then makes them the session defaults.
func BindDefaults(ctx context.Context, capture bool) (Binding, error) {
	client, err := connect()
	if err != nil {
		return Binding{}, err
	}
	defer client.Close()

	binding := Binding{Sink: SinkName}
	sinks, err := listSinks(client)
	if err != nil {
		return binding, err
	}
	if !hasDevice(sinks, SinkName) {
		if err := loadModule(client, "module-alsa-sink", "device=default sink_name="+SinkName); err != nil {
			return binding, err
		}
		binding.LoadedSink = true
	}
	if err := client.RawRequest(&pulseproto.SetDefaultSink{SinkName: SinkName}, nil); err != nil {
		return binding, fmt.Errorf("set default sink %s: %w", SinkName, err)
	}

	if !capture {
		return binding, ctx.Err()
	}

	binding.Source = SourceName
	sources, err := listSources(client)
	if err != nil {
		return binding, err
	}
	if !hasDevice(sources, SourceName) {
		if err := loadModule(client, "module-alsa-source", "device=default source_name="+SourceName); err != nil {
			return binding, err
		}
		binding.LoadedSource = true
	}
	if err := client.RawRequest(&pulseproto.SetDefaultSource{SourceName: SourceName}, nil); err != nil {
		return binding, fmt.Errorf("set default source %s: %w", SourceName, err)
	}
	return binding, ctx.Err()
}

func loadModule(client *pulse.Client, name, args string) error {
	var reply pulseproto.LoadModuleReply
	if err := client.RawRequest(&pulseproto.LoadModule{Name: name, Args: args}, &reply); err != nil {
		return fmt.Errorf("load %s %s: %w", name, args, err)
	}
	return nil
}

func listSinks(client *pulse.Client) ([]Device, error) {
	// A session with no sinks yet has no default either.
	defaultID := ""
	if sink, err := client.DefaultSink(); err == nil {
		defaultID = sink.ID()
	}
	var infos pulseproto.GetSinkInfoListReply
	if err := client.RawRequest(&pulseproto.GetSinkInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}
	devices := make([]Device, 0, len(infos))
	for _, sink := range infos {
		if sink == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          sink.SinkName,
			Description: sink.Device,
			State:       stateString(sink.State),
			Default:     sink.SinkName == defaultID,
		})
	}
	return devices, nil
}

func listSources(client *pulse.Client) ([]Device, error) {
	defaultID := ""
	if source, err := client.DefaultSource(); err == nil {
		defaultID = source.ID()
	}
	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	devices := make([]Device, 0, len(infos))
	for _, source := range infos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       stateString(source.State),
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

func hasDevice(devices []Device, id string) bool {
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

// stateString maps Pulse sink/source state constants to human-readable values.
func stateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}
