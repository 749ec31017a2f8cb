// Package fsm defines the setup pipeline's linear state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateStart            State = "start"
	StateDetected         State = "detected"
	StateOverlayPersisted State = "overlay_persisted"
	StateOverlayLoaded    State = "overlay_loaded"
	StateDeviceConfirmed  State = "device_confirmed"
	StateRoutingWritten   State = "routing_written"
	StateVolumeSet        State = "volume_set"
	StateSinkBound        State = "sink_bound"
	StateComplete         State = "complete"
	StateFailed           State = "failed"
)

const (
	EventDetect    Event = "detect"
	EventPersist   Event = "persist"
	EventLoad      Event = "load"
	EventConfirm   Event = "confirm"
	EventRoute     Event = "route"
	EventSetVolume Event = "set_volume"
	EventBindSink  Event = "bind_sink"
	EventFinish    Event = "finish"
	EventFail      Event = "fail"
)

// forward lists, per state, the single event that advances it and where it leads.
var forward = map[State]struct {
	event Event
	next  State
}{
	StateStart:            {EventDetect, StateDetected},
	StateDetected:         {EventPersist, StateOverlayPersisted},
	StateOverlayPersisted: {EventLoad, StateOverlayLoaded},
	StateOverlayLoaded:    {EventConfirm, StateDeviceConfirmed},
	StateDeviceConfirmed:  {EventRoute, StateRoutingWritten},
	StateRoutingWritten:   {EventSetVolume, StateVolumeSet},
	StateVolumeSet:        {EventBindSink, StateSinkBound},
	StateSinkBound:        {EventFinish, StateComplete},
}

// Order returns every non-failed state in pipeline order.
func Order() []State {
	return []State{
		StateStart, StateDetected, StateOverlayPersisted, StateOverlayLoaded, StateDeviceConfirmed,
		StateRoutingWritten, StateVolumeSet, StateSinkBound, StateComplete,
	}
}

// Terminal reports whether no event is accepted in state.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

func Transition(current State, event Event) (State, error) {
	if current.Terminal() {
		return current, invalidTransition(current, event)
	}
	step, ok := forward[current]
	if !ok {
		return current, fmt.Errorf("unknown state %q", current)
	}
	if event == EventFail {
		return StateFailed, nil
	}
	if event != step.event {
		return current, invalidTransition(current, event)
	}
	return step.next, nil
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
