package indicator

import "github.com/justinbetabox/robot-hat/internal/fsm"

type messages struct {
	stages       map[fsm.State]string
	stoppedAt    string
	hint         string
	rebootNotice string
	done         string
}

var defaultMessages = messages{
	stages: map[fsm.State]string{
		fsm.StateStart:            "Privilege check",
		fsm.StateDetected:         "Hat detected",
		fsm.StateOverlayPersisted: "Overlay persisted",
		fsm.StateOverlayLoaded:    "Overlay loaded",
		fsm.StateDeviceConfirmed:  "Sound card confirmed",
		fsm.StateRoutingWritten:   "Routing written",
		fsm.StateVolumeSet:        "Volume set",
		fsm.StateSinkBound:        "Default sink bound",
		fsm.StateComplete:         "Setup complete",
	},
	stoppedAt:    "Setup stopped after",
	hint:         "hint",
	rebootNotice: "Reboot required: the sound card becomes active after the next boot. Run `sudo reboot`, then `sudo robot-hat-audio setup` again.",
	done:         "Audio is ready.",
}

func (m messages) stage(state fsm.State) string {
	if label, ok := m.stages[state]; ok {
		return label
	}
	return string(state)
}
