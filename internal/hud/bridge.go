package hud

import (
	"io"

	"adas-dashboard/internal/model"
)

// Bridge carries screen events into the Bubble Tea program. It implements the
// screen's publisher, announcer and tone emitter.
type Bridge struct {
	events chan model.Event
	bell   io.Writer
}

// NewBridge buffers up to size events. bell, if set, receives a BEL
// character for every alert tone.
func NewBridge(size int, bell io.Writer) *Bridge {
	if size <= 0 {
		size = 64
	}
	return &Bridge{events: make(chan model.Event, size), bell: bell}
}

// Publish never blocks; events are dropped when the HUD falls behind.
func (b *Bridge) Publish(event model.Event) {
	select {
	case b.events <- event:
	default:
	}
}

func (b *Bridge) Announce(text string) {
	b.Publish(model.Event{Type: model.EventSpeak, Payload: map[string]string{"text": text}})
}

func (b *Bridge) Emit(tone model.Tone) error {
	if b.bell != nil {
		if _, err := io.WriteString(b.bell, "\a"); err != nil {
			return err
		}
	}
	b.Publish(model.Event{Type: model.EventTone, Payload: tone})
	return nil
}

// Events is the receive side consumed by the HUD model.
func (b *Bridge) Events() <-chan model.Event {
	return b.events
}
