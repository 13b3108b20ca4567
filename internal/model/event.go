package model

import "time"

// EventType names a UI event fanned out to screen subscribers.
type EventType string

const (
	EventConnectivity        EventType = "connectivity"
	EventAlerts              EventType = "alerts"
	EventNotificationAdded   EventType = "notification_added"
	EventNotificationRemoved EventType = "notification_removed"
	EventTone                EventType = "tone"
	EventSpeak               EventType = "speak"
	EventVoice               EventType = "voice"
	EventVoiceListen         EventType = "voice_listen"
	EventCapture             EventType = "capture"
	EventStatus              EventType = "status"
)

type Event struct {
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

type ConnectivityChange struct {
	State       ConnectivityState `json:"state"`
	DisplayMode DisplayMode       `json:"display_mode"`
	Reason      string            `json:"reason,omitempty"`
}

type NotificationRemoval struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

type CaptureSaved struct {
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}
