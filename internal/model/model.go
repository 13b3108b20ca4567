package model

import "time"

// DashboardSnapshot is the API payload returned to dashboard clients.
type DashboardSnapshot struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	Screen        string            `json:"screen"`
	Connectivity  ConnectivityState `json:"connectivity"`
	DisplayMode   DisplayMode       `json:"display_mode"`
	SourceOnline  bool              `json:"source_online"`
	SourceError   *string           `json:"source_error"`
	Alerts        []Alert           `json:"alerts"`
	Stats         Stats             `json:"stats"`
	Degraded      bool              `json:"degraded"`
	EmptyState    EmptyState        `json:"empty_state,omitempty"`
	Notifications []Notification    `json:"notifications"`
	LocalCamera   CameraState       `json:"local_camera"`
	Voice         VoiceState        `json:"voice"`
	Stale         bool              `json:"stale"`
}

// Alert is a proximity detection reported by the backend. ID is the dedup key.
type Alert struct {
	ID          int64     `json:"id"`
	Timestamp   Timestamp `json:"timestamp"`
	ObjectClass string    `json:"object_class"`
	Confidence  float64   `json:"confidence"`
	Distance    float64   `json:"distance"`
	ImagePath   string    `json:"image_path"`
}

// Capture is the backend's fallback record for a saved alert frame.
type Capture struct {
	Filename  string `json:"filename"`
	Timestamp int64  `json:"timestamp"`
	Distance  string `json:"distance"`
	Filesize  int64  `json:"filesize"`
	URL       string `json:"url"`
}

type CameraStatus struct {
	CameraInitialized bool `json:"camera_initialized"`
	CameraOpen        bool `json:"camera_open"`
}

type AdminStats struct {
	TotalUsers  int `json:"total_users"`
	ActiveUsers int `json:"active_users"`
}

// Stats is recomputed from the current alert page on every poll.
type Stats struct {
	TotalAlerts    int `json:"total_alerts"`
	ActiveWarnings int `json:"active_warnings"`
	TotalUsers     int `json:"total_users"`
	ActiveUsers    int `json:"active_users"`
}

type Notification struct {
	ID        int64     `json:"id"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CameraState struct {
	Active bool `json:"active"`
	Live   bool `json:"live"`
}

type VoiceState struct {
	Available  bool   `json:"available"`
	Listening  bool   `json:"listening"`
	Transcript string `json:"transcript,omitempty"`
	Feedback   string `json:"feedback,omitempty"`
}

// Tone describes the short alert beep played for critical notifications.
type Tone struct {
	FrequencyHz float64 `json:"frequency_hz"`
	DurationMS  int     `json:"duration_ms"`
	Gain        float64 `json:"gain"`
	Waveform    string  `json:"waveform"`
}

// AlertTone is the beep used for obstacles closer than the critical distance.
var AlertTone = Tone{
	FrequencyHz: 800,
	DurationMS:  500,
	Gain:        0.3,
	Waveform:    "sine",
}

type EmptyState string

const (
	EmptyNoAlerts      EmptyState = "no_alerts"
	EmptyServerOffline EmptyState = "server_offline"
)
