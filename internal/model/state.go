package model

// ConnectivityState is derived from the latest camera status probe.
type ConnectivityState string

const (
	Offline                ConnectivityState = "offline"
	OnlineRemoteCamera     ConnectivityState = "online_remote_camera"
	OnlineNoCameraFallback ConnectivityState = "online_no_camera"
)

// DisplayMode selects what the video surface shows.
type DisplayMode string

const (
	DisplayRemote DisplayMode = "remote"
	DisplayLocal  DisplayMode = "local"
)

// ModeFor is the only way a display mode is derived.
func ModeFor(state ConnectivityState) DisplayMode {
	if state == OnlineRemoteCamera {
		return DisplayRemote
	}
	return DisplayLocal
}

// Reachable reports whether the backend answered the last probe.
func (s ConnectivityState) Reachable() bool {
	return s == OnlineRemoteCamera || s == OnlineNoCameraFallback
}

func (s ConnectivityState) Label() string {
	switch s {
	case OnlineRemoteCamera:
		return "Online"
	case OnlineNoCameraFallback:
		return "Online (local camera)"
	default:
		return "Offline"
	}
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Distance thresholds in meters.
const (
	CriticalDistance = 30.0
	WarningDistance  = 50.0
)

func SeverityFor(distance float64) Severity {
	switch {
	case distance < CriticalDistance:
		return SeverityCritical
	case distance < WarningDistance:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func (s Severity) Title() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL ALERT!"
	case SeverityWarning:
		return "Warning!"
	default:
		return "Detection"
	}
}
