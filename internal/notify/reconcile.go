// Package notify turns polled alert pages into short-lived notifications.
package notify

import (
	"fmt"
	"strconv"
	"time"

	"adas-dashboard/internal/model"
)

const (
	// MaxRetained bounds the visible notification list.
	MaxRetained = 5
	// DisplayWindow is how long a notification stays before it expires.
	DisplayWindow = 5 * time.Second
)

// State is the reconciler's whole memory. The zero value has seen nothing.
type State struct {
	LastSeenID    *int64
	Notifications []model.Notification
}

// Reconcile inspects only the newest alert of a page. A notification is
// created when its id differs from the last one seen, so several new alerts
// between two polls surface as a single notification.
func Reconcile(state State, alerts []model.Alert, now time.Time) (State, *model.Notification) {
	if len(alerts) == 0 {
		return state, nil
	}

	latest := alerts[0]
	if state.LastSeenID != nil && *state.LastSeenID == latest.ID {
		return state, nil
	}

	id := latest.ID
	created := NotificationFor(latest, now)

	list := make([]model.Notification, 0, MaxRetained)
	list = append(list, created)
	for _, existing := range state.Notifications {
		if existing.ID == id {
			continue
		}
		if len(list) == MaxRetained {
			break
		}
		list = append(list, existing)
	}

	return State{LastSeenID: &id, Notifications: list}, &created
}

// Dismiss removes the notification with id, if present.
func Dismiss(state State, id int64) (State, bool) {
	for i, existing := range state.Notifications {
		if existing.ID != id {
			continue
		}
		list := make([]model.Notification, 0, len(state.Notifications)-1)
		list = append(list, state.Notifications[:i]...)
		list = append(list, state.Notifications[i+1:]...)
		state.Notifications = list
		return state, true
	}
	return state, false
}

// NotificationFor builds the notification shown for alert, expiring DisplayWindow after now.
func NotificationFor(alert model.Alert, now time.Time) model.Notification {
	severity := model.SeverityFor(alert.Distance)
	return model.Notification{
		ID:        alert.ID,
		Severity:  severity,
		Title:     severity.Title(),
		Message:   fmt.Sprintf("%s detected at %.1fm!", alert.ObjectClass, alert.Distance),
		ImageURL:  ImageURL(alert.ID),
		CreatedAt: now,
		ExpiresAt: now.Add(DisplayWindow),
	}
}

// ImageURL is the dashboard route that serves an alert's snapshot.
func ImageURL(id int64) string {
	return "/api/v1/alerts/" + strconv.FormatInt(id, 10) + "/image"
}
