package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"adas-dashboard/internal/model"
	"adas-dashboard/internal/schedule"
)

// ToneEmitter plays the alert beep. Implementations must not block for the
// duration of the tone.
type ToneEmitter interface {
	Emit(tone model.Tone) error
}

// NopTone discards tones.
type NopTone struct{}

func (NopTone) Emit(model.Tone) error { return nil }

const (
	ReasonExpired   = "expired"
	ReasonDismissed = "dismissed"
	ReasonEvicted   = "evicted"
	ReasonReplaced  = "replaced"
)

type expiry struct {
	cancel schedule.Cancel
	token  uint64
}

// Center applies Reconcile to each poll and owns the timers and tones that
// go with it.
type Center struct {
	sched  schedule.Scheduler
	tone   ToneEmitter
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	timers    map[int64]expiry
	tokens    uint64
	listeners []func(model.Event)
}

func NewCenter(sched schedule.Scheduler, tone ToneEmitter, logger *zap.Logger) *Center {
	if tone == nil {
		tone = NopTone{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{
		sched:  sched,
		tone:   tone,
		logger: logger,
		timers: make(map[int64]expiry),
	}
}

func (c *Center) Subscribe(fn func(model.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Observe feeds one alert page through the reconciler. It returns the
// notification created, if any.
func (c *Center) Observe(alerts []model.Alert) *model.Notification {
	now := c.sched.Now()

	c.mu.Lock()
	before := c.state.Notifications
	next, created := Reconcile(c.state, alerts, now)
	if created == nil {
		c.mu.Unlock()
		return nil
	}
	c.state = next

	var events []model.Event
	kept := make(map[int64]struct{}, len(next.Notifications))
	for _, n := range next.Notifications {
		kept[n.ID] = struct{}{}
	}
	for _, old := range before {
		if old.ID == created.ID {
			c.cancelTimerLocked(old.ID)
			events = append(events, removal(now, old.ID, ReasonReplaced))
			continue
		}
		if _, ok := kept[old.ID]; !ok {
			c.cancelTimerLocked(old.ID)
			events = append(events, removal(now, old.ID, ReasonEvicted))
		}
	}
	c.scheduleExpiryLocked(created.ID)
	events = append(events, model.Event{Type: model.EventNotificationAdded, At: now, Payload: *created})
	listeners := append([]func(model.Event){}, c.listeners...)
	c.mu.Unlock()

	c.logger.Info("New alert notification",
		zap.Int64("alert_id", created.ID),
		zap.String("severity", string(created.Severity)),
		zap.String("message", created.Message),
	)

	if created.Severity == model.SeverityCritical {
		if err := c.tone.Emit(model.AlertTone); err != nil {
			c.logger.Warn("Alert tone failed", zap.Error(err))
		}
	}

	for _, event := range events {
		for _, fn := range listeners {
			fn(event)
		}
	}
	return created
}

// Dismiss removes a notification before its window ends.
func (c *Center) Dismiss(id int64) bool {
	return c.remove(id, ReasonDismissed, 0)
}

func (c *Center) Notifications() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Notification{}, c.state.Notifications...)
}

func (c *Center) LastSeenID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.LastSeenID == nil {
		return 0, false
	}
	return *c.state.LastSeenID, true
}

// Stop cancels every pending expiry and forgets all notifications.
func (c *Center) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.timers {
		c.cancelTimerLocked(id)
	}
	c.state = State{}
}

func (c *Center) scheduleExpiryLocked(id int64) {
	c.tokens++
	token := c.tokens
	cancel := c.sched.After(DisplayWindow, func() {
		c.remove(id, ReasonExpired, token)
	})
	c.timers[id] = expiry{cancel: cancel, token: token}
}

func (c *Center) cancelTimerLocked(id int64) {
	if timer, ok := c.timers[id]; ok {
		timer.cancel()
		delete(c.timers, id)
	}
}

// remove drops id from the list. A non-zero token restricts removal to the
// timer generation that scheduled it.
func (c *Center) remove(id int64, reason string, token uint64) bool {
	c.mu.Lock()
	if token != 0 {
		if timer, ok := c.timers[id]; !ok || timer.token != token {
			c.mu.Unlock()
			return false
		}
	}
	next, removed := Dismiss(c.state, id)
	c.cancelTimerLocked(id)
	if !removed {
		c.mu.Unlock()
		return false
	}
	c.state = next
	now := c.sched.Now()
	listeners := append([]func(model.Event){}, c.listeners...)
	c.mu.Unlock()

	c.logger.Debug("Notification removed", zap.Int64("alert_id", id), zap.String("reason", reason))
	event := removal(now, id, reason)
	for _, fn := range listeners {
		fn(event)
	}
	return true
}

func removal(at time.Time, id int64, reason string) model.Event {
	return model.Event{
		Type:    model.EventNotificationRemoved,
		At:      at,
		Payload: model.NotificationRemoval{ID: id, Reason: reason},
	}
}
