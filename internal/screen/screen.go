// Package screen wires one dashboard instance: connectivity, alert polling,
// notifications, the local camera and voice commands.
package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"adas-dashboard/internal/alerts"
	"adas-dashboard/internal/backend"
	"adas-dashboard/internal/camera"
	"adas-dashboard/internal/connectivity"
	"adas-dashboard/internal/model"
	"adas-dashboard/internal/notify"
	"adas-dashboard/internal/schedule"
	"adas-dashboard/internal/voice"
)

// Role selects screen-specific behavior.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDriver Role = "driver"
)

// Backend is everything a screen reads from the detection service.
type Backend interface {
	connectivity.StatusSource
	alerts.Source
	AlertImage(ctx context.Context, id int64) (backend.Media, error)
	VideoFeed(ctx context.Context) (backend.Stream, error)
}

// Publisher receives UI events.
type Publisher interface {
	Publish(event model.Event)
}

// Announcer speaks text to the operator.
type Announcer interface {
	Announce(text string)
}

type Options struct {
	Role          Role
	AlertLimit    int
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	PollInterval  time.Duration
	CaptureDir    string
}

type Deps struct {
	Backend     Backend
	Scheduler   schedule.Scheduler
	Media       camera.MediaCapture
	Constraints camera.Constraints
	Recognizer  voice.Recognizer
	Tone        notify.ToneEmitter
	Publisher   Publisher
	Announcer   Announcer
	Logger      *zap.Logger
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}

type nopAnnouncer struct{}

func (nopAnnouncer) Announce(string) {}

// Screen owns every component of one dashboard and their lifetimes.
type Screen struct {
	opts      Options
	backend   Backend
	sched     schedule.Scheduler
	publisher Publisher
	announcer Announcer
	logger    *zap.Logger

	prober  *connectivity.Prober
	poller  *alerts.Poller
	center  *notify.Center
	capture *camera.Capture
	voice   *voice.Dispatcher

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	polling   bool
	reachable bool
}

func New(opts Options, deps Deps) *Screen {
	if opts.Role == "" {
		opts.Role = RoleAdmin
	}
	if opts.CaptureDir == "" {
		opts.CaptureDir = "captures"
	}
	if deps.Scheduler == nil {
		deps.Scheduler = schedule.Real{}
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Announcer == nil {
		deps.Announcer = nopAnnouncer{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Constraints == (camera.Constraints{}) {
		deps.Constraints = camera.DefaultConstraints
	}
	logger := deps.Logger.With(zap.String("screen", string(opts.Role)))

	s := &Screen{
		opts:      opts,
		backend:   deps.Backend,
		sched:     deps.Scheduler,
		publisher: deps.Publisher,
		announcer: deps.Announcer,
		logger:    logger,
		ctx:       context.Background(),
	}

	s.prober = connectivity.New(deps.Backend, deps.Scheduler, opts.ProbeInterval, opts.ProbeTimeout, logger.Named("connectivity"))
	s.poller = alerts.New(deps.Backend, s.prober, deps.Scheduler, opts.PollInterval, opts.AlertLimit, logger.Named("alerts"))
	s.center = notify.NewCenter(deps.Scheduler, deps.Tone, logger.Named("notify"))
	s.capture = camera.New(deps.Media, deps.Constraints, deps.Scheduler, logger.Named("camera"))
	s.voice = voice.NewDispatcher(deps.Recognizer, s.HandleCommand, deps.Scheduler, logger.Named("voice"))

	s.prober.Subscribe(s.onConnectivity)
	s.poller.Subscribe(s.onAlerts)
	s.center.Subscribe(s.publisher.Publish)
	s.voice.Subscribe(func(state model.VoiceState) {
		s.publish(model.EventVoice, state)
	})

	return s
}

// Start runs the probe and poll loops until ctx is done or Stop is called.
func (s *Screen) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel
	s.started = true
	s.mu.Unlock()

	s.prober.Start(runCtx)
	s.capture.Apply(runCtx, s.prober.Mode())
	s.setReachable(s.prober.Reachable())
	s.poller.Start(runCtx)
	s.mu.Lock()
	s.polling = true
	s.mu.Unlock()

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
}

// Stop cancels every timer and releases the camera.
func (s *Screen) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.polling = false
	cancel := s.cancel
	s.mu.Unlock()

	s.prober.Stop()
	s.poller.Stop()
	s.center.Stop()
	s.voice.Stop()
	s.capture.Close()
	cancel()
	s.logger.Info("Screen stopped")
}

func (s *Screen) Ready() bool {
	return s.prober.Probed()
}

// Snapshot is everything the screen currently shows.
func (s *Screen) Snapshot() (model.DashboardSnapshot, bool) {
	if !s.prober.Probed() {
		return model.DashboardSnapshot{}, false
	}

	state := s.prober.State()
	snapshot := model.DashboardSnapshot{
		GeneratedAt:   s.sched.Now(),
		Screen:        string(s.opts.Role),
		Connectivity:  state,
		DisplayMode:   model.ModeFor(state),
		SourceOnline:  state.Reachable(),
		Alerts:        []model.Alert{},
		Notifications: s.center.Notifications(),
		LocalCamera:   s.capture.State(),
		Voice:         s.voice.State(),
	}

	view, polled := s.poller.Snapshot()
	if polled {
		snapshot.Alerts = view.Alerts
		snapshot.Stats = view.Stats
		snapshot.Degraded = view.Degraded
		snapshot.Stale = view.Stale
		snapshot.SourceError = view.LastError
	}
	if err := s.prober.LastError(); err != nil {
		text := err.Error()
		snapshot.SourceError = &text
		snapshot.Stale = polled
	}

	if len(snapshot.Alerts) == 0 {
		if state.Reachable() {
			snapshot.EmptyState = model.EmptyNoAlerts
		} else {
			snapshot.EmptyState = model.EmptyServerOffline
		}
	}

	return snapshot, true
}

func (s *Screen) Notifications() []model.Notification {
	return s.center.Notifications()
}

func (s *Screen) Dismiss(id int64) bool {
	return s.center.Dismiss(id)
}

// ToggleCamera flips the operator's local camera preference.
func (s *Screen) ToggleCamera() model.ConnectivityState {
	return s.prober.ToggleLocal()
}

// ReportFeedError falls back to the local camera after the remote feed failed.
func (s *Screen) ReportFeedError(err error) model.ConnectivityState {
	return s.prober.ReportFeedError(err)
}

func (s *Screen) Mode() model.DisplayMode {
	return s.prober.Mode()
}

// Camera exposes the local camera for frame streaming.
func (s *Screen) Camera() *camera.Capture {
	return s.capture
}

func (s *Screen) Voice() *voice.Dispatcher {
	return s.voice
}

func (s *Screen) PollInterval() time.Duration {
	if s.opts.PollInterval <= 0 {
		return alerts.DefaultInterval
	}
	return s.opts.PollInterval
}

func (s *Screen) AlertImage(ctx context.Context, id int64) (backend.Media, error) {
	return s.backend.AlertImage(ctx, id)
}

func (s *Screen) VideoFeed(ctx context.Context) (backend.Stream, error) {
	return s.backend.VideoFeed(ctx)
}

// Frame returns the live local camera frame.
func (s *Screen) Frame(ctx context.Context) (image.Image, error) {
	return s.capture.Frame(ctx)
}

// TriggerVoice starts one voice session bound to the screen's lifetime.
func (s *Screen) TriggerVoice() error {
	return s.voice.Trigger(s.context())
}

// TakeSnapshot encodes a local camera still without writing it to disk.
func (s *Screen) TakeSnapshot(ctx context.Context) (camera.Snapshot, error) {
	return s.capture.Snapshot(ctx)
}

// CaptureToDisk saves a local camera still into the capture directory.
func (s *Screen) CaptureToDisk(ctx context.Context) (model.CaptureSaved, error) {
	snap, path, err := s.capture.SaveSnapshot(ctx, s.opts.CaptureDir)
	if err != nil {
		return model.CaptureSaved{}, err
	}
	saved := model.CaptureSaved{
		Filename: snap.Filename,
		Path:     path,
		Width:    snap.Width,
		Height:   snap.Height,
	}
	s.logger.Info("Snapshot saved", zap.String("path", path))
	s.publish(model.EventCapture, saved)
	return saved, nil
}

// StatusReport is the text shown or spoken for the status command.
func (s *Screen) StatusReport() string {
	online := "Offline"
	if s.prober.Reachable() {
		online = "Online"
	}
	warnings := 0
	if view, ok := s.poller.Snapshot(); ok {
		warnings = view.Stats.ActiveWarnings
	}

	if s.opts.Role == RoleDriver {
		return fmt.Sprintf("System is %s. %d active warnings.", online, warnings)
	}
	return fmt.Sprintf("System Status: %s\nActive Warnings: %d", online, warnings)
}

// HandleCommand executes a dispatched voice command.
func (s *Screen) HandleCommand(command voice.Command) {
	ctx := s.context()

	switch command {
	case voice.CommandCapture:
		if _, err := s.CaptureToDisk(ctx); err != nil {
			if errors.Is(err, camera.ErrInactive) {
				s.logger.Info("Capture ignored, local camera is not live")
				return
			}
			s.logger.Warn("Capture failed", zap.Error(err))
		}
	case voice.CommandToggleCamera:
		s.ToggleCamera()
	case voice.CommandStatus:
		report := s.StatusReport()
		s.publish(model.EventStatus, map[string]string{"text": report})
		if s.opts.Role == RoleDriver {
			s.announcer.Announce(report)
		}
	default:
		s.logger.Warn("Unhandled command", zap.String("command", string(command)))
	}
}

// SubmitTranscript feeds text into a waiting voice session, or classifies it
// directly when no session is running.
func (s *Screen) SubmitTranscript(transcript string) (voice.Command, bool, error) {
	if relay, ok := s.voice.Recognizer().(*voice.Relay); ok && relay.Submit(transcript) {
		command, matched := voice.Classify(transcript)
		return command, matched, nil
	}
	return s.voice.Process(transcript)
}

// FailVoice ends a waiting voice session with a client-side error.
func (s *Screen) FailVoice(err error) error {
	relay, ok := s.voice.Recognizer().(*voice.Relay)
	if !ok {
		return voice.ErrUnsupported
	}
	return relay.Fail(err)
}

func (s *Screen) onConnectivity(change model.ConnectivityChange) {
	ctx := s.context()
	s.capture.Apply(ctx, change.DisplayMode)
	s.publish(model.EventConnectivity, change)

	wasReachable := s.setReachable(change.State.Reachable())
	if !wasReachable && change.State.Reachable() && s.isPolling() {
		s.logger.Info("Backend reachable again, polling alerts")
		s.poller.PollNow(ctx)
	}
}

func (s *Screen) onAlerts(result alerts.Result) {
	s.publish(model.EventAlerts, map[string]any{
		"alerts":   result.Alerts,
		"stats":    result.Stats,
		"degraded": result.Degraded,
	})

	created := s.center.Observe(result.Alerts)
	if created == nil || created.Severity != model.SeverityCritical || len(result.Alerts) == 0 {
		return
	}
	if s.opts.Role == RoleDriver {
		latest := result.Alerts[0]
		s.announcer.Announce(fmt.Sprintf("Warning. %s detected at %s meters.",
			latest.ObjectClass, strconv.FormatFloat(latest.Distance, 'f', -1, 64)))
	}
}

func (s *Screen) publish(eventType model.EventType, payload any) {
	s.publisher.Publish(model.Event{Type: eventType, At: s.sched.Now(), Payload: payload})
}

func (s *Screen) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Screen) isPolling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}

func (s *Screen) setReachable(reachable bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.reachable
	s.reachable = reachable
	return previous
}
