// Package connectivity probes the backend's camera status and derives which
// video source the dashboard should display.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"adas-dashboard/internal/model"
	"adas-dashboard/internal/schedule"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 3 * time.Second
)

type StatusSource interface {
	CameraStatus(ctx context.Context) (model.CameraStatus, error)
}

// Prober owns the ConnectivityState. It is the only writer of the display mode.
type Prober struct {
	source   StatusSource
	sched    schedule.Scheduler
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu          sync.RWMutex
	state       model.ConnectivityState
	probed      bool
	lastStatus  model.CameraStatus
	lastErr     error
	lastProbeAt time.Time
	issued      uint64
	applied     uint64
	preferLocal bool
	feedFault   bool
	changes     uint64
	listeners   []func(model.ConnectivityChange)
	cancel      schedule.Cancel

	// dispatchMu orders delivery; a transition older than one already
	// delivered is dropped.
	dispatchMu sync.Mutex
	delivered  uint64
}

func New(source StatusSource, sched schedule.Scheduler, interval, timeout time.Duration, logger *zap.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Prober{
		source:   source,
		sched:    sched,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		state:    model.Offline,
		lastErr:  errNotProbed,
	}
}

// Derive maps one probe outcome to a state. forceLocal covers an operator
// preference for the local camera and a failed remote feed.
func Derive(status model.CameraStatus, err error, forceLocal bool) model.ConnectivityState {
	switch {
	case err != nil:
		return model.Offline
	case !status.CameraInitialized:
		return model.OnlineNoCameraFallback
	case forceLocal:
		return model.OnlineNoCameraFallback
	default:
		return model.OnlineRemoteCamera
	}
}

// Subscribe registers fn for state transitions. Unchanged probes are not reported.
func (p *Prober) Subscribe(fn func(model.ConnectivityChange)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Start probes once immediately and then on every interval until ctx is done
// or Stop is called.
func (p *Prober) Start(ctx context.Context) {
	p.ProbeNow(ctx)

	cancel := p.sched.Every(p.interval, func() {
		if ctx.Err() != nil {
			return
		}
		p.ProbeNow(ctx)
	})

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
}

func (p *Prober) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// ProbeNow issues one bounded probe and applies it unless a newer probe has
// already been applied.
func (p *Prober) ProbeNow(ctx context.Context) model.ConnectivityState {
	p.mu.Lock()
	p.issued++
	seq := p.issued
	p.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	status, err := p.source.CameraStatus(probeCtx)
	cancel()

	p.mu.Lock()
	if seq <= p.applied {
		state := p.state
		p.mu.Unlock()
		p.logger.Debug("Discarding superseded connectivity probe", zap.Uint64("seq", seq))
		return state
	}
	p.applied = seq
	p.probed = true
	p.lastStatus = status
	p.lastErr = err
	p.lastProbeAt = p.sched.Now()
	if err == nil {
		p.feedFault = false
	}
	change, changeSeq, changed := p.rederiveLocked("probe")
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("Backend probe failed, using local camera", zap.Error(err))
	} else if !status.CameraInitialized {
		p.logger.Warn("Backend reachable but camera not initialized, using local camera")
	}

	if changed {
		p.notify(change, changeSeq)
	}
	return change.State
}

// ReportFeedError records that the remote feed failed to render. The backend
// is still considered reachable; the display falls back to the local camera
// until a later probe succeeds.
func (p *Prober) ReportFeedError(err error) model.ConnectivityState {
	p.mu.Lock()
	p.feedFault = true
	change, seq, changed := p.rederiveLocked("feed_error")
	p.mu.Unlock()

	p.logger.Warn("Remote video feed failed", zap.Error(err))
	if changed {
		p.notify(change, seq)
	}
	return change.State
}

// ToggleLocal flips the operator preference for the local camera. It only
// changes the state while the remote camera is available.
func (p *Prober) ToggleLocal() model.ConnectivityState {
	p.mu.Lock()
	p.preferLocal = !p.preferLocal
	preferLocal := p.preferLocal
	change, seq, changed := p.rederiveLocked("toggle")
	p.mu.Unlock()

	p.logger.Info("Local camera preference toggled", zap.Bool("prefer_local", preferLocal))
	if changed {
		p.notify(change, seq)
	}
	return change.State
}

func (p *Prober) State() model.ConnectivityState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Prober) Mode() model.DisplayMode {
	return model.ModeFor(p.State())
}

func (p *Prober) UseLocalCamera() bool {
	return p.Mode() == model.DisplayLocal
}

// Reachable gates the alert poller.
func (p *Prober) Reachable() bool {
	return p.State().Reachable()
}

// Probed reports whether at least one probe has completed.
func (p *Prober) Probed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.probed
}

func (p *Prober) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.probed {
		return nil
	}
	return p.lastErr
}

func (p *Prober) PreferLocal() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.preferLocal
}

func (p *Prober) rederiveLocked(reason string) (model.ConnectivityChange, uint64, bool) {
	next := Derive(p.lastStatus, p.lastErr, p.preferLocal || p.feedFault)
	changed := next != p.state
	p.state = next
	if changed {
		p.changes++
	}
	return model.ConnectivityChange{
		State:       next,
		DisplayMode: model.ModeFor(next),
		Reason:      reason,
	}, p.changes, changed
}

func (p *Prober) notify(change model.ConnectivityChange, seq uint64) {
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()
	if seq <= p.delivered {
		p.logger.Debug("Dropping outdated connectivity change",
			zap.String("state", string(change.State)), zap.Uint64("seq", seq))
		return
	}
	p.delivered = seq

	p.mu.RLock()
	listeners := append([]func(model.ConnectivityChange){}, p.listeners...)
	p.mu.RUnlock()

	p.logger.Info("Connectivity changed",
		zap.String("state", string(change.State)),
		zap.String("display_mode", string(change.DisplayMode)),
		zap.String("reason", change.Reason),
	)
	for _, fn := range listeners {
		fn(change)
	}
}
