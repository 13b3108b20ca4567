// Package alerts polls the backend for recent proximity alerts and keeps the
// last good page visible while the backend misbehaves.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"adas-dashboard/internal/model"
	"adas-dashboard/internal/schedule"
)

const DefaultInterval = 2 * time.Second

type Source interface {
	Alerts(ctx context.Context, limit int) ([]model.Alert, error)
	Captures(ctx context.Context, limit int) ([]model.Capture, error)
	AdminStats(ctx context.Context) (model.AdminStats, error)
}

// Gate reports whether polling should happen at all.
type Gate interface {
	Reachable() bool
}

// Result is one successful poll, newest alert first.
type Result struct {
	Alerts    []model.Alert
	Stats     model.Stats
	Degraded  bool
	FetchedAt time.Time
}

// View is what a screen renders from the poller.
type View struct {
	Alerts      []model.Alert
	Stats       model.Stats
	Degraded    bool
	GeneratedAt time.Time
	LastError   *string
	Stale       bool
}

// Poller keeps an in-memory alert page that is refreshed on an interval.
type Poller struct {
	source       Source
	gate         Gate
	sched        schedule.Scheduler
	pollInterval time.Duration
	limit        int
	logger       *zap.Logger

	mu          sync.RWMutex
	alerts      []model.Alert
	stats       model.Stats
	degraded    bool
	generatedAt time.Time
	hasSnapshot bool
	lastErr     error
	issued      uint64
	applied     uint64
	listeners   []func(Result)
	cancel      schedule.Cancel
}

func New(source Source, gate Gate, sched schedule.Scheduler, pollInterval time.Duration, limit int, logger *zap.Logger) *Poller {
	if pollInterval <= 0 {
		pollInterval = DefaultInterval
	}
	if limit <= 0 {
		limit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Poller{
		source:       source,
		gate:         gate,
		sched:        sched,
		pollInterval: pollInterval,
		limit:        limit,
		logger:       logger,
	}
}

// Subscribe registers fn for every successful poll.
func (p *Poller) Subscribe(fn func(Result)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Poller) Start(ctx context.Context) {
	p.refresh(ctx)

	cancel := p.sched.Every(p.pollInterval, func() {
		if ctx.Err() != nil {
			return
		}
		p.refresh(ctx)
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

func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// PollNow runs one cycle outside the interval, e.g. when the backend comes back.
func (p *Poller) PollNow(ctx context.Context) {
	p.refresh(ctx)
}

func (p *Poller) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasSnapshot
}

func (p *Poller) Snapshot() (View, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.hasSnapshot {
		return View{}, false
	}

	out := View{
		Alerts:      append([]model.Alert(nil), p.alerts...),
		Stats:       p.stats,
		Degraded:    p.degraded,
		GeneratedAt: p.generatedAt,
	}
	if p.lastErr != nil {
		errText := p.lastErr.Error()
		out.LastError = &errText
		out.Stale = true
	}
	if !out.GeneratedAt.IsZero() && p.sched.Now().Sub(out.GeneratedAt) > 2*p.pollInterval {
		out.Stale = true
	}

	return out, true
}

func (p *Poller) refresh(ctx context.Context) {
	if p.gate != nil && !p.gate.Reachable() {
		p.logger.Debug("Skipping alert poll while backend is unreachable")
		return
	}

	p.mu.Lock()
	p.issued++
	seq := p.issued
	p.mu.Unlock()

	alerts, degraded, err := p.fetchAlerts(ctx)
	if err != nil {
		p.logger.Warn("Alerts fetch failed, keeping last good page", zap.Error(err))
	}
	admin := p.fetchAdminStats(ctx)
	now := p.sched.Now()

	p.mu.Lock()
	if seq <= p.applied {
		p.mu.Unlock()
		p.logger.Debug("Discarding superseded alert poll", zap.Uint64("seq", seq))
		return
	}
	p.applied = seq
	if err == nil {
		p.alerts = alerts
		p.degraded = degraded
		p.lastErr = nil
	} else {
		p.lastErr = err
	}
	p.stats = ComputeStats(p.alerts, admin)
	p.generatedAt = now
	p.hasSnapshot = true

	result := Result{
		Alerts:    append([]model.Alert(nil), p.alerts...),
		Stats:     p.stats,
		Degraded:  p.degraded,
		FetchedAt: now,
	}
	listeners := append([]func(Result){}, p.listeners...)
	p.mu.Unlock()

	if err != nil {
		return
	}
	for _, fn := range listeners {
		fn(result)
	}
}

// fetchAlerts returns the primary alert page, or alerts synthesized from the
// captures collection when the primary page is empty.
func (p *Poller) fetchAlerts(ctx context.Context) ([]model.Alert, bool, error) {
	alerts, err := p.source.Alerts(ctx, p.limit)
	if err != nil {
		return nil, false, fmt.Errorf("fetch alerts: %w", err)
	}
	if len(alerts) > 0 {
		return alerts, false, nil
	}

	captures, err := p.source.Captures(ctx, p.limit)
	if err != nil {
		p.logger.Warn("Captures fallback failed, showing empty alert page", zap.Error(err))
		return []model.Alert{}, false, nil
	}
	if len(captures) == 0 {
		return []model.Alert{}, false, nil
	}

	mapped := make([]model.Alert, 0, len(captures))
	for _, capture := range captures {
		alert, mapErr := FromCapture(capture)
		if mapErr != nil {
			p.logger.Warn("Dropping malformed capture",
				zap.String("filename", capture.Filename),
				zap.Error(mapErr),
			)
			continue
		}
		mapped = append(mapped, alert)
	}
	p.logger.Debug("Alerts empty, using captures fallback", zap.Int("captures", len(mapped)))

	return mapped, true, nil
}

func (p *Poller) fetchAdminStats(ctx context.Context) model.AdminStats {
	stats, err := p.source.AdminStats(ctx)
	if err != nil {
		p.logger.Warn("Admin stats fetch failed, using zero defaults", zap.Error(err))
		return model.AdminStats{}
	}
	return stats
}

// ComputeStats derives the summary counters for one alert page.
func ComputeStats(alerts []model.Alert, admin model.AdminStats) model.Stats {
	stats := model.Stats{
		TotalAlerts: len(alerts),
		TotalUsers:  admin.TotalUsers,
		ActiveUsers: admin.ActiveUsers,
	}
	for _, alert := range alerts {
		if alert.Distance < model.WarningDistance {
			stats.ActiveWarnings++
		}
	}
	return stats
}
