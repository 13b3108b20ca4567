// Package camera acquires a local video device while the dashboard is in
// local display mode and releases it the moment the mode flips back.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"adas-dashboard/internal/model"
	"adas-dashboard/internal/schedule"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device")
	// ErrInactive is returned when no local stream is live.
	ErrInactive = errors.New("local camera is not active")
)

// Constraints select the local video device. Audio is never requested.
type Constraints struct {
	Width      int
	Height     int
	FacingMode string
}

// DefaultConstraints prefers the front-facing camera.
var DefaultConstraints = Constraints{Width: 640, Height: 480, FacingMode: "user"}

type Track interface {
	ID() string
	Stop()
	Stopped() bool
}

type Stream interface {
	Tracks() []Track
	// Frame returns the most recent video frame.
	Frame(ctx context.Context) (image.Image, error)
}

type MediaCapture interface {
	Open(ctx context.Context, constraints Constraints) (Stream, error)
}

// Snapshot is one JPEG-encoded still.
type Snapshot struct {
	Filename string
	Data     []byte
	Width    int
	Height   int
	TakenAt  time.Time
}

// Capture owns at most one open stream at a time.
type Capture struct {
	media       MediaCapture
	constraints Constraints
	sched       schedule.Scheduler
	logger      *zap.Logger

	mu         sync.Mutex
	active     bool
	stream     Stream
	generation uint64
	lastErr    error
}

func New(media MediaCapture, constraints Constraints, sched schedule.Scheduler, logger *zap.Logger) *Capture {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sched == nil {
		sched = schedule.Real{}
	}
	return &Capture{
		media:       media,
		constraints: constraints,
		sched:       sched,
		logger:      logger,
	}
}

// Apply follows the display mode: local acquires, remote releases.
func (c *Capture) Apply(ctx context.Context, mode model.DisplayMode) {
	if mode == model.DisplayLocal {
		if err := c.Activate(ctx); err != nil && !errors.Is(err, ErrInactive) {
			c.logger.Warn("Local camera unavailable, leaving video area blank", zap.Error(err))
		}
		return
	}
	c.Deactivate()
}

// Activate requests the local stream once per activation. Calling it again
// while active is a no-op, even if the first request failed.
func (c *Capture) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil
	}
	if c.media == nil {
		c.active = true
		c.lastErr = ErrNoDevice
		c.mu.Unlock()
		return ErrNoDevice
	}
	c.active = true
	c.lastErr = nil
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	stream, err := c.media.Open(ctx, c.constraints)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || c.generation != gen {
		if stream != nil {
			stopTracks(stream)
			c.logger.Debug("Released camera stream acquired after deactivation")
		}
		return ErrInactive
	}
	if err != nil {
		c.lastErr = err
		return fmt.Errorf("open local camera: %w", err)
	}

	c.stream = stream
	c.logger.Info("Local camera active", zap.Int("tracks", len(stream.Tracks())))
	return nil
}

// Deactivate stops every track of the current stream.
func (c *Capture) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}
	c.active = false
	c.generation++
	c.lastErr = nil
	if c.stream != nil {
		stopTracks(c.stream)
		c.stream = nil
		c.logger.Info("Local camera released")
	}
}

func (c *Capture) Close() {
	c.Deactivate()
}

func (c *Capture) State() model.CameraState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.CameraState{Active: c.active, Live: c.stream != nil}
}

func (c *Capture) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Frame returns the current frame of the live stream.
func (c *Capture) Frame(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()

	if stream == nil {
		return nil, ErrInactive
	}
	return stream.Frame(ctx)
}

// Snapshot copies the current frame at its native size and encodes it as JPEG.
func (c *Capture) Snapshot(ctx context.Context) (Snapshot, error) {
	frame, err := c.Frame(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	bounds := frame.Bounds()
	buffer := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(buffer, buffer.Bounds(), frame, bounds.Min, draw.Src)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, buffer, &jpeg.Options{Quality: 90}); err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}

	takenAt := c.sched.Now()
	return Snapshot{
		Filename: fmt.Sprintf("capture_%d.jpg", takenAt.UnixMilli()),
		Data:     out.Bytes(),
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		TakenAt:  takenAt,
	}, nil
}

// SaveSnapshot takes a snapshot and writes it into dir.
func (c *Capture) SaveSnapshot(ctx context.Context, dir string) (Snapshot, string, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Snapshot{}, "", fmt.Errorf("create capture dir: %w", err)
	}
	path := filepath.Join(dir, snap.Filename)
	if err := os.WriteFile(path, snap.Data, 0o644); err != nil {
		return Snapshot{}, "", fmt.Errorf("write snapshot: %w", err)
	}
	return snap, path, nil
}

func stopTracks(stream Stream) {
	for _, track := range stream.Tracks() {
		track.Stop()
	}
}
