// Package demo is a synthetic detection backend for running the dashboards
// without hardware.
package demo

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"net/http"
	"strconv"
	"time"

	"adas-dashboard/internal/backend"
	"adas-dashboard/internal/model"
	"adas-dashboard/internal/mjpeg"
	"adas-dashboard/internal/schedule"
)

const (
	// DefaultStep is the length of one scene tick.
	DefaultStep = 2 * time.Second

	firstAlertID = 1000
	frameSize    = 320
	frameHeight  = 240
)

type objectSeed struct {
	Class      string
	Confidence float64
	From       float64
	Speed      float64
}

// One object approaches per scene; each scene lasts sceneTicks ticks.
const sceneTicks = 6

var seeds = []objectSeed{
	{"car", 0.91, 85, 9},
	{"person", 0.84, 48, 5},
	{"truck", 0.88, 120, 14},
	{"bicycle", 0.77, 62, 7},
	{"motorcycle", 0.81, 70, 10},
}

// Backend answers the same calls as the REST client from a deterministic
// script driven by the scheduler's clock.
type Backend struct {
	sched   schedule.Scheduler
	step    time.Duration
	startAt time.Time
}

func NewBackend(sched schedule.Scheduler, step time.Duration) *Backend {
	if sched == nil {
		sched = schedule.Real{}
	}
	if step <= 0 {
		step = DefaultStep
	}
	return &Backend{
		sched:   sched,
		step:    step,
		startAt: sched.Now(),
	}
}

func (b *Backend) tick() int {
	elapsed := b.sched.Now().Sub(b.startAt)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / b.step)
}

// Phases of the scripted cycle.
func offline(tick int) bool     { return tick%43 >= 41 }
func cameraDown(tick int) bool  { return tick%29 >= 24 }
func alertsEmpty(tick int) bool { return tick%17 >= 14 }
func detectionAt(tick int) bool { return tick%2 == 0 }

func (b *Backend) CameraStatus(ctx context.Context) (model.CameraStatus, error) {
	tick := b.tick()
	if offline(tick) {
		return model.CameraStatus{}, fmt.Errorf("%w: demo backend outage", backend.ErrUnreachable)
	}
	up := !cameraDown(tick)
	return model.CameraStatus{CameraInitialized: up, CameraOpen: up}, nil
}

func (b *Backend) Alerts(ctx context.Context, limit int) ([]model.Alert, error) {
	tick := b.tick()
	if offline(tick) {
		return nil, fmt.Errorf("%w: demo backend outage", backend.ErrUnreachable)
	}
	if alertsEmpty(tick) {
		return []model.Alert{}, nil
	}
	return b.history(tick, limit), nil
}

func (b *Backend) Captures(ctx context.Context, limit int) ([]model.Capture, error) {
	tick := b.tick()
	if offline(tick) {
		return nil, fmt.Errorf("%w: demo backend outage", backend.ErrUnreachable)
	}

	history := b.history(tick, limit)
	captures := make([]model.Capture, 0, len(history))
	for _, alert := range history {
		ts := alert.Timestamp.Unix()
		filename := fmt.Sprintf("alert_%d_%.1fm.jpg", ts, alert.Distance)
		captures = append(captures, model.Capture{
			Filename:  filename,
			Timestamp: ts,
			Distance:  fmt.Sprintf("%.1fm", alert.Distance),
			Filesize:  int64(18000 + alert.ID%7*1300),
			URL:       "/captures/image/" + filename,
		})
	}
	return captures, nil
}

func (b *Backend) AdminStats(ctx context.Context) (model.AdminStats, error) {
	tick := b.tick()
	if offline(tick) {
		return model.AdminStats{}, fmt.Errorf("%w: demo backend outage", backend.ErrUnreachable)
	}
	return model.AdminStats{
		TotalUsers:  42 + tick/30,
		ActiveUsers: 3 + tick%5,
	}, nil
}

func (b *Backend) AlertImage(ctx context.Context, id int64) (backend.Media, error) {
	path := "/alerts/" + strconv.FormatInt(id, 10) + "/image"
	tick := int(id - firstAlertID)
	if tick < 0 || tick > b.tick() || !detectionAt(tick) {
		return backend.Media{}, &backend.StatusError{Path: path, StatusCode: http.StatusNotFound, Body: "Alert not found"}
	}

	data, err := mjpeg.Encode(render(b.alertAt(tick).Distance, tick), 85)
	if err != nil {
		return backend.Media{}, err
	}
	return backend.Media{ContentType: "image/jpeg", Data: data}, nil
}

// VideoFeed streams rendered frames until ctx ends or the body is closed.
func (b *Backend) VideoFeed(ctx context.Context) (backend.Stream, error) {
	tick := b.tick()
	if offline(tick) {
		return backend.Stream{}, fmt.Errorf("%w: demo backend outage", backend.ErrUnreachable)
	}
	if cameraDown(tick) {
		return backend.Stream{}, &backend.StatusError{Path: "/video_feed", StatusCode: http.StatusServiceUnavailable, Body: "Camera not available"}
	}

	reader, writer := io.Pipe()
	go func() {
		frames := mjpeg.NewWriter(writer)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			current := b.tick()
			data, err := mjpeg.Encode(render(b.alertAt(current).Distance, current), 70)
			if err == nil {
				err = frames.WriteFrame(data)
			}
			if err != nil {
				_ = writer.CloseWithError(err)
				return
			}
			select {
			case <-ctx.Done():
				_ = writer.CloseWithError(ctx.Err())
				return
			case <-ticker.C:
			}
		}
	}()

	return backend.Stream{ContentType: mjpeg.ContentType, Body: reader}, nil
}

// alertAt is the detection scripted for tick.
func (b *Backend) alertAt(tick int) model.Alert {
	seed := seeds[(tick/sceneTicks)%len(seeds)]
	distance := seed.From - seed.Speed*float64(tick%sceneTicks)
	if distance < 3 {
		distance = 3
	}
	return model.Alert{
		ID:          int64(firstAlertID + tick),
		Timestamp:   model.NewTimestamp(b.startAt.Add(time.Duration(tick) * b.step)),
		ObjectClass: seed.Class,
		Confidence:  seed.Confidence,
		Distance:    distance,
		ImagePath:   fmt.Sprintf("captured_alerts/alert_%d.jpg", firstAlertID+tick),
	}
}

// history returns up to limit detections, newest first.
func (b *Backend) history(tick, limit int) []model.Alert {
	if limit <= 0 {
		limit = 10
	}
	out := make([]model.Alert, 0, limit)
	for t := tick; t >= 0 && len(out) < limit; t-- {
		if detectionAt(t) {
			out = append(out, b.alertAt(t))
		}
	}
	return out
}

// render draws a road scene with a box whose size grows as the object nears.
func render(distance float64, tick int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, frameSize, frameHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 24, G: 26, B: 32, A: 255}}, image.Point{}, draw.Src)

	road := image.Rect(frameSize/2-6, frameHeight/2, frameSize/2+6, frameHeight)
	if tick%2 == 0 {
		road = road.Add(image.Pt(0, 8))
	}
	draw.Draw(img, road, &image.Uniform{C: color.RGBA{R: 200, G: 200, B: 200, A: 255}}, image.Point{}, draw.Src)

	half := int(1800 / (distance + 10))
	box := image.Rect(frameSize/2-half, frameHeight/2-half/2, frameSize/2+half, frameHeight/2+half)
	draw.Draw(img, box.Intersect(img.Bounds()), &image.Uniform{C: severityColor(model.SeverityFor(distance))}, image.Point{}, draw.Over)

	return img
}

func severityColor(severity model.Severity) color.Color {
	switch severity {
	case model.SeverityCritical:
		return color.RGBA{R: 230, G: 50, B: 50, A: 200}
	case model.SeverityWarning:
		return color.RGBA{R: 240, G: 170, B: 40, A: 200}
	default:
		return color.RGBA{R: 60, G: 170, B: 230, A: 200}
	}
}
