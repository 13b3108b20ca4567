package demo

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"io"
	"strings"
	"testing"
	"time"

	"adas-dashboard/internal/alerts"
	"adas-dashboard/internal/backend"
	"adas-dashboard/internal/model"
	"adas-dashboard/internal/schedule"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestDemoAlertsAreNewestFirstAndSweepSeverities(t *testing.T) {
	clock := schedule.NewManual(epoch)
	b := NewBackend(clock, time.Second)

	seen := map[model.Severity]bool{}
	var lastID int64
	for i := 0; i < 60; i++ {
		list, err := b.Alerts(context.Background(), 10)
		if err != nil {
			if !errors.Is(err, backend.ErrUnreachable) {
				t.Fatalf("unexpected error: %v", err)
			}
			clock.Advance(time.Second)
			continue
		}
		for idx := 1; idx < len(list); idx++ {
			if list[idx].ID >= list[idx-1].ID {
				t.Fatalf("alerts not newest first: %d then %d", list[idx-1].ID, list[idx].ID)
			}
		}
		if len(list) > 10 {
			t.Fatalf("limit not honoured: %d", len(list))
		}
		if len(list) > 0 {
			if list[0].ID < lastID {
				t.Fatalf("newest id went backwards")
			}
			lastID = list[0].ID
			seen[model.SeverityFor(list[0].Distance)] = true
		}
		clock.Advance(time.Second)
	}

	for _, severity := range []model.Severity{model.SeverityCritical, model.SeverityWarning, model.SeverityInfo} {
		if !seen[severity] {
			t.Fatalf("expected demo to produce %s alerts", severity)
		}
	}
}

func TestDemoEmptyWindowServesParseableCaptures(t *testing.T) {
	clock := schedule.NewManual(epoch)
	b := NewBackend(clock, time.Second)
	clock.Advance(14 * time.Second)

	list, err := b.Alerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty alert window, got %d", len(list))
	}

	captures, err := b.Captures(context.Background(), 10)
	if err != nil {
		t.Fatalf("captures: %v", err)
	}
	if len(captures) == 0 {
		t.Fatalf("expected captures during empty window")
	}
	for _, capture := range captures {
		if _, err := alerts.FromCapture(capture); err != nil {
			t.Fatalf("capture %s not mappable: %v", capture.Filename, err)
		}
		if !strings.HasPrefix(capture.URL, "/captures/image/") {
			t.Fatalf("unexpected capture url %q", capture.URL)
		}
	}
}

func TestDemoCameraDropsAndBackendGoesOffline(t *testing.T) {
	clock := schedule.NewManual(epoch)
	b := NewBackend(clock, time.Second)

	status, err := b.CameraStatus(context.Background())
	if err != nil || !status.CameraInitialized {
		t.Fatalf("expected camera up at start: %+v %v", status, err)
	}

	clock.Advance(24 * time.Second)
	status, err = b.CameraStatus(context.Background())
	if err != nil || status.CameraInitialized {
		t.Fatalf("expected camera down: %+v %v", status, err)
	}
	if _, err := b.VideoFeed(context.Background()); err == nil {
		t.Fatalf("expected video feed to fail while camera is down")
	}

	clock.Advance(17 * time.Second)
	if _, err := b.CameraStatus(context.Background()); !errors.Is(err, backend.ErrUnreachable) {
		t.Fatalf("expected outage at tick 41, got %v", err)
	}
}

func TestDemoAlertImageAndFeed(t *testing.T) {
	clock := schedule.NewManual(epoch)
	b := NewBackend(clock, time.Second)
	clock.Advance(4 * time.Second)

	media, err := b.AlertImage(context.Background(), firstAlertID+4)
	if err != nil {
		t.Fatalf("alert image: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(media.Data)); err != nil {
		t.Fatalf("alert image is not a jpeg: %v", err)
	}

	var statusErr *backend.StatusError
	if _, err := b.AlertImage(context.Background(), firstAlertID+3); !errors.As(err, &statusErr) {
		t.Fatalf("expected not found for a tick without detection, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := b.VideoFeed(ctx)
	if err != nil {
		t.Fatalf("video feed: %v", err)
	}
	head := make([]byte, 9)
	if _, err := io.ReadFull(stream.Body, head); err != nil {
		t.Fatalf("read feed: %v", err)
	}
	if string(head) != "--frame\r\n" {
		t.Fatalf("unexpected feed prefix %q", head)
	}
	cancel()
	_ = stream.Body.Close()
}
