package camera

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"strings"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
)

// Devices binds MediaCapture to the host's cameras. A camera driver must be
// registered by the binary with a blank import of
// github.com/pion/mediadevices/pkg/driver/camera.
type Devices struct{}

func (Devices) Open(ctx context.Context, constraints Constraints) (Stream, error) {
	device, ok := pickDevice(mediadevices.EnumerateDevices(), constraints.FacingMode)
	if !ok {
		return nil, ErrNoDevice
	}

	type opened struct {
		stream mediadevices.MediaStream
		err    error
	}
	done := make(chan opened, 1)
	go func() {
		stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Video: func(c *mediadevices.MediaTrackConstraints) {
				c.DeviceID = prop.String(device.DeviceID)
				if constraints.Width > 0 {
					c.Width = prop.Int(constraints.Width)
				}
				if constraints.Height > 0 {
					c.Height = prop.Int(constraints.Height)
				}
			},
		})
		done <- opened{stream: stream, err: err}
	}()

	var result opened
	select {
	case result = <-done:
	case <-ctx.Done():
		// Release whatever arrives later.
		go func() {
			if late := <-done; late.err == nil {
				for _, track := range late.stream.GetTracks() {
					_ = track.Close()
				}
			}
		}()
		return nil, ctx.Err()
	}
	if result.err != nil {
		return nil, classify(result.err)
	}

	return newDeviceStream(result.stream)
}

func pickDevice(devices []mediadevices.MediaDeviceInfo, facing string) (mediadevices.MediaDeviceInfo, bool) {
	var cameras []mediadevices.MediaDeviceInfo
	for _, device := range devices {
		if device.Kind == mediadevices.VideoInput {
			cameras = append(cameras, device)
		}
	}
	if len(cameras) == 0 {
		return mediadevices.MediaDeviceInfo{}, false
	}

	hints := []string{"front", "facetime", "user", "integrated"}
	if facing == "environment" {
		hints = []string{"back", "rear", "environment"}
	}
	for _, camera := range cameras {
		label := strings.ToLower(camera.Label)
		for _, hint := range hints {
			if strings.Contains(label, hint) {
				return camera, true
			}
		}
	}
	return cameras[0], true
}

func classify(err error) error {
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "permission"), strings.Contains(text, "denied"), strings.Contains(text, "not permitted"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(text, "not found"), strings.Contains(text, "no such"), strings.Contains(text, "failed to find"):
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	default:
		return err
	}
}

type deviceStream struct {
	tracks []*deviceTrack
	mu     sync.Mutex
	reader video.Reader
}

func newDeviceStream(stream mediadevices.MediaStream) (*deviceStream, error) {
	out := &deviceStream{}
	for _, track := range stream.GetTracks() {
		out.tracks = append(out.tracks, &deviceTrack{track: track})
	}

	for _, track := range stream.GetVideoTracks() {
		if videoTrack, ok := track.(*mediadevices.VideoTrack); ok {
			out.reader = videoTrack.NewReader(false)
			break
		}
	}
	if out.reader == nil {
		for _, track := range out.tracks {
			track.Stop()
		}
		return nil, ErrNoDevice
	}
	return out, nil
}

func (s *deviceStream) Tracks() []Track {
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *deviceStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, t := range s.tracks {
		if t.Stopped() {
			return nil, ErrInactive
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	frame, release, err := s.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read camera frame: %w", err)
	}
	defer release()

	bounds := frame.Bounds()
	copied := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(copied, copied.Bounds(), frame, bounds.Min, draw.Src)
	return copied, nil
}

type deviceTrack struct {
	track   mediadevices.Track
	mu      sync.Mutex
	stopped bool
}

func (t *deviceTrack) ID() string { return t.track.ID() }

func (t *deviceTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	_ = t.track.Close()
}

func (t *deviceTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
