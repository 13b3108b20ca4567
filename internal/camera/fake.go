package camera

import (
	"context"
	"image"
	"image/color"
	"strconv"
	"sync"
)

// Fake is an in-memory MediaCapture that serves a solid-colour frame.
type Fake struct {
	mu      sync.Mutex
	Err     error
	Size    image.Point
	Fill    color.Color
	Block   chan struct{}
	opened  []*FakeStream
	counter int
}

func (f *Fake) Open(ctx context.Context, constraints Constraints) (Stream, error) {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}

	size := f.Size
	if size == (image.Point{}) {
		size = image.Pt(constraints.Width, constraints.Height)
	}
	fill := f.Fill
	if fill == nil {
		fill = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	}

	f.counter++
	stream := &FakeStream{
		tracks: []*FakeTrack{{id: "video-" + strconv.Itoa(f.counter)}},
		frame:  solid(size, fill),
	}
	f.opened = append(f.opened, stream)
	return stream, nil
}

// Opened returns every stream handed out so far.
func (f *Fake) Opened() []*FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeStream(nil), f.opened...)
}

type FakeStream struct {
	tracks []*FakeTrack
	frame  image.Image
}

func (s *FakeStream) Tracks() []Track {
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *FakeStream) Frame(context.Context) (image.Image, error) {
	for _, t := range s.tracks {
		if t.Stopped() {
			return nil, ErrInactive
		}
	}
	return s.frame, nil
}

// AllStopped reports whether every track has been stopped.
func (s *FakeStream) AllStopped() bool {
	for _, t := range s.tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

type FakeTrack struct {
	id      string
	mu      sync.Mutex
	stopped bool
}

func (t *FakeTrack) ID() string { return t.id }

func (t *FakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *FakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func solid(size image.Point, fill color.Color) image.Image {
	if size.X <= 0 || size.Y <= 0 {
		size = image.Pt(640, 480)
	}
	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			img.Set(x, y, fill)
		}
	}
	return img
}
