package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adas-dashboard/internal/model"
	"adas-dashboard/internal/schedule"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestTracksStoppedAfterLocalToRemote(t *testing.T) {
	fake := &Fake{}
	c := New(fake, DefaultConstraints, schedule.NewManual(epoch), nil)

	c.Apply(context.Background(), model.DisplayLocal)
	require.Len(t, fake.Opened(), 1)
	assert.Equal(t, model.CameraState{Active: true, Live: true}, c.State())

	c.Apply(context.Background(), model.DisplayRemote)
	assert.True(t, fake.Opened()[0].AllStopped())
	assert.Equal(t, model.CameraState{}, c.State())
}

func TestActivateAcquiresOncePerActivation(t *testing.T) {
	fake := &Fake{}
	c := New(fake, DefaultConstraints, schedule.NewManual(epoch), nil)

	c.Apply(context.Background(), model.DisplayLocal)
	c.Apply(context.Background(), model.DisplayLocal)
	c.Apply(context.Background(), model.DisplayLocal)
	assert.Len(t, fake.Opened(), 1)

	c.Apply(context.Background(), model.DisplayRemote)
	c.Apply(context.Background(), model.DisplayLocal)
	require.Len(t, fake.Opened(), 2)
	assert.True(t, fake.Opened()[0].AllStopped())
	assert.False(t, fake.Opened()[1].AllStopped())

	c.Close()
	assert.True(t, fake.Opened()[1].AllStopped())
}

func TestPermissionDeniedLeavesAreaBlank(t *testing.T) {
	fake := &Fake{Err: ErrPermissionDenied}
	c := New(fake, DefaultConstraints, schedule.NewManual(epoch), nil)

	require.NotPanics(t, func() { c.Apply(context.Background(), model.DisplayLocal) })
	assert.Equal(t, model.CameraState{Active: true, Live: false}, c.State())
	assert.True(t, errors.Is(c.LastError(), ErrPermissionDenied))

	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrInactive)

	// No retry until the next activation.
	fake.Err = nil
	c.Apply(context.Background(), model.DisplayLocal)
	assert.Empty(t, fake.Opened())
}

func TestMissingDeviceIsReported(t *testing.T) {
	c := New(nil, DefaultConstraints, schedule.NewManual(epoch), nil)
	err := c.Activate(context.Background())
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestLateStreamIsReleased(t *testing.T) {
	block := make(chan struct{})
	fake := &Fake{Block: block}
	c := New(fake, DefaultConstraints, schedule.NewManual(epoch), nil)

	done := make(chan error, 1)
	go func() { done <- c.Activate(context.Background()) }()

	require.Eventually(t, func() bool { return c.State().Active }, time.Second, time.Millisecond)
	c.Deactivate()
	close(block)

	assert.ErrorIs(t, <-done, ErrInactive)
	require.Len(t, fake.Opened(), 1)
	assert.True(t, fake.Opened()[0].AllStopped())
	assert.False(t, c.State().Live)
}

func TestSnapshotUsesNativeSizeAndTimestampName(t *testing.T) {
	fake := &Fake{Size: image.Pt(320, 240), Fill: color.RGBA{R: 200, A: 255}}
	c := New(fake, DefaultConstraints, schedule.NewManual(epoch), nil)
	require.NoError(t, c.Activate(context.Background()))

	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "capture_1772352000000.jpg", snap.Filename)
	assert.Equal(t, 320, snap.Width)
	assert.Equal(t, 240, snap.Height)

	decoded, err := jpeg.Decode(bytes.NewReader(snap.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 240), decoded.Bounds())
}

func TestSaveSnapshotWritesFile(t *testing.T) {
	fake := &Fake{Size: image.Pt(64, 48)}
	c := New(fake, DefaultConstraints, schedule.NewManual(epoch), nil)
	require.NoError(t, c.Activate(context.Background()))

	dir := filepath.Join(t.TempDir(), "captures")
	snap, path, err := c.SaveSnapshot(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, snap.Filename), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Data, data)
}
