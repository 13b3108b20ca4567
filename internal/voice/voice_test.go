package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adas-dashboard/internal/model"
	"adas-dashboard/internal/schedule"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestClassifyFirstMatchWins(t *testing.T) {
	cases := []struct {
		transcript string
		want       Command
		ok         bool
	}{
		{"Capture this", CommandCapture, true},
		{"take a photo", CommandCapture, true},
		{"switch to local view", CommandToggleCamera, true},
		{"camera please", CommandToggleCamera, true},
		{"give me a status", CommandStatus, true},
		{"REPORT", CommandStatus, true},
		{"capture the camera status", CommandCapture, true},
		{"camera status", CommandToggleCamera, true},
		{"hello there", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := Classify(tc.transcript)
		assert.Equal(t, tc.ok, ok, tc.transcript)
		assert.Equal(t, tc.want, got, tc.transcript)
	}
}

type scripted struct {
	available  bool
	transcript string
	err        error
	calls      int
}

func (s *scripted) Available() bool { return s.available }

func (s *scripted) Recognize(context.Context) (string, error) {
	s.calls++
	return s.transcript, s.err
}

func TestListenDispatchesRecognisedCommand(t *testing.T) {
	clock := schedule.NewManual(epoch)
	var got []Command
	d := NewDispatcher(&scripted{available: true, transcript: "Take a Photo"}, func(c Command) { got = append(got, c) }, clock, nil)

	command, err := d.Listen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CommandCapture, command)
	assert.Equal(t, []Command{CommandCapture}, got)

	state := d.State()
	assert.False(t, state.Listening)
	assert.Equal(t, "take a photo", state.Transcript)
	assert.Equal(t, "Command: Capture Image", state.Feedback)

	clock.Advance(FeedbackWindow)
	assert.Empty(t, d.State().Feedback)
}

func TestUnknownCommandOnlyGivesFeedback(t *testing.T) {
	clock := schedule.NewManual(epoch)
	var got []Command
	d := NewDispatcher(&scripted{available: true, transcript: "open the sunroof"}, func(c Command) { got = append(got, c) }, clock, nil)

	command, err := d.Listen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, command)
	assert.Empty(t, got)
	assert.Equal(t, `Unknown command: "open the sunroof"`, d.State().Feedback)
}

func TestUnsupportedRecognizer(t *testing.T) {
	d := NewDispatcher(nil, nil, schedule.NewManual(epoch), nil)
	assert.False(t, d.Available())

	err := d.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, FeedbackUnsupported, d.State().Feedback)

	_, err = NewDispatcher(&scripted{available: false}, nil, schedule.NewManual(epoch), nil).Listen(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestRecognitionErrorResetsToIdle(t *testing.T) {
	rec := &scripted{available: true, err: errors.New("no-speech")}
	d := NewDispatcher(rec, nil, schedule.NewManual(epoch), nil)

	_, err := d.Listen(context.Background())
	require.Error(t, err)
	state := d.State()
	assert.False(t, state.Listening)
	assert.Equal(t, "Error: no-speech", state.Feedback)
	assert.Equal(t, 1, rec.calls, "no automatic restart")
}

func TestTriggerIsBusyWhileListening(t *testing.T) {
	clock := schedule.NewManual(epoch)
	started := make(chan struct{}, 1)
	relay := NewRelay(true, func() { started <- struct{}{} })

	var mu sync.Mutex
	var got []Command
	done := make(chan struct{})
	d := NewDispatcher(relay, func(c Command) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
		close(done)
	}, clock, nil)

	require.NoError(t, d.Trigger(context.Background()))
	<-started
	assert.True(t, d.State().Listening)
	assert.ErrorIs(t, d.Trigger(context.Background()), ErrBusy)

	_, _, err := d.Process("capture")
	assert.ErrorIs(t, err, ErrBusy)

	require.True(t, relay.Submit("switch camera"))
	<-done

	mu.Lock()
	assert.Equal(t, []Command{CommandToggleCamera}, got)
	mu.Unlock()
	require.Eventually(t, func() bool { return !d.State().Listening }, time.Second, time.Millisecond)
}

func TestRelayWithoutSession(t *testing.T) {
	relay := NewRelay(true, nil)
	assert.False(t, relay.Submit("status"))
	assert.ErrorIs(t, relay.Fail(errors.New("aborted")), ErrNoSession)
	assert.False(t, relay.Waiting())
}

func TestRelayHonoursContext(t *testing.T) {
	relay := NewRelay(true, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := relay.Recognize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, relay.Waiting())
}

func TestProcessTypedTranscript(t *testing.T) {
	var got []Command
	d := NewDispatcher(NewRelay(true, nil), func(c Command) { got = append(got, c) }, schedule.NewManual(epoch), nil)

	var states []model.VoiceState
	d.Subscribe(func(s model.VoiceState) { states = append(states, s) })

	command, ok, err := d.Process("Status report")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, CommandStatus, command)
	assert.Equal(t, []Command{CommandStatus}, got)
	require.NotEmpty(t, states)
	assert.Equal(t, "Command: System Status", states[len(states)-1].Feedback)
}

func TestSessionWithoutReplyReturnsToIdle(t *testing.T) {
	clock := schedule.NewManual(epoch)
	relay := NewRelay(true, nil)
	d := NewDispatcher(relay, nil, clock, nil)

	result := make(chan error, 1)
	go func() {
		_, err := d.Listen(context.Background())
		result <- err
	}()
	require.Eventually(t, relay.Waiting, time.Second, time.Millisecond)

	clock.Advance(SessionTimeout)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrNoSpeech)
	case <-time.After(time.Second):
		t.Fatal("session did not end after the timeout")
	}
	assert.False(t, d.State().Listening)
	assert.Equal(t, "Error: no speech detected", d.State().Feedback)
	assert.False(t, relay.Waiting())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, d.Trigger(ctx))
}
