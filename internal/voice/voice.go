// Package voice maps single spoken utterances onto a fixed set of commands.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"adas-dashboard/internal/model"
	"adas-dashboard/internal/schedule"
)

var (
	ErrUnsupported = errors.New("voice recognition unsupported")
	ErrBusy        = errors.New("voice session already listening")
	ErrNoSpeech    = errors.New("no speech detected")
)

const (
	// FeedbackWindow is how long transient feedback stays visible.
	FeedbackWindow = 3 * time.Second
	// SessionTimeout ends a session that never receives an utterance.
	SessionTimeout = 10 * time.Second
)

const (
	FeedbackUnsupported = "Voice control not supported."
	FeedbackListening   = "Listening..."
)

// Command is the abstract token handed to the host screen.
type Command string

const (
	CommandCapture      Command = "capture"
	CommandToggleCamera Command = "toggle_camera"
	CommandStatus       Command = "status"
)

type rule struct {
	keywords []string
	command  Command
	feedback string
}

// Order matters: the first group with a matching keyword wins.
var rules = []rule{
	{keywords: []string{"capture", "photo"}, command: CommandCapture, feedback: "Command: Capture Image"},
	{keywords: []string{"local", "camera"}, command: CommandToggleCamera, feedback: "Command: Switching Camera Mode"},
	{keywords: []string{"status", "report"}, command: CommandStatus, feedback: "Command: System Status"},
}

// Classify matches a transcript by lower-cased substring.
func Classify(transcript string) (Command, bool) {
	command, _, ok := classify(strings.ToLower(transcript))
	return command, ok
}

func classify(lowered string) (Command, string, bool) {
	for _, r := range rules {
		for _, keyword := range r.keywords {
			if strings.Contains(lowered, keyword) {
				return r.command, r.feedback, true
			}
		}
	}
	return "", fmt.Sprintf("Unknown command: %q", lowered), false
}

// Recognizer captures one utterance per call.
type Recognizer interface {
	Available() bool
	Recognize(ctx context.Context) (string, error)
}

// Dispatcher runs at most one recognition session at a time and never
// restarts one on its own.
type Dispatcher struct {
	recognizer Recognizer
	handler    func(Command)
	sched      schedule.Scheduler
	logger     *zap.Logger

	mu          sync.Mutex
	listening   bool
	transcript  string
	feedback    string
	clearCancel schedule.Cancel
	listeners   []func(model.VoiceState)
}

func NewDispatcher(recognizer Recognizer, handler func(Command), sched schedule.Scheduler, logger *zap.Logger) *Dispatcher {
	if handler == nil {
		handler = func(Command) {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		recognizer: recognizer,
		handler:    handler,
		sched:      sched,
		logger:     logger,
	}
}

func (d *Dispatcher) Available() bool {
	return d.recognizer != nil && d.recognizer.Available()
}

func (d *Dispatcher) Recognizer() Recognizer {
	return d.recognizer
}

func (d *Dispatcher) Subscribe(fn func(model.VoiceState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

func (d *Dispatcher) State() model.VoiceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

// Trigger starts a session in the background. It fails fast when the
// recognizer is missing or a session is already running.
func (d *Dispatcher) Trigger(ctx context.Context) error {
	if err := d.begin(); err != nil {
		return err
	}
	go func() {
		_, _ = d.run(ctx)
	}()
	return nil
}

// Listen runs one session and waits for its outcome.
func (d *Dispatcher) Listen(ctx context.Context) (Command, error) {
	if err := d.begin(); err != nil {
		return "", err
	}
	return d.run(ctx)
}

// Process classifies a transcript that arrived outside a session, such as
// typed text.
func (d *Dispatcher) Process(transcript string) (Command, bool, error) {
	d.mu.Lock()
	if d.listening {
		d.mu.Unlock()
		return "", false, ErrBusy
	}
	d.mu.Unlock()

	command, ok := d.process(transcript)
	return command, ok, nil
}

// Stop cancels the pending feedback timer.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.clearCancel != nil {
		d.clearCancel()
		d.clearCancel = nil
	}
}

func (d *Dispatcher) begin() error {
	if !d.Available() {
		d.setFeedback(FeedbackUnsupported, false)
		return ErrUnsupported
	}

	d.mu.Lock()
	if d.listening {
		d.mu.Unlock()
		return ErrBusy
	}
	d.listening = true
	d.feedback = FeedbackListening
	if d.clearCancel != nil {
		d.clearCancel()
		d.clearCancel = nil
	}
	state, listeners := d.stateLocked(), d.listenersLocked()
	d.mu.Unlock()

	publish(listeners, state)
	return nil
}

func (d *Dispatcher) run(ctx context.Context) (Command, error) {
	sessionCtx, cancel := context.WithCancelCause(ctx)
	stopTimer := d.sched.After(SessionTimeout, func() { cancel(ErrNoSpeech) })
	transcript, err := d.recognizer.Recognize(sessionCtx)
	stopTimer()
	if err != nil && errors.Is(context.Cause(sessionCtx), ErrNoSpeech) {
		err = ErrNoSpeech
	}
	cancel(nil)

	d.mu.Lock()
	d.listening = false
	d.mu.Unlock()

	if err != nil {
		d.logger.Warn("Voice recognition failed", zap.Error(err))
		d.setFeedback("Error: "+err.Error(), true)
		return "", err
	}

	command, ok := d.process(transcript)
	if !ok {
		return "", nil
	}
	return command, nil
}

func (d *Dispatcher) process(transcript string) (Command, bool) {
	lowered := strings.ToLower(strings.TrimSpace(transcript))
	command, feedback, ok := classify(lowered)

	d.mu.Lock()
	d.transcript = lowered
	d.mu.Unlock()
	d.setFeedback(feedback, true)

	if !ok {
		d.logger.Info("Unrecognised voice command", zap.String("transcript", lowered))
		return "", false
	}

	d.logger.Info("Voice command", zap.String("command", string(command)), zap.String("transcript", lowered))
	d.handler(command)
	return command, true
}

func (d *Dispatcher) setFeedback(text string, transient bool) {
	d.mu.Lock()
	d.feedback = text
	if d.clearCancel != nil {
		d.clearCancel()
		d.clearCancel = nil
	}
	if transient {
		d.clearCancel = d.sched.After(FeedbackWindow, func() {
			d.mu.Lock()
			if d.feedback != text {
				d.mu.Unlock()
				return
			}
			d.feedback = ""
			d.clearCancel = nil
			state, listeners := d.stateLocked(), d.listenersLocked()
			d.mu.Unlock()
			publish(listeners, state)
		})
	}
	state, listeners := d.stateLocked(), d.listenersLocked()
	d.mu.Unlock()

	publish(listeners, state)
}

func (d *Dispatcher) stateLocked() model.VoiceState {
	return model.VoiceState{
		Available:  d.recognizer != nil && d.recognizer.Available(),
		Listening:  d.listening,
		Transcript: d.transcript,
		Feedback:   d.feedback,
	}
}

func (d *Dispatcher) listenersLocked() []func(model.VoiceState) {
	return append([]func(model.VoiceState){}, d.listeners...)
}

func publish(listeners []func(model.VoiceState), state model.VoiceState) {
	for _, fn := range listeners {
		fn(state)
	}
}
