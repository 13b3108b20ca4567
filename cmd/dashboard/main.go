package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"go.uber.org/zap"

	"adas-dashboard/internal/backend"
	"adas-dashboard/internal/camera"
	"adas-dashboard/internal/config"
	"adas-dashboard/internal/demo"
	httpapi "adas-dashboard/internal/http"
	"adas-dashboard/internal/hub"
	"adas-dashboard/internal/logging"
	"adas-dashboard/internal/model"
	"adas-dashboard/internal/schedule"
	"adas-dashboard/internal/screen"
	"adas-dashboard/internal/voice"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "adas-dashboard")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sched := schedule.Real{}

	var source screen.Backend
	if cfg.DemoMode {
		logger.Info("Running in demonstration mode")
		source = demo.NewBackend(sched, demo.DefaultStep)
	} else {
		logger.Info("Using detection backend", zap.String("url", cfg.APIBaseURL))
		source = backend.NewClient(cfg.APIBaseURL, cfg.RequestTimeout)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events := hub.New(sched, logger.Named("hub"))
	go events.Run(ctx)

	relay := voice.NewRelay(cfg.VoiceEnabled, func() {
		events.Publish(model.Event{Type: model.EventVoiceListen})
	})

	var media camera.MediaCapture
	if cfg.LocalCamera {
		media = camera.Devices{}
	}

	scr := screen.New(screen.Options{
		Role:          screen.RoleAdmin,
		AlertLimit:    cfg.AlertLimit,
		ProbeInterval: cfg.ProbeInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
		PollInterval:  cfg.PollInterval,
		CaptureDir:    cfg.CaptureDir,
	}, screen.Deps{
		Backend:   source,
		Scheduler: sched,
		Media:     media,
		Constraints: camera.Constraints{
			Width:      cfg.CameraWidth,
			Height:     cfg.CameraHeight,
			FacingMode: camera.DefaultConstraints.FacingMode,
		},
		Recognizer: relay,
		Tone:       events,
		Publisher:  events,
		Announcer:  events,
		Logger:     logger.Named("screen"),
	})

	events.OnMessage(func(msg hub.Message) {
		route(scr, msg, logger)
	})

	scr.Start(ctx)
	defer scr.Stop()

	server := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: httpapi.New(scr, httpapi.Options{
			PageTitle:    cfg.PageTitle,
			PageSubtitle: cfg.PageSubtitle,
			Events:       http.HandlerFunc(events.ServeWS),
		}, logger.Named("http")),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		defer close(shutdownDone)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown error", zap.Error(err))
		}
	}()

	logger.Info("ADAS dashboard listening", zap.String("addr", cfg.ListenAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-shutdownDone
	return nil
}

func route(scr *screen.Screen, msg hub.Message, logger *zap.Logger) {
	switch msg.Type {
	case hub.MessageTranscript:
		if _, _, err := scr.SubmitTranscript(msg.Transcript); err != nil {
			logger.Info("Transcript rejected", zap.Error(err))
		}
	case hub.MessageVoiceError:
		if err := scr.FailVoice(errors.New(msg.Error)); err != nil {
			logger.Debug("Voice error ignored", zap.Error(err))
		}
	case hub.MessageDismiss:
		scr.Dismiss(msg.ID)
	case hub.MessageFeedError:
		scr.ReportFeedError(errors.New(msg.Error))
	default:
		logger.Debug("Unknown client message", zap.String("type", msg.Type))
	}
}
