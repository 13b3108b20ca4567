package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"go.uber.org/zap"

	"adas-dashboard/internal/backend"
	"adas-dashboard/internal/camera"
	"adas-dashboard/internal/config"
	"adas-dashboard/internal/demo"
	"adas-dashboard/internal/hud"
	"adas-dashboard/internal/logging"
	"adas-dashboard/internal/schedule"
	"adas-dashboard/internal/screen"
	"adas-dashboard/internal/voice"
)

// The driver screen only ever looks at the newest alert.
const driverAlertLimit = 1

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "driver hud failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The terminal belongs to the HUD, so logs go to a file.
	logPath := filepath.Join(os.TempDir(), "adas-driver-hud.log")
	logger, err := logging.NewFile(logPath, cfg.LogLevel, "adas-driver-hud")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sched := schedule.Real{}

	var source screen.Backend
	if cfg.DemoMode {
		source = demo.NewBackend(sched, demo.DefaultStep)
	} else {
		source = backend.NewClient(cfg.APIBaseURL, cfg.RequestTimeout)
	}
	logger.Info("Driver HUD starting", zap.Bool("demo", cfg.DemoMode), zap.String("backend", cfg.APIBaseURL))

	var media camera.MediaCapture
	if cfg.LocalCamera {
		media = camera.Devices{}
	}

	bridge := hud.NewBridge(64, os.Stderr)
	scr := screen.New(screen.Options{
		Role:          screen.RoleDriver,
		AlertLimit:    driverAlertLimit,
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
		Recognizer: voice.NewRelay(cfg.VoiceEnabled, nil),
		Tone:       bridge,
		Publisher:  bridge,
		Announcer:  bridge,
		Logger:     logger.Named("screen"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	scr.Start(ctx)
	defer scr.Stop()

	program := tea.NewProgram(hud.New(ctx, scr, bridge.Events()), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
