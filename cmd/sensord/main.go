// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/sensormux/sensord/lib/config"
	"github.com/sensormux/sensord/lib/hal"
	"github.com/sensormux/sensord/lib/policy"
	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   string
		simulatedHAL bool
		debugLogging bool
	)
	pflag.StringVar(&configPath, "config", "", "path to sensord.yaml (defaults to $SENSORD_CONFIG)")
	pflag.BoolVar(&simulatedHAL, "simulated-hal", false, "serve a simulated sensor catalog instead of real hardware")
	pflag.BoolVar(&debugLogging, "debug", false, "log at debug level")
	pflag.Parse()

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if debugLogging {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// The real HAL is a vendor component attached out of process; this
	// binary only ships the simulated catalog for development and
	// integration testing.
	if !simulatedHAL {
		return fmt.Errorf("no HAL transport configured; run with --simulated-hal for the development catalog")
	}
	adapter := hal.NewMock(simulatedCatalog())

	pm := policy.NewStaticPackageManager()

	svc, err := service.New(cfg, service.Deps{
		HAL:      adapter,
		Packages: pm,
		AppOps:   pm,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("sensord starting", "environment", string(cfg.Environment), "simulated_hal", simulatedHAL)
	return svc.Run(ctx)
}

// simulatedCatalog is the sensor set the simulated HAL exposes: the
// raw IMU trio (so the fusion sensors get synthesized on top), plus
// an on-change light sensor and a wake-up proximity sensor to
// exercise the replay and wakelock paths.
func simulatedCatalog() []schema.Sensor {
	return []schema.Sensor{
		{Handle: 1, Type: schema.TypeAccelerometer, Name: "Simulated Accelerometer",
			MinDelayNs: 10_000_000, MaxDelayNs: 1_000_000_000, FIFOMaxEventCount: 128,
			ReportingMode: schema.ReportingContinuous, UUID: uuid.New()},
		{Handle: 2, Type: schema.TypeGyroscope, Name: "Simulated Gyroscope",
			MinDelayNs: 10_000_000, MaxDelayNs: 1_000_000_000, FIFOMaxEventCount: 128,
			ReportingMode: schema.ReportingContinuous, UUID: uuid.New()},
		{Handle: 3, Type: schema.TypeMagnetometer, Name: "Simulated Magnetometer",
			MinDelayNs: 20_000_000, MaxDelayNs: 1_000_000_000,
			ReportingMode: schema.ReportingContinuous, UUID: uuid.New()},
		{Handle: 4, Type: schema.TypeLight, Name: "Simulated Light",
			ReportingMode: schema.ReportingOnChange, UUID: uuid.New()},
		{Handle: 5, Type: schema.TypeProximity, Name: "Simulated Proximity",
			ReportingMode: schema.ReportingOnChange, Flags: schema.FlagWakeUp, UUID: uuid.New()},
		{Handle: 6, Type: schema.TypeStepCounter, Name: "Simulated Step Counter",
			ReportingMode: schema.ReportingOnChange, UUID: uuid.New()},
		{Handle: 7, Type: schema.TypePressure, Name: "Simulated Pressure",
			MinDelayNs: 100_000_000, ReportingMode: schema.ReportingContinuous, UUID: uuid.New()},
	}
}
