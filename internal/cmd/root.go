// SPDX-License-Identifier: AGPL-3.0-or-later
// DMRHub - Run a DMR network server in a single binary
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/dvm-project/fne>

// Package cmd wires the command line entrypoint: config load, logger setup,
// the ambient metrics/pprof servers, and the fne.Host that owns every
// network-facing subsystem, with graceful shutdown on signal.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/dvm-project/fne/internal/config"
	"github.com/dvm-project/fne/internal/fne"
	"github.com/dvm-project/fne/internal/metrics"
	"github.com/dvm-project/fne/internal/pprof"
	"github.com/USA-RedDragon/configulator"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/ztrue/shutdown"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewCommand builds the root cobra command for the fne binary.
func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fne",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:              runRoot,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	fmt.Printf("fne - %s (%s)\n", cmd.Annotations["version"], cmd.Annotations["commit"])

	c, err := configulator.FromContext[config.Config](ctx)
	if err != nil {
		return fmt.Errorf("failed to get config from context: %w", err)
	}

	cfg, err := c.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var logger *slog.Logger
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	case config.LogLevelInfo:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	case config.LogLevelWarn:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))
	case config.LogLevelError:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelError}))
	}
	slog.SetDefault(logger)

	var cleanup func(context.Context) error
	if cfg.Metrics.OTLPEndpoint != "" {
		cleanup = initTracer(cfg)
		defer func() {
			if err := cleanup(ctx); err != nil {
				slog.Error("failed to shut down tracer", "error", err)
			}
		}()
	}
	go metrics.CreateMetricsServer(cfg)
	go pprof.CreatePProfServer(cfg)

	m := metrics.NewMetrics()

	host, err := fne.New(cfg, logger, m)
	if err != nil {
		return fmt.Errorf("failed to build fne host: %w", err)
	}

	if err := host.Start(ctx); err != nil {
		return fmt.Errorf("failed to start fne host: %w", err)
	}

	stop := func(sig os.Signal) {
		slog.Error("shutting down due to signal", "signal", sig)
		wg := new(sync.WaitGroup)

		wg.Add(1)
		go func(wg *sync.WaitGroup) {
			defer wg.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := host.Stop(stopCtx); err != nil {
				slog.Error("failed to stop fne host", "error", err)
			}
		}(wg)

		if cfg.Metrics.OTLPEndpoint != "" {
			wg.Add(1)
			go func(wg *sync.WaitGroup) {
				defer wg.Done()
				tracerCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				defer cancel()
				if err := cleanup(tracerCtx); err != nil {
					slog.Error("failed to shut down tracer", "error", err)
				}
			}(wg)
		}

		c := make(chan struct{})
		go func() {
			defer close(c)
			wg.Wait()
		}()
		select {
		case <-c:
			slog.Info("shutdown completed safely")
			os.Exit(0)
		case <-time.After(shutdownTimeout):
			slog.Error("shutdown timed out")
			os.Exit(1)
		}
	}
	defer stop(syscall.SIGINT)

	shutdown.AddWithParam(stop)
	shutdown.Listen(syscall.SIGINT, syscall.SIGKILL, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	return nil
}

const (
	stopTimeout     = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

func initTracer(cfg *config.Config) func(context.Context) error {
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cfg.Metrics.OTLPEndpoint),
		),
	)
	if err != nil {
		slog.Error("failed tracing app", "error", err)
	}
	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "fne"),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		slog.Error("could not set resources", "error", err)
	}

	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resources),
		),
	)
	return exporter.Shutdown
}
