package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rtkbase/internal/bus"
	"rtkbase/internal/config"
	"rtkbase/internal/link"
	"rtkbase/internal/ntrip"
	"rtkbase/internal/statusled"
	"rtkbase/internal/supervisor"
	"rtkbase/internal/ubx"
	"rtkbase/internal/web"
)

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := newLogger(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := bus.New(bus.Config{
		DropLimit:  cfg.Ntrip.DropLimit,
		DropWindow: cfg.Ntrip.DropWindow,
	}, logger.With().Str("component", "bus").Logger())

	lnk := link.New(linkConfig(cfg), receiverDialer(cfg.Receiver), b,
		logger.With().Str("component", "link").Logger())

	srv := ntrip.NewServer(ntrip.ServerConfig{
		Listen: cfg.Ntrip.Listen,
		Session: ntrip.SessionConfig{
			Mount:            cfg.Ntrip.Mount,
			Password:         cfg.Ntrip.Password,
			HandshakeTimeout: cfg.Ntrip.HandshakeTimeout,
			WriteTimeout:     cfg.Ntrip.WriteTimeout,
			QueueSize:        cfg.Ntrip.QueueSize,
		},
	}, b, logger.With().Str("component", "ntrip").Logger())

	sup := supervisor.New(supervisor.Config{}, lnk, srv, b,
		logger.With().Str("component", "supervisor").Logger())

	logger.Info().Str("config", configPath).Str("listen", cfg.Ntrip.Listen).Msg("rtkbase starting")
	if err := sup.Start(ctx); err != nil {
		return err
	}
	defer sup.Close()

	led := statusled.New(statusled.Config{
		Enable: cfg.LED.Enable,
		Pin:    cfg.LED.Pin,
	}, sup.LinkState, logger.With().Str("component", "statusled").Logger())
	if err := led.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("status led start failed")
	}
	defer led.Close()

	if cfg.Web.Enable {
		go func() {
			err := web.Serve(ctx, cfg.Web.Listen, sup.Snapshot)
			if err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("web server stopped")
				cancel()
			}
		}()
		logger.Info().Str("listen", cfg.Web.Listen).Msg("health api up")
	}

	// Live reload applies the log level only; transport and policy changes
	// need a restart.
	go func() {
		_ = config.Watch(ctx, configPath, logger, func(newCfg config.Config) {
			zerolog.SetGlobalLevel(parseLevel(newCfg.Log.Level))
		})
	}()

	<-ctx.Done()
	logger.Info().Msg("rtkbase stopping")
	return nil
}

func linkConfig(cfg config.Config) link.Config {
	return link.Config{
		IdleTimeout:    cfg.Receiver.IdleTimeout,
		CursorCapacity: cfg.Receiver.CursorCapacity,
		Configure: link.ConfigureConfig{
			Enable:                 cfg.Receiver.Configure.Enable,
			FactoryReset:           cfg.Receiver.Configure.FactoryReset,
			Mode:                   cfg.Receiver.Configure.Mode,
			AccuracyLimitMM:        cfg.Receiver.Configure.AccuracyLimitMM,
			SurveyInMinDurationSec: uint32(cfg.Receiver.Configure.SurveyInMinDuration / time.Second),
			Position: ubx.Position{
				LatitudeDegrees:  cfg.Receiver.Configure.LatitudeDegrees,
				LongitudeDegrees: cfg.Receiver.Configure.LongitudeDegrees,
				AltitudeMeters:   cfg.Receiver.Configure.AltitudeMeters,
			},
			AckTimeout: cfg.Receiver.Configure.AckTimeout,
		},
	}
}

func receiverDialer(cfg config.ReceiverConfig) link.Dialer {
	if cfg.Transport == "tcp" {
		return link.TCPDialer(cfg.Addr)
	}
	return link.SerialDialer(cfg.Device, cfg.Baud)
}

func newLogger(level string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
