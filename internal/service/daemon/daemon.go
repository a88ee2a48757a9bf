// Package daemon wires the alarm engine, sensor sampling, audio, sync,
// MQTT and the HTTP API into the long-running roused process.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	httpapi "rouse/internal/api/http"
	"rouse/internal/audio"
	"rouse/internal/config"
	"rouse/internal/device"
	"rouse/internal/engine"
	"rouse/internal/logger"
	"rouse/internal/motion"
	"rouse/internal/mqtt"
	"rouse/internal/repository/store"
	"rouse/internal/sync"
)

// Options controls the roused process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// EnvFile is an optional dotenv file loaded before reading secrets.
	EnvFile string
	// ListenAddress overrides the HTTP API listen address from config.
	ListenAddress string
}

// Run starts the daemon and blocks until the context is canceled or a fatal
// component error occurs. The persistence layer failing to open is fatal;
// sync and MQTT being unreachable is not.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "roused")

	if err := config.LoadDotenv(opts.EnvFile); err != nil {
		return err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if cfg.LogLevel != "" {
		level, parseErr := zapcore.ParseLevel(cfg.LogLevel)
		if parseErr != nil {
			return fmt.Errorf("parse log level %q: %w", cfg.LogLevel, parseErr)
		}

		logger.SetLevel(level)
	}

	listenAddress := cfg.ListenAddress
	if opts.ListenAddress != "" {
		listenAddress = opts.ListenAddress
	}

	deviceID, err := device.LoadOrCreateID(cfg.DeviceIDPath)
	if err != nil {
		return fmt.Errorf("load device identity: %w", err)
	}

	repo, err := store.Open(ctx, cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer repo.Close()

	player := audio.NewExecPlayer(cfg.Audio.PlayerCommand, cfg.Audio.VolumeCommand)
	ringer := audio.NewCoordinator(player, cfg.Audio)

	// Fade-outs run in the background; no audio may outlive the daemon.
	defer ringer.Drain()

	eng, err := engine.New(ctx, engine.ConfigFromSettings(cfg, deviceID), repo, ringer)
	if err != nil {
		return fmt.Errorf("initialise engine: %w", err)
	}

	logger.InfoKV(ctx, "Daemon starting",
		"device_id", deviceID,
		"listen_address", listenAddress,
		"state_path", cfg.StatePath)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return eng.Run(groupCtx)
	})

	if cfg.Motion.DevicePath != "" {
		sampler := motion.NewSampler(motion.NewFileSensor(cfg.Motion.DevicePath), cfg.Motion.SampleInterval)

		group.Go(func() error {
			return sampler.Run(groupCtx, eng.Samples())
		})
	} else {
		logger.Warn(ctx, "No motion device configured, gesture dismissal is disabled")
	}

	if cfg.Sync.Endpoint != "" {
		client := sync.NewClient(sync.ClientConfig{
			Endpoint:     cfg.Sync.Endpoint,
			Token:        cfg.Sync.Token,
			DeviceID:     deviceID,
			Timeout:      cfg.Sync.Timeout,
			RetryCount:   cfg.Sync.RetryAttempts,
			RetryWait:    cfg.Sync.RetryBaseWait,
			RetryMaxWait: cfg.Sync.RetryMaxWait,
		})

		runner := sync.NewRunner(sync.RunnerConfig{Interval: cfg.Sync.Interval}, client, eng)

		group.Go(func() error {
			return runner.Run(groupCtx)
		})
	}

	if cfg.MQTT.Broker != "" {
		announcer, mqttErr := mqtt.NewAnnouncer(groupCtx, mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			DeviceID: deviceID,
		}, eng)
		if mqttErr != nil {
			// Only misconfiguration fails construction; a down broker is
			// retried in the background and never touches the alarm.
			logger.WarnKV(ctx, "MQTT announcer disabled", "error", mqttErr)
		} else {
			group.Go(func() error {
				return announcer.Run(groupCtx)
			})
		}
	}

	api := httpapi.NewServer(eng)

	group.Go(func() error {
		return api.Run(groupCtx, listenAddress)
	})

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(ctx, "Daemon stopped")

	return nil
}
