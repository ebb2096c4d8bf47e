package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"smart-tracker/config"
	"smart-tracker/internal/application"
	"smart-tracker/internal/automation"
	"smart-tracker/internal/domain"
	"smart-tracker/internal/infra/chime"
	"smart-tracker/internal/infra/httpapi"
	"smart-tracker/internal/infra/memstore"
	"smart-tracker/internal/infra/mqtt"
	"smart-tracker/internal/infra/postgres"
	"smart-tracker/internal/infra/pushover"
	"smart-tracker/internal/infra/redis"
	"smart-tracker/internal/state"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("loading .env", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)
	if err := run(cfg, logger); err != nil {
		logger.Error("tracker dashboard stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the dashboard and blocks until the session ends. Every backend
// opened here is closed before it returns.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	records, closeRecords, err := createRecordStore(ctx, cfg.Tracker, logger)
	if err != nil {
		return fmt.Errorf("creating record store: %w", err)
	}
	defer closeRecords()

	latest, closeLatest, err := createLatestCache(ctx, cfg.Latest, logger)
	if err != nil {
		return fmt.Errorf("creating latest cache: %w", err)
	}
	defer closeLatest()

	transport := mqtt.NewClient(mqtt.Config{
		Broker:          cfg.MQTT.Broker,
		ClientIDPrefix:  cfg.MQTT.ClientIDPrefix,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		ConnectTimeout:  duration(logger, "mqtt.connect_timeout", cfg.MQTT.ConnectTimeout, mqtt.DefaultConnectTimeout),
		ReconnectPeriod: duration(logger, "mqtt.reconnect_period", cfg.MQTT.ReconnectPeriod, mqtt.DefaultReconnectPeriod),
		KeepAlive:       duration(logger, "mqtt.keepalive", cfg.MQTT.KeepAlive, mqtt.DefaultKeepAlive),
	}, logger)

	encoding := domain.Encoding(cfg.Session.CommandEncoding)
	commandPolicy := application.DeliveryPolicy{QoS: byte(cfg.Session.CommandQoS), Retain: cfg.Session.Retain}

	dispatcher := application.NewDispatcher(
		transport,
		cfg.MQTT.CommandTopic,
		duration(logger, "session.dedup_window", cfg.Session.DedupWindow, application.DefaultDedupWindow),
		logger,
	)

	session := application.NewSession(
		application.SessionConfig{
			DataTopic:           cfg.MQTT.DataTopic,
			SubscribeQoS:        byte(cfg.MQTT.SubscribeQoS),
			KeepAliveInterval:   duration(logger, "session.keep_alive_interval", cfg.Session.KeepAliveInterval, application.DefaultKeepAliveInterval),
			StarterPulse:        duration(logger, "session.starter_pulse", cfg.Session.StarterPulse, application.DefaultStarterPulse),
			Encoding:            encoding,
			LockRelaysWhenArmed: cfg.Session.LockRelaysWhenArmed,
			CommandPolicy:       commandPolicy,
			KeepAlivePolicy:     application.DeliveryPolicy{QoS: byte(cfg.Session.KeepAliveQoS), Retain: cfg.Session.Retain},
			ShutdownPolicy:      application.DeliveryPolicy{QoS: byte(*cfg.Session.ShutdownQoS), Retain: cfg.Session.Retain},
		},
		transport,
		state.NewStore(),
		automation.NewEngine(cfg.Session.VoltageThreshold, encoding),
		dispatcher,
		latest,
		createNotifier(cfg, logger),
		logger,
	)

	server := httpapi.NewServer(httpapi.Config{
		Addr:               cfg.Tracker.HTTPAddr,
		RateLimitPerMinute: cfg.Tracker.RateLimitPerMinute,
		AccessLog:          os.Stdout,
	}, records, latest, session, logger)

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting HTTP API: %w", err)
	}

	logger.Info("starting tracker dashboard",
		"data_topic", cfg.MQTT.DataTopic,
		"command_topic", cfg.MQTT.CommandTopic,
		"encoding", encoding,
		"store", cfg.Tracker.Store,
		"latest", cfg.Latest.Backend,
	)

	runErr := session.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("stopping HTTP API", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("session: %w", runErr)
	}
	return nil
}

func createRecordStore(ctx context.Context, cfg config.TrackerConfig, logger *slog.Logger) (application.RecordStore, func(), error) {
	switch cfg.Store {
	case "postgres":
		pg := postgres.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			MaxConns: cfg.Postgres.MaxConns,
		}
		store, err := postgres.Open(ctx, pg.DSN(), logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		logger.Info("record store ready", "backend", "memory")
		return memstore.NewRecordStore(), func() {}, nil
	}
}

func createLatestCache(ctx context.Context, cfg config.LatestConfig, logger *slog.Logger) (application.LatestCache, func(), error) {
	switch cfg.Backend {
	case "redis":
		cache, err := redis.NewLatestCache(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return cache, func() {
			if err := cache.Close(); err != nil {
				logger.Warn("closing redis", "error", err)
			}
		}, nil
	default:
		return memstore.NewLatestCache(), func() {}, nil
	}
}

func createNotifier(cfg *config.Config, logger *slog.Logger) application.Notifier {
	var notifiers application.MultiNotifier
	if cfg.Pushover.Enabled {
		notifiers = append(notifiers, pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey))
	}
	if cfg.Chime.Enabled && !chime.Available {
		logger.Warn("chime enabled but this build has no audio support, skipping it", "hint", "rebuild with -tags portaudio")
	} else if cfg.Chime.Enabled {
		notifiers = append(notifiers, chime.NewNotifier(chime.Config{SampleRate: cfg.Chime.SampleRate}, logger))
	}

	if len(notifiers) == 0 {
		return &application.NoopNotifier{}
	}
	return notifiers
}

func duration(logger *slog.Logger, name, value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		logger.Warn("invalid duration, using default", "setting", name, "value", value, "default", fallback, "error", err)
		return fallback
	}
	return d
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
