// Package main is the entry point of the robot's behavior core.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dewwy/petbot/internal/engine"
	"github.com/dewwy/petbot/internal/events"
	"github.com/dewwy/petbot/internal/hardware"
	"github.com/dewwy/petbot/internal/infra/bus"
	"github.com/dewwy/petbot/internal/infra/cache"
	"github.com/dewwy/petbot/internal/infra/storage"
	"github.com/dewwy/petbot/internal/network"
	"github.com/dewwy/petbot/internal/platform/clock"
	"github.com/dewwy/petbot/internal/platform/config"
	"github.com/dewwy/petbot/internal/platform/logger"
	"github.com/dewwy/petbot/internal/platform/metrics"
	"github.com/dewwy/petbot/internal/sim"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	profile := flag.String("profile", "default", "built-in profile: default, sim, low")
	flag.Parse()

	cfg, err := config.Load(*profile, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "petbot: %v\n", err)
		os.Exit(2)
	}

	appLogger, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "petbot: %v\n", err)
		os.Exit(2)
	}
	defer appLogger.Sync()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("petbot stopped with an error", zap.Error(err))
		appLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.Get()

	appLogger.Info("Opening memory store...", zap.String("driver", cfg.Storage.Driver))
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	interactions := storage.NewAsyncInteractionLog(store.Interactions, cfg.Storage.InteractionBuffer, cfg.Storage.Workers, collector, appLogger.Named("storage"))
	interactions.Start()
	defer interactions.Close()

	var learned storage.LearnedResponseRepository = store.Learned
	if cfg.Cache.RedisAddr != "" {
		client, closeRedis, err := cache.Dial(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			appLogger.Warn("Redis unavailable, learned responses are not cached", zap.Error(err))
		} else {
			defer closeRedis()
			learned = cache.NewLearnedCache(client, store.Learned, cfg.Cache.TTL, appLogger.Named("cache"))
			appLogger.Info("Learned response cache enabled", zap.String("addr", cfg.Cache.RedisAddr))
		}
	}

	eventLog := events.NewEventLog(events.DefaultCapacity, nil)

	appLogger.Info("Bootstrapping hardware...", zap.Bool("simulated", cfg.Hardware.Simulated))
	deps := engine.Deps{
		Interactions: interactions,
		Learned:      learned,
		Events:       eventLog,
		Metrics:      collector,
		Clock:        clock.System{},
		Rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger:       appLogger.Named("engine"),
	}
	var device *hardware.DeviceWriter
	if cfg.Hardware.Device != "" {
		if device, err = hardware.OpenDevice(cfg.Hardware.Device); err != nil {
			return err
		}
		defer device.Close()
	}
	onMotorErr := func(err error) { appLogger.Warn("motor command not delivered", zap.Error(err)) }
	if cfg.Hardware.Simulated {
		world := sim.NewWorld(cfg.Sim)
		deps.Sensor = world
		deps.Positions = world
		deps.Motors = hardware.NewCommandRecorder(world, lineWriter(device), onMotorErr)
	} else {
		// Without the simulator only the motor line exists; distance readings arrive
		// once a sensor driver is attached.
		deps.Motors = hardware.NewCommandRecorder(nil, lineWriter(device), onMotorErr)
	}

	appLogger.Info("Bootstrapping Engine Subsystems...")
	robot, err := engine.New(cfg.Engine, deps)
	if err != nil {
		return err
	}
	robot.Start(ctx)
	defer robot.Stop()

	if cfg.Bus.NatsURL != "" {
		nc, err := bus.Connect(cfg.Bus.NatsURL)
		if err != nil {
			appLogger.Warn("NATS unavailable, bus bridge disabled", zap.Error(err))
		} else {
			defer nc.Close()
			bridge := bus.NewBridge(nc, cfg.Bus.Prefix, robot, appLogger.Named("bus"))
			if err := bridge.Listen(); err != nil {
				return err
			}
			defer bridge.Close()
			eventLog.SetPublisher(bridge)
			defer eventLog.Close()
			appLogger.Info("NATS bridge listening", zap.String("subject", bridge.CommandSubject()))
		}
	}

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(robot, collector, appLogger.Named("hub"))
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog, cfg.Server.EventPollInterval)

	mux := http.NewServeMux()
	api := network.NewAPI(network.APIDeps{
		Controller:   robot,
		Events:       eventLog,
		Interactions: interactions,
		Learned:      learned,
		Hub:          hub,
		Logger:       appLogger.Named("api"),
	})
	api.RegisterRoutes(mux)
	mux.HandleFunc("/metrics", collector.Handler())
	mux.HandleFunc("/metrics/prometheus", collector.PrometheusHandler())

	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP API & WS Server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}

	appLogger.Info("Shutting down...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return server.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.StorageConfig) (*storage.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return storage.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return storage.OpenSQLite(cfg.Path)
	}
}

// lineWriter keeps a nil device from becoming a non-nil interface.
func lineWriter(d *hardware.DeviceWriter) hardware.LineWriter {
	if d == nil {
		return nil
	}
	return d
}
