package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/scaleformeter/scaleformeter/internal/catalog"
	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/influx"
	"github.com/scaleformeter/scaleformeter/internal/logging"
	"github.com/scaleformeter/scaleformeter/internal/monitor"
	intOtel "github.com/scaleformeter/scaleformeter/internal/otel"
	"github.com/scaleformeter/scaleformeter/internal/registry"
	"github.com/scaleformeter/scaleformeter/internal/server"
	"github.com/scaleformeter/scaleformeter/internal/storage"
	"github.com/scaleformeter/scaleformeter/internal/world"
)

// BuildVersion and BuildDate can be set at build time via ldflags.
var (
	BuildVersion = "0.0.1"
	BuildDate   = "unknown"
)

const binaryName = "scaleformeter_server"

var (
	SessionStartTime = time.Now()

	SlogManager  *logging.SlogManager
	Logger       *slog.Logger
	OTelProvider *intOtel.Provider

	LogFile       *os.File
	graylogWriter *gelf.Writer

	storageBackend storage.Backend
	influxManager  *influx.Manager
	ownership      *registry.Registry
	monitorService *monitor.Service
	serverService  *server.Service
	fileWatcher    *server.Watcher
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()

	if err := setupLogging(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "logging setup failed: %v\n", err)
		os.Exit(1)
	}
	Logger.Info("Starting up...", "version", BuildVersion, "buildDate", BuildDate)

	if err := run(); err != nil {
		Logger.Error("Server stopped with error", "error", err)
		shutdown()
		os.Exit(1)
	}
	shutdown()
}

// setupLogging loads the config and replaces the bootstrap stdout logger
// with the session file logger plus the optional OTel and Graylog sinks.
func setupLogging(configDir string) error {
	SlogManager = logging.NewSlogManager(logging.WithName(binaryName))
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	level := viper.GetString("logLevel")
	if config.GetServerConfig().Debug {
		level = "debug"
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, binaryName, SessionStartTime)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	LogFile = f

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.ConfigFrom(otelCfg, LogFile))
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	opts := []logging.Option{
		logging.WithName(binaryName),
		logging.WithContext(func() []slog.Attr {
			if serverService == nil {
				return nil
			}
			return []slog.Attr{slog.Int("connections", serverService.Connections())}
		}),
	}
	if gc := config.GetGraylogConfig(); gc.Enabled {
		graylogWriter, err = logging.NewGraylogWriter(gc.Address)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			opts = append(opts, logging.WithGraylog(graylogWriter))
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	SlogManager = logging.NewSlogManager(opts...)
	SlogManager.Setup(io.MultiWriter(os.Stdout, LogFile), level, otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logPath)
	return nil
}

func run() error {
	serverCfg := config.GetServerConfig()
	level := viper.GetString("logLevel")

	var err error
	storageBackend, err = initStorage(config.GetStorageConfig(), serverCfg.ResourceName, level)
	if err != nil {
		return err
	}

	influxManager = influx.NewManager(
		config.GetInfluxConfig(),
		logging.NewZerolog(LogFile, level, "influx"),
		filepath.Join(viper.GetString("logsDir"), fmt.Sprintf("influx_backup_%s.log.gz", SessionStartTime.Format("20060102_150405"))),
	)
	if err := influxManager.Connect(context.Background()); err != nil && !errors.Is(err, influx.ErrDisabled) {
		Logger.Warn("InfluxDB unavailable, writing metrics backup", "error", err, "path", influxManager.BackupPath)
	}

	ownership = registry.New(registry.Dependencies{
		World:    world.NewMemory(world.WithAutoReplicate()),
		Ledger:   storageBackend,
		Metrics:  influxManager,
		Logger:   Logger,
		Timeouts: config.GetTimeoutsConfig(),
	})

	serverService, err = server.New(server.Dependencies{
		Registry: ownership,
		Config:   serverCfg,
		Logger:   Logger,
	})
	if err != nil {
		return err
	}
	if err := serverService.LoadConfigs(); err != nil {
		return fmt.Errorf("loading configs: %w", err)
	}

	fileWatcher, err = server.NewWatcher(
		[]string{serverCfg.ConfigsDir, filepath.Join(serverCfg.ConfigsDir, catalog.PresetsDir), serverCfg.OverlayDir},
		server.DefaultDebounce,
		serverService.OnFileChanged,
		Logger,
	)
	if err != nil {
		Logger.Warn("Live reload disabled", "error", err)
	}

	monitorService = monitor.NewService(monitor.Dependencies{
		Registry:   ownership,
		Ledger:     storageBackend,
		Metrics:    influxManager,
		LogManager: SlogManager,
		StatusFile: serverCfg.StatusFile,
	})
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Status monitor not started", "error", err)
	}

	httpServer := &http.Server{
		Addr:              serverCfg.ListenAddr,
		Handler:           serverService.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		Logger.Info("Listening", "addr", serverCfg.ListenAddr, "resource", serverCfg.ResourceName)
		errCh <- httpServer.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		Logger.Info("Received signal, shutting down", "signal", s.String())
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// shutdown releases everything run created, in reverse order. Clients are
// disconnected before the storage backend closes so their sweeps are recorded.
func shutdown() {
	if fileWatcher != nil {
		_ = fileWatcher.Close()
	}
	if serverService != nil {
		if err := serverService.Close(); err != nil {
			Logger.Warn("Error closing server", "error", err)
		}
	}
	if monitorService != nil {
		monitorService.Stop()
	}
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Warn("Error closing influx", "error", err)
		}
	}
	if storageBackend != nil {
		if err := storageBackend.Close(); err != nil {
			Logger.Warn("Error closing storage", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
	}
	if OTelProvider != nil {
		_ = OTelProvider.Shutdown(ctx)
	}
	if graylogWriter != nil {
		_ = graylogWriter.Close()
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}
