package main

/*
#include <stdlib.h>
#include <stdio.h>
#include <string.h>
*/
import "C" // This is required to import the C code

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/batcom/engine/internal/cmdqueue"
	"github.com/batcom/engine/internal/commander"
	"github.com/batcom/engine/internal/config"
	"github.com/batcom/engine/internal/dispatcher"
	"github.com/batcom/engine/internal/geo"
	"github.com/batcom/engine/internal/logging"
	"github.com/batcom/engine/internal/monitor"
	intOtel "github.com/batcom/engine/internal/otel"
	"github.com/batcom/engine/internal/rpc"
	"github.com/batcom/engine/internal/state"
	"github.com/batcom/engine/internal/telemetry"
	"github.com/batcom/engine/pkg/a3interface"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentExtensionVersion string = "0.1.0"
	BuildDate               string = "unknown"

	Addon         string = "batcom"
	ExtensionName string = "batcom_engine"
)

// file paths
var (
	// HostDir is the path to the host simulator's root directory. This is checked in init().
	HostDir string

	// AddonFolder is the path to the addon folder. It defaults to @batcom under the
	// host root, but if the shared library was loaded from elsewhere its parent
	// folder is used instead. This is checked in init().
	AddonFolder string

	// ModulePath is the absolute path to this library file.
	ModulePath string

	InitLogFilePath   string
	InitLogFile       *os.File
	EngineLogFilePath string
	EngineLogFile     *os.File
)

// global variables
var (
	// LogManager handles all slog-based logging
	LogManager *logging.Manager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// Engine singletons
	engineState    *state.Engine
	aoManager      *state.AOManager
	resourcePool   *state.ResourcePool
	commandQueue   *cmdqueue.Queue
	tokenTracker   *telemetry.Tracker
	influxExporter *telemetry.Exporter
	fieldCommander *commander.Commander
	rpcService     *rpc.Service
	monitorService *monitor.Service

	eventDispatcher *dispatcher.Dispatcher
)

// init is run automatically when the module is loaded
func init() {
	var err error

	HostDir, err = a3interface.GetArmaDir()
	if err != nil {
		panic(err)
	}

	ModulePath = a3interface.GetModulePath()

	// if the module dir is not the host root, assume the addon folder has been
	// renamed and adjust accordingly
	AddonFolder = filepath.Dir(ModulePath)
	if AddonFolder == HostDir {
		AddonFolder = filepath.Join(HostDir, "@"+Addon)
	}

	if _, err := os.Stat(AddonFolder); os.IsNotExist(err) {
		os.Mkdir(AddonFolder, 0755)
	}

	InitLogFilePath = filepath.Join(AddonFolder, "init.log")

	InitLogFile, err = os.Create(InitLogFilePath)
	if err != nil {
		// Log to stderr since logging isn't set up yet
		fmt.Fprintf(os.Stderr, "Failed to create init log file: %v\n", err)
	}

	// Initialize logging manager with initial config
	LogManager = logging.NewManager()
	LogManager.Setup(InitLogFile, "INFO", nil)
	Logger = LogManager.Logger()

	// load config
	if err = config.Load(AddonFolder); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	// resolve logs dir set in config, create it if it doesn't exist
	logsDir := config.GetString("logsDir")
	if !filepath.IsAbs(logsDir) {
		logsDir = filepath.Join(AddonFolder, logsDir)
	}
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.MkdirAll(logsDir, 0755)
	}

	EngineLogFilePath = logging.EngineLogPath(logsDir, SessionStartTime)
	if _, err := os.Stat(EngineLogFilePath); err == nil {
		os.Rename(EngineLogFilePath, EngineLogFilePath+".old")
	}
	EngineLogFile, err = os.OpenFile(EngineLogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", EngineLogFilePath)
	}

	Logger.Info("Begin logging in logs directory", "path", EngineLogFilePath)

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    EngineLogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", EngineLogFilePath, "endpoint", otelCfg.Endpoint)
		}
	}

	// Re-setup logging with file output and optional OTel
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	LogManager.Setup(EngineLogFile, config.GetString("logging.level"), otelLogProvider)
	Logger = LogManager.Logger()
	Logger.Info("Logging to file", "path", EngineLogFilePath)

	// Dynamic AO context on every record
	LogManager.SetContext(func() []slog.Attr {
		if aoManager == nil {
			return nil
		}
		attrs := []slog.Attr{slog.String("ao_phase", string(aoManager.Phase()))}
		if ao := aoManager.Current(); ao != nil {
			attrs = append(attrs, slog.String("ao_id", ao.ID))
		}
		return attrs
	})

	if err = setupEngine(logsDir); err != nil {
		Logger.Error("Failed to set up engine!", "error", err)
		panic(err)
	}

	Logger.Info("Setting up a3interface...")
	if err = setupA3Interface(); err != nil {
		Logger.Error("Failed to set up a3interface!", "error", err)
		panic(err)
	}
	Logger.Info("Set up a3interface")

	monitorService.Start()
}

// setupEngine builds the engine singletons and wires them into the RPC
// service. Guardrails from the addon folder are applied before the host's
// init record arrives, so the sandbox never runs unbounded.
func setupEngine(logsDir string) error {
	var err error

	engineState = state.NewEngine(Logger)
	resourcePool = state.NewResourcePool(Logger)

	aoManager, err = state.NewAOManager(state.AOConfig{
		Weights:         state.DefaultHVTWeights(),
		TopPlayers:      config.GetInt("state.hvt_top_players"),
		TopGroups:       config.GetInt("state.hvt_top_groups"),
		ProximityRadius: config.GetFloat("state.proximity_radius"),
	}, Logger)
	if err != nil {
		return fmt.Errorf("building ao manager: %w", err)
	}

	commandQueue, err = cmdqueue.New(config.GetInt("runtime.max_commands_per_tick"), Logger)
	if err != nil {
		return fmt.Errorf("building command queue: %w", err)
	}

	tokenTracker = telemetry.NewTracker(filepath.Join(logsDir, "token_usage.jsonl"), Logger)

	if config.GetBool("influx.enabled") {
		zl := zerolog.New(EngineLogFile).With().Timestamp().Str("component", "influx").Logger()
		influxExporter = telemetry.NewExporter(zl, filepath.Join(logsDir, "influx_backup"))
		if err := influxExporter.Connect(); err != nil {
			Logger.Warn("Influx export degraded to file backup", "error", err)
		}
	}

	guardrails, err := config.LoadGuardrails(AddonFolder)
	if err != nil {
		Logger.Warn("Failed to load guardrails file", "error", err)
	} else {
		if len(guardrails.AOBounds) > 0 {
			bounds, err := geo.FromMap(guardrails.AOBounds)
			if err != nil {
				return fmt.Errorf("guardrails ao_bounds: %w", err)
			}
			engineState.Bounds = bounds
		}
		if len(guardrails.ResourcePool) > 0 {
			if err := resourcePool.LoadGuardrails(guardrails.ResourcePool); err != nil {
				return fmt.Errorf("guardrails resource_pool: %w", err)
			}
		}
	}

	fieldCommander = commander.New(rpc.CommanderSettings(), engineState, aoManager, resourcePool,
		nil, commandQueue, tokenTracker, influxExporter, Logger)

	rpcService = rpc.NewService(rpc.Dependencies{
		Engine:    engineState,
		AO:        aoManager,
		Pool:      resourcePool,
		Commander: fieldCommander,
		Tracker:   tokenTracker,
		Version:   CurrentExtensionVersion,
		LogsDir:   logsDir,
		Logger:    Logger,
	})

	monitorService = monitor.NewService(monitor.Dependencies{
		Queue:     commandQueue,
		Tracker:   tokenTracker,
		AO:        aoManager,
		Exporter:  influxExporter,
		Manager:   rpcService.Manager,
		StatusDir: AddonFolder,
		Logger:    Logger,
	}, 10*time.Second)

	return nil
}

func setupA3Interface() error {
	a3interface.SetVersion(CurrentExtensionVersion)
	a3interface.SetExtensionName(ExtensionName)

	zl := zerolog.New(EngineLogFile).With().Timestamp().Str("component", "dispatcher").Logger()
	d, err := dispatcher.New(logging.NewDispatcherLogger(zl))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	rpcService.Register(d)
	a3interface.SetDispatcher(d)
	eventDispatcher = d
	return nil
}
