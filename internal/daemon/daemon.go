// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"firestige.xyz/eeglink/internal/command"
	"firestige.xyz/eeglink/internal/config"
	"firestige.xyz/eeglink/internal/decoder"
	"firestige.xyz/eeglink/internal/filter"
	logpkg "firestige.xyz/eeglink/internal/log"
	"firestige.xyz/eeglink/internal/metrics"
	"firestige.xyz/eeglink/internal/protocol"
	"firestige.xyz/eeglink/internal/publisher"
	"firestige.xyz/eeglink/internal/session"
)

// Daemon manages the eeglink daemon process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	socketPath string
	pidFile    string

	// Core components
	engine        *session.Engine
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	publisher     *publisher.Publisher // nil if publishing disabled
	metricsServer *metrics.Server      // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopped      bool
}

// New creates a new Daemon instance. Empty socketPath and pidFile fall
// back to the control section of the configuration; an empty configPath
// uses defaults and the environment only.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	var (
		globalConfig *config.GlobalConfig
		err          error
	)
	if configPath == "" {
		globalConfig, err = config.Default()
	} else {
		globalConfig, err = config.Load(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if socketPath == "" {
		socketPath = globalConfig.Control.Socket
	}
	if pidFile == "" {
		pidFile = globalConfig.Control.PIDFile
	}

	d := &Daemon{
		config:       globalConfig,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting eeglink daemon",
		"version", command.Version,
		"device", d.config.Device.Address(),
		"config", d.configPath,
		"socket", d.socketPath,
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Session engine and optional publisher
	d.engine = session.New(session.Options{
		AutoReconnect:  d.config.Device.AutoReconnect,
		ConnectTimeout: d.config.Device.ConnectTimeout,
		ReconnectDelay: d.config.Device.ReconnectDelay,
		PollInterval:   d.config.Device.PollInterval,
		RecordDir:      d.config.Recording.Dir,
		ChannelLabels:  d.config.Recording.ChannelLabels,
		Logger:         slog.Default(),
	})
	if err := d.startPublisher(); err != nil {
		return fmt.Errorf("failed to start publisher: %w", err)
	}
	d.subscribe()

	// 5. Configured filters
	if err := installFilters(d.engine.Filters(), d.config.Filters); err != nil {
		return fmt.Errorf("failed to install filters: %w", err)
	}

	// 6. Command handler and UDS server for CLI control
	d.cmdHandler = command.NewCommandHandler(d.engine, d.sessionParams(), d)
	d.cmdHandler.SetShutdownFunc(func() {
		slog.Info("shutdown triggered via daemon_shutdown command")
		d.TriggerShutdown()
	})
	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)
	if err := d.udsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start uds server: %w", err)
	}

	// 7. Connect to the device. A failed connect leaves the daemon up so
	// the session can be retried over the control socket.
	if err := d.engine.Start(d.sessionParams()); err != nil {
		slog.Error("device session not started", "device", d.config.Device.Address(), "error", err)
	}

	slog.Info("daemon started successfully")
	return nil
}

func (d *Daemon) sessionParams() session.Params {
	return session.Params{
		Host:      d.config.Device.Host,
		Port:      d.config.Device.Port,
		Rate:      protocol.Rate(d.config.Device.Rate),
		Protected: d.config.Device.Protected,
		Wait:      d.config.Device.WaitConnect,
	}
}

// subscribe wires session notifications to logging and the publisher.
func (d *Daemon) subscribe() {
	logger := slog.Default().With("component", "daemon")
	d.engine.SubscribeConnection(func(s session.ConnectionStatus) {
		logger.Info("connection status", "status", s.String(), "code", int(s))
	})
	d.engine.SubscribeRecording(func(s session.RecordingStatus) {
		logger.Info("recording status", "status", s.String(), "code", int(s))
	})
	if d.publisher != nil {
		pub := d.publisher
		d.engine.SubscribeFrames(func(fr *decoder.Frame) {
			pub.Publish(fr)
		})
	}
}

func installFilters(p *filter.Pipeline, cfgs []config.FilterConfig) error {
	for i, fc := range cfgs {
		kind, err := filter.ParseKind(fc.Type)
		if err != nil {
			return fmt.Errorf("filters[%d]: %w", i, err)
		}
		f, err := p.Add(kind, fc.Order, fc.Channels...)
		if err != nil {
			return fmt.Errorf("filters[%d]: %w", i, err)
		}
		if err := p.Setup(f.ID(), fc.Rate, fc.Low, fc.High); err != nil {
			return fmt.Errorf("filters[%d]: %w", i, err)
		}
		slog.Info("filter installed", "id", f.ID(), "kind", fc.Type, "order", fc.Order,
			"channels", f.Channels(), "low", fc.Low, "high", fc.High)
	}
	return nil
}

// Stop performs graceful shutdown of all daemon components.
// Every step runs even if an earlier one fails; the failures are combined.
func (d *Daemon) Stop() error {
	if d.stopped {
		return nil
	}
	d.stopped = true
	slog.Info("initiating graceful shutdown")

	var errs error

	// 1. Stop UDS server (no new CLI commands)
	if d.udsServer != nil {
		slog.Info("stopping uds server")
		d.udsServer.Stop()
	}

	// 2. Stop the session; any open record file is finalized first
	if d.engine != nil {
		slog.Info("stopping device session")
		if err := d.engine.Stop(); err != nil {
			slog.Error("error stopping session", "error", err)
			errs = multierr.Append(errs, fmt.Errorf("session: %w", err))
		}
	}

	// 3. Flush the publisher
	if d.publisher != nil {
		if err := d.publisher.Stop(); err != nil {
			slog.Error("error stopping publisher", "error", err)
			errs = multierr.Append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	// 4. Stop metrics server
	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
			errs = multierr.Append(errs, fmt.Errorf("metrics: %w", err))
		}
	}

	// 5. Cancel context to signal all goroutines
	d.cancel()

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 6. Remove PID file
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
		errs = multierr.Append(errs, fmt.Errorf("pid file: %w", err))
	}

	if errs != nil {
		slog.Warn("daemon stopped with errors", "count", len(multierr.Errors(errs)))
	} else {
		slog.Info("daemon stopped gracefully")
	}

	// 7. Close the log file
	logpkg.Close()
	return errs
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via UDS
//  3. SIGHUP triggers config reload
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				return d.Stop()

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered by command")
			return d.Stop()

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			return multierr.Append(d.ctx.Err(), d.Stop())
		}
	}
}

// Reload reloads the global configuration.
// Hot-reloadable: log level/format/outputs.
// Cold (requires restart): device, recording, filters, control, metrics, publisher.
// Implements ConfigReloader interface for CommandHandler.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return fmt.Errorf("no config file to reload")
	}
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	requiresRestart := []string{}
	if newConfig.Device != d.config.Device {
		requiresRestart = append(requiresRestart, "device")
	}
	if newConfig.Metrics != d.config.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}
	if newConfig.Control != d.config.Control {
		requiresRestart = append(requiresRestart, "control")
	}

	// Only the log section is applied; the rest waits for a restart.
	oldLog := d.config.Log
	d.config.Log = newConfig.Log
	if err := d.initLogging(); err != nil {
		d.config.Log = oldLog
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}

	slog.Info("configuration reloaded",
		"log_level", newConfig.Log.Level,
		"requires_restart", requiresRestart,
	)
	return nil
}

// TriggerShutdown triggers graceful shutdown from external caller (e.g., daemon_shutdown command).
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
		// already pending
	}
}

// Engine exposes the session engine.
func (d *Daemon) Engine() *session.Engine {
	return d.engine
}

func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}
	slog.Debug("logging initialized",
		"level", d.config.Log.Level,
		"format", d.config.Log.Format,
	)
	return nil
}

func (d *Daemon) startPublisher() error {
	if !d.config.Publisher.Enabled {
		return nil
	}
	pub, err := publisher.New(d.config.Publisher, d.config.Device.Address(), d.engine)
	if err != nil {
		return err
	}
	pub.Start(d.ctx)
	d.publisher = pub
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	slog.Info("metrics server started",
		"addr", d.metricsServer.Addr(),
		"path", d.config.Metrics.Path,
	)
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")
	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}
