// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"firestige.xyz/netmon/internal/capture"
	"firestige.xyz/netmon/internal/command"
	"firestige.xyz/netmon/internal/config"
	logpkg "firestige.xyz/netmon/internal/log"
	"firestige.xyz/netmon/internal/metrics"
	"firestige.xyz/netmon/internal/report"
	"firestige.xyz/netmon/internal/scheduler"
	"firestige.xyz/netmon/internal/transmit"
	"firestige.xyz/netmon/internal/transport"
)

// Daemon manages the netmon process lifecycle: the event loop, the receiver
// and transmitter roles, and the metrics server.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	pidFile    string

	// Event loop
	loop       *scheduler.Loop
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	// Receiver role
	buffer    *capture.Buffer
	drainer   *report.Drainer
	udp       *transport.Receiver
	reportLn  *transport.SingleListener
	reportSrv *transport.ReportServer

	// Transmitter role
	sender      *transport.UDPSender
	transmitter *transmit.Transmitter
	controlLn   *transport.SingleListener
	controlSrv  *command.Server

	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	servers      conc.WaitGroup
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopOnce     sync.Once
	stopErr      error
}

// Snapshot is the /status document.
type Snapshot struct {
	Receiver    *report.Status   `json:"receiver,omitempty"`
	Transmitter *transmit.Status `json:"transmitter,omitempty"`
}

// New loads configuration and creates a Daemon instance. An empty configPath
// runs on defaults and environment overrides.
func New(configPath, pidFile string) (*Daemon, error) {
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(globalConfig, configPath, pidFile), nil
}

// NewWithConfig creates a Daemon from an already loaded configuration.
func NewWithConfig(cfg *config.GlobalConfig, configPath, pidFile string) *Daemon {
	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start initializes and starts all daemon components. On failure everything
// already started is torn down again.
func (d *Daemon) Start() error {
	if err := d.start(); err != nil {
		d.Stop()
		return err
	}
	return nil
}

func (d *Daemon) start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting netmon daemon",
		"config", d.configPath,
		"transmitter", d.config.Transmitter.Enabled,
		"receiver", d.config.Receiver.Enabled,
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Event loop
	d.loop = scheduler.NewLoop(d.config.EventQueue)
	loopCtx, loopCancel := context.WithCancel(context.Background())
	d.loopCancel = loopCancel
	d.loopDone = make(chan struct{})
	go func() {
		defer close(d.loopDone)
		d.loop.Run(loopCtx)
	}()

	// 4. Receiver role
	if d.config.Receiver.Enabled {
		if err := d.startReceiver(); err != nil {
			return fmt.Errorf("failed to start receiver: %w", err)
		}
	}

	// 5. Transmitter role
	if d.config.Transmitter.Enabled {
		if err := d.startTransmitter(); err != nil {
			return fmt.Errorf("failed to start transmitter: %w", err)
		}
	}

	// 6. Metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	slog.Info("daemon started successfully")
	return nil
}

func (d *Daemon) startReceiver() error {
	rc := d.config.Receiver

	buf, err := capture.NewBuffer(rc.BufferCapacity, rc.OverflowGuard)
	if err != nil {
		return err
	}
	d.buffer = buf
	d.drainer = report.NewDrainer(buf, d.loop, rc.DrainInterval, rc.DrainBatch)
	ingest := capture.NewIngest(buf, d.loop, d.drainer)

	d.udp, err = transport.ListenUDP(rc.UDPListen, d.loop, ingest)
	if err != nil {
		return err
	}
	d.reportLn, err = transport.Listen("report", rc.ReportListen)
	if err != nil {
		return err
	}
	d.reportSrv = transport.NewReportServer(d.reportLn, d.loop, d.drainer, rc.StreamQueue)

	d.serve("udp receiver", d.udp.Serve)
	d.serve("report server", d.reportSrv.Serve)

	slog.Info("receiver started",
		"udp", d.udp.Addr().String(),
		"report", d.reportLn.Addr().String(),
		"capacity", rc.BufferCapacity,
	)
	return nil
}

func (d *Daemon) startTransmitter() error {
	tc := d.config.Transmitter

	var err error
	d.sender, err = transport.NewUDPSender(tc.Bind)
	if err != nil {
		return err
	}
	d.transmitter = transmit.New(d.loop, d.sender)

	d.controlLn, err = transport.Listen("control", tc.Listen)
	if err != nil {
		return err
	}
	d.controlSrv = command.NewServer(d.controlLn, d.loop, command.NewHandler(d.transmitter))
	d.serve("control server", d.controlSrv.Serve)

	slog.Info("transmitter started", "control", d.controlLn.Addr().String())
	return nil
}

func (d *Daemon) serve(name string, fn func(context.Context) error) {
	d.servers.Go(func() {
		if err := fn(d.ctx); err != nil {
			slog.Error("server stopped with error", "server", name, "error", err)
		}
	})
}

// Stop performs graceful shutdown of all daemon components. It is safe to
// call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.stopErr = d.stop()
	})
	return d.stopErr
}

func (d *Daemon) stop() error {
	slog.Info("initiating graceful shutdown")
	var err error

	// 1. End a running transmit session so its receiver sees the marker
	if d.transmitter != nil {
		d.loop.Do(func() { d.transmitter.Stop() })
	}

	// 2. Stop accepting and serving; handlers detach through the loop
	d.cancel()
	d.servers.Wait()

	// 3. Stop the event loop
	if d.loopCancel != nil {
		d.loopCancel()
		<-d.loopDone
	}

	// 4. Release sockets; servers that never started still hold theirs
	if d.udp != nil {
		d.udp.Close()
	}
	if d.reportLn != nil {
		d.reportLn.Close()
	}
	if d.controlLn != nil {
		d.controlLn.Close()
	}
	if d.sender != nil {
		multierr.AppendInto(&err, d.sender.Close())
	}

	// 5. Stop metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		multierr.AppendInto(&err, d.metricsServer.Stop(shutdownCtx))
	}

	// 6. Unregister signal handler
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 7. Remove PID file
	multierr.AppendInto(&err, d.removePIDFile())

	if err != nil {
		slog.Error("errors during shutdown", "error", err)
	}
	slog.Info("daemon stopped gracefully")

	// 8. Flush logs
	multierr.AppendInto(&err, logpkg.Flush())
	return err
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. TriggerShutdown
//
// SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals")

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
			slog.Info("shutdown requested")
			return d.Stop()
		}
	}
}

// Reload reloads the configuration file.
// Hot-reloadable: log settings. Everything else requires a restart.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	old := d.config
	requiresRestart := []string{}
	if newConfig.Transmitter != old.Transmitter {
		requiresRestart = append(requiresRestart, "transmitter")
	}
	if newConfig.Receiver != old.Receiver {
		requiresRestart = append(requiresRestart, "receiver")
	}
	if newConfig.Metrics != old.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}
	if newConfig.EventQueue != old.EventQueue {
		requiresRestart = append(requiresRestart, "event_queue")
	}

	hotReloaded := []string{}
	if newConfig.Log != old.Log {
		if err := logpkg.Init(newConfig.Log); err != nil {
			return fmt.Errorf("failed to reinitialize logging: %w", err)
		}
		old.Log = newConfig.Log
		hotReloaded = append(hotReloaded, "log")
	}

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)
	return nil
}

// TriggerShutdown makes Run return after a graceful stop.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Status snapshots receiver and transmitter state on the event loop.
func (d *Daemon) Status() Snapshot {
	var snap Snapshot
	d.loop.Do(func() {
		if d.drainer != nil {
			s := d.drainer.Status()
			snap.Receiver = &s
		}
		if d.transmitter != nil {
			s := d.transmitter.Status()
			snap.Transmitter = &s
		}
	})
	return snap
}

// ControlAddr returns the bound control address, or nil.
func (d *Daemon) ControlAddr() net.Addr {
	if d.controlLn == nil {
		return nil
	}
	return d.controlLn.Addr()
}

// ReportAddr returns the bound report address, or nil.
func (d *Daemon) ReportAddr() net.Addr {
	if d.reportLn == nil {
		return nil
	}
	return d.reportLn.Addr()
}

// CaptureAddr returns the bound UDP capture address, or nil.
func (d *Daemon) CaptureAddr() net.Addr {
	if d.udp == nil {
		return nil
	}
	return d.udp.Addr()
}

// MetricsAddr returns the metrics server address, or "".
func (d *Daemon) MetricsAddr() string {
	if d.metricsServer == nil {
		return ""
	}
	return d.metricsServer.Addr()
}

// initLogging initializes the logging system from config.
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

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path, func() interface{} {
		return d.Status()
	})
	return d.metricsServer.Start(d.ctx)
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
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
