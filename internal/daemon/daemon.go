// Package daemon runs the resident rig controller: the fixed-period tick
// loop that drives the head-fixation hardware, the serial link to the host
// GUI, the control socket, and the config watcher.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/hal"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/lock"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/protocol"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/telemetry"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/uds"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func parseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

type logFunc func(level LogLevel, format string, args ...any)

// Daemon is the resident rig controller process.
type Daemon struct {
	rigDir   string
	config   model.Config
	logLevel LogLevel
	logger   *log.Logger
	logFile  io.Closer

	fileLock *lock.FileLock
	server   *uds.Server
	watcher  *fsnotify.Watcher

	bench   hal.Bench
	port    io.ReadWriteCloser
	bus     *telemetry.Bus
	emitter *telemetry.Emitter

	ctrl *controller

	// serialIn carries raw bytes from the reader goroutine to the tick
	// loop, which owns the decoder.
	serialIn chan []byte
	// commands carries control-socket and watcher mutations into the tick
	// loop, the only writer of controller state.
	commands chan protocol.Command

	snapMu sync.RWMutex
	snap   model.RigSnapshot

	socketPath string
	startedAt  time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown sync.Once
}

// New creates a Daemon logging to <rigDir>/logs/daemon.log. With
// foreground set, log lines are mirrored to stderr.
func New(rigDir string, cfg model.Config, foreground bool) (*Daemon, error) {
	logPath := filepath.Join(rigDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}

	var w io.Writer = logFile
	if foreground {
		w = io.MultiWriter(logFile, os.Stderr)
	}
	return newDaemon(rigDir, cfg, w, logFile)
}

// newDaemon is the internal constructor for testing.
func newDaemon(rigDir string, cfg model.Config, w io.Writer, closer io.Closer) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	socketName := cfg.Daemon.SocketName
	if socketName == "" {
		socketName = uds.DefaultSocketName
	}
	socketPath := filepath.Join(rigDir, socketName)

	d := &Daemon{
		rigDir:     rigDir,
		config:     cfg,
		logLevel:   parseLogLevel(cfg.Logging.Level),
		logger:     log.New(w, "", 0),
		logFile:    closer,
		fileLock:   lock.NewFileLock(filepath.Join(rigDir, "locks", "headfixd.lock")),
		server:     uds.NewServer(socketPath),
		socketPath: socketPath,
		serialIn:   make(chan []byte, 64),
		commands:   make(chan protocol.Command, 64),
		ctx:        ctx,
		cancel:     cancel,
	}

	return d, nil
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	// Step 1: Acquire the rig lock
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("rig lock: %w", err)
	}
	d.startedAt = time.Now()
	d.log(LogLevelInfo, "daemon starting rig=%s pid=%d", d.config.Rig.Name, os.Getpid())

	// Step 2: Open the bench and the serial link
	bench, err := hal.NewBench(d.config.Rig.Bench)
	if err != nil {
		d.fileLock.Unlock()
		return fmt.Errorf("open bench: %w", err)
	}
	d.bench = bench

	port, err := openPort(d.config.Serial)
	if err != nil {
		d.fileLock.Unlock()
		return fmt.Errorf("open serial port: %w", err)
	}
	d.port = port
	d.log(LogLevelInfo, "serial link on %s at %d baud", d.config.Serial.Device, d.config.Serial.Baud)

	d.bus = telemetry.NewBus(0)
	d.emitter = telemetry.NewEmitter(port, d.bus)
	d.mirrorTelemetryToLog()

	// Step 3: Build the controller and start homing
	d.ctrl = newController(d.config, d.bench, d.emitter, d.log)

	now := time.Now()
	d.emitStatus(now, telemetry.StatusReady)
	if err := d.ctrl.startHoming(now); err != nil {
		d.cleanup()
		return fmt.Errorf("start homing: %w", err)
	}
	// Seed the snapshot so status queries answer before the first tick.
	d.publishControllerSnapshot(now)

	// Step 4: Watch the rig dir for config edits
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.cleanup()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	d.watcher = watcher
	if err := watcher.Add(d.rigDir); err != nil {
		d.cleanup()
		return fmt.Errorf("watch %s: %w", d.rigDir, err)
	}

	// Step 5: Control socket
	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start control socket: %w", err)
	}
	d.log(LogLevelInfo, "control socket listening on %s", d.socketPath)

	// Step 6: Background loops
	g, ctx := errgroup.WithContext(d.ctx)
	g.Go(func() error { return d.tickLoop(ctx) })
	g.Go(func() error { return d.serialLoop(ctx) })
	g.Go(func() error { return d.watchLoop(ctx) })
	g.Go(func() error { return d.waitSignals(ctx) })

	d.log(LogLevelInfo, "daemon ready")

	err = g.Wait()
	d.Shutdown()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Enqueue hands a mutation to the tick loop. A full queue drops the
// command; the socket caller is told via the error.
func (d *Daemon) Enqueue(cmd protocol.Command) error {
	select {
	case d.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("command queue full")
	}
}

// mirrorTelemetryToLog copies every telemetry line into the daemon log at
// debug level.
func (d *Daemon) mirrorTelemetryToLog() {
	for _, kind := range telemetry.Kinds() {
		d.bus.Subscribe(kind, func(m telemetry.Message) {
			d.log(LogLevelDebug, "tx %s", m.Line)
		})
	}
}

func (d *Daemon) emitStatus(now time.Time, line string) {
	if err := d.emitter.Status(now, line); err != nil {
		d.log(LogLevelDebug, "serial write failed: %v", err)
	}
}

func (d *Daemon) publishSnapshot(snap model.RigSnapshot) {
	d.snapMu.Lock()
	d.snap = snap
	d.snapMu.Unlock()
}

func (d *Daemon) snapshot() model.RigSnapshot {
	d.snapMu.RLock()
	defer d.snapMu.RUnlock()
	return d.snap
}

// waitSignals blocks until a shutdown signal is received.
func (d *Daemon) waitSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		d.log(LogLevelInfo, "received signal=%s, initiating graceful shutdown", sig)

		// Second signal forces exit
		go func() {
			<-sigCh
			d.log(LogLevelWarn, "received second signal, forcing exit")
			os.Exit(1)
		}()

		// So does a stalled shutdown
		timeout := time.Duration(d.config.Daemon.ShutdownTimeoutSec) * time.Second
		time.AfterFunc(timeout, func() {
			d.log(LogLevelError, "shutdown timed out after %s, forcing exit", timeout)
			os.Exit(1)
		})

		d.cancel()
		return nil
	}
}

// Shutdown performs graceful shutdown (idempotent via sync.Once).
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.log(LogLevelInfo, "shutdown started")

		// 1. Stop the loops
		d.cancel()

		// 2. Stop producers
		if d.watcher != nil {
			d.watcher.Close()
		}
		if d.server != nil {
			d.server.Stop()
		}

		// 3. Leave the hardware safe: clamp open, valve closed, drives off
		if d.ctrl != nil {
			d.ctrl.safeOutputs()
			d.log(LogLevelInfo, "outputs parked: piston open, valve closed")
		}

		// 4. Cleanup
		if d.bus != nil {
			d.bus.Close()
		}
		d.cleanup()
		d.log(LogLevelInfo, "daemon stopped")
	})
}

// cleanup releases resources.
func (d *Daemon) cleanup() {
	if d.port != nil {
		d.port.Close()
	}
	d.fileLock.Unlock()
	if d.logFile != nil {
		d.logFile.Close()
	}
}

func (d *Daemon) log(level LogLevel, format string, args ...any) {
	if level < d.logLevel {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	d.logger.Printf("%s %s daemon: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
