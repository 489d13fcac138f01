// Package session drives one amplifier connection: it dials the device,
// performs the time-sync handshake, reassembles and validates packets,
// decodes frames, runs filters, feeds the recorder and notifies subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"firestige.xyz/eeglink/internal/config"
	"firestige.xyz/eeglink/internal/core"
	"firestige.xyz/eeglink/internal/decoder"
	"firestige.xyz/eeglink/internal/filter"
	"firestige.xyz/eeglink/internal/metrics"
	"firestige.xyz/eeglink/internal/protocol"
	"firestige.xyz/eeglink/internal/recording"
)

const (
	// maxReconnectAttempts bounds the inline reconnect after a receive error.
	maxReconnectAttempts = 1

	readChunk    = 64 * 1024
	writeTimeout = 3 * time.Second
)

// Options configure an Engine. Zero durations fall back to DefaultOptions,
// except ReconnectDelay where zero means no delay.
type Options struct {
	AutoReconnect  bool
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	PollInterval   time.Duration

	RecordDir     string
	ChannelLabels []string
	Fs            afero.Fs

	Logger        *slog.Logger
	Subscriptions Subscriptions

	// Dial and Resolve replace the network stack, mostly for tests.
	Dial    func(ctx context.Context, network, address string) (net.Conn, error)
	Resolve func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// DefaultOptions mirrors the device defaults.
func DefaultOptions() Options {
	return Options{
		AutoReconnect:  true,
		ConnectTimeout: 3 * time.Second,
		ReconnectDelay: 3 * time.Second,
		PollInterval:   20 * time.Millisecond,
		RecordDir:      "SaveData",
		ChannelLabels:  config.DefaultChannelLabels,
	}
}

// Params select the device and the stream to request.
type Params struct {
	Host      string
	Port      int
	Rate      protocol.Rate
	Protected bool
	// Wait blocks Start until the connect attempt settles.
	Wait bool
}

// Address returns host:port.
func (p Params) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Engine is a single device session. All methods are safe for concurrent use.
type Engine struct {
	opts    Options
	logger  *slog.Logger
	fs      afero.Fs
	filters *filter.Pipeline
	notify  notifier

	stage atomic.Int32

	// lifeMu serializes Start and Stop.
	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// mu guards the stream state below. The worker holds it for one decode
	// pass; commands and recording control take it too.
	mu     sync.Mutex
	params Params
	conn   net.Conn
	stream streamState
	header []byte
	paused bool
	writer *recording.Writer

	battery  int
	firmware string
}

// New creates an idle engine.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.RecordDir == "" {
		opts.RecordDir = def.RecordDir
	}
	if len(opts.ChannelLabels) == 0 {
		opts.ChannelLabels = def.ChannelLabels
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dial == nil {
		d := &net.Dialer{Timeout: opts.ConnectTimeout}
		opts.Dial = d.DialContext
	}
	if opts.Resolve == nil {
		opts.Resolve = net.DefaultResolver.LookupIPAddr
	}

	e := &Engine{
		opts:    opts,
		logger:  opts.Logger.With("component", "session"),
		fs:      opts.Fs,
		filters: filter.NewPipeline(),
	}
	e.notify.subs = opts.Subscriptions
	return e
}

// Filters returns the engine's filter pipeline.
func (e *Engine) Filters() *filter.Pipeline {
	return e.filters
}

// Stage returns the current lifecycle stage.
func (e *Engine) Stage() Stage {
	return Stage(e.stage.Load())
}

func (e *Engine) setStage(s Stage) {
	e.stage.Store(int32(s))
	metrics.ConnectionStage.Set(float64(s))
}

// Start launches the session worker. An unsupported rate is rejected
// before any state changes; starting an active session is a no-op. With
// p.Wait set, Start returns once the connect attempt has succeeded or failed.
func (e *Engine) Start(p Params) error {
	if !p.Rate.Valid() {
		return fmt.Errorf("%w: %d Hz", core.ErrUnsupportedRate, int(p.Rate))
	}

	e.lifeMu.Lock()
	if e.Stage().Active() {
		e.lifeMu.Unlock()
		return nil
	}
	if e.done != nil {
		// previous worker ended on its own
		<-e.done
	}

	e.mu.Lock()
	e.params = p
	e.header = nil
	e.paused = false
	e.stream = streamState{}
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.setStage(StageConnecting)
	go e.run(ctx, e.done)
	e.lifeMu.Unlock()

	e.logger.Info("session starting", "device", p.Address(), "rate", int(p.Rate), "protected", p.Protected)

	if !p.Wait {
		return nil
	}
	for e.Stage() == StageConnecting {
		time.Sleep(e.opts.PollInterval)
	}
	if s := e.Stage(); s.Failed() {
		return fmt.Errorf("%w: %s", core.ErrConnectFailed, s)
	}
	return nil
}

// Stop ends recording, stops the worker and returns to Disconnected.
// Stopping an idle engine is a no-op.
func (e *Engine) Stop() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.done == nil {
		return nil
	}

	err := e.StopRecord()
	if errors.Is(err, core.ErrNotRecording) {
		err = nil
	}

	e.cancel()
	e.mu.Lock()
	if e.conn != nil {
		_ = e.conn.Close()
	}
	e.mu.Unlock()
	<-e.done
	e.done = nil

	e.setStage(StageDisconnected)
	e.logger.Info("session stopped")
	return err
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	status, final := e.serve(ctx)
	// done closes first so the final handler may call Start or Stop.
	close(done)
	if final {
		e.notify.connection(status)
	}
}

// serve connects and streams until ctx ends or the link is lost. It reports
// the status to announce once the worker has finished, if any.
func (e *Engine) serve(ctx context.Context) (ConnectionStatus, bool) {
	p := e.Params()

	conn, status := e.connect(ctx)
	if conn == nil {
		if ctx.Err() != nil {
			return status, false
		}
		e.setStage(status.stage())
		return status, true
	}
	e.attach(conn)
	e.notify.connection(StatusNoError)

	status = e.readLoop(ctx)

	e.mu.Lock()
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	e.mu.Unlock()

	if ctx.Err() != nil {
		return status, false
	}

	// The link is gone for good; finalize any open record file.
	if err := e.StopRecord(); err != nil && !errors.Is(err, core.ErrNotRecording) {
		e.logger.Error("failed to finalize record", "error", err)
	}
	e.setStage(StageDisconnected)
	e.logger.Warn("connection closed", "device", p.Address())
	return status, true
}

// connect resolves the host, numeric form first, and dials it.
func (e *Engine) connect(ctx context.Context) (net.Conn, ConnectionStatus) {
	e.mu.Lock()
	p := e.params
	e.mu.Unlock()

	ip := net.ParseIP(p.Host)
	if ip == nil {
		rctx, cancel := context.WithTimeout(ctx, e.opts.ConnectTimeout)
		addrs, err := e.opts.Resolve(rctx, p.Host)
		cancel()
		if err != nil || len(addrs) == 0 {
			e.logger.Error("host not found", "host", p.Host, "error", err)
			return nil, StatusHostNotFound
		}
		ip = addrs[0].IP
	}

	addr := net.JoinHostPort(ip.String(), strconv.Itoa(p.Port))
	dctx, cancel := context.WithTimeout(ctx, e.opts.ConnectTimeout)
	defer cancel()
	conn, err := e.opts.Dial(dctx, "tcp", addr)
	if err != nil {
		var sysErr *os.SyscallError
		if errors.As(err, &sysErr) && sysErr.Syscall == "socket" {
			e.logger.Error("socket creation failed", "error", err)
			return nil, StatusSocketError
		}
		e.logger.Error("device not reachable", "addr", addr, "error", err)
		return nil, StatusHostNotReach
	}
	e.logger.Info("connected", "addr", addr)
	return conn, StatusNoError
}

// attach installs conn, resets per-connection stream state and queues the
// start command until the time-sync message arrives.
func (e *Engine) attach(conn net.Conn) {
	e.mu.Lock()
	e.conn = conn
	e.stream = streamState{}
	e.setStage(StageConnected)
	if err := e.sendLocked(startCommand(e.params.Rate, e.params.Protected)); err != nil {
		e.logger.Error("failed to queue start command", "error", err)
	}
	e.paused = false
	e.setStage(StageStreaming)
	e.mu.Unlock()
}

// readLoop reads until the context ends or the link is lost for good.
func (e *Engine) readLoop(ctx context.Context) ConnectionStatus {
	chunk := make([]byte, readChunk)
	for {
		if ctx.Err() != nil {
			return StatusConnectionClosed
		}

		e.mu.Lock()
		conn := e.conn
		e.mu.Unlock()

		_ = conn.SetReadDeadline(time.Now().Add(e.opts.PollInterval))
		n, err := conn.Read(chunk)
		if n > 0 {
			e.notify.frames(e.ingest(chunk[:n]))
		}
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}
		if ctx.Err() != nil {
			return StatusConnectionClosed
		}

		e.logger.Error("receive failed", "error", err)
		e.notify.connection(StatusReceiveError)

		if !e.opts.AutoReconnect || !e.reconnect(ctx) {
			return StatusConnectionClosed
		}
	}
}

// reconnect waits ReconnectDelay and redials, at most maxReconnectAttempts times.
func (e *Engine) reconnect(ctx context.Context) bool {
	e.mu.Lock()
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	e.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	e.setStage(StageReconnecting)
	e.notify.connection(StatusReconnecting)

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		e.logger.Info("reconnecting", "attempt", attempt, "delay", e.opts.ReconnectDelay)

		timer := time.NewTimer(e.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		conn, status := e.connect(ctx)
		if conn == nil {
			metrics.ReconnectsTotal.WithLabelValues("failed").Inc()
			e.logger.Warn("reconnect failed", "attempt", attempt, "status", status.String())
			continue
		}
		metrics.ReconnectsTotal.WithLabelValues("ok").Inc()
		e.attach(conn)
		e.notify.connection(StatusNoError)
		return true
	}
	return false
}

// Params returns the parameters of the current or last session.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Header returns a copy of the captured header blob, or nil.
func (e *Engine) Header() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.header == nil {
		return nil
	}
	return append([]byte(nil), e.header...)
}

// Battery returns the last reported battery level in percent.
func (e *Engine) Battery() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.battery
}

// Firmware returns the last reported firmware version.
func (e *Engine) Firmware() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.firmware
}

func (e *Engine) applyTelemetry(tm decoder.Telemetry) {
	if tm.HasBattery {
		e.battery = tm.Battery
		metrics.BatteryPercent.Set(float64(tm.Battery))
	}
	if tm.HasFirmware && tm.Firmware != e.firmware {
		e.firmware = tm.Firmware
		e.logger.Info("device firmware", "version", tm.Firmware)
	}
}
