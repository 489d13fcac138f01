// Package simulator serves a software amplifier over TCP. It speaks the same
// wire protocol as the hardware and is used for development and tests.
package simulator

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"firestige.xyz/eeglink/internal/protocol"
)

// Config controls the simulated device.
type Config struct {
	Firmware string
	Battery  int
	// Interval between data packets; defaults to the real 100 ms.
	Interval time.Duration
	// SkipHeader withholds the header packet after start.
	SkipHeader bool
}

// Device is a listening simulated amplifier.
type Device struct {
	cfg    Config
	ln     net.Listener
	logger *slog.Logger

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	commands []string
	accepted int

	wg sync.WaitGroup
}

// Listen binds addr. Call Serve to accept connections.
func Listen(addr string, cfg Config) (*Device, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.Firmware == "" {
		cfg.Firmware = "sim-1.0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Device{
		cfg:    cfg,
		ln:     ln,
		logger: slog.Default().With("component", "simulator"),
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the bound TCP address.
func (d *Device) Addr() *net.TCPAddr {
	return d.ln.Addr().(*net.TCPAddr)
}

// Serve accepts connections until ctx is cancelled or the device is closed.
func (d *Device) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = d.ln.Close()
	}()

	for {
		conn, err := d.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		d.mu.Lock()
		d.conns[conn] = struct{}{}
		d.accepted++
		d.mu.Unlock()

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handle(ctx, conn)
		}()
	}
}

// Close stops listening, drops every client and waits for handlers to exit.
func (d *Device) Close() error {
	err := d.ln.Close()
	d.DropConnections()
	d.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// DropConnections closes every client connection but keeps listening.
func (d *Device) DropConnections() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.conns {
		_ = c.Close()
	}
}

// Commands returns every command line received so far.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Accepted returns the number of connections accepted so far.
func (d *Device) Accepted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted
}

type streamState struct {
	rate      protocol.Rate
	protected bool
	running   bool
}

func (d *Device) handle(ctx context.Context, conn net.Conn) {
	defer func() {
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
		_ = conn.Close()
	}()

	if _, err := conn.Write(TimeSync(time.Now())); err != nil {
		return
	}

	var (
		mu    sync.Mutex
		state streamState
		start = make(chan streamState, 1)
		gone  = make(chan struct{})
	)

	go func() {
		defer close(gone)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			d.mu.Lock()
			d.commands = append(d.commands, line)
			d.mu.Unlock()

			mu.Lock()
			switch {
			case strings.HasPrefix(line, "start"):
				if st, ok := parseStart(line); ok {
					state = st
					select {
					case start <- st:
					default:
					}
				}
			case line == "stop":
				state.running = false
			case line == "device powerdown":
				mu.Unlock()
				_ = conn.Close()
				return
			}
			mu.Unlock()
		}
	}()

	var st streamState
	select {
	case st = <-start:
	case <-gone:
		return
	case <-ctx.Done():
		return
	}

	if !d.cfg.SkipHeader {
		hdr := Header(st.rate, time.Now())
		if st.protected {
			hdr = protocol.Encode(protocol.TypeHeader, 0, hdr)
		}
		if _, err := conn.Write(hdr); err != nil {
			return
		}
	}

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	var (
		seq     int
		counter uint8
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case <-ticker.C:
		}

		mu.Lock()
		cur := state
		mu.Unlock()
		if !cur.running {
			continue
		}

		pkt := Payload(cur.rate, seq, d.cfg.Firmware, d.cfg.Battery)
		if cur.protected {
			pkt = protocol.Encode(protocol.TypeData, counter, pkt)
			counter++
		}
		seq++
		if _, err := conn.Write(pkt); err != nil {
			d.logger.Debug("client gone", "remote", conn.RemoteAddr().String(), "error", err)
			return
		}
	}
}

// parseStart reads "start [-protect] eeg.rate <N>".
func parseStart(line string) (streamState, bool) {
	st := streamState{running: true}
	fields := strings.Fields(line)
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "-protect":
			st.protected = true
		case "eeg.rate":
			if i+1 >= len(fields) {
				return st, false
			}
			hz, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return st, false
			}
			r, err := protocol.ParseRate(hz)
			if err != nil {
				return st, false
			}
			st.rate = r
			i++
		}
	}
	return st, st.rate != 0
}
