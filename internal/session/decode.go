package session

import (
	"encoding/hex"
	"slices"

	"firestige.xyz/eeglink/internal/bdf"
	"firestige.xyz/eeglink/internal/decoder"
	"firestige.xyz/eeglink/internal/metrics"
	"firestige.xyz/eeglink/internal/protocol"
)

// streamState is the per-connection reassembly state.
type streamState struct {
	buf []byte

	handshakeDone bool
	timeSync      []byte
	outgoing      []byte

	headerSeen bool

	// counterArmed is false until a data packet has anchored the sequence,
	// and again right after a mismatch.
	counterArmed bool
	prevCounter  uint8
	prevPayload  []byte
}

// ingest appends received bytes and runs one decode pass.
func (e *Engine) ingest(data []byte) []*decoder.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stream.buf = append(e.stream.buf, data...)
	return e.decodeLocked()
}

// decodeLocked consumes as many complete units from the receive buffer as
// possible: the time-sync message, then the header packet, then data packets.
func (e *Engine) decodeLocked() []*decoder.Frame {
	st := &e.stream

	if !st.handshakeDone {
		if len(st.buf) < protocol.TimeSyncSize {
			return nil
		}
		st.timeSync = append([]byte(nil), st.buf[:protocol.TimeSyncSize]...)
		st.buf = st.buf[protocol.TimeSyncSize:]
		st.handshakeDone = true
		e.logger.Debug("time sync received", "message", hex.EncodeToString(st.timeSync))
		e.flushOutgoingLocked()
	}

	if !st.headerSeen {
		hdr, ok := e.takeHeaderLocked()
		if !ok {
			return nil
		}
		st.headerSeen = true
		// The first header of a session is kept; later ones after a reconnect are consumed only.
		if e.header == nil {
			e.header = hdr
			if err := bdf.Verify(hdr); err != nil {
				e.logger.Warn("device header is not a standard BDF header", "error", err)
			} else if h, err := bdf.Parse(hdr); err == nil {
				e.logger.Info("header captured", "signals", h.SignalCount, "duration", h.Duration)
			}
		}
	}

	rate := e.params.Rate
	protected := e.params.Protected
	size := rate.PayloadSize()
	want := protocol.PacketSize(size, protected)

	var frames []*decoder.Frame
	for len(st.buf) >= want {
		if !protected {
			payload := append([]byte(nil), st.buf[:size]...)
			st.buf = st.buf[size:]
			frames = e.emitLocked(frames, payload, false)
			continue
		}

		pkt := st.buf[:want]
		res := protocol.Validate(pkt, protocol.TypeData, protocol.CounterCheck{
			Prev:   st.prevCounter,
			Ignore: !st.counterArmed,
		})
		metrics.PacketsTotal.WithLabelValues("data", res.String()).Inc()

		switch res {
		case protocol.Validated:
			st.counterArmed = true
		case protocol.BadCounter:
			counter := protocol.Counter(pkt)
			e.logger.Debug("packet counter mismatch", "counter", counter, "prev", st.prevCounter)
			if st.prevPayload != nil && counter != st.prevCounter {
				frames = e.emitLocked(frames, slices.Clone(st.prevPayload), true)
			}
			// Re-anchor on the next packet instead of chasing this one's counter.
			st.counterArmed = false
		default:
			skip := protocol.Resync(st.buf, want)
			e.logger.Debug("packet rejected", "result", res.String(), "skipped", skip,
				"counter", protocol.Counter(pkt), "prev", st.prevCounter)
			metrics.ResyncBytesTotal.Add(float64(skip))
			st.buf = st.buf[skip:]
			continue
		}

		st.prevCounter = protocol.Counter(pkt)
		payload := append([]byte(nil), protocol.Payload(pkt)...)
		st.buf = st.buf[want:]
		st.prevPayload = payload
		frames = e.emitLocked(frames, payload, false)
	}

	if len(st.buf) == 0 {
		st.buf = st.buf[:0:0]
	}
	return frames
}

// takeHeaderLocked extracts the header payload, resynchronising on garbage.
func (e *Engine) takeHeaderLocked() ([]byte, bool) {
	st := &e.stream
	protected := e.params.Protected
	want := protocol.PacketSize(protocol.HeaderPayloadSize, protected)

	for len(st.buf) >= want {
		if !protected {
			hdr := append([]byte(nil), st.buf[:protocol.HeaderPayloadSize]...)
			st.buf = st.buf[protocol.HeaderPayloadSize:]
			return hdr, true
		}

		pkt := st.buf[:want]
		res := protocol.Validate(pkt, protocol.TypeHeader, protocol.CounterCheck{Ignore: true})
		metrics.PacketsTotal.WithLabelValues("header", res.String()).Inc()
		if res == protocol.Validated {
			hdr := append([]byte(nil), protocol.Payload(pkt)...)
			st.buf = st.buf[want:]
			return hdr, true
		}

		skip := protocol.Resync(st.buf, want)
		e.logger.Debug("header packet rejected", "result", res.String(), "skipped", skip)
		metrics.ResyncBytesTotal.Add(float64(skip))
		st.buf = st.buf[skip:]
	}
	return nil, false
}

// emitLocked decodes payload and pushes it through recording and filters.
func (e *Engine) emitLocked(frames []*decoder.Frame, payload []byte, gapFill bool) []*decoder.Frame {
	fr, tm, err := decoder.Decode(payload, e.params.Rate)
	if err != nil {
		e.logger.Error("decode failed", "error", err)
		return frames
	}
	fr.GapFill = gapFill
	e.applyTelemetry(tm)

	if e.writer != nil {
		if err := e.writer.Append(payload); err != nil {
			e.logger.Error("record append failed", "path", e.writer.Path(), "error", err)
		}
	}
	e.filters.Apply(fr)

	source := "decoded"
	if gapFill {
		source = "gapfill"
	}
	metrics.FramesTotal.WithLabelValues(source).Inc()
	return append(frames, fr)
}

// TimeSync returns the time-sync message of the current connection, or nil.
func (e *Engine) TimeSync() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream.timeSync == nil {
		return nil
	}
	return append([]byte(nil), e.stream.timeSync...)
}
