package simulator

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/eeglink/internal/bdf"
	"firestige.xyz/eeglink/internal/decoder"
	"firestige.xyz/eeglink/internal/protocol"
)

func startDevice(t *testing.T, cfg Config) *Device {
	t.Helper()
	d, err := Listen("127.0.0.1:0", cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		d.Close()
	})
	return d
}

func TestHeaderLayout(t *testing.T) {
	for _, r := range []protocol.Rate{protocol.Rate250, protocol.Rate500, protocol.Rate1000} {
		hdr := Header(r, time.Now())
		require.Len(t, hdr, protocol.HeaderPayloadSize)

		h, err := bdf.Parse(hdr)
		require.NoError(t, err)
		assert.Equal(t, 22, h.SignalCount)
		assert.Equal(t, "EEG 1", h.Labels[0])
		assert.Equal(t, "BDF Annotations", h.Labels[21])
		assert.NoError(t, bdf.Verify(hdr))
	}
}

func TestPayloadDecodes(t *testing.T) {
	p := Payload(protocol.Rate500, 3, "fw", 77)
	fr, tm, err := decoder.Decode(p, protocol.Rate500)
	require.NoError(t, err)

	assert.Equal(t, 77, tm.Battery)
	assert.Equal(t, "fw", tm.Firmware)
	assert.InDelta(t, 0.3, fr.Time, 1e-9)
	assert.InDelta(t, 5.0, fr.Resistance.Ref, 1e-9)
	for _, rec := range fr.Raw {
		for _, v := range rec {
			assert.LessOrEqual(t, v, 51e-6)
			assert.GreaterOrEqual(t, v, -51e-6)
		}
	}
}

func TestDeviceProtectedStream(t *testing.T) {
	d := startDevice(t, Config{Interval: 10 * time.Millisecond, Battery: 64})

	conn, err := net.Dial("tcp", d.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	sync := make([]byte, protocol.TimeSyncSize)
	_, err = io.ReadFull(conn, sync)
	require.NoError(t, err)

	_, err = conn.Write([]byte("start -protect eeg.rate 250\r\n"))
	require.NoError(t, err)

	hdr := make([]byte, protocol.PacketSize(protocol.HeaderPayloadSize, true))
	_, err = io.ReadFull(conn, hdr)
	require.NoError(t, err)
	assert.Equal(t, protocol.Validated, protocol.Validate(hdr, protocol.TypeHeader, protocol.CounterCheck{Ignore: true}))

	pkt := make([]byte, protocol.PacketSize(protocol.Rate250.PayloadSize(), true))
	for i := 0; i < 3; i++ {
		_, err = io.ReadFull(conn, pkt)
		require.NoError(t, err)
		assert.Equal(t, protocol.Validated, protocol.Validate(pkt, protocol.TypeData, protocol.CounterCheck{Prev: uint8(i - 1), Ignore: i == 0}))
	}

	assert.Equal(t, []string{"start -protect eeg.rate 250"}, d.Commands())
	assert.Equal(t, 1, d.Accepted())
}

func TestParseStart(t *testing.T) {
	st, ok := parseStart("start eeg.rate 1000")
	require.True(t, ok)
	assert.Equal(t, protocol.Rate1000, st.rate)
	assert.False(t, st.protected)

	_, ok = parseStart("start -protect eeg.rate 300")
	assert.False(t, ok)
	_, ok = parseStart("start eeg.rate")
	assert.False(t, ok)
}
