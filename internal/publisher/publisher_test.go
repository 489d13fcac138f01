package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/eeglink/internal/config"
	"firestige.xyz/eeglink/internal/decoder"
	"firestige.xyz/eeglink/internal/protocol"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	err     error
	block   chan struct{}
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, append([]kafka.Message(nil), msgs...))
	return w.err
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []kafka.Message
	for _, b := range w.batches {
		out = append(out, b...)
	}
	return out
}

type staticTelemetry struct{}

func (staticTelemetry) Battery() int     { return 42 }
func (staticTelemetry) Firmware() string { return "fw-9" }

func testFrame(t float64) *decoder.Frame {
	raw := make([]decoder.Record, 2)
	raw[1][0] = 1e-5
	return &decoder.Frame{
		Time:       t,
		Rate:       protocol.Rate250,
		Raw:        raw,
		Filtered:   append([]decoder.Record(nil), raw...),
		Resistance: decoder.Resistance{Ref: 5, Ground: 6},
	}
}

func testConfig() config.PublisherConfig {
	return config.PublisherConfig{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		Topic:        "eeg-frames",
		BatchSize:    3,
		BatchTimeout: 10 * time.Millisecond,
		QueueSize:    8,
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.PublisherConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.PublisherConfig) {}},
		{name: "gzip", mutate: func(c *config.PublisherConfig) { c.Compression = "gzip" }},
		{name: "lz4", mutate: func(c *config.PublisherConfig) { c.Compression = "lz4" }},
		{name: "missing brokers", mutate: func(c *config.PublisherConfig) { c.Brokers = nil }, wantErr: "brokers is required"},
		{name: "missing topic", mutate: func(c *config.PublisherConfig) { c.Topic = "" }, wantErr: "topic is required"},
		{name: "bad compression", mutate: func(c *config.PublisherConfig) { c.Compression = "zip" }, wantErr: "invalid compression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			p, err := New(cfg, "dev", nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, p.writer.Close())
		})
	}
}

func TestPublishWritesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(testConfig(), "10.0.0.1:12345", staticTelemetry{}, w)
	p.Start(context.Background())

	for i := 0; i < 4; i++ {
		require.True(t, p.Publish(testFrame(float64(i))))
	}
	require.NoError(t, p.Stop())

	msgs := w.messages()
	require.Len(t, msgs, 4)
	assert.True(t, w.closed)
	assert.Equal(t, "10.0.0.1:12345", string(msgs[0].Key))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[2].Value, &doc))
	assert.Equal(t, "10.0.0.1:12345", doc["device"])
	assert.EqualValues(t, 2, doc["time"])
	assert.EqualValues(t, 250, doc["rate"])
	assert.EqualValues(t, 2, doc["records"])
	assert.EqualValues(t, 42, doc["battery"])
	assert.Equal(t, "fw-9", doc["firmware"])
	assert.EqualValues(t, 6, doc["resistance"].(map[string]interface{})["ground"])
	samples := doc["samples"].([]interface{})
	assert.InDelta(t, 1e-5, samples[1].([]interface{})[0], 1e-12)

	published, failed, dropped := p.Stats()
	assert.EqualValues(t, 4, published)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	w := &fakeWriter{block: make(chan struct{})}
	cfg := testConfig()
	cfg.QueueSize = 2
	cfg.BatchSize = 1
	p := newPublisher(cfg, "dev", nil, w)
	p.Start(context.Background())

	// The first frame is taken by the writer, which then blocks.
	require.True(t, p.Publish(testFrame(0)))
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, time.Millisecond)

	assert.True(t, p.Publish(testFrame(1)))
	assert.True(t, p.Publish(testFrame(2)))
	assert.False(t, p.Publish(testFrame(3)))

	close(w.block)
	require.NoError(t, p.Stop())

	_, _, dropped := p.Stats()
	assert.EqualValues(t, 1, dropped)
	assert.Len(t, w.messages(), 3)
	assert.False(t, p.Publish(testFrame(4)), "publishing after stop is refused")
}

func TestPublishWriteErrorsCounted(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newPublisher(testConfig(), "dev", nil, w)
	p.Start(context.Background())

	p.Publish(testFrame(0))
	require.NoError(t, p.Stop())

	published, failed, _ := p.Stats()
	assert.Zero(t, published)
	assert.EqualValues(t, 1, failed)
}

func TestBatchTimeoutFlushes(t *testing.T) {
	w := &fakeWriter{}
	cfg := testConfig()
	cfg.BatchSize = 100
	p := newPublisher(cfg, "dev", nil, w)
	p.Start(context.Background())
	defer p.Stop()

	p.Publish(testFrame(0))
	require.Eventually(t, func() bool { return len(w.messages()) == 1 }, time.Second, 5*time.Millisecond)
}
