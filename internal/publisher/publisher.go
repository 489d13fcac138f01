// Package publisher forwards decoded frames to Kafka.
// Frames are queued without blocking the session and written in batches by
// a background goroutine.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/eeglink/internal/config"
	"firestige.xyz/eeglink/internal/decoder"
	"firestige.xyz/eeglink/internal/metrics"
)

const defaultMaxAttempts = 3

// messageWriter is the subset of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Telemetry supplies the device state attached to each message.
type Telemetry interface {
	Battery() int
	Firmware() string
}

// Publisher sends frames to a Kafka topic.
type Publisher struct {
	cfg       config.PublisherConfig
	device    string
	telemetry Telemetry
	writer    messageWriter
	logger    *slog.Logger

	queue    chan kafka.Message
	stopping chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	stopped  atomic.Bool

	// Statistics
	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a publisher for frames of device. telemetry may be nil.
func New(cfg config.PublisherConfig, device string, telemetry Telemetry) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("publisher: brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("publisher: topic is required")
	}

	writerConfig := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // one device, one partition
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  defaultMaxAttempts,
	}

	switch cfg.Compression {
	case "none", "":
		writerConfig.CompressionCodec = nil
	case "gzip":
		writerConfig.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		writerConfig.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		writerConfig.CompressionCodec = compress.Lz4.Codec()
	default:
		return nil, fmt.Errorf("publisher: invalid compression type: %s", cfg.Compression)
	}

	return newPublisher(cfg, device, telemetry, kafka.NewWriter(writerConfig)), nil
}

func newPublisher(cfg config.PublisherConfig, device string, telemetry Telemetry, w messageWriter) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	return &Publisher{
		cfg:       cfg,
		device:    device,
		telemetry: telemetry,
		writer:    w,
		logger:    slog.Default().With("component", "publisher"),
		queue:     make(chan kafka.Message, cfg.QueueSize),
		stopping:  make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Info("kafka publisher started",
		"brokers", p.cfg.Brokers,
		"topic", p.cfg.Topic,
		"batch_size", p.cfg.BatchSize,
		"batch_timeout", p.cfg.BatchTimeout,
		"compression", p.cfg.Compression,
	)
}

// frameMessage is the JSON document published per frame.
type frameMessage struct {
	Device     string             `json:"device"`
	Time       float64            `json:"time"`
	Rate       int                `json:"rate"`
	Records    int                `json:"records"`
	GapFill    bool               `json:"gap_fill,omitempty"`
	Battery    int                `json:"battery"`
	Firmware   string             `json:"firmware,omitempty"`
	Resistance decoder.Resistance `json:"resistance"`
	Samples    []decoder.Record   `json:"samples"`
}

// Publish queues fr. It never blocks: with the queue full the frame is
// dropped and false is returned.
func (p *Publisher) Publish(fr *decoder.Frame) bool {
	if fr == nil || p.stopped.Load() {
		return false
	}

	msg := frameMessage{
		Device:     p.device,
		Time:       fr.Time,
		Rate:       int(fr.Rate),
		Records:    fr.Records(),
		GapFill:    fr.GapFill,
		Resistance: fr.Resistance,
		Samples:    fr.Filtered,
	}
	if msg.Samples == nil {
		msg.Samples = fr.Raw
	}
	if p.telemetry != nil {
		msg.Battery = p.telemetry.Battery()
		msg.Firmware = p.telemetry.Firmware()
	}

	value, err := json.Marshal(msg)
	if err != nil {
		p.failed.Add(1)
		metrics.PublisherMessagesTotal.WithLabelValues("error").Inc()
		p.logger.Error("serialize frame failed", "error", err)
		return false
	}

	select {
	case p.queue <- kafka.Message{Key: []byte(p.device), Value: value, Time: time.Now()}:
		return true
	default:
		p.dropped.Add(1)
		metrics.PublisherDroppedTotal.Inc()
		return false
	}
}

func (p *Publisher) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.BatchTimeout)
	defer ticker.Stop()

	batch := make([]kafka.Message, 0, p.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.write(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case msg := <-p.queue:
			batch = append(batch, msg)
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.stopping:
			for {
				select {
				case msg := <-p.queue:
					batch = append(batch, msg)
				default:
					flush()
					return
				}
			}
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (p *Publisher) write(ctx context.Context, batch []kafka.Message) {
	if err := p.writer.WriteMessages(context.WithoutCancel(ctx), batch...); err != nil {
		p.failed.Add(uint64(len(batch)))
		metrics.PublisherMessagesTotal.WithLabelValues("error").Add(float64(len(batch)))
		p.logger.Error("kafka write failed", "messages", len(batch), "error", err)
		return
	}
	p.published.Add(uint64(len(batch)))
	metrics.PublisherMessagesTotal.WithLabelValues("ok").Add(float64(len(batch)))
}

// Stop drains queued frames, flushes them and closes the writer.
func (p *Publisher) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.stopping)
		p.wg.Wait()

		if err = p.writer.Close(); err != nil {
			p.logger.Error("error closing kafka writer", "error", err)
		}
		p.logger.Info("kafka publisher stopped",
			"total_published", p.published.Load(),
			"total_errors", p.failed.Load(),
			"total_dropped", p.dropped.Load(),
		)
	})
	return err
}

// Stats returns published, failed and dropped message counts.
func (p *Publisher) Stats() (published, failed, dropped uint64) {
	return p.published.Load(), p.failed.Load(), p.dropped.Load()
}
