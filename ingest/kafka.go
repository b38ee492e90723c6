package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the consumer needs
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the event bus consumer
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
}

// NewKafkaReader creates a consumer group reader for cfg
func NewKafkaReader(cfg KafkaConfig) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka brokers, topic and group id are required")
	}
	minBytes, maxBytes := cfg.MinBytes, cfg.MaxBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: minBytes,
		MaxBytes: maxBytes,
	}), nil
}

// KafkaSource consumes JSON event objects from a topic. A message is
// committed once its event has been handed to the sink, or immediately when
// it cannot be decoded.
type KafkaSource struct {
	reader MessageReader
	sink   EventSink
	logger *zap.SugaredLogger
	source string

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewKafkaSource creates a consumer over reader. source labels the events.
func NewKafkaSource(reader MessageReader, sink EventSink, source string, logger *zap.SugaredLogger) *KafkaSource {
	if source == "" {
		source = "kafka"
	}
	return &KafkaSource{reader: reader, sink: sink, source: source, logger: logger}
}

// Start begins consuming
func (k *KafkaSource) Start(ctx context.Context) {
	ctx, k.cancel = context.WithCancel(ctx)
	k.wg.Add(1)
	go k.run(ctx)
}

func (k *KafkaSource) run(ctx context.Context) {
	defer k.wg.Done()
	defer goroutine.Recover("kafka-source", k.logger)

	k.logger.Infow("Kafka consumer started", "source", k.source)
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			k.logger.Warnw("Failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := k.decode(msg)
		if err != nil {
			k.logger.Warnw("Discarding undecodable message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err)
			metrics.EventsDropped.WithLabelValues("decode").Inc()
		} else if err := k.sink.Submit(ctx, event); err != nil {
			if errors.Is(err, core.ErrEngineClosed) || ctx.Err() != nil {
				// left uncommitted so another consumer picks it up
				return
			}
			k.logger.Warnw("Failed to submit event", "offset", msg.Offset, "error", err)
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			k.logger.Warnw("Failed to commit message", "offset", msg.Offset, "error", err)
		}
	}
}

func (k *KafkaSource) decode(msg kafka.Message) (*core.Event, error) {
	var fields map[string]any
	if err := json.Unmarshal(msg.Value, &fields); err != nil {
		return nil, err
	}
	if _, ok := fields[core.FieldTimestamp]; !ok {
		if _, ok := fields[core.FieldParsedAt]; !ok && !msg.Time.IsZero() {
			fields[core.FieldTimestamp] = msg.Time
		}
	}
	if _, ok := fields[core.FieldSource]; !ok {
		fields[core.FieldSource] = k.source
	}
	return core.EventFromFields(fields)
}

// Stop cancels consumption, waits for the loop to exit and closes the reader
func (k *KafkaSource) Stop() error {
	if k.cancel != nil {
		k.cancel()
	}
	k.wg.Wait()
	return k.reader.Close()
}
