// Package messaging publishes applied order events to Kafka, keyed by order
// id so every event of one order lands on the same partition.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/events"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultTopic is the topic order events are published to.
const DefaultTopic = "orderexec.order-events"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("kafka sink is closed")

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig contains configuration options for KafkaSink
type KafkaConfig struct {
	Brokers         []string
	Topic           string
	BatchSize       int
	BatchTimeout    time.Duration
	WriteTimeout    time.Duration
	RequiredAcks    int
	Compression     string
	MaxMessageBytes int
	RetryMax        int
}

// DefaultKafkaConfig favours latency over throughput.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:         []string{"localhost:9092"},
		Topic:           DefaultTopic,
		BatchSize:       100,
		BatchTimeout:    5 * time.Millisecond,
		WriteTimeout:    time.Second,
		RequiredAcks:    1, // leader ack only
		Compression:     "snappy",
		MaxMessageBytes: 1048576, // 1MB
		RetryMax:        3,
	}
}

// KafkaSink writes each order event as one JSON message.
type KafkaSink struct {
	brokers []string
	topic   string
	writer  messageWriter
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
}

var _ events.Sink = (*KafkaSink)(nil)

// NewKafkaSink creates a synchronous writer for the configured topic.
func NewKafkaSink(config KafkaConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.CRC32Balancer{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:  config.RetryMax,
		BatchBytes:   int64(config.MaxMessageBytes),
		Compression:  compressionCodec(config.Compression),
		Async:        false,
	}
	return newKafkaSink(config.Brokers, config.Topic, writer, logger), nil
}

func newKafkaSink(brokers []string, topic string, writer messageWriter, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{
		brokers: brokers,
		topic:   topic,
		writer:  writer,
		logger:  logger.With(zap.String("sink", "kafka"), zap.String("topic", topic)),
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Snappy
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

// Topic returns the topic this sink publishes to
func (s *KafkaSink) Topic() string { return s.topic }

// Publish writes the event keyed by its order id.
func (s *KafkaSink) Publish(ctx context.Context, e *model.OrderEvent) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	writer := s.writer
	s.mu.RUnlock()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	key := strconv.Itoa(e.OrderID)
	message := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte("orderexec")},
			{Key: "event_type", Value: []byte(events.TypeOf(e))},
			{Key: "symbol", Value: []byte(e.Symbol)},
			{Key: "timestamp", Value: []byte(e.UTCTime.UTC().Format(time.RFC3339Nano))},
		},
		Time: e.UTCTime,
	}

	if err := writer.WriteMessages(ctx, message); err != nil {
		s.logger.Error("Failed to publish order event to Kafka",
			zap.String("key", key),
			zap.String("status", string(e.Status)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish event to kafka topic %s: %w", s.topic, err)
	}

	s.logger.Debug("Published order event",
		zap.String("key", key),
		zap.Int("data_size", len(data)),
	)
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.writer.Close(); err != nil {
		s.logger.Error("Error closing Kafka writer", zap.Error(err))
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

// IsHealthy dials the first broker and reads the topic's partitions.
func (s *KafkaSink) IsHealthy(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	conn, err := kafka.DialContext(ctx, "tcp", s.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(s.topic); err != nil {
		return fmt.Errorf("failed to read topic partitions: %w", err)
	}
	return nil
}
