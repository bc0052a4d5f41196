package client

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"whispr-service/internal/config"
)

type KafkaProducer struct {
	Writer  *kafka.Writer
	brokers []string
	logger  *zap.Logger
}

type KafkaConsumer struct {
	Reader *kafka.Reader
	logger *zap.Logger
}

// NewKafkaProducer builds a synchronous writer shared by the outbound message bridge
// and the social event publisher. Topics are set per message.
func NewKafkaProducer(cfg *config.Config, logger *zap.Logger) (*KafkaProducer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		BatchSize:              100,
		BatchBytes:             1 << 20,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	return &KafkaProducer{
		Writer:  writer,
		brokers: cfg.Kafka.Brokers,
		logger:  logger,
	}, nil
}

func NewKafkaConsumer(cfg *config.Config, topic, groupID string, logger *zap.Logger) (*KafkaConsumer, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
		MaxWait:        500 * time.Millisecond,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
	})

	logger.Info("Kafka consumer initialized",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", topic),
		zap.String("group_id", groupID),
	)

	return &KafkaConsumer{Reader: reader, logger: logger}, nil
}

func (p *KafkaProducer) Close() error {
	if p.Writer == nil {
		return nil
	}
	if err := p.Writer.Close(); err != nil {
		p.logger.Error("failed to close Kafka producer", zap.Error(err))
		return err
	}
	p.logger.Info("Kafka producer closed")
	return nil
}

func (c *KafkaConsumer) Close() error {
	if c.Reader == nil {
		return nil
	}
	if err := c.Reader.Close(); err != nil {
		c.logger.Error("failed to close Kafka consumer", zap.Error(err))
		return err
	}
	c.logger.Info("Kafka consumer closed")
	return nil
}

func (p *KafkaProducer) ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	msg := kafka.Message{Topic: topic, Key: key, Value: value}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	p.logger.Debug("Produced kafka message",
		zap.String("topic", topic),
		zap.ByteString("key", key),
		zap.Int("value_size", len(value)),
	)
	return nil
}

// FetchMessage reads the next message without committing it.
func (c *KafkaConsumer) FetchMessage(ctx context.Context) (kafka.Message, error) {
	msg, err := c.Reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to read kafka message: %w", err)
	}
	return msg, nil
}

func (c *KafkaConsumer) Commit(ctx context.Context, msg kafka.Message) error {
	return c.Reader.CommitMessages(ctx, msg)
}

func (p *KafkaProducer) HealthCheck(ctx context.Context) error {
	dialer := &kafka.Dialer{Timeout: 5 * time.Second, DualStack: true}
	conn, err := dialer.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("failed to read kafka brokers: %w", err)
	}
	return nil
}
