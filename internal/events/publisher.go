// Package events publishes social graph activity for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"whispr-service/internal/client"
	"whispr-service/internal/model"
)

// Publisher is best-effort: failures are logged, never returned to callers.
type Publisher interface {
	Publish(ctx context.Context, ev model.SocialEvent)
}

type KafkaPublisher struct {
	producer *client.KafkaProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaPublisher(producer *client.KafkaProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev model.SocialEvent) {
	stamp(&ev)
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal social event", zap.Error(err))
		return
	}
	headers := map[string]string{"type": string(ev.Type)}
	if err := p.producer.ProduceMessage(ctx, p.topic, []byte(ev.Actor), payload, headers); err != nil {
		p.logger.Warn("publish social event failed",
			zap.String("type", string(ev.Type)),
			zap.String("actor", ev.Actor),
			zap.Error(err))
	}
}

// Log writes events to the log when no broker is configured.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log { return &Log{logger: logger} }

func (l *Log) Publish(ctx context.Context, ev model.SocialEvent) {
	stamp(&ev)
	l.logger.Debug("social event",
		zap.String("type", string(ev.Type)),
		zap.String("actor", ev.Actor),
		zap.String("target", ev.Target))
}

// Memory keeps events in process.
type Memory struct {
	mu     sync.Mutex
	events []model.SocialEvent
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Publish(ctx context.Context, ev model.SocialEvent) {
	stamp(&ev)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *Memory) Events() []model.SocialEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SocialEvent(nil), m.events...)
}

// Types lists the recorded event types in order.
func (m *Memory) Types() []model.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.EventType, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}

func stamp(ev *model.SocialEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
}
