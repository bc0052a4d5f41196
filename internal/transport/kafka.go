package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"whispr-service/internal/client"
	"whispr-service/internal/model"
)

// Outbound envelope kinds.
const (
	KindMessage  = "message"
	KindReaction = "reaction"
	KindTyping   = "typing"
)

// Envelope is the outbound record the gateway consumes.
type Envelope struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Recipient   string    `json:"recipient"`
	Body        string    `json:"body,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	Emoji       string    `json:"emoji,omitempty"`
	TargetID    string    `json:"target_id,omitempty"`
	TargetTS    int64     `json:"target_timestamp,omitempty"`
	Typing      bool      `json:"typing,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// KafkaTransport produces outbound envelopes keyed by recipient, so each
// recipient's traffic stays ordered on one partition.
type KafkaTransport struct {
	producer *client.KafkaProducer
	topic    string
	admins   []string
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func NewKafkaTransport(producer *client.KafkaProducer, topic string, admins []string, perSecond float64, logger *zap.Logger) *KafkaTransport {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(int(perSecond), 1)
	}
	return &KafkaTransport{
		producer: producer,
		topic:    topic,
		admins:   admins,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
}

func (k *KafkaTransport) SendMessage(ctx context.Context, recipient, body string, attachments []string) error {
	return k.publish(ctx, Envelope{Kind: KindMessage, Recipient: recipient, Body: body, Attachments: attachments})
}

func (k *KafkaTransport) SendReaction(ctx context.Context, msg *model.Message, emoji string) error {
	return k.publish(ctx, Envelope{
		Kind:      KindReaction,
		Recipient: msg.Source,
		Emoji:     emoji,
		TargetID:  msg.ID,
		TargetTS:  msg.Timestamp,
	})
}

func (k *KafkaTransport) SetTyping(ctx context.Context, recipient string, on bool) error {
	return k.publish(ctx, Envelope{Kind: KindTyping, Recipient: recipient, Typing: on})
}

func (k *KafkaTransport) NotifyAdmin(ctx context.Context, body string) error {
	var errs []error
	for _, admin := range k.admins {
		errs = append(errs, k.SendMessage(ctx, admin, body, nil))
	}
	return errors.Join(errs...)
}

func (k *KafkaTransport) publish(ctx context.Context, env Envelope) error {
	if err := k.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("outbound rate limit: %w", err)
	}
	env.ID = uuid.NewString()
	env.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	headers := map[string]string{"kind": env.Kind}
	if err := k.producer.ProduceMessage(ctx, k.topic, []byte(env.Recipient), payload, headers); err != nil {
		return err
	}
	return nil
}

// Handler receives decoded inbound messages.
type Handler func(ctx context.Context, msg *model.Message)

// KafkaInbound consumes inbound messages from the gateway.
type KafkaInbound struct {
	consumer *client.KafkaConsumer
	logger   *zap.Logger
}

func NewKafkaInbound(consumer *client.KafkaConsumer, logger *zap.Logger) *KafkaInbound {
	return &KafkaInbound{consumer: consumer, logger: logger}
}

// Run feeds inbound messages to handle until ctx is cancelled. Offsets are
// committed after handle returns; malformed records are skipped.
func (k *KafkaInbound) Run(ctx context.Context, handle Handler) error {
	for {
		record, err := k.consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			k.logger.Error("inbound fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		msg, err := DecodeInbound(record.Value)
		if err != nil {
			k.logger.Warn("dropping malformed inbound message",
				zap.Int64("offset", record.Offset),
				zap.Error(err))
		} else {
			handle(ctx, msg)
		}

		if err := k.consumer.Commit(ctx, record); err != nil && ctx.Err() == nil {
			k.logger.Error("inbound commit failed", zap.Error(err))
		}
	}
}

var ErrMissingSource = errors.New("inbound message has no source")

// DecodeInbound parses a gateway message and fills its command fields.
func DecodeInbound(payload []byte) (*model.Message, error) {
	var msg model.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode inbound: %w", err)
	}
	if msg.Source == "" {
		return nil, ErrMissingSource
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Parse()
	return &msg, nil
}
