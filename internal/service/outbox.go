package service

import (
	"context"

	"go.uber.org/zap"

	"whispr-service/internal/graph"
	"whispr-service/internal/metrics"
	"whispr-service/internal/model"
	"whispr-service/internal/transport"
)

// Outbox is the only path to the transport. It drops traffic to blocked
// recipients and starts onboarding for recipients it has never seen.
type Outbox struct {
	transport transport.Transport
	store     *graph.Store
	logger    *zap.Logger
	onUnknown func(ctx context.Context, recipient string)
}

func NewOutbox(t transport.Transport, store *graph.Store, logger *zap.Logger) *Outbox {
	return &Outbox{transport: t, store: store, logger: logger}
}

func (o *Outbox) suppressed(ctx context.Context, recipient string) (bool, error) {
	blocked, err := o.store.Blocklist().IsBlocked(ctx, recipient)
	if err != nil {
		return false, err
	}
	if blocked {
		metrics.RecordSuppressed()
		o.logger.Debug("recipient is blocked, not sending", zap.String("recipient", recipient))
	}
	return blocked, nil
}

func (o *Outbox) SendMessage(ctx context.Context, recipient, body string, attachments []string) error {
	if blocked, err := o.suppressed(ctx, recipient); err != nil || blocked {
		return err
	}
	if err := o.transport.SendMessage(ctx, recipient, body, attachments); err != nil {
		return err
	}
	metrics.RecordDelivery(transport.KindMessage)

	if o.onUnknown != nil {
		known, err := o.store.Known(ctx, recipient)
		if err != nil {
			o.logger.Warn("profile lookup failed after send", zap.String("recipient", recipient), zap.Error(err))
			return nil
		}
		if !known {
			o.onUnknown(ctx, recipient)
		}
	}
	return nil
}

func (o *Outbox) SendReaction(ctx context.Context, msg *model.Message, emoji string) error {
	if blocked, err := o.suppressed(ctx, msg.Source); err != nil || blocked {
		return err
	}
	metrics.RecordDelivery(transport.KindReaction)
	return o.transport.SendReaction(ctx, msg, emoji)
}

func (o *Outbox) SetTyping(ctx context.Context, recipient string, on bool) error {
	if blocked, err := o.suppressed(ctx, recipient); err != nil || blocked {
		return err
	}
	return o.transport.SetTyping(ctx, recipient, on)
}

func (o *Outbox) NotifyAdmin(ctx context.Context, body string) error {
	return o.transport.NotifyAdmin(ctx, body)
}
