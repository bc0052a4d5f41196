package transport

import (
	"context"

	"go.uber.org/zap"

	"whispr-service/internal/model"
)

// LogTransport writes outbound traffic to the log instead of a gateway. Used
// for local runs without Kafka.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (l *LogTransport) SendMessage(ctx context.Context, recipient, body string, attachments []string) error {
	l.logger.Info("outbound message",
		zap.String("recipient", recipient),
		zap.String("body", body),
		zap.Strings("attachments", attachments))
	return nil
}

func (l *LogTransport) SendReaction(ctx context.Context, msg *model.Message, emoji string) error {
	l.logger.Info("outbound reaction", zap.String("recipient", msg.Source), zap.String("emoji", emoji))
	return nil
}

func (l *LogTransport) SetTyping(ctx context.Context, recipient string, on bool) error {
	l.logger.Debug("typing", zap.String("recipient", recipient), zap.Bool("on", on))
	return nil
}

func (l *LogTransport) NotifyAdmin(ctx context.Context, body string) error {
	l.logger.Info("admin notification", zap.String("body", body))
	return nil
}
