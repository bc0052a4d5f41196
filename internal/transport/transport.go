// Package transport connects the bot to the messaging gateway.
package transport

import (
	"context"

	"whispr-service/internal/model"
)

// Reaction emoji used to acknowledge a broadcast.
const ReactionOutbox = "\U0001F4E4"

// Transport delivers outbound traffic to the messaging gateway.
type Transport interface {
	SendMessage(ctx context.Context, recipient, body string, attachments []string) error
	SendReaction(ctx context.Context, msg *model.Message, emoji string) error
	SetTyping(ctx context.Context, recipient string, on bool) error
	NotifyAdmin(ctx context.Context, body string) error
}

// Sender is the subset of Transport needed to ask questions.
type Sender interface {
	SendMessage(ctx context.Context, recipient, body string, attachments []string) error
}
