package transport

import (
	"context"
	"sync"

	"whispr-service/internal/model"
)

// Recorder is an in-memory Transport that keeps everything it is asked to deliver.
type Recorder struct {
	mu        sync.Mutex
	messages  []Delivery
	reactions []Delivery
	typing    []Delivery
	admin     []string
}

type Delivery struct {
	Recipient   string
	Body        string
	Attachments []string
	Typing      bool
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) SendMessage(ctx context.Context, recipient, body string, attachments []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Delivery{Recipient: recipient, Body: body, Attachments: attachments})
	return nil
}

func (r *Recorder) SendReaction(ctx context.Context, msg *model.Message, emoji string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactions = append(r.reactions, Delivery{Recipient: msg.Source, Body: emoji})
	return nil
}

func (r *Recorder) SetTyping(ctx context.Context, recipient string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing = append(r.typing, Delivery{Recipient: recipient, Typing: on})
	return nil
}

func (r *Recorder) NotifyAdmin(ctx context.Context, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admin = append(r.admin, body)
	return nil
}

// MessagesTo returns the bodies delivered to recipient in order.
func (r *Recorder) MessagesTo(recipient string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.messages {
		if m.Recipient == recipient {
			out = append(out, m.Body)
		}
	}
	return out
}

func (r *Recorder) Messages() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.messages...)
}

func (r *Recorder) Reactions() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.reactions...)
}

func (r *Recorder) Typing() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.typing...)
}

func (r *Recorder) Admin() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.admin...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages, r.reactions, r.typing, r.admin = nil, nil, nil, nil
}
