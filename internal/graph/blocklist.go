package graph

import (
	"context"

	"whispr-service/internal/repository"
)

// Blocklist is the set of users who opted out of receiving messages.
type Blocklist struct {
	blocked repository.Dict
}

func NewBlocklist(d repository.Dict) *Blocklist {
	return &Blocklist{blocked: d}
}

func (b *Blocklist) IsBlocked(ctx context.Context, number string) (bool, error) {
	_, ok, err := b.blocked.Get(ctx, number)
	return ok, err
}

// Block reports whether number was newly blocked.
func (b *Blocklist) Block(ctx context.Context, number string) (bool, error) {
	already, err := b.IsBlocked(ctx, number)
	if err != nil || already {
		return false, err
	}
	return true, b.blocked.Set(ctx, number, "true")
}

// Unblock reports whether number had been blocked.
func (b *Blocklist) Unblock(ctx context.Context, number string) (bool, error) {
	_, was, err := b.blocked.Pop(ctx, number)
	return was, err
}
