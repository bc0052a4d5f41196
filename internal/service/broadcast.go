package service

import (
	"context"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"whispr-service/internal/config"
	"whispr-service/internal/model"
	"whispr-service/internal/transport"
)

// broadcast posts msg to every current follower of its sender.
func (e *Engine) broadcast(ctx context.Context, msg *model.Message) error {
	if msg.Source == "" || (strings.TrimSpace(msg.FullText()) == "" && len(msg.Attachments) == 0) {
		e.logger.Debug("ignoring empty message", zap.String("source", msg.Source))
		return nil
	}

	known, err := e.store.Known(ctx, msg.Source)
	if err != nil {
		return err
	}
	if !known {
		// The reply reaches an unknown number, which starts onboarding.
		e.send(ctx, msg.Source, msg.Text+" yourself")
		return nil
	}

	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, "broadcast:"+msg.Source)
		if err != nil {
			e.logger.Warn("broadcast limiter failed, allowing", zap.String("source", msg.Source), zap.Error(err))
		} else if !allowed {
			e.send(ctx, msg.Source, "you're posting too fast. try again later")
			return nil
		}
	}

	name, err := e.store.DisplayName(ctx, msg.Source)
	if err != nil {
		return err
	}
	followers, err := e.store.ListFollowers(ctx, msg.Source)
	if err != nil {
		return err
	}

	body := name + ": " + msg.FullText()
	attachments := e.attachmentPaths(msg.Attachments)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.FanoutConcurrency)
	for _, follower := range followers {
		follower := follower
		g.Go(func() error {
			if err := e.outbox.SendMessage(gctx, follower, body, attachments); err != nil {
				e.logger.Warn("broadcast delivery failed",
					zap.String("source", msg.Source),
					zap.String("follower", follower),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := e.outbox.SendReaction(ctx, msg, transport.ReactionOutbox); err != nil {
		e.logger.Warn("broadcast acknowledgement failed", zap.String("source", msg.Source), zap.Error(err))
	}
	e.publish(ctx, model.SocialEvent{Type: model.EventBroadcast, Actor: msg.Source, Recipients: len(followers)})
	return nil
}

// attachmentPaths maps attachments to where the messaging gateway stores them.
func (e *Engine) attachmentPaths(attachments []model.Attachment) []string {
	if len(attachments) == 0 {
		return nil
	}
	paths := make([]string, len(attachments))
	for i, a := range attachments {
		if e.opts.AttachmentMode == config.AttachmentsAuxin {
			paths[i] = path.Join("/tmp", a.FileName)
		} else {
			paths[i] = path.Join("attachments", a.ID)
		}
	}
	return paths
}
