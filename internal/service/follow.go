package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"whispr-service/internal/graph"
	"whispr-service/internal/model"
)

func (e *Engine) doFollow(ctx context.Context, msg *model.Message) (string, error) {
	target, invalid, err := e.resolveArg(ctx, msg.Arg1)
	if err != nil || invalid != "" {
		return invalid, err
	}
	if target == msg.Source {
		return "you can't follow yourself", nil
	}

	following, err := e.store.IsFollowing(ctx, msg.Source, target)
	if err != nil {
		return "", err
	}
	if following {
		return fmt.Sprintf("you're already following %s", msg.Arg1), nil
	}

	name := e.nameOf(ctx, msg.Source, msg.Name)
	price, err := e.store.FollowPrice(ctx, target)
	if err != nil {
		return "", err
	}
	if price > 0 {
		refusal, err := e.payForFollow(ctx, msg.Source, name, target, price)
		if err != nil || refusal != "" {
			return refusal, err
		}
	}

	if err := e.store.AddFollower(ctx, target, msg.Source); err != nil {
		return "", err
	}
	e.send(ctx, target, fmt.Sprintf("%s has followed you", name))
	e.publish(ctx, model.SocialEvent{Type: model.EventFollow, Actor: msg.Source, Target: target, AmountPmob: price})
	return fmt.Sprintf("followed %s", msg.Arg1), nil
}

func inviteKey(inviter, invitee string) string {
	return inviter + "/" + invitee
}

// doInvite asks the invitee in the background whether they want to follow the
// inviter. The command itself returns at once.
func (e *Engine) doInvite(ctx context.Context, msg *model.Message) (string, error) {
	invitee, invalid, err := e.resolveArg(ctx, msg.Arg1)
	if err != nil || invalid != "" {
		return invalid, err
	}
	inviter := msg.Source
	if invitee == inviter {
		return "you can't invite yourself", nil
	}

	follows, err := e.store.IsFollowing(ctx, invitee, inviter)
	if err != nil {
		return "", err
	}
	if follows {
		return fmt.Sprintf("%s already follows you", msg.Arg1), nil
	}

	key := inviteKey(inviter, invitee)
	if _, pending := e.invites.LoadOrStore(key, struct{}{}); pending {
		return fmt.Sprintf("you already invited %s", msg.Arg1), nil
	}

	name := e.nameOf(ctx, inviter, msg.Name)
	e.spawn(inviter, "invite", func(ctx context.Context) error {
		defer e.invites.Delete(key)
		return e.confirmInvite(ctx, inviter, name, invitee)
	})
	return fmt.Sprintf("invited %s", msg.Arg1), nil
}

func (e *Engine) confirmInvite(ctx context.Context, inviter, inviterName, invitee string) error {
	accepted, err := e.questions.AskYesNo(ctx, invitee,
		fmt.Sprintf("%s invited you to follow them on whispr. text (y)es or (n)o/cancel to accept", inviterName))
	if err != nil {
		if abandoned(err) {
			e.logger.Info("invite went unanswered", zap.String("inviter", inviter), zap.String("invitee", invitee))
			return nil
		}
		return err
	}

	inviteeName := e.nameOf(ctx, invitee, "")
	if !accepted {
		e.send(ctx, inviter, fmt.Sprintf("%s didn't follow you", inviteeName))
		e.publish(ctx, model.SocialEvent{Type: model.EventInviteDeclined, Actor: invitee, Target: inviter})
		return nil
	}

	if err := e.store.AddFollower(ctx, inviter, invitee); err != nil {
		return err
	}
	e.send(ctx, invitee, fmt.Sprintf("followed %s", inviterName))
	e.send(ctx, inviter, fmt.Sprintf("%s followed you", inviteeName))
	e.publish(ctx, model.SocialEvent{Type: model.EventInviteAccepted, Actor: invitee, Target: inviter})
	return nil
}

// doForceInvite makes the target follow the admin without asking or paying.
func (e *Engine) doForceInvite(ctx context.Context, msg *model.Message) (string, error) {
	target, invalid, err := e.resolveArg(ctx, msg.Arg1)
	if err != nil || invalid != "" {
		return invalid, err
	}
	follows, err := e.store.IsFollowing(ctx, target, msg.Source)
	if err != nil {
		return "", err
	}
	if follows {
		return fmt.Sprintf("%s is already following you", msg.Arg1), nil
	}
	if err := e.store.AddFollower(ctx, msg.Source, target); err != nil {
		if errors.Is(err, graph.ErrSelfFollow) {
			return "you can't follow yourself", nil
		}
		return "", err
	}
	e.send(ctx, target, fmt.Sprintf("you are now following %s", e.nameOf(ctx, msg.Source, "")))
	e.publish(ctx, model.SocialEvent{Type: model.EventFollow, Actor: target, Target: msg.Source})
	return fmt.Sprintf("%s is now following you", msg.Arg1), nil
}

// doSoftblock removes one of the caller's followers.
func (e *Engine) doSoftblock(ctx context.Context, msg *model.Message) (string, error) {
	target, invalid, err := e.resolveArg(ctx, msg.Arg1)
	if err != nil || invalid != "" {
		return invalid, err
	}
	follows, err := e.store.IsFollowing(ctx, target, msg.Source)
	if err != nil {
		return "", err
	}
	if !follows {
		return fmt.Sprintf("%s isn't following you", msg.Arg1), nil
	}
	if err := e.store.RemoveFollower(ctx, msg.Source, target); err != nil {
		return "", err
	}
	e.publish(ctx, model.SocialEvent{Type: model.EventSoftblock, Actor: msg.Source, Target: target})
	return fmt.Sprintf("softblocked %s", msg.Arg1), nil
}

func (e *Engine) doUnfollow(ctx context.Context, msg *model.Message) (string, error) {
	target, invalid, err := e.resolveArg(ctx, msg.Arg1)
	if err != nil || invalid != "" {
		return invalid, err
	}
	follows, err := e.store.IsFollowing(ctx, msg.Source, target)
	if err != nil {
		return "", err
	}
	if !follows {
		return fmt.Sprintf("you aren't following %s", msg.Arg1), nil
	}
	if err := e.store.RemoveFollower(ctx, target, msg.Source); err != nil {
		return "", err
	}
	e.publish(ctx, model.SocialEvent{Type: model.EventUnfollow, Actor: msg.Source, Target: target})
	return fmt.Sprintf("unfollowed %s", msg.Arg1), nil
}

func (e *Engine) doFollowers(ctx context.Context, msg *model.Message) (string, error) {
	followers, err := e.store.ListFollowers(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	if len(followers) == 0 {
		return "you don't have any followers", nil
	}
	return e.joinNames(ctx, followers), nil
}

func (e *Engine) doFollowing(ctx context.Context, msg *model.Message) (string, error) {
	following, err := e.store.Following(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	if len(following) == 0 {
		return "you aren't following anyone", nil
	}
	return e.joinNames(ctx, following), nil
}

func (e *Engine) joinNames(ctx context.Context, numbers []string) string {
	names := make([]string, len(numbers))
	for i, n := range numbers {
		names[i] = e.nameOf(ctx, n, "")
	}
	return strings.Join(names, ", ")
}

func (e *Engine) doLock(ctx context.Context, msg *model.Message) (string, error) {
	locked, err := e.store.IsLocked(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	if locked {
		return "you're already locked", nil
	}
	if err := e.store.SetLocked(ctx, msg.Source, true); err != nil {
		return "", err
	}
	e.reindex(ctx, msg.Source)
	return "you will no longer show up in recommended accounts to follow", nil
}

func (e *Engine) doUnlock(ctx context.Context, msg *model.Message) (string, error) {
	locked, err := e.store.IsLocked(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	if !locked {
		return "you weren't locked", nil
	}
	if err := e.store.SetLocked(ctx, msg.Source, false); err != nil {
		return "", err
	}
	e.reindex(ctx, msg.Source)
	return "you will show up in recommended accounts to follow", nil
}
