package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"whispr-service/internal/graph"
	"whispr-service/internal/model"
	"whispr-service/internal/util"
)

var welcome = []string{
	"welcome to whispr, a social media that runs on signal. " +
		"text STOP or BLOCK to not receive messages. type /help to view available commands.",
	"send a 0.01 'tip' to someone. when they claim it, get 0.01 MOB yourself",
}

// greet onboards a number the bot has just messaged for the first time: it
// reserves the number as a provisional name and asks for a real one.
func (e *Engine) greet(ctx context.Context, recipient string) {
	if _, busy := e.greeting.LoadOrStore(recipient, struct{}{}); busy {
		return
	}
	if err := e.store.Reserve(ctx, recipient); err != nil {
		e.greeting.Delete(recipient)
		e.logger.Error("reserving new user failed", zap.String("number", recipient), zap.Error(err))
		return
	}
	e.spawn(recipient, "greet", func(ctx context.Context) error {
		defer e.greeting.Delete(recipient)
		return e.onboard(ctx, recipient)
	})
}

func (e *Engine) onboard(ctx context.Context, recipient string) error {
	for _, line := range welcome {
		if err := e.outbox.SendMessage(ctx, recipient, line, nil); err != nil {
			return err
		}
	}

	answer, err := e.questions.AskFreeform(ctx, recipient, "what would you like to be called?")
	if err != nil {
		if abandoned(err) {
			return nil
		}
		return err
	}

	claim, err := e.claimName(ctx, recipient, answer)
	if err != nil {
		return err
	}
	if claim.ok {
		e.send(ctx, recipient, fmt.Sprintf("other users will now see you as %s", claim.name))
		return nil
	}
	e.send(ctx, recipient, claim.text)
	return nil
}

type nameClaim struct {
	ok   bool
	name string
	text string
}

// claimName validates and stores a requested name. Rejections come back as text.
func (e *Engine) claimName(ctx context.Context, number, requested string) (nameClaim, error) {
	name := util.SanitizeDisplayName(requested)
	if name == "" || util.ContainsSuspicious(name) {
		return nameClaim{text: fmt.Sprintf("'%s' can't be used as a name, use /name to set a different name", requested)}, nil
	}
	_, err := e.store.SetDisplayName(ctx, number, name)
	if errors.Is(err, graph.ErrNameTaken) {
		return nameClaim{text: fmt.Sprintf("'%s' is already taken, use /name to set a different name", name)}, nil
	}
	if err != nil {
		return nameClaim{}, err
	}
	e.reindex(ctx, number)
	return nameClaim{ok: true, name: name}, nil
}

func (e *Engine) doName(ctx context.Context, msg *model.Message) (string, error) {
	old := e.nameOf(ctx, msg.Source, "")
	if msg.Arg1 == "" {
		return fmt.Sprintf("missing name argument. usage: /name [name]. your name is %s", old), nil
	}
	claim, err := e.claimName(ctx, msg.Source, msg.Arg1)
	if err != nil {
		return "", err
	}
	if !claim.ok {
		return claim.text, nil
	}
	return fmt.Sprintf("other users will now see you as %s. you used to be %s", claim.name, old), nil
}

func (e *Engine) optOut(ctx context.Context, msg *model.Message) (string, error) {
	changed, err := e.store.Blocklist().Block(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	if changed {
		e.publish(ctx, model.SocialEvent{Type: model.EventBlock, Actor: msg.Source})
	}
	// sent around the blocklist so the user sees it
	return "", e.transportDirect(ctx, msg.Source, "i'll stop messaging you. text START or UNBLOCK to resume texts")
}

func (e *Engine) optIn(ctx context.Context, msg *model.Message) (string, error) {
	was, err := e.store.Blocklist().Unblock(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	if !was {
		return "you weren't blocked", nil
	}
	e.publish(ctx, model.SocialEvent{Type: model.EventUnblock, Actor: msg.Source})
	return "welcome back", nil
}

// transportDirect bypasses the blocklist.
func (e *Engine) transportDirect(ctx context.Context, recipient, body string) error {
	return e.outbox.transport.SendMessage(ctx, recipient, body, nil)
}
