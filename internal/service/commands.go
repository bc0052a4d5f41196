package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"whispr-service/internal/model"
)

type command struct {
	run   func(ctx context.Context, msg *model.Message) (string, error)
	help  string
	admin bool
}

func (e *Engine) commandTable() map[string]command {
	return map[string]command{
		"help":             {run: e.doHelp, help: "/help. list available commands"},
		"name":             {run: e.doName, help: "/name [name]. set or change your name"},
		"set_follow_price": {run: e.doSetFollowPrice, help: "/set_follow_price [amount]. set how much MOB it costs to follow you"},
		"follow":           {run: e.doFollow, help: "/follow [number or name]. follow someone"},
		"invite":           {run: e.doInvite, help: "/invite [number or name]. invite someone to follow you"},
		"followers":        {run: e.doFollowers, help: "/followers. list your followers"},
		"following":        {run: e.doFollowing, help: "/following. list who you follow"},
		"softblock":        {run: e.doSoftblock, help: "/softblock [number or name]. removes someone from your followers"},
		"unfollow":         {run: e.doUnfollow, help: "/unfollow [number or name]. unfollow someone"},
		"forceinvite":      {run: e.doForceInvite, help: "/forceinvite [number or name]. make someone follow you", admin: true},
		"lock":             {run: e.doLock, help: "/lock. don't let people discover you"},
		"unlock":           {run: e.doUnlock, help: "/unlock. let people discover you"},
		"recommend":        {run: e.doRecommend, help: "/recommend. accounts followed by people you follow"},
		"tip":              {run: e.doTip, help: "/tip [number or name] [amount]. send someone MOB"},
		"balance":          {run: e.doBalance, help: "/balance. returns your whispr balance in MOB"},
		"withdraw":         {run: e.doWithdraw, help: "/withdraw. send your whispr balance to your wallet"},
	}
}

func (e *Engine) doHelp(ctx context.Context, msg *model.Message) (string, error) {
	if msg.Arg1 != "" {
		cmd, ok := e.commands[strings.ToLower(strings.TrimPrefix(msg.Arg1, "/"))]
		if !ok || (cmd.admin && !e.isAdmin(msg.Source)) {
			return fmt.Sprintf("no such command %s", msg.Arg1), nil
		}
		return strings.ToLower(cmd.help), nil
	}

	names := make([]string, 0, len(e.commands))
	for name, cmd := range e.commands {
		if cmd.admin && !e.isAdmin(msg.Source) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, e.commands[name].help)
	}
	return strings.ToLower(strings.Join(lines, "\n")), nil
}
