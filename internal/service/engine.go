package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"whispr-service/internal/dispatch"
	"whispr-service/internal/events"
	"whispr-service/internal/graph"
	"whispr-service/internal/identity"
	"whispr-service/internal/ledger"
	"whispr-service/internal/metrics"
	"whispr-service/internal/model"
	"whispr-service/internal/search"
	"whispr-service/internal/transport"
)

const somethingWentWrong = "sorry, something went wrong. please try again later"

// Questioner asks a user something and waits for the reply.
type Questioner interface {
	AskFreeform(ctx context.Context, recipient, prompt string) (string, error)
	AskYesNo(ctx context.Context, recipient, prompt string) (bool, error)
	AskNumeric(ctx context.Context, recipient, prompt string) (decimal.Decimal, bool, error)
}

// Ledger is the bookkeeping and payments collaborator.
type Ledger interface {
	Balance(ctx context.Context, account string) (int64, error)
	PmobToUSD(ctx context.Context, pmob int64) (decimal.Decimal, error)
	Transfer(ctx context.Context, to string, pmob int64, memo string) (ledger.TransferResult, error)
	Record(ctx context.Context, account string, usdDelta decimal.Decimal, pmobDelta int64, memo string) error
}

// Limiter caps how often a key may act. Allow counts the attempt.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Spawner runs background work on behalf of a user.
type Spawner interface {
	Spawn(owner, task string, fn func(ctx context.Context) error)
}

type Options struct {
	Admins            []string
	AttachmentMode    string
	FanoutConcurrency int
}

type Deps struct {
	Store     *graph.Store
	Outbox    *Outbox
	Questions Questioner
	Ledger    Ledger
	Events    events.Publisher
	Index     search.Index
	Limiter   Limiter // broadcasts per sender, nil means unlimited
	Logger    *zap.Logger
}

// Engine handles every inbound message: opt-out keywords, slash commands and
// the default broadcast.
type Engine struct {
	store     *graph.Store
	resolver  *identity.Resolver
	outbox    *Outbox
	questions Questioner
	ledger    Ledger
	events    events.Publisher
	index     search.Index
	limiter   Limiter
	spawner   Spawner
	opts      Options
	logger    *zap.Logger

	commands map[string]command
	greeting sync.Map // number -> struct{}, onboarding in progress
	invites  sync.Map // inviter+"/"+invitee -> struct{}, awaiting an answer
}

func NewEngine(deps Deps, opts Options) *Engine {
	if opts.FanoutConcurrency <= 0 {
		opts.FanoutConcurrency = 8
	}
	if deps.Events == nil {
		deps.Events = events.NewMemory()
	}
	e := &Engine{
		store:     deps.Store,
		resolver:  identity.NewResolver(deps.Store),
		outbox:    deps.Outbox,
		questions: deps.Questions,
		ledger:    deps.Ledger,
		events:    deps.Events,
		index:     deps.Index,
		limiter:   deps.Limiter,
		opts:      opts,
		logger:    deps.Logger,
	}
	e.spawner = &goSpawner{engine: e}
	e.commands = e.commandTable()
	e.outbox.onUnknown = e.greet
	return e
}

// UseSpawner routes background tasks through s, normally the dispatcher.
func (e *Engine) UseSpawner(s Spawner) {
	e.spawner = s
}

// Start announces the bot to its admins.
func (e *Engine) Start(ctx context.Context) {
	if err := e.outbox.NotifyAdmin(ctx, "\U0001F333\U0001F916\U0001F97E"); err != nil {
		e.logger.Warn("admin notification failed", zap.Error(err))
	}
}

func (e *Engine) isAdmin(number string) bool {
	return slices.Contains(e.opts.Admins, number)
}

// HandleMessage processes one inbound message and sends the reply, if any.
func (e *Engine) HandleMessage(ctx context.Context, msg *model.Message) {
	start := time.Now()
	if msg.Tokens == nil {
		msg.Parse()
	}

	reply, err := e.route(ctx, msg)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		e.logger.Error("handling message failed",
			zap.String("source", msg.Source),
			zap.String("command", msg.Command),
			zap.Error(err))
		reply = somethingWentWrong
	}
	if reply != "" {
		if err := e.outbox.SendMessage(ctx, msg.Source, reply, nil); err != nil {
			e.logger.Error("sending reply failed", zap.String("recipient", msg.Source), zap.Error(err))
		}
	}
	metrics.RecordCommand(msg.Command, outcome, time.Since(start))
}

// TaskFinished receives background task results. Failures are not reported
// back to users.
func (e *Engine) TaskFinished(ctx context.Context, result dispatch.TaskResult) {
	if result.Err == nil {
		e.logger.Debug("background task finished",
			zap.String("task", result.Task),
			zap.String("owner", result.Owner),
			zap.Duration("elapsed", result.Elapsed))
		return
	}
	e.logger.Warn("background task failed",
		zap.String("task", result.Task),
		zap.String("owner", result.Owner),
		zap.Duration("elapsed", result.Elapsed),
		zap.Error(result.Err))
}

func (e *Engine) route(ctx context.Context, msg *model.Message) (string, error) {
	if msg.PaymentPmob > 0 {
		return e.receivePayment(ctx, msg)
	}
	switch msg.OptKeyword() {
	case model.OptOut:
		return e.optOut(ctx, msg)
	case model.OptIn:
		return e.optIn(ctx, msg)
	}
	if msg.Command == "" {
		return "", e.broadcast(ctx, msg)
	}

	cmd, ok := e.commands[msg.Command]
	if !ok {
		return "sorry! command /" + msg.Command + " not recognized! try /help.", nil
	}
	if cmd.admin && !e.isAdmin(msg.Source) {
		return "you must be an admin to use this command", nil
	}
	return cmd.run(ctx, msg)
}

// send delivers body to recipient, logging rather than returning failures.
func (e *Engine) send(ctx context.Context, recipient, body string) {
	if err := e.outbox.SendMessage(ctx, recipient, body, nil); err != nil {
		e.logger.Warn("send failed", zap.String("recipient", recipient), zap.Error(err))
	}
}

func (e *Engine) spawn(owner, task string, fn func(ctx context.Context) error) {
	e.spawner.Spawn(owner, task, fn)
}

// nameOf returns number's display name, or fallback when it has none.
func (e *Engine) nameOf(ctx context.Context, number, fallback string) string {
	name, ok, err := e.store.LookupDisplayName(ctx, number)
	if err != nil || !ok {
		if fallback != "" {
			return fallback
		}
		return number
	}
	return name
}

// resolveArg resolves a command argument to a number. The returned string is
// the user-facing reason when it does not resolve.
func (e *Engine) resolveArg(ctx context.Context, arg string) (string, string, error) {
	res, err := e.resolver.Resolve(ctx, arg)
	if err != nil {
		return "", "", err
	}
	return res.Number, res.Invalid, nil
}

func (e *Engine) publish(ctx context.Context, ev model.SocialEvent) {
	e.events.Publish(ctx, ev)
}

func (e *Engine) reindex(ctx context.Context, number string) {
	if e.index == nil {
		return
	}
	profile, ok, err := e.store.GetProfile(ctx, number)
	if err != nil || !ok {
		return
	}
	if err := e.index.IndexProfile(ctx, profile); err != nil {
		e.logger.Warn("profile index update failed", zap.String("number", number), zap.Error(err))
	}
}

type goSpawner struct {
	engine *Engine
}

func (s *goSpawner) Spawn(owner, task string, fn func(ctx context.Context) error) {
	go func() {
		start := time.Now()
		err := fn(context.Background())
		s.engine.TaskFinished(context.Background(), dispatch.TaskResult{
			Owner: owner, Task: task, Err: err, Elapsed: time.Since(start),
		})
	}()
}

// abandoned reports whether a question ended without an answer.
func abandoned(err error) bool {
	return errors.Is(err, transport.ErrQuestionTimeout) ||
		errors.Is(err, transport.ErrQuestionCancelled) ||
		errors.Is(err, context.Canceled)
}
