package service

import (
	"go.uber.org/zap"

	"whispr-service/internal/config"
	"whispr-service/internal/events"
	"whispr-service/internal/graph"
	"whispr-service/internal/ledger"
	"whispr-service/internal/metrics"
	"whispr-service/internal/search"
	"whispr-service/internal/transport"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	store     *graph.Store
	transport transport.Transport
	book      ledger.Book
	wallet    ledger.Wallet
	events    events.Publisher
	index     search.Index
	limiter   Limiter
	bot       config.BotConfig
	logger    *zap.Logger

	outbox      *Outbox
	questions   *transport.QuestionBroker
	ledger      *ledger.Ledger
	engine      *Engine
	userService *UserService
}

// NewServiceFactory creates a new service factory. index may be nil when
// profile search is not configured.
func NewServiceFactory(
	store *graph.Store,
	t transport.Transport,
	book ledger.Book,
	wallet ledger.Wallet,
	publisher events.Publisher,
	index search.Index,
	bot config.BotConfig,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		store:     store,
		transport: t,
		book:      book,
		wallet:    wallet,
		events:    publisher,
		index:     index,
		bot:       bot,
		logger:    logger,
	}
}

// WithBroadcastLimiter caps broadcasts per sender. It must be called before
// Engine.
func (f *ServiceFactory) WithBroadcastLimiter(l Limiter) *ServiceFactory {
	f.limiter = l
	return f
}

func (f *ServiceFactory) Outbox() *Outbox {
	if f.outbox == nil {
		f.outbox = NewOutbox(f.transport, f.store, f.logger.Named("outbox"))
	}
	return f.outbox
}

// Questions returns the question broker (singleton)
func (f *ServiceFactory) Questions() *transport.QuestionBroker {
	if f.questions == nil {
		f.questions = transport.NewQuestionBroker(f.Outbox(), f.bot.QuestionTimeout, f.logger.Named("questions"))
		metrics.RegisterPendingQuestions(f.questions.Pending)
	}
	return f.questions
}

func (f *ServiceFactory) Ledger() *ledger.Ledger {
	if f.ledger == nil {
		f.ledger = ledger.New(f.book, f.wallet, f.logger.Named("ledger"))
	}
	return f.ledger
}

// Engine returns the message engine (singleton)
func (f *ServiceFactory) Engine() *Engine {
	if f.engine == nil {
		f.engine = NewEngine(Deps{
			Store:     f.store,
			Outbox:    f.Outbox(),
			Questions: f.Questions(),
			Ledger:    f.Ledger(),
			Events:    f.events,
			Index:     f.index,
			Limiter:   f.limiter,
			Logger:    f.logger.Named("engine"),
		}, Options{
			Admins:            f.bot.Admins,
			AttachmentMode:    f.bot.AttachmentMode,
			FanoutConcurrency: f.bot.FanoutConcurrency,
		})
	}
	return f.engine
}

// UserService returns the user service instance (singleton)
func (f *ServiceFactory) UserService() *UserService {
	if f.userService == nil {
		f.userService = NewUserService(f.store, f.Engine(), f.index, f.logger.Named("users"))
	}
	return f.userService
}
