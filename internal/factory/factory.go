package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"whispr-service/internal/bucketing"
	"whispr-service/internal/client"
	"whispr-service/internal/config"
	"whispr-service/internal/dispatch"
	"whispr-service/internal/events"
	"whispr-service/internal/graph"
	"whispr-service/internal/ledger"
	"whispr-service/internal/model"
	"whispr-service/internal/repository"
	"whispr-service/internal/repository/memory"
	redisstore "whispr-service/internal/repository/redis"
	"whispr-service/internal/repository/scylla"
	"whispr-service/internal/search"
	"whispr-service/internal/service"
	"whispr-service/internal/transport"
	"whispr-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	kafkaConsumer    *client.KafkaConsumer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	bucketingManager *bucketing.BucketingManager

	// Collaborators
	backend   repository.Backend
	store     *graph.Store
	transport transport.Transport
	book      ledger.Book
	publisher events.Publisher
	index     search.Index
	reindexer *search.Reindexer

	serviceFactory *service.ServiceFactory
	dispatcher     *dispatch.Dispatcher
	inbound        *transport.KafkaInbound

	cancelRun context.CancelFunc
	runDone   chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := factory.initializeCollaborators(); err != nil {
		return nil, fmt.Errorf("failed to initialize collaborators: %w", err)
	}
	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_backend", cfg.Bot.StoreBackend),
		util.Bool("kafka_transport", cfg.Bot.EnableKafkaTransport && factory.kafkaProducer != nil),
		util.Bool("search_enabled", factory.index != nil),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	switch f.config.Bot.StoreBackend {
	case config.StoreRedis:
		if c, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			} else {
				util.Info("Redis client initialized and healthy")
			}
		}
	case config.StoreScylla:
		if c, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = c
			if err := f.scyllaClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
			} else {
				util.Info("ScyllaDB client initialized and healthy")
			}
		}
	case config.StoreMemory:
		util.Warn("Using in-memory store - state is lost on restart")
	default:
		return fmt.Errorf("%w: %q", repository.ErrUnknownBackend, f.config.Bot.StoreBackend)
	}

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}
	if f.config.Bot.EnableKafkaTransport {
		if consumer, err := client.NewKafkaConsumer(f.config, f.config.Kafka.InboundTopic, f.config.Kafka.GroupID, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka consumer: %w", err))
		} else {
			f.kafkaConsumer = consumer
			util.Info("Kafka consumer initialized", util.String("topic", f.config.Kafka.InboundTopic))
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.URL != "" {
		if c, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
			if err := f.esClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			} else {
				util.Info("Elasticsearch client initialized and healthy")
			}
		}
	}

	// ClickHouse
	if c, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = c
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeCollaborators picks the store, ledger book, transport, event
// publisher and search index. Outside production a missing client falls back
// to its in-process implementation.
func (f *Factory) initializeCollaborators() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger := util.Get()

	switch {
	case f.redisClient != nil:
		f.backend = redisstore.NewStore(f.redisClient)
	case f.scyllaClient != nil:
		f.backend = scylla.NewStore(f.scyllaClient)
	default:
		if f.config.Bot.StoreBackend != config.StoreMemory {
			util.Warn("Store backend unavailable - falling back to memory",
				util.String("backend", f.config.Bot.StoreBackend))
		}
		f.backend = memory.NewStore()
	}
	f.store = graph.NewStore(f.backend)

	f.book = ledger.NewMemoryBook()
	if f.clickhouseClient != nil {
		book, err := ledger.NewClickHouseBook(ctx, f.clickhouseClient)
		if err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("ledger book: %w", err)
			}
			util.Warn("ClickHouse ledger unavailable - falling back to memory", util.ErrorField(err))
		} else {
			f.book = book
		}
	}

	if f.kafkaProducer != nil && f.config.Bot.EnableKafkaTransport {
		f.transport = transport.NewKafkaTransport(
			f.kafkaProducer,
			f.config.Kafka.OutboundTopic,
			f.config.Bot.Admins,
			f.config.Bot.SendRatePerSecond,
			logger.Named("transport"),
		)
	} else {
		f.transport = transport.NewLogTransport(logger.Named("transport"))
	}

	if f.kafkaProducer != nil {
		f.publisher = events.NewKafkaPublisher(f.kafkaProducer, f.config.Kafka.EventsTopic, logger.Named("events"))
	} else {
		f.publisher = events.NewLog(logger.Named("events"))
	}

	if f.esClient != nil {
		index, err := search.NewESIndex(ctx, f.esClient, f.config.Elasticsearch.Index)
		if err != nil {
			util.Warn("Profile search disabled", util.ErrorField(err))
		} else {
			f.index = index
			f.reindexer = search.NewReindexer(f.store, index, logger.Named("reindex"))
		}
	}

	return nil
}

// initializeManagers initializes bucketing, the service layer and the dispatcher
func (f *Factory) initializeManagers() {
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	f.serviceFactory = service.NewServiceFactory(
		f.store,
		f.transport,
		f.book,
		ledger.NewHTTPWallet(f.config.Wallet),
		f.publisher,
		f.index,
		f.config.Bot,
		util.Get(),
	)
	if f.redisClient != nil && f.config.Bot.BroadcastLimit > 0 {
		f.serviceFactory.WithBroadcastLimiter(redisstore.NewRateLimitCache(
			f.redisClient, f.config.Bot.BroadcastLimit, f.config.Bot.BroadcastWindow))
	}

	engine := f.serviceFactory.Engine()
	f.dispatcher = dispatch.New(
		engine,
		f.serviceFactory.Questions(),
		f.bucketingManager,
		f.config.Bot.SessionIdleTimeout,
		util.Get().Named("dispatch"),
	)
	engine.UseSpawner(f.dispatcher)

	if f.kafkaConsumer != nil {
		f.inbound = transport.NewKafkaInbound(f.kafkaConsumer, util.Get().Named("inbound"))
	}

	util.Info("Managers initialized successfully",
		util.Int("session_stripes", f.bucketingManager.Buckets()),
		util.Bool("kafka_inbound", f.inbound != nil),
	)
}

// Run announces the bot and starts the inbound consumer and the reindex
// schedule. It returns immediately.
func (f *Factory) Run(ctx context.Context) {
	ctx, f.cancelRun = context.WithCancel(ctx)
	f.runDone = make(chan struct{})

	f.serviceFactory.Engine().Start(ctx)

	if f.reindexer != nil && f.config.Elasticsearch.ReindexSchedule != "" {
		if err := f.reindexer.Start(f.config.Elasticsearch.ReindexSchedule); err != nil {
			util.Error("Failed to schedule profile reindex", util.ErrorField(err))
		}
	}

	go func() {
		defer close(f.runDone)
		if f.inbound == nil {
			<-ctx.Done()
			return
		}
		util.Info("Consuming inbound messages", util.String("topic", f.config.Kafka.InboundTopic))
		err := f.inbound.Run(ctx, func(_ context.Context, msg *model.Message) {
			if err := f.dispatcher.Dispatch(msg); err != nil {
				util.Warn("Dropping inbound message", util.String("id", msg.ID), util.ErrorField(err))
			}
		})
		if err != nil {
			util.Error("Inbound consumer stopped", util.ErrorField(err))
		}
	}()
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if err := f.backend.HealthCheck(ctx); err != nil {
		healthErrors["store"] = err
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	// the memory book is the development fallback and has nothing to reach
	if _, fallback := f.book.(*ledger.MemoryBook); !fallback {
		if f.clickhouseClient == nil {
			healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
		} else if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.bucketingManager == nil {
		healthErrors["bucketing"] = fmt.Errorf("bucketing manager not initialized")
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.cancelRun != nil {
			f.cancelRun()
			<-f.runDone
		}

		if f.reindexer != nil {
			f.reindexer.Stop()
		}

		if f.dispatcher != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := f.dispatcher.Close(ctx); err != nil {
				util.Warn("Dispatcher did not drain in time", util.ErrorField(err))
			} else {
				util.Info("Dispatcher closed")
			}
			cancel()
		}

		if f.kafkaConsumer != nil {
			if err := f.kafkaConsumer.Close(); err != nil {
				util.Error("Failed to close Kafka consumer", util.ErrorField(err))
			}
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.backend != nil {
			if err := f.backend.Close(); err != nil {
				util.Error("Failed to close store", util.ErrorField(err))
			} else {
				util.Info("Store closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}

func (f *Factory) Dispatcher() *dispatch.Dispatcher {
	return f.dispatcher
}

func (f *Factory) BucketingManager() *bucketing.BucketingManager {
	return f.bucketingManager
}
