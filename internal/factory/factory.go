package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guest-access/internal/audit"
	"guest-access/internal/client"
	"guest-access/internal/config"
	"guest-access/internal/identity"
	redisrepo "guest-access/internal/repository/redis"
	"guest-access/internal/repository/scylla"
	"guest-access/internal/service"
	"guest-access/internal/session"
	"guest-access/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	// Repositories and caches
	userRepository        scylla.UserStore
	reservationRepository scylla.ReservationStore
	magicLinkRepository   scylla.MagicLinkStore
	tempUserRepository    scylla.TempUserStore
	flowCache             *redisrepo.FlowCache
	attemptCache          *redisrepo.AttemptCache

	// Collaborators
	provider identity.Provider
	codec    *session.Codec
	recorder *audit.Recorder

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.provider = identity.NewHTTPProvider(cfg)
	factory.codec = session.NewCodec([]byte(cfg.Session.SigningKey), cfg.Session.Secure, cfg.Session.TTL)

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka: audit fan-out only, the flow runs without it
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// ClickHouse: audit sink only, same deal
	if chClient, err := client.NewClickHouseClient(f.config); err != nil {
		util.Warn("ClickHouse initialization failed - proceeding without audit sink", util.ErrorField(err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			util.Warn("ClickHouse health check failed", util.ErrorField(err))
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

// ==============================
// Repositories and caches
// ==============================

func (f *Factory) UserRepository() scylla.UserStore {
	if f.userRepository == nil {
		f.userRepository = scylla.NewUserRepository(f.scyllaClient)
	}
	return f.userRepository
}

func (f *Factory) ReservationRepository() scylla.ReservationStore {
	if f.reservationRepository == nil {
		f.reservationRepository = scylla.NewReservationRepository(f.scyllaClient)
	}
	return f.reservationRepository
}

func (f *Factory) MagicLinkRepository() scylla.MagicLinkStore {
	if f.magicLinkRepository == nil {
		f.magicLinkRepository = scylla.NewMagicLinkRepository(f.scyllaClient)
	}
	return f.magicLinkRepository
}

func (f *Factory) TempUserRepository() scylla.TempUserStore {
	if f.tempUserRepository == nil {
		f.tempUserRepository = scylla.NewTempUserRepository(f.scyllaClient)
	}
	return f.tempUserRepository
}

func (f *Factory) FlowCache() *redisrepo.FlowCache {
	if f.flowCache == nil {
		f.flowCache = redisrepo.NewFlowCache(f.redisClient)
	}
	return f.flowCache
}

func (f *Factory) AttemptCache() *redisrepo.AttemptCache {
	if f.attemptCache == nil {
		f.attemptCache = redisrepo.NewAttemptCache(f.redisClient)
	}
	return f.attemptCache
}

// Recorder returns the audit recorder. Backends that failed to
// initialize are passed as nil and the recorder degrades to logging.
func (f *Factory) Recorder() *audit.Recorder {
	if f.recorder == nil {
		var sink audit.EventSink
		if f.clickhouseClient != nil {
			sink = f.clickhouseClient
		}
		var publisher audit.EventPublisher
		if f.kafkaProducer != nil {
			publisher = f.kafkaProducer
		}
		f.recorder = audit.NewRecorder(sink, publisher, util.Get())
	}
	return f.recorder
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.UserRepository(),
			f.ReservationRepository(),
			f.MagicLinkRepository(),
			f.TempUserRepository(),
			f.FlowCache(),
			f.AttemptCache(),
			f.provider,
			f.codec,
			f.Recorder(),
			util.Get(),
		)
	}
	return f.serviceFactory
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) SessionCodec() *session.Codec {
	return f.codec
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	return healthErrors
}

// Close shuts down all clients. Safe to call more than once.
func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		close(f.closed)

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Warn("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Warn("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Warn("Failed to close Redis client", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		util.Info("Factory closed")
	})
}
