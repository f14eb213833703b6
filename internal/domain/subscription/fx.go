package subscription

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"gorm.io/gorm"

	"github.com/fanplatform/subscription-service/config"
	subgrpc "github.com/fanplatform/subscription-service/internal/domain/subscription/delivery/grpc"
	subhttp "github.com/fanplatform/subscription-service/internal/domain/subscription/delivery/http"
	subkafka "github.com/fanplatform/subscription-service/internal/domain/subscription/delivery/kafka"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/repository/postgres"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/usecase/business"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/workers"
	"github.com/fanplatform/subscription-service/internal/infrastructure/http/server"
	kafkaInfra "github.com/fanplatform/subscription-service/internal/infrastructure/kafka"
	"github.com/fanplatform/subscription-service/internal/infrastructure/metrics"
	pkgerrors "github.com/fanplatform/subscription-service/pkg/errors"
)

// CoreModule provides storage and use cases without any transport
var CoreModule = fx.Module(
	"subscription-core",
	fx.Provide(
		NewRepository,
		NewDirectory,
		NewClock,
		NewUseCase,
		NewPurger,
	),
)

// Module wires the use cases to HTTP, gRPC, Kafka and the purge scheduler
var Module = fx.Module(
	"subscription",
	CoreModule,
	fx.Provide(
		NewHTTPHandler,
		NewRateLimiter,
		subhttp.NewRouter,
		NewGRPCServer,
	),
	fx.Invoke(
		registerRoutes,
		registerGRPCService,
		registerKafkaConsumer,
	),
	workers.Module,
)

func NewRepository(db *gorm.DB) deps.SubscriptionRepository {
	return postgres.NewRepository(db)
}

func NewDirectory(db *gorm.DB, cfg *config.DirectoryConfig) deps.TargetDirectory {
	return postgres.NewDirectory(db, cfg.CacheSize, cfg.CacheTTL)
}

func NewClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

func NewUseCase(
	repo deps.SubscriptionRepository,
	clock clockwork.Clock,
	cfg *config.SubscriptionConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) deps.SubscriptionUseCase {
	return business.NewUseCase(repo, clock, cfg.Cooldown, m, logger)
}

func NewPurger(
	repo deps.SubscriptionRepository,
	clock clockwork.Clock,
	cfg *config.SubscriptionConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) deps.PurgeUseCase {
	return business.NewPurger(repo, clock, cfg.Retention, cfg.PurgeBatchSize, m, logger)
}

func NewHTTPHandler(
	useCase deps.SubscriptionUseCase,
	directory deps.TargetDirectory,
	m *metrics.Metrics,
	mapper *pkgerrors.Mapper,
	logger zerolog.Logger,
) *subhttp.SubscriptionHandler {
	return subhttp.NewSubscriptionHandler(useCase, directory, m, mapper, logger)
}

func NewRateLimiter(cfg *config.RateLimitConfig, mapper *pkgerrors.Mapper, logger zerolog.Logger) *subhttp.UserRateLimiter {
	return subhttp.NewUserRateLimiter(cfg.RPS, cfg.Burst, mapper, logger)
}

func NewGRPCServer(useCase deps.SubscriptionUseCase, logger zerolog.Logger) *subgrpc.Server {
	return subgrpc.NewServer(useCase, logger)
}

func registerRoutes(srv *server.Server, rt *subhttp.Router) {
	rt.RegisterRoutes(srv.Router)
}

func registerGRPCService(s *grpc.Server, handler *subgrpc.Server) {
	subgrpc.RegisterQueryServer(s, handler)
}

// registerKafkaConsumer starts the command consumer only when Kafka is enabled
func registerKafkaConsumer(
	lc fx.Lifecycle,
	cfg *config.KafkaConfig,
	useCase deps.SubscriptionUseCase,
	directory deps.TargetDirectory,
	m *metrics.Metrics,
	log zerolog.Logger,
) error {
	if !cfg.Enabled {
		log.Info().Msg("kafka disabled, command consumer not started")
		return nil
	}

	producer, err := kafkaInfra.NewKafkaProducer(cfg.Brokers, cfg.ResultTopic, log)
	if err != nil {
		return err
	}

	handler := subkafka.NewCommandHandler(useCase, directory, producer, m, log)

	consumer, err := kafkaInfra.NewKafkaConsumer(
		cfg.Brokers,
		cfg.GroupID,
		[]string{cfg.CommandTopic},
		handler,
		log,
	)
	if err != nil {
		_ = producer.Close()
		return err
	}

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			consumer.Start(consumerCtx)
			log.Info().Msg("kafka consumer started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("stopping kafka consumer...")
			cancelConsumer()
			if err := consumer.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka consumer")
			}
			return producer.Close()
		},
	})

	return nil
}
