package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	httpapi "racereg/internal/http"
	jwttoken "racereg/internal/jwt_token"
	"racereg/internal/payment/callback"
	paymenthandler "racereg/internal/payment/handler"
	paymentmetrics "racereg/internal/payment/metrics"
	"racereg/internal/payment/vnpay"
	"racereg/internal/platform/config"
	"racereg/internal/platform/httpserver"
	"racereg/internal/platform/kafka"
	"racereg/internal/platform/logger"
	"racereg/internal/platform/metrics"
	"racereg/internal/platform/postgres"
	"racereg/internal/platform/redis"
	reghandler "racereg/internal/registration/handler"
	regmetrics "racereg/internal/registration/metrics"
	"racereg/internal/registration/service"
	"racereg/internal/registration/store/ledger"
	id "racereg/pkg/domain"
	"racereg/pkg/platform/audit/publisher"
	"racereg/pkg/platform/circuit"
)

const auditBufferSize = 1024

// main loads configuration, wires the registration and payment modules and
// serves until SIGINT or SIGTERM.
func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.IsProduction())
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// infra holds the optional external dependencies. Each field is nil when its
// backend is not configured.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

func (i *infra) close(log *slog.Logger) {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("closing redis", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("closing postgres", "error", err)
		}
	}
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	deps := &infra{}
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		deps.db = db
		if cfg.Postgres.RunMigrations {
			if err := postgres.Migrate(ctx, db); err != nil {
				deps.close(log)
				return nil, err
			}
		}
		log.Info("postgres ledger enabled")
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		deps.close(log)
		return nil, err
	}
	deps.redis = redisClient

	kafkaClient, err := kafka.New(cfg.Kafka)
	if err != nil {
		deps.close(log)
		return nil, err
	}
	if kafkaClient != nil {
		deps.kafka = kafkaClient
		if err := kafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka); err != nil {
			log.Warn("audit topic not ensured", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
	}
	return deps, nil
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	deps, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	g, ctx := errgroup.WithContext(ctx)

	auditStore, relay := newAuditSink(deps, cfg.Kafka, log)
	if relay != nil {
		g.Go(func() error { return relay.Run(ctx) })
	}
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	var store interface {
		service.Ledger
		ledger.Catalogue
	}
	if deps.db != nil {
		store = ledger.NewPostgres(deps.db)
	} else {
		log.Warn("DATABASE_URL not set, registrations are kept in memory")
		store = ledger.NewInMemory()
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	if cfg.Server.SeedDemoData {
		if err := seedDemo(ctx, store, jwtService, log); err != nil {
			return err
		}
	}

	serviceOpts := []service.Option{
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(regmetrics.New()),
		service.WithBibBase(cfg.Registration.BibBase),
	}
	gateway, err := vnpay.NewGateway(vnpay.Config{
		BaseURL:    cfg.Gateway.URL,
		TmnCode:    cfg.Gateway.TmnCode,
		HashSecret: cfg.Gateway.HashSecret,
		ReturnURL:  cfg.Gateway.ReturnURL,
		Locale:     cfg.Gateway.Locale,
		PaymentTTL: cfg.Gateway.PaymentTTL,
	})
	if err != nil {
		log.Warn("payments disabled", "error", err)
	} else {
		serviceOpts = append(serviceOpts, service.WithGateway(gateway))
	}

	registrations, err := service.New(store, serviceOpts...)
	if err != nil {
		return err
	}

	routerOpts := httpapi.Options{
		Logger:         log,
		Metrics:        metrics.New(),
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		RequestTimeout: cfg.Server.RequestTimeout,
		Private:        []httpapi.Routes{reghandler.New(registrations, log)},
		HealthChecks:   healthChecks(deps),
	}
	if gateway != nil {
		processor, err := callback.NewProcessor(gateway, registrations,
			callback.WithLogger(log),
			callback.WithAuditPublisher(auditPublisher),
			callback.WithMetrics(paymentmetrics.New()),
			callback.WithReplayGuard(newReplayGuard(deps, cfg.Callback.ReplayTTL, log)),
		)
		if err != nil {
			return err
		}
		routerOpts.Public = append(routerOpts.Public, paymenthandler.New(processor, paymenthandler.Redirects{
			SuccessURL: cfg.Callback.SuccessURL,
			FailureURL: cfg.Callback.FailureURL,
		}, log))
	}

	srv := httpserver.New(cfg.Server.Addr, httpapi.NewRouter(routerOpts))

	g.Go(func() error {
		log.Info("starting racereg", "addr", cfg.Server.Addr, "env", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newReplayGuard(deps *infra, ttl time.Duration, log *slog.Logger) callback.ReplayGuard {
	if deps.redis != nil {
		return callback.NewFallbackGuard(
			callback.NewRedisGuard(deps.redis.Client, ttl),
			callback.NewMemoryGuard(ttl),
			circuit.New("redis-replay-guard"),
			log,
		)
	}
	log.Info("REDIS_URL not set, payment callback replay guard is process local")
	return callback.NewMemoryGuard(ttl)
}

func healthChecks(deps *infra) map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{}
	if deps.db != nil {
		checks["postgres"] = deps.db.PingContext
	}
	if deps.redis != nil {
		checks["redis"] = deps.redis.Health
	}
	if deps.kafka != nil {
		client := deps.kafka
		checks["kafka"] = func(ctx context.Context) error { return kafka.Ping(ctx, client) }
	}
	return checks
}

// seedDemo loads a demo race and logs a token for its organizer so the API
// can be exercised locally.
func seedDemo(ctx context.Context, store ledger.Catalogue, jwtService *jwttoken.JWTService, log *slog.Logger) error {
	organizerID := id.UserID(uuid.New())
	race, distances, err := ledger.SeedDemoRace(ctx, store, organizerID, time.Now())
	if err != nil {
		return err
	}
	token, err := jwtService.GenerateAccessToken(organizerID, 24*time.Hour)
	if err != nil {
		return err
	}
	distanceIDs := make([]string, 0, len(distances))
	for _, d := range distances {
		distanceIDs = append(distanceIDs, d.ID.String())
	}
	log.Info("seeded demo race",
		"race_id", race.ID,
		"distance_ids", distanceIDs,
		"organizer_token", token,
	)
	return nil
}
