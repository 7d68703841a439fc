package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	accountstore "regdesk/internal/account/store"
	jwttoken "regdesk/internal/jwt_token"
	"regdesk/internal/platform/config"
	"regdesk/internal/platform/httpserver"
	"regdesk/internal/platform/logger"
	"regdesk/internal/platform/metrics"
	"regdesk/internal/platform/postgres"
	redisclient "regdesk/internal/platform/redis"
	"regdesk/internal/registration/handler"
	regmetrics "regdesk/internal/registration/metrics"
	"regdesk/internal/registration/notify"
	"regdesk/internal/registration/service"
	requeststore "regdesk/internal/registration/store"
	"regdesk/pkg/platform/audit/outbox"
	auditmemory "regdesk/pkg/platform/audit/store/memory"
	"regdesk/pkg/platform/circuit"
	"regdesk/pkg/platform/httputil"
	"regdesk/pkg/platform/middleware/metadata"
	"regdesk/pkg/platform/middleware/request"
	"regdesk/pkg/platform/middleware/requesttime"
	"regdesk/pkg/secrets"
)

const (
	auditTopicPartitions  = 3
	auditTopicReplication = 1
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "regdesk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registrationMetrics := regmetrics.New(reg)

	infra, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close()

	redisClient, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(registrationMetrics),
		service.WithMaxListLimit(cfg.Registration.MaxListLimit),
	}
	if redisClient != nil {
		notifier := notify.NewGuarded(
			notify.NewRedisNotifier(redisClient.Client, cfg.Redis.Channel),
			circuit.New("redis-notify", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
			log,
		)
		opts = append(opts, service.WithNotifier(notifier))
	}
	registrationService := service.New(
		infra.requests,
		infra.tx,
		secrets.NewBcryptHasher(cfg.Registration.BcryptCost),
		secrets.KeyGenerator{},
		opts...,
	)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	registrationHandler := handler.New(registrationService, log, jwttoken.NewJWTServiceAdapter(jwtService), cfg.Server.CORSOrigins)

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(metrics.New(reg).Middleware)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		r.Use(request.ContentTypeJSON)
		r.Get("/healthz", healthHandler(infra.db, redisClient))
		registrationHandler.Register(r)
	})

	srv := httpserver.New(cfg.Server, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting regdesk", "addr", cfg.Server.Addr, "postgres", infra.db != nil, "redis", redisClient != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down regdesk")
		return srv.Shutdown(shutdownCtx)
	})

	if infra.db != nil && len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.AuditTopic),
			kgo.RequiredAcks(kgo.AllISRAcks()),
		)
		if err != nil {
			return fmt.Errorf("create kafka client: %w", err)
		}
		defer kafkaClient.Close()

		if err := outbox.EnsureTopic(ctx, kadm.NewClient(kafkaClient), cfg.Kafka.AuditTopic, auditTopicPartitions, auditTopicReplication); err != nil {
			log.Warn("audit topic bootstrap failed", "topic", cfg.Kafka.AuditTopic, "error", err)
		}

		relay := outbox.New(infra.db, kafkaClient, cfg.Kafka.AuditTopic,
			outbox.WithLogger(log),
			outbox.WithMetrics(registrationMetrics),
			outbox.WithBatchSize(cfg.Kafka.RelayBatchSize),
			outbox.WithInterval(cfg.Kafka.RelayInterval),
		)
		g.Go(func() error {
			return relay.Run(gctx)
		})
	} else if infra.db != nil {
		log.Warn("kafka brokers not configured; audit events stay in the outbox table")
	}

	return g.Wait()
}

type storeInfra struct {
	db       *sql.DB
	requests service.RequestStore
	tx       service.RegistrationTx
}

func (s storeInfra) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// buildStores selects PostgreSQL when a database URL is configured and the
// in-memory stores otherwise.
func buildStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (storeInfra, error) {
	if cfg.Database.URL == "" {
		log.Warn("database url not configured; using in-memory stores")
		requests := requeststore.NewInMemory()
		tx := service.NewInMemoryTx(service.TxStores{
			Requests: requests,
			Users:    accountstore.NewInMemory(),
			Audit:    auditmemory.NewInMemoryStore(),
		}, cfg.Registration.TxTimeout)
		return storeInfra{requests: requests, tx: tx}, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return storeInfra{}, err
	}
	return storeInfra{
		db:       db,
		requests: requeststore.NewPostgres(db),
		tx:       newRegistrationPostgresTx(db, cfg.Registration.TxTimeout),
	}, nil
}

func healthHandler(db *sql.DB, redisClient *redisclient.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{
					Error:            "unavailable",
					ErrorDescription: "database unreachable",
				})
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{
					Error:            "unavailable",
					ErrorDescription: "redis unreachable",
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, httputil.OK)
	}
}
