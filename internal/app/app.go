package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/paysync/internal/health"
	"github.com/vladislavdragonenkov/paysync/internal/messaging/kafka"
	redismsg "github.com/vladislavdragonenkov/paysync/internal/messaging/redis"
	"github.com/vladislavdragonenkov/paysync/internal/metrics"
	"github.com/vladislavdragonenkov/paysync/internal/service/audit"
	"github.com/vladislavdragonenkov/paysync/internal/service/checkout"
	"github.com/vladislavdragonenkov/paysync/internal/service/inventory"
	"github.com/vladislavdragonenkov/paysync/internal/service/notification"
	"github.com/vladislavdragonenkov/paysync/internal/service/outbox"
	"github.com/vladislavdragonenkov/paysync/internal/service/poller"
	"github.com/vladislavdragonenkov/paysync/internal/service/reconcile"
	"github.com/vladislavdragonenkov/paysync/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/paysync/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает зависимости, запускает HTTP API, gRPC health, метрики и фоновые воркеры.
// Возвращает ctx.Err() после штатной остановки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if deps.closeFn != nil {
		defer func() {
			if err := deps.closeFn(); err != nil {
				logger.WithError(err).Warn("failed to close storage")
			}
		}()
	}

	reconcileMetrics := metrics.NewReconcileMetrics()
	outboxMetrics := metrics.NewOutboxMetrics()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("postgres", deps.storageChecker)
	}

	notifyOptions := []notification.Option{
		notification.WithMetrics(reconcileMetrics),
		notification.WithLogger(logger.WithField("component", "notification")),
	}
	if cfg.RedisAddr != "" {
		redisClient := redismsg.NewClient(redismsg.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = redisClient.Close() }()

		notifyOptions = append(notifyOptions, notification.WithPublisher(redismsg.NewNotificationPublisher(redisClient)))
		healthHandler.RegisterChecker("redis", healthcheck.NewOptionalChecker("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
		logger.WithField("addr", cfg.RedisAddr).Info("real-time notifications enabled")
	}
	dispatcher := notification.NewDispatcher(deps.notifications, notifyOptions...)

	coordinator := inventory.NewCoordinator(logger.WithField("component", "inventory"))
	engine := reconcile.NewEngine(
		deps.txm,
		coordinator,
		dispatcher,
		reconcile.WithAudit(deps.auditRepo),
		reconcile.WithMetrics(reconcileMetrics),
		reconcile.WithLogger(logger.WithField("component", "reconcile")),
	)
	checkoutService := checkout.NewService(deps.txm, coordinator, logger.WithField("component", "checkout"))

	dokuVerifier, midtransVerifier, gateways := buildProviders(cfg, logger)
	statusPoller := poller.New(
		deps.orders,
		engine,
		gateways,
		cfg.pollerConfig(),
		reconcileMetrics,
		logger.WithField("component", "reconcile-poller"),
	)

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)
	defer closeKafka(producer, logger)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	workersDone := startWorkers(workerCtx, cfg, deps, producer, statusPoller, outboxMetrics, reconcileMetrics, logger)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Applier:       engine,
		Orders:        deps.orders,
		Checkout:      checkoutService,
		Checker:       statusPoller,
		Notifications: dispatcher,
		Audit:         deps.auditRepo,
		Doku:          dokuVerifier,
		Midtrans:      midtransVerifier,
		Metrics:       reconcileMetrics,
		Logger:        logger.WithField("component", "httpapi"),
	})

	grpcServer, healthServer := newGRPCServer(logger)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		cancelWorkers()
		<-workersDone
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		cancelWorkers()
		<-workersDone
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen http: %w", err)
	}

	apiSrv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC health сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := apiSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, logger)
	stopGRPC(grpcServer, logger)
	shutdownHTTP(metricsSrv, logger)

	cancelWorkers()
	<-workersDone
	logger.Info("фоновые воркеры остановлены")

	return runErr
}

// startWorkers запускает outbox, плановый опрос провайдеров и очистку аудита.
// Канал закрывается, когда все воркеры вышли.
func startWorkers(
	ctx context.Context,
	cfg Config,
	deps runtimeDependencies,
	producer *kafka.Producer,
	statusPoller *poller.Poller,
	outboxMetrics *metrics.OutboxMetrics,
	reconcileMetrics *metrics.ReconcileMetrics,
	logger *log.Entry,
) <-chan struct{} {
	var runners []func(context.Context)

	if producer != nil {
		worker := outbox.NewWorker(
			deps.outboxRepo,
			kafka.NewOutboxPublisher(producer, cfg.KafkaEventsTopic),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)),
			outbox.WithMetrics(outboxMetrics),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		runners = append(runners, worker.Run)
	} else {
		logger.Warn("kafka is not configured, order events accumulate in outbox")
	}

	sweeper := poller.NewWorker(
		deps.orders,
		statusPoller,
		poller.WithLogger(logger.WithField("component", "reconcile-poller-worker")),
		poller.WithInterval(cfg.PollerInterval),
		poller.WithGracePeriod(cfg.PollerGracePeriod),
		poller.WithBatchSize(cfg.PollerBatchSize),
	)
	runners = append(runners, sweeper.Run)

	retention := audit.NewRetentionWorker(
		deps.auditRepo,
		audit.WithLogger(logger.WithField("component", "audit-retention")),
		audit.WithMetrics(reconcileMetrics),
		audit.WithRetention(cfg.AuditRetention),
		audit.WithInterval(cfg.AuditCleanupInterval),
		audit.WithBatchSize(cfg.AuditCleanupBatch),
	)
	runners = append(runners, retention.Run)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, run := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// newGRPCServer создаёт gRPC-сервер с health, reflection и метриками interceptor-а.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// reflection для grpcurl
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

func stopGRPC(grpcServer *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-проверки.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
