// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"storefront-workers/internal/api"
	"storefront-workers/internal/cart"
	"storefront-workers/internal/common/auth"
	awsclient "storefront-workers/internal/common/aws"
	"storefront-workers/internal/common/camunda"
	"storefront-workers/internal/common/config"
	"storefront-workers/internal/common/database"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/common/observability"
	"storefront-workers/internal/common/sms"
	"storefront-workers/internal/notification"
	"storefront-workers/internal/orders"
	"storefront-workers/internal/scheduler"
	"storefront-workers/internal/storage"
	son "storefront-workers/internal/workers/notification/send-order-notification"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("otel metrics disabled", zap.Error(err))
		obs = nil
	}
	stopTracing, err := observability.SetupTracing(ctx, cfg.App, cfg.Tracing)
	if err != nil {
		zapLog.Warn("tracing disabled", zap.Error(err))
		stopTracing = func(context.Context) error { return nil }
	}

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := storage.Migrate(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.ConnectRedis(ctx, cfg.Database.Redis)
		return err
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (reports only, optional) ---
	var reportIndex scheduler.ReportIndexer
	esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err == nil {
		err = esClient.Ping(ctx)
	}
	if err != nil {
		zapLog.Warn("elasticsearch unavailable, order reports will not be indexed", zap.Error(err))
	} else {
		reportIndex = esClient
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress, config.GetDuration(cfg.Camunda.RequestTimeout))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Repositories ---
	templatesRepo := storage.NewTemplateRepository(pg.DB)
	notificationsRepo := storage.NewNotificationRepository(pg.DB)
	productsRepo := storage.NewProductRepository(pg.DB)
	customersRepo := storage.NewCustomerRepository(pg.DB)
	ordersRepo := storage.NewOrderRepository(pg.DB)

	// --- Notification senders ---
	sendTimeout := config.GetDuration(cfg.Notifications.SendTimeout)
	senders := []notification.Sender{
		notification.NewSMSSender(buildSMSProvider(ctx, cfg, zapLog), notificationsRepo, notification.SMSSenderConfig{
			CountryCode:   cfg.Notifications.SMS.DefaultCountryCode,
			Timeout:       sendTimeout,
			RatePerSecond: cfg.Notifications.SMS.RatePerSecond,
			Burst:         cfg.Notifications.SMS.Burst,
		}, log),
		buildEmailSender(ctx, cfg, notificationsRepo, sendTimeout, log, zapLog),
	}
	for _, s := range senders {
		zapLog.Info("notification channel", zap.String("channel", string(s.Channel())), zap.Bool("configured", s.Configured()))
	}

	templateStore := notification.NewTemplateStore(templatesRepo, rdb.Client, config.GetDuration(cfg.Notifications.TemplateCacheTTL), log)
	dispatcher := notification.NewDispatcher(templateStore, notificationsRepo, senders, log,
		notification.WithStrictTemplates(cfg.Notifications.StrictTemplates),
		notification.WithObservability(obs),
	)
	notifier := notification.NewAsyncNotifier(zeebe, cfg.Camunda.NotificationProcessID, dispatcher, log)

	// --- Domain services ---
	orderService := orders.NewService(pg.DB, customersRepo, notifier, log)
	cartStore := cart.NewStore(rdb.Client, productsRepo, config.GetDuration(cfg.Cart.TTL), log)

	// --- Scheduler ---
	jobs := scheduler.NewJobs(scheduler.Deps{
		Notifications: notificationsRepo,
		Dispatcher:    dispatcher,
		Products:      productsRepo,
		Staff:         customersRepo,
		Orders:        orderService,
		Reports:       ordersRepo,
		Index:         reportIndex,
		ReportsIndex:  cfg.Database.Elasticsearch.ReportsIndex,
	}, scheduler.Windows{
		Retry:        config.GetDuration(cfg.Scheduler.RetryWindow),
		Retention:    config.GetDuration(cfg.Scheduler.RetentionWindow),
		PendingOrder: config.GetDuration(cfg.Scheduler.PendingOrderAge),
	}, log)

	sched := scheduler.New(rdb.Client, config.GetDuration(cfg.Scheduler.LockTTL), obs, log)
	if err := jobs.RegisterAll(sched, cfg.Scheduler.Jobs); err != nil {
		zapLog.Fatal("failed to register scheduled jobs", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		sched.Start()
	} else {
		zapLog.Info("scheduler disabled; jobs run only on demand")
	}

	// --- Job workers ---
	var workers []worker.JobWorker
	if wcfg := config.GetWorkerConfig(cfg, son.TaskType); wcfg.Enabled {
		handler := son.NewHandler(son.LoadConfig(wcfg), ordersRepo, customersRepo, dispatcher, log)
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), son.TaskType, wcfg, handler, zapLog))
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", son.TaskType))
	}

	// --- HTTP API, health and metrics ---
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	if err != nil {
		zapLog.Fatal("token service", zap.Error(err))
	}
	server := api.NewServer(api.Deps{
		Orders:      orderService,
		Carts:       cartStore,
		Dispatcher:  dispatcher,
		Retry:       jobs,
		Ledger:      notificationsRepo,
		Templates:   templatesRepo,
		Cache:       templateStore,
		Principals:  customersRepo,
		Preferences: customersRepo,
		Welcome:     notifier,
		Tokens:      tokens,
		ReadyChecks: map[string]func(context.Context) error{
			"postgres": pg.Ping,
			"redis":    rdb.Ping,
			"zeebe":    zeebe.HealthCheck,
		},
	}, log)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      server.Router(),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.HTTP.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown", zap.Error(err))
	}
	sched.Stop(shutdownCtx)
	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	if err := stopTracing(shutdownCtx); err != nil {
		zapLog.Error("tracing shutdown", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("metrics shutdown", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// buildSMSProvider returns nil when SMS is disabled or its provider is not
// configured, which leaves the SMS channel reporting "not configured".
func buildSMSProvider(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) notification.SMSProvider {
	smsCfg := cfg.Notifications.SMS
	if !smsCfg.Enabled {
		return nil
	}

	switch smsCfg.Provider {
	case "gateway":
		gw := sms.NewGateway(sms.GatewayConfig{
			URL:      smsCfg.Gateway.URL,
			Username: smsCfg.Gateway.Username,
			APIKey:   smsCfg.Gateway.APIKey,
			SenderID: smsCfg.SenderID,
			Timeout:  config.GetDuration(cfg.Notifications.SendTimeout),
		})
		if !gw.Configured() {
			zapLog.Warn("sms gateway credentials missing")
			return nil
		}
		return gw
	default:
		client, err := awsclient.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("sns client unavailable", zap.Error(err))
			return nil
		}
		return notification.NewSNSProvider(client, smsCfg.SenderID)
	}
}

func buildEmailSender(ctx context.Context, cfg *config.Config, ledger notification.Ledger, timeout time.Duration, log logger.Logger, zapLog *zap.Logger) *notification.EmailSender {
	emailCfg := cfg.Notifications.Email
	if !emailCfg.Enabled {
		return notification.NewEmailSender(nil, "", ledger, timeout, log)
	}
	client, err := awsclient.NewSESClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		zapLog.Warn("ses client unavailable", zap.Error(err))
		return notification.NewEmailSender(nil, emailCfg.FromEmail, ledger, timeout, log)
	}
	return notification.NewEmailSender(client, emailCfg.FromEmail, ledger, timeout, log)
}
