package main

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"dopahiyaa/api_leads/internal/allocation"
	"dopahiyaa/api_leads/internal/credits"
	"dopahiyaa/api_leads/internal/events"
	"dopahiyaa/api_leads/internal/handlers"
	"dopahiyaa/api_leads/internal/lifecycle"
	"dopahiyaa/api_leads/internal/notify"
	"dopahiyaa/api_leads/internal/payments"
	"dopahiyaa/api_leads/internal/pricing"
	"dopahiyaa/api_leads/internal/ratelimit"
	"dopahiyaa/api_leads/internal/realtime"
	"dopahiyaa/api_leads/internal/store"
	"dopahiyaa/api_leads/internal/tasks"
	"dopahiyaa/pkg/config"
	"dopahiyaa/pkg/database"
	schema "dopahiyaa/pkg/database/sql"
	"dopahiyaa/pkg/email"
	"dopahiyaa/pkg/kafka"
	"dopahiyaa/pkg/logging"
	"dopahiyaa/pkg/monitoring"
	pkgredis "dopahiyaa/pkg/redis"
	"dopahiyaa/pkg/server"
	"dopahiyaa/pkg/version"
)

// leadStore is everything the service needs from persistence.
type leadStore interface {
	lifecycle.Store
	credits.Store
	allocation.Store
	pricing.Source
	notify.NotificationStore
	payments.Store
}

func main() {
	logger := logging.NewLoggerWithService("leads")
	config.LoadEnv(logger)
	logger.SetLevel(config.GetLogLevel())

	port := config.GetEnv("PORT", "18040")
	jwtSecret := config.RequireEnv("JWT_SECRET")

	healthChecker := monitoring.NewHealthChecker("leads", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("leads", version.Version, version.GitCommit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st leadStore
	backend := config.GetEnv("STORE_BACKEND", "postgres")
	switch backend {
	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		st = store.NewMemory()
	default:
		dbCfg := database.DefaultConfig()
		dbCfg.URL = config.RequireEnv("DATABASE_URL")
		db := database.MustConnect(dbCfg, logger)
		defer db.Close()
		if config.GetEnvBool("APPLY_SCHEMA", true) {
			if err := database.ApplySchema(ctx, db, schema.Content, "schema", logger); err != nil {
				logger.WithError(err).Fatal("Failed to apply schema")
			}
		}
		healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
		st = store.NewPostgres(db, logger)
	}

	var redisClient goredis.UniversalClient
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		client, err := pkgredis.NewClientFromURL(ctx, redisURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer client.Close()
		redisClient = client
		healthChecker.AddOptionalCheck("redis", monitoring.RedisHealthCheck(client))
	}

	var producer events.Producer
	if brokers := config.GetEnvList("KAFKA_BROKERS"); len(brokers) > 0 {
		p, err := kafka.NewProducer(brokers, "leads", logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer p.Close()
		producer = p
		healthChecker.AddOptionalCheck("kafka", monitoring.KafkaProducerHealthCheck(p.Client()))
	}

	whatsappCfg := notify.WhatsAppConfig{
		APIURL:        config.GetEnv("WHATSAPP_API_URL", notify.DefaultWhatsAppAPIURL),
		AccessToken:   config.GetEnv("WHATSAPP_ACCESS_TOKEN", ""),
		PhoneNumberID: config.GetEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		Timeout:       config.GetEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		Logger:        logger,
	}
	emailConfig := email.Config{
		Host:     config.GetEnv("SMTP_HOST", ""),
		Port:     config.GetEnv("SMTP_PORT", "587"),
		User:     config.GetEnv("SMTP_USER", ""),
		Password: config.GetEnv("SMTP_PASSWORD", ""),
		From:     config.GetEnv("FROM_EMAIL", "noreply@dopahiyaa.com"),
		FromName: "Dopahiyaa",
	}
	webhookSecret := config.GetEnv("RAZORPAY_WEBHOOK_SECRET", "")

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"JWT_SECRET":    jwtSecret,
		"STORE_BACKEND": backend,
	}))

	// Metrics
	inquiries := metricsCollector.NewCounter("inquiries_total", "Inquiries by outcome", []string{"status"})
	unlocks := metricsCollector.NewCounter("unlocks_total", "Lead unlocks by outcome", []string{"status"})
	purchases := metricsCollector.NewCounter("purchases_total", "Filter pack purchases by outcome", []string{"status"})
	allocations := metricsCollector.NewCounter("allocations_total", "Allocation attempts by outcome", []string{"outcome"})
	ledgerOps := metricsCollector.NewCounter("ledger_ops_total", "Ledger operations", []string{"op", "status"})
	notifications := metricsCollector.NewCounter("notifications_total", "Notification deliveries", []string{"channel", "status"})
	taskRuns := metricsCollector.NewCounter("tasks_total", "Background task runs", []string{"task", "status"})
	webhooks := metricsCollector.NewCounter("webhooks_total", "Payment webhook deliveries", []string{"provider", "outcome"})
	feedConns := metricsCollector.NewGauge("feed_connections", "Open dealer feed websockets", nil)

	runner := tasks.NewRunner(
		int64(config.GetEnvInt("TASK_CONCURRENCY", 32)),
		config.GetEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		logger,
		taskRuns,
	)

	ledger := credits.NewLedger(st, credits.Config{
		MaxAttempts: config.GetEnvInt("LEDGER_MAX_ATTEMPTS", credits.DefaultMaxAttempts),
	}, logger, ledgerOps)
	matcher := allocation.NewMatcher(st, config.GetEnvInt("ALLOCATION_MAX_RECIPIENTS", 0), logger, allocations)
	catalog := pricing.NewCatalog(st, config.GetEnvDuration("PRICING_CACHE_TTL", 30*time.Second), logger)

	var feedPubSub *pkgredis.TypedPubSub[events.FeedItem]
	if redisClient != nil {
		feedPubSub = pkgredis.NewTypedPubSub[events.FeedItem](redisClient, logger)
		catalog.WithInvalidation(pkgredis.NewTypedPubSub[pricing.InvalidationMessage](redisClient, logger))
		go func() {
			if err := catalog.ListenForInvalidation(ctx, nil); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Pricing invalidation listener stopped")
			}
		}()
	}
	publisher := events.NewPublisher(producer, config.GetEnv("KAFKA_TOPIC_LEADS", events.DefaultTopic), feedPubSub, logger)

	dispatcher := notify.NewDispatcher(logger, notifications).
		Register(notify.ChannelInApp, notify.NewInAppSender(st)).
		Register(notify.ChannelEmail, notify.NewEmailSender(email.NewSender(emailConfig), emailConfig.Enabled()))
	if whatsappCfg.Enabled() {
		dispatcher.Register(notify.ChannelWhatsApp, notify.NewWhatsAppSender(whatsappCfg))
	} else {
		logger.Info("WhatsApp notifications disabled")
	}

	coordinator := lifecycle.NewCoordinator(lifecycle.Deps{
		Store:     st,
		Ledger:    ledger,
		Allocator: matcher,
		Pricer:    catalog,
		Notifier:  dispatcher,
		Publisher: publisher,
		Tasks:     runner,
		Logger:    logger,
		Metrics:   &lifecycle.Metrics{Inquiries: inquiries, Unlocks: unlocks, Purchases: purchases},
	}, lifecycle.Config{UnlockPrice: config.GetEnvInt64("LEAD_UNLOCK_PRICE", lifecycle.DefaultUnlockPrice)})

	processor := payments.NewProcessor(st, ledger, webhookSecret, logger).
		OnCredited(func(ctx context.Context, res payments.Result) {
			runner.Go(ctx, "notify_topup", func(ctx context.Context) error {
				_ = publisher.Publish(ctx, events.Event{
					Type:     events.CreditsToppedUp,
					DealerID: res.DealerID,
					Data:     map[string]any{"order_id": res.OrderID, "credits": res.Credits, "balance": res.NewBalance},
				})
				dispatcher.Notify(ctx, notify.Message{
					Channel:   notify.ChannelInApp,
					Recipient: res.DealerID,
					UserID:    res.DealerID,
					Template:  notify.TemplateCreditsToppedUp,
					Params:    []string{strconv.FormatInt(res.Credits, 10)},
				})
				return nil
			})
		})
	if !processor.Enabled() {
		logger.Info("Razorpay webhook disabled")
	}

	var feed handlers.FeedServer
	if feedPubSub != nil {
		feed = realtime.NewFeed(publisher, logger, feedConns.WithLabelValues()).
			AllowOrigins(config.GetEnvList("CORS_ALLOWED_ORIGINS"))
	}

	var limiter ratelimit.Limiter
	limit := config.GetEnvInt("UNLOCK_RATE_LIMIT", 60)
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient, "leads:ratelimit", limit, time.Minute)
	} else {
		limiter = ratelimit.NewLocalLimiter(limit, time.Minute)
	}

	app := server.SetupServiceRouter(logger, "leads", healthChecker, metricsCollector)
	h := handlers.NewHandler(coordinator, processor, feed, logger, &handlers.HandlerMetrics{Webhooks: webhooks})
	handlers.RegisterRoutes(app, h, handlers.RouteConfig{
		JWTSecret:      []byte(jwtSecret),
		Limiter:        limiter,
		RequestTimeout: config.GetEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
	})

	serverConfig := server.DefaultConfig("leads", port)
	err := server.Start(serverConfig, app, logger, func(shutdownCtx context.Context) {
		cancel()
		if err := runner.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Background tasks did not drain before shutdown")
		}
	})
	if err != nil {
		logger.Fatal(err.Error())
	}
}
