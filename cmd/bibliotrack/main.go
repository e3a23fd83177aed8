// Command bibliotrack runs the storefront API server together with the
// WebSocket hub, the AMQP notification consumer and the vector
// precompute worker.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"bibliotrack/internal/app"
	"bibliotrack/internal/config"
	"bibliotrack/internal/mail"
	"bibliotrack/internal/server"
	"bibliotrack/internal/util"
	"bibliotrack/internal/worker"
	"bibliotrack/pkg/ai"
	"bibliotrack/pkg/moderation"
	"bibliotrack/pkg/notify"
	"bibliotrack/pkg/payment"
	"bibliotrack/pkg/queue"
	"bibliotrack/pkg/storage"
	"bibliotrack/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	accessTTL := 24 * time.Hour
	if cfg.AccessTokenTTL != "" {
		accessTTL, err = time.ParseDuration(cfg.AccessTokenTTL)
		if err != nil {
			log.Fatalf("failed to parse access token TTL: %v", err)
		}
	}

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, accessTTL, nil, store.JWTOptions{})
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	var embedder ai.Embedder
	if cfg.EmbedServiceURL != "" {
		embedder = ai.NewOllamaEmbedder(ai.NewOllamaClient(cfg.EmbedServiceURL), cfg.EmbedModel, cfg.EmbedDimensions)
	}
	var vision ai.FeatureExtractor
	if cfg.VisionServiceURL != "" {
		vision = ai.NewVisionClient(cfg.VisionServiceURL)
	}
	var mailer mail.Mailer
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := notify.NewHub(logger)
	go hub.Run(ctx)

	var bus app.EventPublisher
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.NotificationExchange)
		if err != nil {
			log.Fatalf("failed to init amqp publisher: %v", err)
		}
		defer publisher.Close()
		bus = publisher

		consumer, err := notify.NewAMQPConsumer(cfg.AMQPURL, cfg.NotificationExchange, hub, logger)
		if err != nil {
			log.Fatalf("failed to init amqp consumer: %v", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("amqp consumer stopped", "err", err)
			}
		}()
	}

	jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   "bibliotrack:jobs",
		Group:    "precompute",
		Consumer: util.NewID(),
	})
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}
	precompute, err := worker.New(worker.Config{
		Store:       dataStore,
		Objects:     objects,
		Embedder:    embedder,
		Vision:      vision,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to init precompute worker: %v", err)
	}
	jobs.Start(ctx, cfg.WorkerConcurrency, precompute.Handle)

	appCore, err := app.New(app.Config{
		Store:                dataStore,
		Sessions:             sessions,
		Refresh:              store.NewRedisRefreshTokenStore(cfg.RedisAddr, cfg.RedisPassword),
		Redis:                redisClient,
		Objects:              objects,
		Gateway:              payment.NewRazorpayClient("", cfg.RazorpayKeyID, cfg.RazorpayKeySecret),
		GatewayKeyID:         cfg.RazorpayKeyID,
		GatewayKeySecret:     cfg.RazorpayKeySecret,
		GatewayWebhookSecret: cfg.RazorpayWebhookSecret,
		Embedder:             embedder,
		Vision:               vision,
		Mailer:               mailer,
		Moderator:            moderation.NewModerator(),
		Hub:                  hub,
		Bus:                  bus,
		Jobs:                 jobs,
		ModelPath:            cfg.ModelPath,
		AccessTokenTTL:       accessTTL,
		Logger:               logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                     appCore,
		Hub:                     hub,
		RedisAddr:               cfg.RedisAddr,
		RedisPassword:           cfg.RedisPassword,
		LoginRateLimitPerMinute: cfg.LoginRateLimitPerMinute,
		OTPRateLimitPerMinute:   cfg.OTPRateLimitPerMinute,
		ChatRateLimitPerMinute:  cfg.ChatRateLimitPerMinute,
		MaxUploadBytes:          cfg.MaxUploadBytes,
		AllowedExtensions:       cfg.AllowedExtensions,
		TrustedProxyCIDRs:       cfg.TrustedProxyCIDRs,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
