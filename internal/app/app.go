// Package app implements the bookstore's core service: accounts, catalog,
// marketplace, cart and payments, wishlists, reviews, recommendations,
// search, chatbot, and the community feed.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"bibliotrack/internal/mail"
	"bibliotrack/pkg/ai"
	"bibliotrack/pkg/chatbot"
	"bibliotrack/pkg/moderation"
	"bibliotrack/pkg/notify"
	"bibliotrack/pkg/payment"
	"bibliotrack/pkg/queue"
	"bibliotrack/pkg/recommend"
	"bibliotrack/pkg/search"
	"bibliotrack/pkg/storage"
	"bibliotrack/pkg/store"
)

const (
	recommendModelTTL  = 30 * time.Minute
	recommendCacheTTL  = 30 * time.Minute
	searchCacheTTL     = 30 * time.Minute
	visualFeatureTTL   = 15 * time.Minute
	accessTokenTTLDef  = 24 * time.Hour
	refreshTokenTTLDef = 30 * 24 * time.Hour
)

// EventPublisher fans a hub message out across service instances.
type EventPublisher interface {
	Publish(ctx context.Context, msg notify.Message) error
}

// JobEnqueuer schedules background vector precompute work.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, kind, targetID string) (queue.JobStatus, error)
}

// Config wires the application's dependencies. Store and Sessions are
// required; the rest degrade gracefully when absent (search, payments and
// mail report ErrNotConfigured or log instead).
type Config struct {
	Store    store.Store
	Sessions store.SessionStore
	Refresh  store.RefreshTokenStore
	Redis    *redis.Client
	Objects  storage.ObjectStore
	Gateway  payment.Gateway

	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string

	Embedder  ai.Embedder
	Vision    ai.FeatureExtractor
	Mailer    mail.Mailer
	Moderator *moderation.Moderator
	Hub       *notify.Hub
	Bus       EventPublisher
	Jobs      JobEnqueuer

	ModelPath       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Logger          *slog.Logger
}

// App is the core application service.
type App struct {
	store    store.Store
	sessions store.SessionStore
	refresh  store.RefreshTokenStore
	redis    *redis.Client
	objects  storage.ObjectStore
	gateway  payment.Gateway

	keyID         string
	keySecret     string
	webhookSecret string

	semantic  *search.SemanticSearcher
	visual    *search.VisualSearcher
	bot       *chatbot.Chatbot
	moderator *moderation.Moderator
	hub       *notify.Hub
	bus       EventPublisher
	jobs      JobEnqueuer
	mailer    mail.Mailer
	otp       *otpStore

	modelPath string
	modelMu   sync.Mutex
	model     *recommend.Model
	modelAt   time.Time

	featureMu sync.Mutex
	features  map[string]cachedFeatures

	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *slog.Logger
}

type cachedFeatures struct {
	vector    []float32
	expiresAt time.Time
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mailer := cfg.Mailer
	if mailer == nil {
		mailer = mail.LogMailer{Logger: logger}
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = accessTokenTTLDef
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = refreshTokenTTLDef
	}

	a := &App{
		store:         cfg.Store,
		sessions:      cfg.Sessions,
		refresh:       cfg.Refresh,
		redis:         cfg.Redis,
		objects:       cfg.Objects,
		gateway:       cfg.Gateway,
		keyID:         cfg.GatewayKeyID,
		keySecret:     cfg.GatewayKeySecret,
		webhookSecret: cfg.GatewayWebhookSecret,
		moderator:     cfg.Moderator,
		hub:           cfg.Hub,
		bus:           cfg.Bus,
		jobs:          cfg.Jobs,
		mailer:        mailer,
		modelPath:     cfg.ModelPath,
		features:      map[string]cachedFeatures{},
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		logger:        logger,
	}
	if cfg.Embedder != nil {
		a.semantic = search.NewSemanticSearcher(cfg.Embedder, cfg.Store)
	}
	if cfg.Vision != nil {
		a.visual = search.NewVisualSearcher(cfg.Vision, cfg.Store)
	}
	a.bot = chatbot.New(cfg.Store, time.Now().UnixNano())
	if cfg.Redis != nil {
		a.otp = newOTPStore(cfg.Redis)
	}
	return a, nil
}

// emit delivers a hub message, through the fan-out bus when configured so
// every instance's clients see it.
func (a *App) emit(ctx context.Context, msg notify.Message) {
	if a.bus != nil {
		if err := a.bus.Publish(ctx, msg); err != nil {
			a.logger.Warn("event fan-out failed, delivering locally", "error", err)
		} else {
			return
		}
	}
	if a.hub != nil {
		a.hub.Publish(msg)
	}
}

// enqueueVectors schedules embedding and cover-feature precompute for a
// catalog book or marketplace listing. Failures only log; the record is
// already saved.
func (a *App) enqueueVectors(ctx context.Context, kind, targetID string) {
	if a.jobs == nil {
		return
	}
	if _, err := a.jobs.Enqueue(ctx, kind, targetID); err != nil {
		a.logger.Warn("enqueue vector job failed", "kind", kind, "target_id", targetID, "error", err)
	}
}

func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
