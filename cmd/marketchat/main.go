package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authsvc "marketchat/internal/app/services/auth"
	chatsvc "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	"marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/config"
	mongodb "marketchat/internal/infra/db/mongo"
	ginserver "marketchat/internal/infra/http/gin"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/realtime"
	"marketchat/internal/infra/security"
	"marketchat/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	if cfg.ListingFixtures != "" {
		if err := app.loadListingFixtures(ctx, cfg.ListingFixtures, logger); err != nil {
			logger.Warn("listing fixtures load failed", "error", err, "path", cfg.ListingFixtures)
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	listings domainlistings.Repository
	ready    func() error
	close    func()
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, error) {
	var (
		conversations domainchat.ConversationRepository
		messages      domainchat.MessageRepository
		listings      domainlistings.Repository
		ready         = func() error { return nil }
		closers       []func()
	)

	usersRepo := memory.NewUserRepository()
	sessionStore := memory.NewSessionStore()

	switch cfg.StorageMode {
	case "mongo":
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return application{}, fmt.Errorf("mongo connect: %w", err)
		}
		chatRepo := mongodb.NewChatRepository(client.DB)
		if err := chatRepo.EnsureIndexes(ctx); err != nil {
			return application{}, fmt.Errorf("mongo indexes: %w", err)
		}
		conversations = chatRepo
		messages = chatRepo
		listings = memory.NewListingRepository()
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		closers = append(closers, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		})
	default:
		chatStore := memory.NewChatStore()
		conversations = chatStore
		messages = chatStore
		listings = memory.NewListingRepository()
	}

	var events chatsvc.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, nil)
		if err != nil {
			return application{}, fmt.Errorf("kafka connect: %w", err)
		}
		events = producer
		closers = append(closers, func() { _ = producer.Close() })
		logger.Info("kafka producer connected", "brokers", cfg.KafkaBrokers)
	}

	authService := &authsvc.Service{
		Users:      usersRepo,
		Sessions:   sessionStore,
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}

	directory := &chatsvc.Directory{
		Listings:      listings,
		Conversations: conversations,
		Events:        events,
		Logger:        logger,
	}
	store := &chatsvc.Store{
		Conversations: conversations,
		Messages:      messages,
		Users:         usersRepo,
		Events:        events,
		Logger:        logger,
	}
	gate := &chatsvc.LifecycleGate{
		Conversations: conversations,
		Listings:      listings,
	}

	hub := realtime.NewHub(store, gate, logger)
	hub.WriteTimeout = cfg.WSWriteTimeout
	hub.PingInterval = cfg.WSPingInterval

	handlers := ginserver.Handlers{
		Auth: ginserver.AuthHandler{Service: authService, Logger: logger},
		Chat: ginserver.ChatHandler{
			Directory: directory,
			Store:     store,
			Gate:      gate,
			Users:     usersRepo,
			Listings:  listings,
			Logger:    logger,
		},
		Realtime:       ginserver.NewRealtimeHandler(hub, logger),
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}

	return application{
		handlers: handlers,
		listings: listings,
		ready:    ready,
		close: func() {
			for _, fn := range closers {
				fn()
			}
		},
	}, nil
}

type listingFixture struct {
	ID         string `json:"id"`
	Seller     string `json:"seller_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	PriceCents int64  `json:"price_cents"`
	Status     string `json:"status"`
}

func (a application) loadListingFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("listing fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	now := time.Now()
	for _, fx := range fixtures {
		listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
			ID:         domainlistings.ListingID(fx.ID),
			Seller:     domainlistings.SellerID(fx.Seller),
			Title:      fx.Title,
			Body:       fx.Body,
			PriceCents: fx.PriceCents,
			Now:        now,
		})
		if err != nil {
			logger.Error("fixture invalid", "listing_id", fx.ID, "error", err)
			continue
		}
		if fx.Status != "" {
			status, err := domainlistings.ParseStatus(fx.Status)
			if err != nil {
				logger.Error("fixture status invalid", "listing_id", fx.ID, "error", err)
				continue
			}
			listing.Status = status
		}
		if err := a.listings.Save(ctx, listing); err != nil {
			logger.Error("cannot store fixture listing", "listing_id", fx.ID, "error", err)
			continue
		}
		logger.Info("listing fixture imported", "listing_id", listing.ID)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
