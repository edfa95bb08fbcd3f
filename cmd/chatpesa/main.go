package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rookgm/chatpesa/config"
	"github.com/rookgm/chatpesa/internal/auth"
	handler "github.com/rookgm/chatpesa/internal/handler/http"
	"github.com/rookgm/chatpesa/internal/logger"
	"github.com/rookgm/chatpesa/internal/middleware"
	"github.com/rookgm/chatpesa/internal/mpesa"
	"github.com/rookgm/chatpesa/internal/repository"
	"github.com/rookgm/chatpesa/internal/repository/postgres"
	"github.com/rookgm/chatpesa/internal/repository/sqlite"
	"github.com/rookgm/chatpesa/internal/service"
	"github.com/rookgm/chatpesa/internal/session"
	"github.com/rookgm/chatpesa/internal/whatsapp"
	"github.com/rookgm/chatpesa/internal/worker"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// create new config
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// initialize logger
	zl, err := logger.Initialize(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("Server stopped with error", zap.Error(err))
	}
}

// openStore opens order and message stores selected by DSN scheme and migrates them
func openStore(ctx context.Context, dsn string) (service.OrderRepository, service.MessageRepository, func(), error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return repository.NewOrderRepository(db), repository.NewMessageRepository(db), db.Close, nil
	}

	db, err := sqlite.New(ctx, dsn)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return sqlite.NewOrderRepository(db), sqlite.NewMessageRepository(db), func() { db.Close() }, nil
}

// mountOrderRoutes serves order list at the dashboard api path and at /orders polled by older dashboards
func mountOrderRoutes(r chi.Router, listOrders http.HandlerFunc) {
	r.Get("/api/orders", listOrders)
	r.Get("/orders", listOrders)
}

func tokenKey(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	// dashboard sessions do not survive restart without configured key
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	// initialize database
	orderRepo, messageRepo, closeStore, err := openStore(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer closeStore()

	key, err := tokenKey(cfg.AuthTokenKey)
	if err != nil {
		return err
	}
	token := auth.NewAuthToken(key)

	// dependency injection
	// providers
	chatClient := whatsapp.NewClient(whatsapp.Config{
		BaseURL:    cfg.TwilioBaseURL,
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioWhatsAppNumber,
	})
	mpesaClient := mpesa.NewClient(mpesa.Config{
		BaseURL:        cfg.MpesaBaseURL,
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		Shortcode:      cfg.MpesaShortcode,
		Passkey:        cfg.MpesaPasskey,
		CallbackURL:    cfg.MpesaCallbackURL,
		Timeout:        cfg.PaymentTimeout,
	})

	sessions := session.NewManager(cfg.SessionCacheSize, cfg.SessionTTL)
	notifier := service.NewChatNotifier(chatClient, 0)
	defer notifier.Wait()

	// payment
	initiator := service.NewInitiator(service.InitiatorConfig{
		Workers:   cfg.PaymentWorkers,
		QueueSize: cfg.PaymentQueueSize,
		Timeout:   cfg.PaymentTimeout,
		RateLimit: cfg.PaymentRateLimit,
	}, orderRepo, mpesaClient, notifier, sessions)
	reconciler := service.NewReconciler(orderRepo, notifier, sessions)
	callbackHandler := handler.NewCallbackHandler(reconciler)

	// chat
	chatService := service.NewChatService(orderRepo, messageRepo, sessions, initiator)
	chatHandler := handler.NewChatHandler(chatService)

	// order
	orderService := service.NewOrderService(orderRepo, notifier, sessions, cfg.OrderPaymentDeadline)
	orderHandler := handler.NewOrderHandler(orderService)
	sweeper := worker.NewOrderSweeper(orderService, cfg.SweepInterval)

	// auth
	authService := service.NewAuthService(cfg.DashboardPasswordHash, token)
	authHandler := handler.NewAuthHandler(authService)

	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(middleware.Logging(zl))
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	}).Handler)

	router.Get("/", handler.Health())

	router.Group(func(group chi.Router) {
		if cfg.TwilioValidateSignature {
			group.Use(middleware.TwilioSignature(cfg.TwilioAuthToken, cfg.WebhookBaseURL))
		}
		group.Post("/webhook/whatsapp", chatHandler.ReceiveMessage())
	})
	router.Post("/webhook/mpesa/callback", callbackHandler.ReceiveCallback())

	router.Post("/api/dashboard/login", authHandler.Login())
	// routes that require authentication
	router.Group(func(group chi.Router) {
		if authService.Enabled() {
			group.Use(handler.AuthMiddleware(token))
		} else {
			zl.Warn("Dashboard password is not set, orders api is public")
		}
		mountOrderRoutes(group, orderHandler.ListOrders())
	})

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("Running server", zap.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return initiator.Run(ctx)
	})
	g.Go(func() error {
		sweeper.SweepOrders(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		zl.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
