// Package accountaggregator собирает зависимости основного приложения:
// хранилище, кеш, брокер событий, клиент биллинг-провайдера, сервисы
// и HTTP-сервер.
package accountaggregator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/account-aggregator/internal/billingprovider"
	"github.com/magabrotheeeer/account-aggregator/internal/cache"
	"github.com/magabrotheeeer/account-aggregator/internal/config"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/assertion"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/jwt"
	"github.com/magabrotheeeer/account-aggregator/internal/migrations"
	"github.com/magabrotheeeer/account-aggregator/internal/rabbitmq"
	chatservice "github.com/magabrotheeeer/account-aggregator/internal/services/chat"
	entitlementservice "github.com/magabrotheeeer/account-aggregator/internal/services/entitlement"
	identityservice "github.com/magabrotheeeer/account-aggregator/internal/services/identity"
	lifecycleservice "github.com/magabrotheeeer/account-aggregator/internal/services/lifecycle"
	linkerservice "github.com/magabrotheeeer/account-aggregator/internal/services/linker"
	sessionservice "github.com/magabrotheeeer/account-aggregator/internal/services/session"
	"github.com/magabrotheeeer/account-aggregator/internal/storage/repository"
)

// App агрегирует HTTP-сервер и внешние подключения приложения.
type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	rabbitConn *amqp.Connection
}

// New создаёт приложение: подключает хранилище, применяет миграции,
// подключает Redis и RabbitMQ, собирает сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.NewFromConnectionString(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	rabbitConn, err := rabbitmq.Connect(cfg.RabbitConnectionString, 5, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rabbitChannel, err := rabbitmq.SetupChannel(rabbitConn, rabbitmq.GetNotificationQueues())
	if err != nil {
		return nil, err
	}
	publisher := rabbitmq.NewPublisher(rabbitChannel)

	billingClient := billingprovider.NewClient(cfg.BillingProvider.APIURL, cfg.BillingProvider.APIKey)
	verifier := assertion.NewJWTVerifier(cfg.IdentityProvider.AssertionSecret)
	maker := jwt.NewMaker(cfg.SessionToken.SecretKey, cfg.SessionToken.TokenTTL)

	identityService := identityservice.New(db, logger,
		cfg.TrialPolicy.StartingCredits, cfg.TrialPolicy.MaxTrialsPerAddress)
	entitlementService := entitlementservice.New(db, billingClient, logger)
	lifecycleService := lifecycleservice.New(db, entitlementService, publisher, logger)
	linkerService := linkerservice.New(db, lifecycleService, publisher, logger,
		cfg.TrialPolicy.RegistrationCredits)
	sessionService := sessionservice.New(db, cacheRedis, logger)
	chatService := chatservice.New(db, identityService, db, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, &RouteDeps{
		Storage:       db,
		Verifier:      verifier,
		Maker:         maker,
		Identity:      identityService,
		Linker:        linkerService,
		Lifecycle:     lifecycleService,
		Sessions:      sessionService,
		Entitlement:   entitlementService,
		Chats:         chatService,
		WebhookSecret: cfg.BillingProvider.WebhookSecret,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:     srv,
		logger:     logger,
		db:         db,
		rabbitConn: rabbitConn,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.rabbitConn.Close()
		_ = a.db.DB.Close()
		return err
	}
}
