// Package devicegate собирает все компоненты сервиса: хранилище,
// миграции, кеш, очередь событий, сервисы и HTTP-сервер.
package devicegate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/avoronkov/device-gate/internal/cache"
	"github.com/avoronkov/device-gate/internal/config"
	"github.com/avoronkov/device-gate/internal/lib/jwt"
	"github.com/avoronkov/device-gate/internal/lib/rabbitmq"
	"github.com/avoronkov/device-gate/internal/lib/sl"
	"github.com/avoronkov/device-gate/internal/migrations"
	"github.com/avoronkov/device-gate/internal/oauth"
	authservice "github.com/avoronkov/device-gate/internal/services/auth"
	projectservice "github.com/avoronkov/device-gate/internal/services/project"
	subservice "github.com/avoronkov/device-gate/internal/services/subscription"
	"github.com/avoronkov/device-gate/internal/storage/repository"
)

// App агрегирует зависимости сервиса и управляет их жизненным циклом.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *repository.Storage
	amqpConn *amqp.Connection
	amqpCh   *amqp.Channel
}

// storageAdapter приводит возвращаемый тип BeginDeviceTx к интерфейсу
// транзакции, объявленному на стороне сервиса подписок.
type storageAdapter struct {
	*repository.Storage
}

func (a storageAdapter) BeginDeviceTx(ctx context.Context) (subservice.DeviceTx, error) {
	return a.Storage.BeginDeviceTx(ctx)
}

// New инициализирует приложение: подключения, миграции, сервисы и роутер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	amqpConn, amqpCh, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.EventQueue)
	if err != nil {
		return nil, err
	}
	publisher := rabbitmq.NewPublisher(amqpCh, cfg.RabbitMQ.EventQueue)

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL, cfg.RefreshTTL)
	provider := oauth.NewGoogleProvider(cfg.GoogleOAuth)

	authService := authservice.NewAuthService(db, provider, jwtMaker, logger)
	projectService := projectservice.NewProjectService(db, logger)
	subscriptionService := subservice.NewSubscriptionService(
		storageAdapter{db}, cacheRedis, publisher, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, jwtMaker, authService, projectService, subscriptionService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		amqpConn: amqpConn,
		amqpCh:   amqpCh,
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
		if cerr := a.amqpCh.Close(); cerr != nil {
			a.logger.Warn("failed to close amqp channel", sl.Err(cerr))
		}
		if cerr := a.amqpConn.Close(); cerr != nil {
			a.logger.Warn("failed to close amqp connection", sl.Err(cerr))
		}
		if cerr := a.db.DB.Close(); cerr != nil {
			a.logger.Warn("failed to close storage", sl.Err(cerr))
		}
		return err
	}
}
