package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mwork_messaging/internal/auth"
	"mwork_messaging/internal/config"
	"mwork_messaging/internal/database"
	"mwork_messaging/internal/email"
	"mwork_messaging/internal/events"
	"mwork_messaging/internal/handlers"
	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/middleware"
	"mwork_messaging/internal/notify"
	"mwork_messaging/internal/push"
	"mwork_messaging/internal/repositories"
	"mwork_messaging/internal/routes"
	"mwork_messaging/internal/services"
	"mwork_messaging/internal/sms"
	"mwork_messaging/internal/validator"
	"mwork_messaging/internal/workers"
	"mwork_messaging/pkg/apperrors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type repositoryContainer struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	deliveries    repositories.DeliveryRepository
	contacts      repositories.ContactRepository
	idempotency   repositories.IdempotencyRepository
}

// App - собранное приложение: сервисы, хэндлеры и фоновые воркеры
type App struct {
	cfg      *config.Config
	db       *gorm.DB
	bus      events.Bus
	repos    repositoryContainer
	Services *services.ServiceContainer
	Handlers *handlers.AppHandlers

	pool        *workers.DeliveryPool
	outbox      *workers.OutboxPoller
	maintenance *workers.MaintenanceWorker
	eventWorker *workers.NotificationEventWorker

	closers []func() error
}

// Setup применяет общие настройки процесса: логгер, режим ошибок, JWT
func Setup(cfg *config.Config) {
	logger.Setup(logger.Options{
		Env:        cfg.Server.Env,
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	apperrors.SetDebug(!cfg.IsProduction())
	auth.Init(cfg.JWT.Secret, time.Duration(cfg.JWT.TTL)*time.Minute)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
}

// OpenDatabase подключается к БД и при необходимости мигрирует схему
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	logger.Info("Connecting to database...")
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Database connected", "dialect", db.Dialector.Name())

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("Database schema migrated")
	}
	return db, nil
}

// New собирает зависимости. Воркеры создаются, но не запускаются.
func New(cfg *config.Config, db *gorm.DB) (*App, error) {
	a := &App{cfg: cfg, db: db}

	a.repos = repositoryContainer{
		conversations: repositories.NewConversationRepository(),
		messages:      repositories.NewMessageRepository(),
		notifications: repositories.NewNotificationRepository(),
		deliveries:    repositories.NewDeliveryRepository(),
		contacts:      repositories.NewContactRepository(),
		idempotency:   repositories.NewIdempotencyRepository(),
	}

	bus, err := events.NewBus(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	a.bus = bus
	a.closers = append(a.closers, bus.Close)
	logger.Info("Event bus initialized", "driver", cfg.Events.Driver)

	if err := a.initializeServices(); err != nil {
		a.Close()
		return nil, err
	}
	a.Handlers = initializeHandlers(a.Services)
	a.initializeWorkers()

	return a, nil
}

func (a *App) initializeServices() error {
	cfg := a.cfg
	r := a.repos

	contactService := services.NewContactService(a.db, r.contacts, nil)

	senders, err := a.initializeSenders(contactService)
	if err != nil {
		return err
	}

	deliverer := services.NewNotificationDeliverer(
		r.notifications, r.deliveries, r.contacts,
		services.DeliveryPolicy{
			MaxAttempts: cfg.Notifications.MaxAttempts,
			BackoffBase: time.Duration(cfg.Notifications.BackoffBaseMs) * time.Millisecond,
			BackoffMax:  time.Duration(cfg.Notifications.BackoffMaxMs) * time.Millisecond,
			Lease:       time.Duration(cfg.Notifications.LeaseSeconds) * time.Second,
		},
		nil,
		senders...,
	)

	a.pool = workers.NewDeliveryPool(a.db, deliverer, cfg.Notifications.Workers, cfg.Notifications.QueueSize)

	store := services.NewMessageStore(r.conversations, r.messages, cfg.Notifications.MaxAttachmentBytes, nil)
	registry := services.NewConversationRegistry(
		r.conversations, r.messages, r.idempotency, store,
		services.AcceptAllReferences{}, a.bus, cfg.IdempotencyTTL(), nil,
	)
	dispatcher := services.NewNotificationDispatcher(
		r.notifications, r.deliveries, r.idempotency, a.pool,
		cfg.DedupWindow(), cfg.IdempotencyTTL(), nil,
	)
	gateway := services.NewPollingGateway(registry, store, dispatcher, r.messages, r.notifications, nil)

	a.Services = &services.ServiceContainer{
		MessageStore:           store,
		ConversationRegistry:   registry,
		NotificationDispatcher: dispatcher,
		NotificationDeliverer:  deliverer,
		PollingGateway:         gateway,
		ContactService:         contactService,
	}
	return nil
}

// initializeSenders собирает включенные каналы доставки
func (a *App) initializeSenders(contactService services.ContactService) ([]notify.Sender, error) {
	cfg := a.cfg
	var senders []notify.Sender

	if cfg.Email.Enabled {
		provider := email.NewSMTPProvider(email.ConfigFrom(cfg), email.NewTemplateManager())
		if err := provider.Validate(); err != nil {
			return nil, fmt.Errorf("invalid email config: %w", err)
		}
		senders = append(senders, provider)
		logger.Info("Email channel enabled", "smtp_host", cfg.Email.SMTPHost)
	} else {
		logger.Warn("Email channel is disabled")
	}

	smsSender, closeSMS, err := sms.New(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeSMS)
	if smsSender != nil {
		senders = append(senders, smsSender)
		logger.Info("SMS channel enabled")
	}

	if pushSender := push.New(cfg, contactService.PruneEndpoint); pushSender != nil {
		senders = append(senders, pushSender)
		logger.Info("Push channel enabled")
	}

	return senders, nil
}

func initializeHandlers(container *services.ServiceContainer) *handlers.AppHandlers {
	customValidator := validator.New()
	baseHandler := handlers.NewBaseHandler(customValidator)

	return &handlers.AppHandlers{
		ConversationHandler: handlers.NewConversationHandler(baseHandler, container.PollingGateway),
		NotificationHandler: handlers.NewNotificationHandler(baseHandler, container.PollingGateway),
		ContactHandler:      handlers.NewContactHandler(baseHandler, container.ContactService),
	}
}

func (a *App) initializeWorkers() {
	cfg := a.cfg
	a.outbox = workers.NewOutboxPoller(a.db, a.Services.NotificationDeliverer,
		cfg.Notifications.BatchSize, time.Duration(cfg.Notifications.PollInterval)*time.Second)
	a.maintenance = workers.NewMaintenanceWorker(a.db, a.repos.idempotency, a.repos.deliveries,
		time.Duration(cfg.Maintenance.Interval)*time.Minute)
	a.eventWorker = workers.NewNotificationEventWorker(a.db, a.bus, a.Services.NotificationDispatcher, cfg)
}

// Router собирает gin с middleware и маршрутами
func (a *App) Router() *gin.Engine {
	return SetupRouter(a.cfg, a.db, a.Handlers)
}

func SetupRouter(cfg *config.Config, db *gorm.DB, appHandlers *handlers.AppHandlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.DBMiddleware(db))

	routes.SetupPublicRoutes(router, db)
	routes.RegisterRoutes(router, appHandlers)
	return router
}

// StartWorkers запускает доставку, опрос outbox, уборку и подписку на события
func (a *App) StartWorkers(ctx context.Context) {
	a.pool.Start(ctx)
	a.outbox.Start(ctx)
	a.maintenance.Start(ctx)
	a.eventWorker.Start(ctx)
}

// Serve запускает HTTP сервер и воркеры до отмены ctx
func (a *App) Serve(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	a.StartWorkers(workerCtx)

	address := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              address,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("🚀 Server starting on %s", address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server startup error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	stopWorkers()
	a.pool.Wait()
	return nil
}

// RunWorkers - режим без HTTP: только фоновые воркеры
func (a *App) RunWorkers(ctx context.Context) error {
	a.StartWorkers(ctx)
	<-ctx.Done()
	a.pool.Wait()
	logger.Info("Workers stopped")
	return nil
}

// Close освобождает шину и продюсеры
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
