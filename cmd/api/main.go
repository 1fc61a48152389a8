package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httptransport "github.com/pwd-registry/support-desk/internal/api/http"
	"github.com/pwd-registry/support-desk/internal/api/http/handlers"
	"github.com/pwd-registry/support-desk/internal/auth"
	"github.com/pwd-registry/support-desk/internal/config"
	"github.com/pwd-registry/support-desk/internal/events"
	"github.com/pwd-registry/support-desk/internal/numbering"
	"github.com/pwd-registry/support-desk/internal/observability"
	"github.com/pwd-registry/support-desk/internal/persistence"
	"github.com/pwd-registry/support-desk/internal/repository"
	"github.com/pwd-registry/support-desk/internal/repository/cache"
	"github.com/pwd-registry/support-desk/internal/repository/memory"
	"github.com/pwd-registry/support-desk/internal/service"
	"github.com/pwd-registry/support-desk/internal/storage"
)

const shutdownTimeout = 10 * time.Second

type repositories struct {
	transactor  repository.Transactor
	tickets     repository.TicketRepository
	messages    repository.TicketMessageRepository
	attachments repository.AttachmentRepository
	history     repository.TicketHistoryRepository
	members     repository.PWDMemberRepository
	accounts    repository.AccountRepository
	// memory is set when the service runs without Postgres.
	memory *memory.Store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.Enabled() {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	repos := buildRepositories(pg, logger)
	if redis.Enabled() {
		repos.members = cache.NewPWDMemberRepository(repos.members, redis.Client, cfg.Redis.MemberCacheTTL, logger)
	}
	numbers := numbering.NewSequenceGenerator(repos.tickets, cfg.Tickets.NumberPrefix, nil)

	blobs, err := buildBlobStore(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to init attachment storage", zap.Error(err))
	}
	files := storage.NewAttachmentStore(blobs, storage.AttachmentOptions{
		MaxBytes:          cfg.Storage.MaxUploadBytes,
		AllowedExtensions: cfg.Storage.AllowedExtensions,
	})

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	dispatcher := events.NewInMemoryDispatcher()
	service.NewAuditService(dispatcher, logger, metrics).RegisterHandlers()

	ticketService := service.NewTicketService(service.TicketDependencies{
		Transactor:     repos.transactor,
		TicketRepo:     repos.tickets,
		MessageRepo:    repos.messages,
		AttachmentRepo: repos.attachments,
		HistoryRepo:    repos.history,
		PWDMemberRepo:  repos.members,
		Files:          files,
		Numbers:        numbers,
		Dispatcher:     dispatcher,
		Logger:         logger,
		CreateAttempts: cfg.Tickets.CreateAttempts,
	})
	authService := service.NewAuthService(cfg.Auth, repos.accounts)
	if repos.memory != nil && cfg.App.SeedFile != "" {
		if err := seedFixture(repos.memory, cfg.App.SeedFile, authService, logger); err != nil {
			logger.Fatal("failed to seed in-memory repositories", zap.Error(err))
		}
	}
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager())

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    cfg.App.BodyLimitBytes,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}, persistence.ErrNotConfigured),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Messages:       handlers.NewMessagesHandler(ticketService),
		AuthMiddleware: authMiddleware,
		Gatherer:       prometheus.DefaultGatherer,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func buildRepositories(pg *persistence.Postgres, logger *zap.Logger) repositories {
	if pg.Enabled() {
		pool := pg.Pool
		return repositories{
			transactor:  repository.NewPgTransactor(pool),
			tickets:     repository.NewTicketRepository(pool),
			messages:    repository.NewTicketMessageRepository(pool),
			attachments: repository.NewAttachmentRepository(pool),
			history:     repository.NewTicketHistoryRepository(pool),
			members:     repository.NewPWDMemberRepository(pool),
			accounts:    repository.NewAccountRepository(pool),
		}
	}

	logger.Warn("running on in-memory repositories; data is lost on restart")
	store := memory.NewStore()
	return repositories{
		transactor:  store,
		tickets:     store.Tickets(),
		messages:    store.Messages(),
		attachments: store.Attachments(),
		history:     store.History(),
		members:     store.PWDMembers(),
		accounts:    store.Accounts(),
		memory:      store,
	}
}

func seedFixture(store *memory.Store, path string, authService *service.AuthService, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := store.LoadFixture(f, authService.HashPassword)
	if err != nil {
		return err
	}
	logger.Info("seeded in-memory accounts", zap.String("file", path), zap.Int("accounts", n))
	return nil
}

func buildBlobStore(cfg config.StorageConfig, logger *zap.Logger) (storage.BlobStore, error) {
	if cfg.Driver == config.StorageDriverMemory {
		logger.Warn("attachments are kept in memory")
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewLocalStore(cfg.Root)
	if err != nil {
		return nil, err
	}
	logger.Info("attachments stored on local disk", zap.String("root", cfg.Root))
	return store, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
