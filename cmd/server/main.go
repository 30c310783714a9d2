package main // Entry point package

import (
	"context"
	"errors"
	"log" // only used before the zap logger exists
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/helpdeskhq/helpdesk/internal/config"   // env configuration
	"github.com/helpdeskhq/helpdesk/internal/database" // mysql connection and schema
	"github.com/helpdeskhq/helpdesk/internal/handler"
	"github.com/helpdeskhq/helpdesk/internal/logging"
	"github.com/helpdeskhq/helpdesk/internal/queue" // audit consumer
	"github.com/helpdeskhq/helpdesk/internal/repository"
	"github.com/helpdeskhq/helpdesk/internal/router" // route registration
	"github.com/helpdeskhq/helpdesk/internal/service"
	"github.com/helpdeskhq/helpdesk/internal/utils"
)

const auditDir = "logs"

func main() {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var events service.Publisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		pub := service.NewAMQPPublisher(cfg.RabbitURL, logger)
		defer func() { _ = pub.Close() }()
		events = pub
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.RabbitURL, auditDir, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	accounts := service.NewAccountService(store, cfg.BcryptCost, events, logger)
	if cfg.StoreBackend == config.BackendMySQL {
		if err := accounts.SeedAdmin(ctx, cfg.SeedName, cfg.SeedEmail, cfg.SeedPassword); err != nil {
			logger.Fatal("seed administrator", zap.Error(err))
		}
	}
	tickets := service.NewTicketService(store, events)

	rdb := config.NewRedisClient() // nil when Redis is disabled or unreachable
	if rdb == nil {
		logger.Info("redis unavailable; rate limiting and caching disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	e := router.New(router.Deps{Cfg: cfg, Access: store, Redis: rdb, Logger: logger}, router.Handlers{
		Auth:    handler.NewAuthHandler(cfg, accounts, logger),
		Users:   handler.NewUserHandler(accounts, logger),
		Admin:   handler.NewAdminHandler(accounts, logger),
		Tickets: handler.NewTicketHandler(tickets, logger),
	})

	addr := ":" + cfg.Port // Address string with port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreBackend))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

// openStore returns the store selected by STORE_BACKEND.  The file store
// seeds its own administrator; the mysql schema is migrated here and the
// administrator is seeded by the caller.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repository.Store, error) {
	if cfg.StoreBackend == config.BackendMySQL {
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return repository.NewMySQLStore(db), nil
	}

	hash := func(p string) (string, error) { return utils.HashPassword(p, cfg.BcryptCost) }
	seedHash, err := hash(cfg.SeedPassword)
	if err != nil {
		return nil, err
	}
	return repository.OpenFileStore(repository.FileStoreOptions{
		Path:         cfg.DataFile,
		Seed:         repository.SeedAdmin{FullName: cfg.SeedName, Email: cfg.SeedEmail, PasswordHash: seedHash},
		HashPassword: hash,
		Logger:       logger,
	})
}
