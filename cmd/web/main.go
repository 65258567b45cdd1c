package main

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/joho/godotenv"
	"github.com/myrjola/directorscut/internal/ai"
	"github.com/myrjola/directorscut/internal/broker"
	"github.com/myrjola/directorscut/internal/config"
	"github.com/myrjola/directorscut/internal/conversation"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/logging"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/pprofserver"
	"github.com/myrjola/directorscut/internal/repositories"
	"github.com/myrjola/directorscut/internal/sqlite"
)

type application struct {
	logger         *slog.Logger
	cfg            *config.Config
	sessionManager *scs.SessionManager
	scenarios      *repositories.ScenarioRepository
	sessions       *sessionRegistry
	events         *broker.Broker[string, models.Event]
}

const eventBuffer = 16

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	cfg, err := config.Load(lookupEnv)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "configuration loaded",
		slog.Bool("offline", cfg.Offline()), slog.String("model", cfg.OpenAIModel))

	if cfg.PprofPort != "" {
		// Listens on loopback only so that it's not open to the world.
		pprofserver.Launch(cfg.PprofPort, logger)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, cfg.SqliteURL, logger); err != nil {
		return errors.Wrap(err, "open database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "close database", errors.SlogError(closeErr))
		}
	}()
	backgroundCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go db.StartDatabaseOptimizer(backgroundCtx)
	logger.LogAttrs(ctx, slog.LevelInfo, "connected to db")

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.NewWithCleanupInterval(db.ReadWrite.DB, 24*time.Hour) //nolint:mnd // daily
	sessionManager.Lifetime = 12 * time.Hour                                                   //nolint:mnd // half a day
	sessionManager.Cookie.Secure = cfg.SecureCookies
	sessionManager.Cookie.SameSite = http.SameSiteStrictMode

	var catalogue *conversation.Catalogue
	if catalogue, err = conversation.DefaultCatalogue(); err != nil {
		return errors.Wrap(err, "load offline catalogue")
	}
	orchestratorCfg := conversation.DefaultOrchestratorConfig()
	orchestratorCfg.AttemptTimeout = cfg.AttemptTimeout
	orchestrator := conversation.NewOrchestrator(ai.NewGenerator(ai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	}, logger), catalogue, orchestratorCfg, logger)

	events := broker.NewBroker[string, models.Event](eventBuffer)
	go events.Start()
	defer events.Stop()

	scenarios := repositories.NewScenarioRepository(db, logger)
	sessions := newSessionRegistry(
		orchestrator,
		repositories.NewKVRepository(db, logger),
		scenarios,
		events,
		cfg,
		logger,
	)
	defer sessions.closeAll()
	go sessions.startEvictor(backgroundCtx)

	app := application{
		logger:         logger,
		cfg:            cfg,
		sessionManager: sessionManager,
		scenarios:      scenarios,
		sessions:       sessions,
		events:         events,
	}

	if err = app.configureAndStartServer(ctx, cfg.Addr); err != nil {
		return errors.Wrap(err, "start server")
	}
	return nil
}

func main() {
	ctx := context.Background()
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   true,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "load .env", errors.SlogError(err))
		os.Exit(1)
	}

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
