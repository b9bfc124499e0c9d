// Package main serves paced dungeon runs over HTTP and websocket.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/api"
	"github.com/cory-johannsen/dungeonrun/internal/config"
	"github.com/cory-johannsen/dungeonrun/internal/content"
	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/observability"
	"github.com/cory-johannsen/dungeonrun/internal/server"
	"github.com/cory-johannsen/dungeonrun/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	contentDir := flag.String("content", "content", "content root directory")
	luaLimit := flag.Int("lua-limit", 0, "instruction budget per boss ability lookup (0 = default)")
	noDB := flag.Bool("no-db", false, "run without the PostgreSQL archive and progression")
	maxLevel := flag.Int("max-level", 60, "progression level cap")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	bundle, err := content.Load(*contentDir, content.Options{LuaInstructionLimit: *luaLimit}, logger)
	if err != nil {
		logger.Fatal("loading content", zap.Error(err))
	}
	defer bundle.Close()

	deps := bundle.RunDeps(logger, dice.NewCryptoSource())
	var archive api.Archive
	checks := map[string]api.HealthCheck{}
	if !*noDB {
		pool, err := postgres.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		archive = pool.Runs()
		deps.Progression = pool.Progression(*maxLevel)
		checks["database"] = pool.Health
	}

	reg := api.NewRegistry(cfg, deps, archive, logger)
	httpSrv := &http.Server{
		Addr:              cfg.API.Addr(),
		Handler:           api.NewServer(reg, bundle, logger).WithHealthChecks(checks).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := server.NewLifecycle(logger)
	// The registry has no loop of its own; it lives until shutdown.
	released := make(chan struct{})
	lc.Add("runs", &server.FuncService{
		StartFn: func() error { <-released; return nil },
		StopFn: func(ctx context.Context) error {
			defer close(released)
			return reg.Shutdown(ctx)
		},
	})
	lc.Add("http", server.NewHTTPService(httpSrv))

	logger.Info("simulation server ready",
		zap.String("addr", cfg.API.Addr()),
		zap.Duration("tick_delay", cfg.Simulation.TickDelay),
		zap.Bool("archive", archive != nil),
		zap.Duration("startup", time.Since(start)),
	)
	if err := lc.Run(ctx); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
