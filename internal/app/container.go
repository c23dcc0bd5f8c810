package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/config"
	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/metrics"
	"github.com/kapu/cirak-widget-go/internal/prompt"
	"github.com/kapu/cirak-widget-go/internal/server"
	"github.com/kapu/cirak-widget-go/internal/service/ai"
	"github.com/kapu/cirak-widget-go/internal/service/analytics"
	"github.com/kapu/cirak-widget-go/internal/service/cache"
	"github.com/kapu/cirak-widget-go/internal/service/chat"
	"github.com/kapu/cirak-widget-go/internal/service/conflict"
	"github.com/kapu/cirak-widget-go/internal/service/database"
	"github.com/kapu/cirak-widget-go/internal/service/guard"
	"github.com/kapu/cirak-widget-go/internal/service/matcher"
	"github.com/kapu/cirak-widget-go/internal/service/snapshot"
	"github.com/kapu/cirak-widget-go/internal/service/store"
)

// Container bundles the assembled services. Optional parts (Store, Cache, LLM,
// Recorder, Watcher) are nil when their configuration is absent.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Metrics   *metrics.Metrics
	Database  *database.Service
	Store     *store.Repository
	Analytics *analytics.Repository
	Files     *store.FileSource
	Snapshots *snapshot.Manager
	Watcher   *snapshot.Watcher
	Cache     *cache.CacheService
	LLM       *ai.ModelManager
	Matcher   *matcher.Matcher
	Detector  *conflict.Detector
	Recorder  *analytics.Recorder
	Chat      *chat.Service
	Server    *server.Server

	closers []func()
}

// OpenStore connects the configured SQL store and makes sure the schema exists. It is
// shared by the server and the admin CLI. The files driver has no SQL store.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.Service, error) {
	var dbCfg database.Config
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		dbCfg = database.Config{Dialect: database.DialectPostgres, DSN: cfg.Postgres.DSN()}
	case config.StoreDriverSQLite:
		dbCfg = database.Config{Dialect: database.DialectSQLite, DSN: cfg.SQLite.Path}
	default:
		return nil, fmt.Errorf("store driver %q has no database", cfg.Store.Driver)
	}

	db, err := database.Open(ctx, dbCfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Build assembles all services. Heavy initialization (database, Redis, LLM clients,
// first snapshot) happens here; Run only starts the background loops and the server.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if cfg.Metrics.Enabled {
		c.Metrics = metrics.New(cfg.Metrics.Namespace)
	}

	// Intent source
	var source snapshot.Source
	if cfg.Store.Driver == config.StoreDriverFiles {
		c.Files = store.NewFileSource(cfg.Store.IntentsDir, logger)
		source = c.Files
	} else {
		c.Database, err = OpenStore(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open intent store: %w", err)
		}
		c.closers = append(c.closers, func() { _ = c.Database.Close() })

		c.Store = store.NewRepository(c.Database, logger)
		c.Analytics = analytics.NewRepository(c.Database, logger)
		if err := seedIfEmpty(ctx, c.Store, cfg.Store.IntentsDir, logger); err != nil {
			return nil, fmt.Errorf("failed to seed intent store: %w", err)
		}
		source = c.Store
	}

	// Redis is optional: without it there is no response cache and no cross-instance
	// invalidation.
	if cfg.Redis.Enabled() {
		cacheSvc, cacheErr := cache.NewCacheService(cache.CacheConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if cacheErr != nil {
			logger.Warn("Redis unavailable, continuing without cache", zap.Error(cacheErr))
		} else {
			c.Cache = cacheSvc
			c.closers = append(c.closers, func() { _ = c.Cache.Close() })
		}
	}

	// Snapshots
	c.Snapshots = snapshot.NewManager(snapshot.NewBuilder(source, logger), snapshot.ManagerConfig{
		RefreshInterval: cfg.Snapshot.RefreshInterval,
	}, logger)
	c.Snapshots.OnSwap(func(current, _ *domain.Snapshot) {
		c.Metrics.ObserveSnapshot(current.Metadata())
	})
	c.Snapshots.OnBuildError(func(error) {
		c.Metrics.ObserveSnapshotError()
	})
	if c.Store != nil {
		c.Snapshots.OnSwap(func(current, _ *domain.Snapshot) {
			recordCtx, cancel := context.WithTimeout(context.Background(), constants.SnapshotConfig.BuildTimeout)
			defer cancel()
			if err := c.Store.RecordSnapshot(recordCtx, current.Metadata()); err != nil {
				logger.Warn("Failed to record snapshot history", zap.Error(err))
			}
		})
	}
	if err := c.Snapshots.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to build initial snapshot: %w", err)
	}
	if c.Files != nil && cfg.Store.WatchFiles {
		c.Watcher = snapshot.NewWatcher(c.Files.Dir(), c.Snapshots.Invalidate, logger)
	}

	// AI stack (guarded mode only)
	if cfg.Chat.Mode == config.ChatModeGuarded {
		c.LLM, err = buildModelManager(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create model manager: %w", err)
		}
	}

	c.Matcher = matcher.NewMatcher(logger)
	c.Detector = conflict.NewDetector(logger)

	if c.Analytics != nil {
		var counter analytics.Counter
		if c.Cache != nil {
			counter = c.Cache
		}
		c.Recorder = analytics.NewRecorder(c.Analytics, counter, logger)
		c.closers = append(c.closers, func() { _ = c.Recorder.Close() })
	}

	chatDeps := chat.Dependencies{
		Snapshots: c.Snapshots,
		Matcher:   c.Matcher,
		Prompts:   prompt.DefaultPromptBuilder(),
		Guard: guard.New(guard.Config{
			MaterialityThreshold: cfg.Guard.MaterialityThreshold,
			UpperBound:           cfg.Guard.UpperBound,
		}, logger),
		Metrics: c.Metrics,
	}
	// assigned one by one so an interface never holds a nil pointer
	if c.LLM != nil {
		chatDeps.Completer = c.LLM
	}
	if c.Cache != nil {
		chatDeps.Cache = c.Cache
	}
	if c.Recorder != nil {
		chatDeps.Recorder = c.Recorder
	}
	c.Chat = chat.NewService(chat.Config{
		Mode:       cfg.Chat.Mode,
		LLMTimeout: cfg.Chat.LLMTimeout,
	}, chatDeps, logger)

	serverDeps := server.Dependencies{
		Chat:      c.Chat,
		Snapshots: c.Snapshots,
		Matcher:   c.Matcher,
		Detector:  c.Detector,
		Metrics:   c.Metrics,
	}
	if c.Store != nil {
		serverDeps.Store = c.Store
		serverDeps.Analytics = c.Analytics
	}
	if c.Cache != nil {
		serverDeps.Live = c.Cache
		serverDeps.Invalidator = c.Cache
	}
	if c.LLM != nil {
		serverDeps.LLM = c.LLM
	}
	c.Server, err = server.New(cfg.Server, serverDeps, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Container built",
		zap.String("store", cfg.Store.Driver),
		zap.String("chat_mode", cfg.Chat.Mode),
		zap.Bool("redis", c.Cache != nil),
		zap.Bool("llm", c.LLM != nil),
		zap.Bool("metrics", c.Metrics != nil),
	)
	return c, nil
}

func buildModelManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ai.ModelManager, error) {
	mmCfg := ai.ModelManagerConfig{
		Options: ai.CompletionOptions{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
			MaxTokens:   cfg.LLM.MaxTokens,
		},
	}

	if openaiProvider := ai.NewOpenAIProvider(ai.OpenAIProviderConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Referer: cfg.LLM.Referer,
		Title:   cfg.LLM.Title,
	}, logger); openaiProvider != nil {
		mmCfg.Primary = openaiProvider
	}

	if cfg.Gemini.EnableFallback || mmCfg.Primary == nil {
		geminiProvider, err := ai.NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			return nil, err
		}
		if geminiProvider != nil {
			mmCfg.Fallback = geminiProvider
		}
	}

	return ai.NewModelManager(mmCfg, logger)
}

// seedIfEmpty imports the YAML intent directory into an empty SQL store, so a fresh
// database starts with the shipped content.
func seedIfEmpty(ctx context.Context, repo *store.Repository, dir string, logger *zap.Logger) error {
	existing, err := repo.Load(ctx)
	if err != nil {
		return err
	}
	if len(existing.Intents) > 0 || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		logger.Warn("Intent store is empty and no seed directory exists", zap.String("dir", dir))
		return nil
	}

	content, err := store.NewFileSource(dir, logger).Load(ctx)
	if err != nil {
		return err
	}
	if err := repo.ImportContent(ctx, content); err != nil {
		return err
	}
	logger.Info("Intent store seeded from files",
		zap.String("dir", dir),
		zap.Int("intents", len(content.Intents)),
	)
	return nil
}

// Run starts the background loops and the HTTP server and blocks until ctx is done or
// one of them fails.
func (c *Container) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		c.Snapshots.Run(ctx)
		return nil
	})
	if c.Watcher != nil {
		p.Go(c.Watcher.Run)
	}
	if c.Cache != nil {
		p.Go(func(ctx context.Context) error {
			err := c.Cache.SubscribeInvalidations(ctx, func(reason string) {
				c.Logger.Debug("Remote invalidation", zap.String("reason", reason))
				c.Snapshots.Invalidate()
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}
	p.Go(func(context.Context) error {
		return c.Server.Start()
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.AdminLimits.ShutdownTimeout)
		defer cancel()
		return c.Server.Shutdown(shutdownCtx)
	})

	return p.Wait()
}

// Close releases resources in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// WaitForShutdown is a helper for binaries: it bounds how long Close may take.
func (c *Container) WaitForShutdown(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		c.Logger.Warn("Shutdown timed out", zap.Duration("timeout", timeout))
	}
}
