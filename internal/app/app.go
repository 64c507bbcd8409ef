// Package app wires configuration, stores, services and transports into a
// runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"brainstorm/internal/cache"
	"brainstorm/internal/clock"
	"brainstorm/internal/config"
	"brainstorm/internal/repository"
	"brainstorm/internal/runtime"
	"brainstorm/internal/scheduler"
	"brainstorm/internal/service"
	"brainstorm/internal/transport/rest"
	"brainstorm/internal/transport/ws"
)

const connectTimeout = 10 * time.Second

// App holds every long-lived dependency of the server
type App struct {
	SessionRepo repository.SessionRepo
	UserRepo    repository.UserRepo
	Results     cache.ResultCache
	Leaderboard cache.LeaderboardCache

	Auth     *service.AuthService
	Sessions *service.SessionService
	Users    *service.UserService

	Hub     *ws.Hub
	Handler http.Handler

	cfg    *config.Config
	sched  *scheduler.Scheduler
	mongo  *mongo.Client
	redis  *redis.Client
	logger *zap.Logger
}

// New connects the configured stores and builds the service graph
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	switch cfg.StoreDriver {
	case config.StoreMemory:
		a.SessionRepo = repository.NewMemorySessionRepo()
		a.UserRepo = repository.NewMemoryUserRepo()
		logger.Warn("using in-memory store; data is lost on exit")
	default:
		if err := a.connect(ctx); err != nil {
			a.Close(context.Background())
			return nil, err
		}
	}

	clk := clock.Real()
	a.sched = scheduler.New(clk)
	a.Hub = ws.NewHub(logger)

	summarizer := service.NewGeminiSummarizer(cfg.Summarizer)
	if cfg.Summarizer.IsEnabled() {
		logger.Info("summarizer configured", zap.String("model", cfg.Summarizer.Model))
	} else {
		logger.Info("summarizer API key not set, using local summaries")
	}

	a.Auth = service.NewAuthService(a.UserRepo, cfg.JWTSecret, cfg.TokenTTL, logger)
	a.Sessions = service.NewSessionService(a.SessionRepo, a.UserRepo, a.Results, a.Leaderboard,
		summarizer, runtime.NewRegistry(), a.sched, clk, cfg.LevelGap, cfg.Summarizer.Timeout, logger)
	a.Users = service.NewUserService(a.UserRepo, a.Leaderboard, logger)

	// wsHub implements service.Broadcaster
	a.Sessions.SetBroadcaster(a.Hub)

	wsHandler := ws.NewHandler(a.Hub, ws.NewRouter(a.Sessions, a.Hub, clk, logger), a.Auth, cfg.AllowedOrigins, logger)
	a.Handler = rest.NewRouter(&rest.Container{
		AuthService:    a.Auth,
		SessionService: a.Sessions,
		UserService:    a.Users,
		WSHandler:      wsHandler,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	a.mongo = client
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	a.logger.Info("connected to MongoDB", zap.String("database", a.cfg.MongoDatabase))

	db := client.Database(a.cfg.MongoDatabase)
	a.SessionRepo = repository.NewSessionRepo(db)
	a.UserRepo = repository.NewUserRepo(db)
	if err := a.SessionRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("session indexes: %w", err)
	}
	if err := a.UserRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr: a.cfg.RedisAddr,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	a.logger.Info("connected to Redis", zap.String("addr", a.cfg.RedisAddr))

	a.Results = cache.NewResultCache(a.redis)
	a.Leaderboard = cache.NewLeaderboardCache(a.redis)
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	a.Close(context.Background())
	return err
}

// Close stops timers and the hub and disconnects the stores
func (a *App) Close(ctx context.Context) {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}
}
