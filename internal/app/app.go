package app

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	appdb "github.com/yungbote/mediaforge-backend/internal/data/db"
	httpapi "github.com/yungbote/mediaforge-backend/internal/http"
	"github.com/yungbote/mediaforge-backend/internal/observability"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/realtime"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics
	Server   *httpapi.Server

	dbService    *appdb.Service
	otelShutdown func(context.Context) error
	closeOnce    sync.Once
}

func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	log, cfg := a.Log, a.Cfg

	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Otel.Enabled,
		ServiceName: cfg.Otel.ServiceName,
		Environment: cfg.Env,
		Version:     Version,
		Endpoint:    cfg.Otel.Endpoint,
		Headers:     observability.ParseHeaders(cfg.Otel.Headers),
		Insecure:    cfg.Otel.Insecure,
		SampleRatio: cfg.Otel.SampleRatio,
	})

	dbService, err := appdb.NewService(log, cfg.dbConfig())
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	a.dbService = dbService
	if err := dbService.AutoMigrateAll(); err != nil {
		return fmt.Errorf("db automigrate: %w", err)
	}
	a.DB = dbService.DB()

	a.Metrics = observability.NewMetrics(log, observability.MetricsConfig{
		Enabled:        cfg.Metrics.Enabled,
		ScrapeInterval: cfg.Metrics.ScrapeInterval,
	})

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		return err
	}
	a.Clients = clients

	a.Repos = wireRepos(a.DB, log)
	a.Services, err = wireServices(a.DB, log, cfg, a.Repos, a.Clients, a.Metrics)
	if err != nil {
		return err
	}

	if cfg.RunServer {
		a.SSEHub = realtime.NewSSEHub(log)
		a.Server = wireServer(a.DB, log, cfg, a.Services, a.SSEHub, a.Metrics)
	}
	return nil
}

// Run blocks until ctx is cancelled or a component fails. Background loops
// stop before Run returns.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.DB == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.Metrics != nil {
		a.Metrics.StartServer(gctx, a.Log, a.Cfg.Metrics.Addr)
		a.Metrics.StartJobQueueCollector(gctx, a.Log, a.DB)
		a.Metrics.StartDBCollector(gctx, a.Log, a.DB)
		if a.Cfg.Redis.Addr != "" {
			a.Metrics.StartRedisCollector(gctx, a.Log, a.Cfg.Redis.Addr)
		}
	}

	if w := a.Services.Worker; w != nil {
		w.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			w.Wait()
			return nil
		})
	}

	if a.Server != nil {
		if err := a.Clients.Events.StartForwarder(gctx, a.SSEHub.Forward); err != nil {
			return fmt.Errorf("start event forwarder: %w", err)
		}
		g.Go(func() error {
			return a.Server.Run(gctx)
		})
	}

	a.Log.Info("MediaForge running", "server", a.Server != nil, "worker", a.Services.Worker != nil, "version", Version)
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		if a.Clients.Events != nil {
			if err := a.Clients.Events.Close(); err != nil {
				a.Log.Warn("event bus close", "error", err)
			}
		}
		if a.otelShutdown != nil {
			if err := a.otelShutdown(context.Background()); err != nil {
				a.Log.Warn("otel shutdown", "error", err)
			}
		}
		if a.dbService != nil {
			if err := a.dbService.Close(); err != nil {
				a.Log.Warn("db close", "error", err)
			}
		}
		a.Log.Sync()
	})
}
