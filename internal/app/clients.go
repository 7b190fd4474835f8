package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/mediaforge-backend/internal/platform/gcp"
	"github.com/yungbote/mediaforge-backend/internal/platform/localmedia"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/platform/mediastore"
	"github.com/yungbote/mediaforge-backend/internal/realtime/bus"
)

type Clients struct {
	Store  *mediastore.Store
	Tools  localmedia.Tools
	Events bus.Bus
	// Mirror is nil unless rendition mirroring is enabled.
	Mirror gcp.BucketService
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	store := mediastore.New(cfg.Media.Root)
	if err := store.EnsureDirs(); err != nil {
		return Clients{}, fmt.Errorf("media root %s: %w", cfg.Media.Root, err)
	}

	tools := localmedia.New(log, localmedia.Options{
		FFmpegPath:     cfg.Media.FFmpegPath,
		FFprobePath:    cfg.Media.FFprobePath,
		WorkDir:        cfg.Media.WorkDir,
		DefaultTimeout: cfg.Media.TransformTimeout,
		ProbeTimeout:   cfg.Media.ProbeTimeout,
	})
	if err := tools.AssertReady(ctx); err != nil {
		return Clients{}, fmt.Errorf("media tools: %w", err)
	}

	events, err := wireBus(log, cfg.Redis)
	if err != nil {
		return Clients{}, err
	}

	mirror, err := resolveMirror(log, cfg.Mirror)
	if err != nil {
		_ = events.Close()
		return Clients{}, err
	}

	return Clients{
		Store:  store,
		Tools:  tools,
		Events: events,
		Mirror: mirror,
	}, nil
}

// wireBus uses Redis when an address is configured so that API and worker
// processes share events; otherwise events stay in process.
func wireBus(log *logger.Logger, cfg RedisConfig) (bus.Bus, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		log.Info("REDIS_ADDR not set; using in-process event bus")
		return bus.NewMemoryBus(log), nil
	}
	b, err := bus.NewRedisBus(log, bus.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Channel:  cfg.Channel,
	})
	if err != nil {
		return nil, fmt.Errorf("init redis bus: %w", err)
	}
	return b, nil
}
