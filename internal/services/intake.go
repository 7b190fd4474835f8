package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gorm.io/gorm"

	mediarepo "github.com/yungbote/mediaforge-backend/internal/data/repos/media"
	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/jobs/pipeline/rendition_build"
	"github.com/yungbote/mediaforge-backend/internal/observability"
	"github.com/yungbote/mediaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/platform/localmedia"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/platform/mediastore"
	"github.com/yungbote/mediaforge-backend/internal/realtime"
	"github.com/yungbote/mediaforge-backend/internal/realtime/bus"
)

const UploadAcceptedMessage = "Video upload accepted, processing has started."

type IntakeConfig struct {
	// MaxUploadBytes <= 0 disables the size check.
	MaxUploadBytes int64
	// MaxQueueDepth > 0 rejects uploads while that many builds are queued or running.
	MaxQueueDepth int64
}

type UploadResult struct {
	Message string    `json:"message"`
	VideoID uuid.UUID `json:"video_id"`
}

type IntakeService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error)
}

type intakeService struct {
	db      *gorm.DB
	log     *logger.Logger
	videos  mediarepo.VideoRepo
	items   mediarepo.DerivationItemRepo
	jobs    JobService
	tools   localmedia.Tools
	store   *mediastore.Store
	events  bus.Bus
	metrics *observability.Metrics
	cfg     IntakeConfig
}

func NewIntakeService(
	db *gorm.DB,
	baseLog *logger.Logger,
	videos mediarepo.VideoRepo,
	items mediarepo.DerivationItemRepo,
	jobs JobService,
	tools localmedia.Tools,
	store *mediastore.Store,
	events bus.Bus,
	metrics *observability.Metrics,
	cfg IntakeConfig,
) IntakeService {
	return &intakeService{
		db:      db,
		log:     baseLog.With("service", "IntakeService"),
		videos:  videos,
		items:   items,
		jobs:    jobs,
		tools:   tools,
		store:   store,
		events:  events,
		metrics: metrics,
		cfg:     cfg,
	}
}

func (s *intakeService) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	ctx = ctxutil.Default(ctx)
	res, err := s.upload(ctx, filename, r)
	s.metrics.IncUpload(uploadResultLabel(err))
	return res, err
}

func (s *intakeService) upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	name, err := mediastore.NormalizeUploadName(filename)
	if err != nil {
		return nil, err
	}

	if s.cfg.MaxQueueDepth > 0 {
		active, err := s.jobs.CountActive(dbctx.Context{Ctx: ctx}, rendition_build.JobType)
		if err != nil {
			return nil, fmt.Errorf("count active builds: %w", err)
		}
		if active >= s.cfg.MaxQueueDepth {
			s.log.Warn("upload rejected, queue full", "active", active, "max", s.cfg.MaxQueueDepth)
			return nil, types.ErrBusy
		}
	}

	rel := mediastore.UploadPath(name)
	size, err := s.store.CreateExclusive(rel, r, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	// The stored bytes stay on disk when probing fails.
	probe, err := s.tools.Probe(ctx, s.store.Abs(rel))
	if err != nil {
		s.log.Warn("probe failed", "file", rel, "error", err)
		return nil, fmt.Errorf("%w: %v", types.ErrMetadata, err)
	}
	if probe.Size > 0 {
		size = probe.Size
	}

	video := &types.Video{
		ID:       uuid.New(),
		Filename: name,
		FilePath: rel,
		Duration: probe.Duration,
		Size:     size,
		Width:    probe.Width,
		Height:   probe.Height,
		Status:   types.VideoStatusProcessing,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.videos.Create(dbc, video); err != nil {
			return err
		}
		if _, err := s.items.Create(dbc, types.PendingItems(video.ID)); err != nil {
			return fmt.Errorf("create derivation items: %w", err)
		}
		if _, err := s.jobs.Enqueue(dbc, rendition_build.JobType, "video", &video.ID, map[string]any{
			"video_id": video.ID.String(),
		}); err != nil {
			return fmt.Errorf("enqueue rendition build: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrDuplicateFile) {
			_ = s.store.Remove(rel)
		}
		return nil, err
	}

	s.jobs.Wake()
	if err := s.events.Publish(ctx, realtime.VideoEvent(realtime.SSEEventVideoAccepted, realtime.VideoEventData{
		VideoID:  video.ID,
		Filename: video.Filename,
		Status:   string(video.Status),
		Outcome:  string(types.OutcomeProcessing),
	})); err != nil {
		s.log.Warn("publish event failed", "event", realtime.SSEEventVideoAccepted, "video_id", video.ID, "error", err)
	}
	s.log.Info("upload accepted", "video_id", video.ID, "file", rel, "size", size, "duration", probe.Duration)

	return &UploadResult{Message: UploadAcceptedMessage, VideoID: video.ID}, nil
}

func uploadResultLabel(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, types.ErrDuplicateFile):
		return "duplicate"
	case errors.Is(err, types.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, types.ErrUploadTooLarge):
		return "too_large"
	case errors.Is(err, types.ErrMetadata):
		return "metadata"
	case errors.Is(err, types.ErrBusy):
		return "busy"
	default:
		return "error"
	}
}
