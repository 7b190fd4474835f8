package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	mediarepo "github.com/yungbote/mediaforge-backend/internal/data/repos/media"
	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/observability"
	"github.com/yungbote/mediaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/platform/localmedia"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/platform/mediastore"
)

const (
	EditTrim        = "trim"
	EditTextOverlay = "text_overlay"
	EditWatermark   = "watermark"
)

type EditConfig struct {
	// FontPath is optional; the engine default font is used when empty.
	FontPath      string
	WatermarkPath string
}

// EditResult is a produced file. Path is absolute, RelPath is relative to
// the media root.
type EditResult struct {
	Path    string
	RelPath string
	Name    string
}

type EditService interface {
	Trim(ctx context.Context, videoID uuid.UUID, start, end float64) (*EditResult, error)
	OverlayText(ctx context.Context, videoID uuid.UUID, text string, start, end float64) (*EditResult, error)
	Watermark(ctx context.Context, videoID uuid.UUID) (*EditResult, error)
}

type editService struct {
	db      *gorm.DB
	log     *logger.Logger
	videos  mediarepo.VideoRepo
	trims   mediarepo.TrimRepo
	tools   localmedia.Tools
	store   *mediastore.Store
	metrics *observability.Metrics
	cfg     EditConfig
}

func NewEditService(
	db *gorm.DB,
	baseLog *logger.Logger,
	videos mediarepo.VideoRepo,
	trims mediarepo.TrimRepo,
	tools localmedia.Tools,
	store *mediastore.Store,
	metrics *observability.Metrics,
	cfg EditConfig,
) EditService {
	return &editService{
		db:      db,
		log:     baseLog.With("service", "EditService"),
		videos:  videos,
		trims:   trims,
		tools:   tools,
		store:   store,
		metrics: metrics,
		cfg:     cfg,
	}
}

func (s *editService) Trim(ctx context.Context, videoID uuid.UUID, start, end float64) (res *EditResult, err error) {
	defer func() { s.metrics.IncEdit(EditTrim, editStatus(err)) }()
	ctx = ctxutil.WithVideoID(ctxutil.Default(ctx), videoID.String())
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	video, err := s.source(ctx, videoID)
	if err != nil {
		return nil, err
	}
	rel := mediastore.TrimPath(video.FilePath, start, end)
	if _, err := s.tools.Trim(ctx, s.store.Abs(video.FilePath), s.store.Abs(rel), start, end); err != nil {
		return nil, s.transformError(EditTrim, videoID, err)
	}
	if _, err := s.trims.Upsert(dbctx.Context{Ctx: ctx}, &types.Trim{
		VideoID:   video.ID,
		FilePath:  rel,
		StartTime: start,
		EndTime:   end,
	}); err != nil {
		return nil, fmt.Errorf("record trim: %w", err)
	}
	s.log.Info("trim produced", "video_id", videoID, "file", rel, "start", start, "end", end)
	return s.result(rel), nil
}

func (s *editService) OverlayText(ctx context.Context, videoID uuid.UUID, text string, start, end float64) (res *EditResult, err error) {
	defer func() { s.metrics.IncEdit(EditTextOverlay, editStatus(err)) }()
	ctx = ctxutil.WithVideoID(ctxutil.Default(ctx), videoID.String())
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", types.ErrInvalidArgument)
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	video, err := s.source(ctx, videoID)
	if err != nil {
		return nil, err
	}
	rel := mediastore.TextOverlayPath(video.FilePath, video.ID, text, start, end)
	overlay := localmedia.TextOverlay{Text: text, Start: start, End: end, FontPath: s.cfg.FontPath}
	if _, err := s.tools.OverlayText(ctx, s.store.Abs(video.FilePath), s.store.Abs(rel), overlay); err != nil {
		return nil, s.transformError(EditTextOverlay, videoID, err)
	}
	s.log.Info("text overlay produced", "video_id", videoID, "file", rel)
	return s.result(rel), nil
}

func (s *editService) Watermark(ctx context.Context, videoID uuid.UUID) (res *EditResult, err error) {
	defer func() { s.metrics.IncEdit(EditWatermark, editStatus(err)) }()
	ctx = ctxutil.WithVideoID(ctxutil.Default(ctx), videoID.String())
	asset := strings.TrimSpace(s.cfg.WatermarkPath)
	if asset == "" {
		return nil, fmt.Errorf("%w: no watermark configured", types.ErrAssetMissing)
	}
	if info, statErr := os.Stat(asset); statErr != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", types.ErrAssetMissing, asset)
	}
	video, err := s.source(ctx, videoID)
	if err != nil {
		return nil, err
	}
	rel := mediastore.WatermarkedPath(video.FilePath)
	if _, err := s.tools.OverlayWatermark(ctx, s.store.Abs(video.FilePath), s.store.Abs(rel), asset); err != nil {
		return nil, s.transformError(EditWatermark, videoID, err)
	}
	s.log.Info("watermark produced", "video_id", videoID, "file", rel)
	return s.result(rel), nil
}

// source loads the video and checks its uploaded file is still on disk.
func (s *editService) source(ctx context.Context, videoID uuid.UUID) (*types.Video, error) {
	video, err := s.videos.GetByID(dbctx.Context{Ctx: ctx}, videoID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, videoID)
	}
	if !s.store.Exists(video.FilePath) {
		return nil, fmt.Errorf("%w: %s", types.ErrFileMissing, video.FilePath)
	}
	return video, nil
}

func (s *editService) result(rel string) *EditResult {
	return &EditResult{Path: s.store.Abs(rel), RelPath: rel, Name: path.Base(rel)}
}

// transformError keeps adapter failures typed; anything else is reported as
// a transform failure.
func (s *editService) transformError(op string, videoID uuid.UUID, err error) error {
	s.log.Warn("edit failed", "op", op, "video_id", videoID, "error", err)
	if _, ok := localmedia.AsFailure(err); ok {
		return err
	}
	return fmt.Errorf("%w: %v", types.ErrTransformFailure, err)
}

func validateRange(start, end float64) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: need end_time > start_time >= 0 (got %g, %g)", types.ErrInvalidArgument, start, end)
	}
	return nil
}

func editStatus(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, types.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrFileMissing), errors.Is(err, types.ErrAssetMissing):
		return "missing"
	default:
		return "failed"
	}
}
