package services

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	mediarepo "github.com/yungbote/mediaforge-backend/internal/data/repos/media"
	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/jobs/pipeline/rendition_build"
	"github.com/yungbote/mediaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/platform/gcp"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/platform/mediastore"
	"github.com/yungbote/mediaforge-backend/internal/realtime"
	"github.com/yungbote/mediaforge-backend/internal/realtime/bus"
)

type VideoSummary struct {
	ID         uuid.UUID         `json:"id"`
	Filename   string            `json:"filename"`
	Duration   float64           `json:"duration"`
	Size       int64             `json:"size"`
	UploadTime time.Time         `json:"upload_time"`
	Status     types.VideoStatus `json:"status"`
}

type VideoDetail struct {
	*types.Video
	Outcome    types.Outcome           `json:"outcome"`
	Items      []*types.DerivationItem `json:"items"`
	Renditions []*types.Rendition      `json:"renditions"`
	Trims      []*types.Trim           `json:"trims"`
	Job        *JobSummary             `json:"job,omitempty"`
}

// JobSummary is the latest rendition build run of a video. It is absent once
// the job row is gone.
type JobSummary struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RenditionFile is a resolved download target.
type RenditionFile struct {
	Path    string
	Name    string
	Quality types.Quality
}

type ReadinessService interface {
	ListVideos(ctx context.Context) ([]VideoSummary, error)
	GetVideo(ctx context.Context, id uuid.UUID) (*VideoDetail, error)
	ResolveRendition(ctx context.Context, id uuid.UUID, quality string) (*RenditionFile, error)
	DeleteVideo(ctx context.Context, id uuid.UUID) error
}

type readinessService struct {
	db         *gorm.DB
	log        *logger.Logger
	videos     mediarepo.VideoRepo
	renditions mediarepo.RenditionRepo
	trims      mediarepo.TrimRepo
	items      mediarepo.DerivationItemRepo
	jobs       JobService
	store      *mediastore.Store
	mirror     gcp.BucketService
	events     bus.Bus
}

// NewReadinessService accepts a nil mirror.
func NewReadinessService(
	db *gorm.DB,
	baseLog *logger.Logger,
	videos mediarepo.VideoRepo,
	renditions mediarepo.RenditionRepo,
	trims mediarepo.TrimRepo,
	items mediarepo.DerivationItemRepo,
	jobs JobService,
	store *mediastore.Store,
	mirror gcp.BucketService,
	events bus.Bus,
) ReadinessService {
	return &readinessService{
		db:         db,
		log:        baseLog.With("service", "ReadinessService"),
		videos:     videos,
		renditions: renditions,
		trims:      trims,
		items:      items,
		jobs:       jobs,
		store:      store,
		mirror:     mirror,
		events:     events,
	}
}

func (s *readinessService) ListVideos(ctx context.Context) ([]VideoSummary, error) {
	rows, err := s.videos.List(dbctx.Context{Ctx: ctxutil.Default(ctx)})
	if err != nil {
		return nil, err
	}
	out := make([]VideoSummary, 0, len(rows))
	for _, v := range rows {
		out = append(out, VideoSummary{
			ID:         v.ID,
			Filename:   v.Filename,
			Duration:   v.Duration,
			Size:       v.Size,
			UploadTime: v.CreatedAt,
			Status:     v.Status,
		})
	}
	return out, nil
}

func (s *readinessService) GetVideo(ctx context.Context, id uuid.UUID) (*VideoDetail, error) {
	dbc := dbctx.Context{Ctx: ctxutil.Default(ctx)}
	video, err := s.requireVideo(dbc, id)
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListByVideo(dbc, id)
	if err != nil {
		return nil, err
	}
	renditions, err := s.renditions.ListByVideo(dbc, id)
	if err != nil {
		return nil, err
	}
	trims, err := s.trims.ListByVideo(dbc, id)
	if err != nil {
		return nil, err
	}
	detail := &VideoDetail{
		Video:      video,
		Outcome:    types.DeriveOutcome(video, items),
		Items:      items,
		Renditions: renditions,
		Trims:      trims,
	}
	job, err := s.jobs.LatestForEntity(dbc, "video", id, rendition_build.JobType)
	if err != nil {
		return nil, err
	}
	if job != nil {
		detail.Job = &JobSummary{
			ID:        job.ID,
			Status:    job.Status,
			Stage:     job.Stage,
			Attempts:  job.Attempts,
			Error:     job.Error,
			UpdatedAt: job.UpdatedAt,
		}
	}
	return detail, nil
}

// ResolveRendition checks, in order: the video exists, it is complete, the
// quality label is known, a rendition row exists, its file is on disk.
func (s *readinessService) ResolveRendition(ctx context.Context, id uuid.UUID, quality string) (*RenditionFile, error) {
	dbc := dbctx.Context{Ctx: ctxutil.Default(ctx)}
	video, err := s.requireVideo(dbc, id)
	if err != nil {
		return nil, err
	}
	if !video.IsComplete() {
		return nil, types.ErrNotReady
	}
	q, err := types.ParseQuality(quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownQuality, quality)
	}
	r, err := s.renditions.Get(dbc, id, q)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrRenditionMissing, q)
	}
	if !s.store.Exists(r.FilePath) {
		s.log.Warn("rendition file missing", "video_id", id, "quality", q, "file", r.FilePath)
		return nil, fmt.Errorf("%w: %s", types.ErrFileMissing, r.FilePath)
	}
	return &RenditionFile{
		Path:    s.store.Abs(r.FilePath),
		Name:    path.Base(r.FilePath),
		Quality: q,
	}, nil
}

// DeleteVideo refuses videos that are still processing. Rows go in one
// transaction; files and mirrored objects are removed afterwards and their
// failures are only logged.
func (s *readinessService) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	video, err := s.requireVideo(dbc, id)
	if err != nil {
		return err
	}
	if !video.IsComplete() {
		return types.ErrVideoBusy
	}
	renditions, err := s.renditions.ListByVideo(dbc, id)
	if err != nil {
		return err
	}
	trims, err := s.trims.ListByVideo(dbc, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.videos.Delete(txc, id); err != nil {
			return err
		}
		return s.jobs.DeleteForEntity(txc, "video", id)
	})
	if err != nil {
		return err
	}

	files := []string{video.FilePath, mediastore.WatermarkedPath(video.FilePath)}
	for _, r := range renditions {
		files = append(files, r.FilePath)
	}
	for _, t := range trims {
		files = append(files, t.FilePath)
	}
	files = append(files, s.textOverlays(video)...)
	if err := s.store.Remove(files...); err != nil {
		s.log.Warn("remove video files failed", "video_id", id, "error", err)
	}
	if s.mirror != nil {
		for _, r := range renditions {
			if r.MirrorURL == "" {
				continue
			}
			if err := s.mirror.DeleteFile(dbc, r.FilePath); err != nil {
				s.log.Warn("remove mirrored rendition failed", "video_id", id, "key", r.FilePath, "error", err)
			}
		}
	}

	if err := s.events.Publish(ctx, realtime.VideoEvent(realtime.SSEEventVideoDeleted, realtime.VideoEventData{
		VideoID:  id,
		Filename: video.Filename,
	})); err != nil {
		s.log.Warn("publish event failed", "event", realtime.SSEEventVideoDeleted, "video_id", id, "error", err)
	}
	s.log.Info("video deleted", "video_id", id, "files", len(files))
	return nil
}

func (s *readinessService) requireVideo(dbc dbctx.Context, id uuid.UUID) (*types.Video, error) {
	video, err := s.videos.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	return video, nil
}

// textOverlays lists the overlay outputs of one video. Their names carry a
// request hash, so they are found by listing the edits dir.
func (s *readinessService) textOverlays(video *types.Video) []string {
	entries, err := os.ReadDir(s.store.Abs(mediastore.EditsDir))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !mediastore.IsTextOverlayOf(e.Name(), video.FilePath, video.ID) {
			continue
		}
		out = append(out, path.Join(mediastore.EditsDir, e.Name()))
	}
	return out
}
