package media

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

type RenditionRepo interface {
	Upsert(dbc dbctx.Context, rows []*types.Rendition) error
	ListByVideo(dbc dbctx.Context, videoID uuid.UUID) ([]*types.Rendition, error)
	Get(dbc dbctx.Context, videoID uuid.UUID, quality types.Quality) (*types.Rendition, error)
}

type renditionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRenditionRepo(db *gorm.DB, baseLog *logger.Logger) RenditionRepo {
	return &renditionRepo{
		db:  db,
		log: baseLog.With("repo", "RenditionRepo"),
	}
}

// Upsert writes renditions keyed by (video_id, quality); a rebuild replaces
// the previous row for the same quality instead of adding a second one.
func (r *renditionRepo) Upsert(dbc dbctx.Context, rows []*types.Rendition) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		row.UpdatedAt = now
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
	}
	return dbc.Handle(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "video_id"}, {Name: "quality"}},
			DoUpdates: clause.AssignmentColumns([]string{"file_path", "height", "size", "mirror_url", "updated_at"}),
		}).
		Create(&rows).Error
}

func (r *renditionRepo) ListByVideo(dbc dbctx.Context, videoID uuid.UUID) ([]*types.Rendition, error) {
	var out []*types.Rendition
	if videoID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Handle(r.db).
		Where("video_id = ?", videoID).
		Order("height DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns (nil, nil) when the quality has no rendition.
func (r *renditionRepo) Get(dbc dbctx.Context, videoID uuid.UUID, quality types.Quality) (*types.Rendition, error) {
	var row types.Rendition
	err := dbc.Handle(r.db).
		Where("video_id = ? AND quality = ?", videoID, quality).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
