package media

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

type TrimRepo interface {
	Upsert(dbc dbctx.Context, trim *types.Trim) (*types.Trim, error)
	ListByVideo(dbc dbctx.Context, videoID uuid.UUID) ([]*types.Trim, error)
}

type trimRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrimRepo(db *gorm.DB, baseLog *logger.Logger) TrimRepo {
	return &trimRepo{
		db:  db,
		log: baseLog.With("repo", "TrimRepo"),
	}
}

// Upsert records a trim keyed by its output path. Trimming the same bounds
// twice overwrites the file on disk, so it refreshes the same row.
func (r *trimRepo) Upsert(dbc dbctx.Context, trim *types.Trim) (*types.Trim, error) {
	if trim == nil {
		return nil, fmt.Errorf("nil trim")
	}
	now := time.Now().UTC()
	if trim.ID == uuid.Nil {
		trim.ID = uuid.New()
	}
	if trim.CreatedAt.IsZero() {
		trim.CreatedAt = now
	}
	trim.UpdatedAt = now
	if err := dbc.Handle(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_path"}},
			DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time", "updated_at"}),
		}).
		Create(trim).Error; err != nil {
		return nil, err
	}
	return trim, nil
}

func (r *trimRepo) ListByVideo(dbc dbctx.Context, videoID uuid.UUID) ([]*types.Trim, error) {
	var out []*types.Trim
	if videoID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Handle(r.db).
		Where("video_id = ?", videoID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
