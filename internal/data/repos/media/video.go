package media

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

type VideoRepo interface {
	Create(dbc dbctx.Context, video *types.Video) (*types.Video, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Video, error)
	List(dbc dbctx.Context) ([]*types.Video, error)
	MarkComplete(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type videoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
	return &videoRepo{
		db:  db,
		log: baseLog.With("repo", "VideoRepo"),
	}
}

func (r *videoRepo) Create(dbc dbctx.Context, video *types.Video) (*types.Video, error) {
	if video == nil {
		return nil, fmt.Errorf("nil video")
	}
	if err := dbc.Handle(r.db).Create(video).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrDuplicateFile, video.FilePath)
		}
		return nil, err
	}
	return video, nil
}

// GetByID returns (nil, nil) when no row matches.
func (r *videoRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Video, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var v types.Video
	err := dbc.Handle(r.db).Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *videoRepo) List(dbc dbctx.Context) ([]*types.Video, error) {
	var out []*types.Video
	if err := dbc.Handle(r.db).
		Order("created_at DESC").
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkComplete flips processing -> complete. It reports false when the video
// was already complete or is gone; a complete video is never touched again.
func (r *videoRepo) MarkComplete(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := dbc.Handle(r.db).
		Model(&types.Video{}).
		Where("id = ? AND status = ?", id, types.VideoStatusProcessing).
		Updates(map[string]interface{}{
			"status":       types.VideoStatusComplete,
			"completed_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the video row. Child rows go with it through the ON DELETE
// CASCADE constraints; they are also removed explicitly so a database created
// without foreign keys ends in the same state.
func (r *videoRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	tx := dbc.Handle(r.db)
	for _, model := range []interface{}{&types.Rendition{}, &types.Trim{}, &types.DerivationItem{}} {
		if err := tx.Where("video_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	return tx.Where("id = ?", id).Delete(&types.Video{}).Error
}
