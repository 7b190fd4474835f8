package media

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

// ItemOutcome is the terminal state written for one quality.
type ItemOutcome struct {
	Quality     types.Quality
	Status      types.ItemStatus
	Attempts    int
	FailureKind string
	Error       string
	FinishedAt  time.Time
}

type DerivationItemRepo interface {
	Create(dbc dbctx.Context, items []*types.DerivationItem) ([]*types.DerivationItem, error)
	ListByVideo(dbc dbctx.Context, videoID uuid.UUID) ([]*types.DerivationItem, error)
	MarkRunning(dbc dbctx.Context, videoID uuid.UUID, quality types.Quality, at time.Time) error
	Finish(dbc dbctx.Context, videoID uuid.UUID, outcome ItemOutcome) error
}

type derivationItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDerivationItemRepo(db *gorm.DB, baseLog *logger.Logger) DerivationItemRepo {
	return &derivationItemRepo{
		db:  db,
		log: baseLog.With("repo", "DerivationItemRepo"),
	}
}

func (r *derivationItemRepo) Create(dbc dbctx.Context, items []*types.DerivationItem) ([]*types.DerivationItem, error) {
	if len(items) == 0 {
		return []*types.DerivationItem{}, nil
	}
	if err := dbc.Handle(r.db).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListByVideo returns items in ladder order (1080p first).
func (r *derivationItemRepo) ListByVideo(dbc dbctx.Context, videoID uuid.UUID) ([]*types.DerivationItem, error) {
	var out []*types.DerivationItem
	if videoID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Handle(r.db).
		Where("video_id = ?", videoID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		hi, _ := out[i].Quality.Height()
		hj, _ := out[j].Quality.Height()
		return hi > hj
	})
	return out, nil
}

// MarkRunning moves a pending item to running. Items already resolved are
// left alone.
func (r *derivationItemRepo) MarkRunning(dbc dbctx.Context, videoID uuid.UUID, quality types.Quality, at time.Time) error {
	return dbc.Handle(r.db).
		Model(&types.DerivationItem{}).
		Where("video_id = ? AND quality = ? AND status IN ?", videoID, quality,
			[]types.ItemStatus{types.ItemStatusPending, types.ItemStatusRunning}).
		Updates(map[string]interface{}{
			"status":     types.ItemStatusRunning,
			"started_at": at,
			"updated_at": at,
		}).Error
}

func (r *derivationItemRepo) Finish(dbc dbctx.Context, videoID uuid.UUID, outcome ItemOutcome) error {
	at := outcome.FinishedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return dbc.Handle(r.db).
		Model(&types.DerivationItem{}).
		Where("video_id = ? AND quality = ?", videoID, outcome.Quality).
		Updates(map[string]interface{}{
			"status":       outcome.Status,
			"attempts":     outcome.Attempts,
			"failure_kind": outcome.FailureKind,
			"error":        outcome.Error,
			"finished_at":  at,
			"updated_at":   at,
		}).Error
}
