package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusRunning   ItemStatus = "running"
	ItemStatusSucceeded ItemStatus = "succeeded"
	ItemStatusFailed    ItemStatus = "failed"
)

// DerivationItem tracks one quality of one video through the rendition build.
type DerivationItem struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_derivation_item_video_quality,priority:1" json:"video_id"`
	Quality     Quality    `gorm:"type:text;not null;uniqueIndex:idx_derivation_item_video_quality,priority:2" json:"quality"`
	Status      ItemStatus `gorm:"type:text;not null;index" json:"status"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	FailureKind string     `gorm:"column:failure_kind;type:text;not null;default:''" json:"failure_kind,omitempty"`
	Error       string     `gorm:"type:text;not null;default:''" json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (DerivationItem) TableName() string { return "derivation_item" }

func (d *DerivationItem) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = ItemStatusPending
	}
	return nil
}

func (d *DerivationItem) Resolved() bool {
	return d != nil && (d.Status == ItemStatusSucceeded || d.Status == ItemStatusFailed)
}

// PendingItems returns one pending item per quality in the build ladder.
func PendingItems(videoID uuid.UUID) []*DerivationItem {
	out := make([]*DerivationItem, 0, len(Qualities))
	for _, q := range Qualities {
		out = append(out, &DerivationItem{VideoID: videoID, Quality: q, Status: ItemStatusPending})
	}
	return out
}
