package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rendition is one successfully transcoded quality of a Video. Failed
// transcodes leave no row.
type Rendition struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_video_rendition_video_quality,priority:1" json:"video_id"`
	Quality   Quality   `gorm:"type:text;not null;uniqueIndex:idx_video_rendition_video_quality,priority:2" json:"quality"`
	FilePath  string    `gorm:"column:file_path;type:text;not null;uniqueIndex" json:"file_path"`
	Height    int       `gorm:"not null;default:0" json:"height"`
	Size      int64     `gorm:"not null;default:0" json:"size"`
	MirrorURL string    `gorm:"column:mirror_url;type:text;not null;default:''" json:"mirror_url,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Rendition) TableName() string { return "video_rendition" }

func (r *Rendition) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
