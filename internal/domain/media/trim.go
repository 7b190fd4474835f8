package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Trim struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID   uuid.UUID `gorm:"type:uuid;not null;index" json:"video_id"`
	FilePath  string    `gorm:"column:file_path;type:text;not null;uniqueIndex" json:"file_path"`
	StartTime float64   `gorm:"not null" json:"start_time"`
	EndTime   float64   `gorm:"not null" json:"end_time"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Trim) TableName() string { return "video_trim" }

func (t *Trim) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
