package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VideoStatus string

const (
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusComplete   VideoStatus = "complete"
)

// Video is an uploaded source file. Status moves processing -> complete once,
// when the rendition build for the video has attempted every quality.
type Video struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Filename    string      `gorm:"type:text;not null;index" json:"filename"`
	FilePath    string      `gorm:"column:file_path;type:text;not null;uniqueIndex" json:"file_path"`
	Duration    float64     `gorm:"not null;default:0" json:"duration"`
	Size        int64       `gorm:"not null;default:0" json:"size"`
	Width       int         `gorm:"not null;default:0" json:"width,omitempty"`
	Height      int         `gorm:"not null;default:0" json:"height,omitempty"`
	Status      VideoStatus `gorm:"type:text;not null;index" json:"status"`
	CompletedAt *time.Time  `gorm:"index" json:"completed_at,omitempty"`
	CreatedAt   time.Time   `gorm:"not null;index" json:"upload_time"`
	UpdatedAt   time.Time   `gorm:"not null" json:"updated_at"`

	Renditions []Rendition      `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
	Trims      []Trim           `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
	Items      []DerivationItem `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Video) TableName() string { return "video" }

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = VideoStatusProcessing
	}
	return nil
}

func (v *Video) IsComplete() bool { return v != nil && v.Status == VideoStatusComplete }
