package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/mediaforge-backend/internal/domain/jobs"
	"github.com/yungbote/mediaforge-backend/internal/domain/media"
)

// AutoMigrateAll creates parents before children so foreign keys resolve.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Media
		&media.Video{},
		&media.Rendition{},
		&media.Trim{},
		&media.DerivationItem{},

		// Jobs / worker
		&jobs.JobRun{},
	)
}
