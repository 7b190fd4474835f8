package app

import (
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/mediaforge-backend/internal/data/repos/jobs"
	mediarepo "github.com/yungbote/mediaforge-backend/internal/data/repos/media"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

type Repos struct {
	Videos     mediarepo.VideoRepo
	Renditions mediarepo.RenditionRepo
	Trims      mediarepo.TrimRepo
	Items      mediarepo.DerivationItemRepo
	JobRuns    jobrepo.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Videos:     mediarepo.NewVideoRepo(db, log),
		Renditions: mediarepo.NewRenditionRepo(db, log),
		Trims:      mediarepo.NewTrimRepo(db, log),
		Items:      mediarepo.NewDerivationItemRepo(db, log),
		JobRuns:    jobrepo.NewJobRunRepo(db, log),
	}
}
