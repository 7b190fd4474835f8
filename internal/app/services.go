package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/mediaforge-backend/internal/jobs/pipeline/rendition_build"
	"github.com/yungbote/mediaforge-backend/internal/jobs/runtime"
	"github.com/yungbote/mediaforge-backend/internal/jobs/worker"
	"github.com/yungbote/mediaforge-backend/internal/observability"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/services"
)

type Services struct {
	Jobs      services.JobService
	Intake    services.IntakeService
	Readiness services.ReadinessService
	Edits     services.EditService

	// Worker is nil when this process does not run jobs.
	Worker *worker.Worker
}

func wireRegistry(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (*runtime.Registry, error) {
	reg := runtime.NewRegistry()
	renditions := rendition_build.New(
		db,
		log,
		repos.Videos,
		repos.Renditions,
		repos.Items,
		clients.Tools,
		clients.Store,
		clients.Mirror,
		clients.Events,
		metrics,
		rendition_build.Config{
			TranscodeTimeout:  cfg.Jobs.TranscodeTimeout,
			TranscodeRetries:  cfg.Jobs.TranscodeRetries,
			RetryBackoff:      cfg.Jobs.RetryBackoff,
			ParallelQualities: cfg.Jobs.ParallelQualities,
		},
	)
	if err := reg.Register(renditions); err != nil {
		return nil, fmt.Errorf("register %s: %w", rendition_build.JobType, err)
	}
	return reg, nil
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	var (
		w     *worker.Worker
		waker services.JobWaker
	)
	if cfg.RunWorker {
		reg, err := wireRegistry(db, log, cfg, repos, clients, metrics)
		if err != nil {
			return Services{}, err
		}
		w = worker.NewWorker(db, log, repos.JobRuns, reg, metrics, worker.Config{
			Concurrency:    cfg.Jobs.Concurrency,
			PollInterval:   cfg.Jobs.PollInterval,
			MaxAttempts:    cfg.Jobs.MaxAttempts,
			RetryDelay:     cfg.Jobs.RetryDelay,
			StaleAfter:     cfg.Jobs.StaleAfter,
			HeartbeatEvery: cfg.Jobs.HeartbeatEvery,
		})
		waker = w
	}

	jobs := services.NewJobService(log, repos.JobRuns, waker)
	intake := services.NewIntakeService(
		db,
		log,
		repos.Videos,
		repos.Items,
		jobs,
		clients.Tools,
		clients.Store,
		clients.Events,
		metrics,
		services.IntakeConfig{
			MaxUploadBytes: cfg.Media.MaxUploadBytes,
			MaxQueueDepth:  cfg.Media.MaxQueueDepth,
		},
	)
	readiness := services.NewReadinessService(
		db,
		log,
		repos.Videos,
		repos.Renditions,
		repos.Trims,
		repos.Items,
		jobs,
		clients.Store,
		clients.Mirror,
		clients.Events,
	)
	edits := services.NewEditService(
		db,
		log,
		repos.Videos,
		repos.Trims,
		clients.Tools,
		clients.Store,
		metrics,
		services.EditConfig{
			FontPath:      cfg.Media.FontPath,
			WatermarkPath: cfg.Media.WatermarkPath,
		},
	)

	return Services{
		Jobs:      jobs,
		Intake:    intake,
		Readiness: readiness,
		Edits:     edits,
		Worker:    w,
	}, nil
}
