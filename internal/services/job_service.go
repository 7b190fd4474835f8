package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobrepo "github.com/yungbote/mediaforge-backend/internal/data/repos/jobs"
	types "github.com/yungbote/mediaforge-backend/internal/domain/jobs"
	"github.com/yungbote/mediaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

// JobWaker is satisfied by the worker pool.
type JobWaker interface {
	Wake()
}

type JobService interface {
	// Enqueue inserts a queued run inside dbc's transaction when one is set.
	// Call Wake after the transaction commits.
	Enqueue(dbc dbctx.Context, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	LatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error)
	CountActive(dbc dbctx.Context, jobType string) (int64, error)
	DeleteForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID) error
	Wake()
}

type jobService struct {
	log   *logger.Logger
	repo  jobrepo.JobRunRepo
	waker JobWaker
}

func NewJobService(baseLog *logger.Logger, repo jobrepo.JobRunRepo, waker JobWaker) JobService {
	return &jobService{
		log:   baseLog.With("service", "JobService"),
		repo:  repo,
		waker: waker,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if dbc.Ctx != nil {
		if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
			if _, ok := payload["trace_id"]; !ok && td.TraceID != "" {
				payload["trace_id"] = td.TraceID
			}
			if _, ok := payload["request_id"]; !ok && td.RequestID != "" {
				payload["request_id"] = td.RequestID
			}
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:         uuid.New(),
		JobType:    jobType,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     types.StatusQueued,
		Stage:      types.StatusQueued,
		Payload:    datatypes.JSON(b),
		Result:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.repo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, err
	}
	s.log.Debug("job enqueued", "job_id", job.ID, "job_type", jobType, "entity_id", entityID)
	return job, nil
}

func (s *jobService) LatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	rows, err := s.repo.ListByEntity(dbc, entityType, entityID)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if jobType == "" || r.JobType == jobType {
			return r, nil
		}
	}
	return nil, nil
}

func (s *jobService) CountActive(dbc dbctx.Context, jobType string) (int64, error) {
	return s.repo.CountActive(dbc, jobType)
}

func (s *jobService) DeleteForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID) error {
	return s.repo.DeleteByEntity(dbc, entityType, entityID)
}

func (s *jobService) Wake() {
	if s.waker != nil {
		s.waker.Wake()
	}
}
