package rendition_build

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	mediarepo "github.com/yungbote/mediaforge-backend/internal/data/repos/media"
	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	jobrt "github.com/yungbote/mediaforge-backend/internal/jobs/runtime"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/realtime"
)

var errMissingVideoID = errors.New("payload missing video_id")

// Run attempts every quality once (plus transient retries), then commits the
// renditions, the item outcomes and the video's move to complete in one
// transaction. Transcode failures never fail the job; database errors do,
// and the worker retries the run.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	videoID, ok := jc.PayloadUUID("video_id")
	if !ok {
		jc.Fail("validate", errMissingVideoID)
		return nil
	}
	log := p.log.With("video_id", videoID, "job_id", jc.Job.ID)
	dbc := dbctx.Context{Ctx: jc.Ctx}

	jc.Progress("load", 1, "Loading video")
	video, err := p.videos.GetByID(dbc, videoID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if video == nil {
		log.Warn("video not found, nothing to build")
		jc.Succeed("done", map[string]any{"skipped": "video_missing"})
		return nil
	}
	if video.IsComplete() {
		log.Info("video already complete, skipping")
		jc.Succeed("done", map[string]any{"skipped": "already_complete"})
		return nil
	}

	results := p.transcodeAll(jc, video)
	if err := jc.Ctx.Err(); err != nil {
		// Shutdown mid-build: leave the video processing so the run is retried.
		jc.Fail("transcode", err)
		return nil
	}

	jc.Progress("commit", 95, "Recording renditions")
	if err := p.commit(jc, video, results); err != nil {
		log.Error("commit failed", "error", err)
		jc.Fail("commit", err)
		return nil
	}

	succeeded, failed := []string{}, []string{}
	for _, r := range results {
		if r.rendition != nil {
			succeeded = append(succeeded, string(r.quality))
			p.publish(jc, realtime.SSEEventRenditionSucceeded, realtime.VideoEventData{
				VideoID: video.ID,
				Quality: string(r.quality),
			})
		} else {
			failed = append(failed, string(r.quality))
			p.publish(jc, realtime.SSEEventRenditionFailed, realtime.VideoEventData{
				VideoID:     video.ID,
				Quality:     string(r.quality),
				FailureKind: r.outcome.FailureKind,
				Error:       r.outcome.Error,
			})
		}
	}
	p.publish(jc, realtime.SSEEventVideoComplete, realtime.VideoEventData{
		VideoID:  video.ID,
		Filename: video.Filename,
		Status:   string(types.VideoStatusComplete),
		Outcome:  string(outcomeOf(results)),
	})

	log.Info("rendition build finished", "succeeded", succeeded, "failed", failed)
	jc.Succeed("done", map[string]any{
		"succeeded": succeeded,
		"failed":    failed,
	})
	return nil
}

func (p *Pipeline) transcodeAll(jc *jobrt.Context, video *types.Video) []qualityResult {
	results := make([]qualityResult, len(types.Qualities))

	var mu sync.Mutex
	finished := 0
	progress := func(q types.Quality, msg string) {
		mu.Lock()
		defer mu.Unlock()
		pct := 5 + finished*90/len(types.Qualities)
		jc.Progress("transcode_"+string(q), pct, msg)
	}
	done := func() {
		mu.Lock()
		finished++
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.ParallelQualities)
	for i, q := range types.Qualities {
		g.Go(func() error {
			progress(q, fmt.Sprintf("Transcoding %s", q))
			results[i] = p.transcodeOne(jc, video, q)
			done()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) commit(jc *jobrt.Context, video *types.Video, results []qualityResult) error {
	now := time.Now().UTC()
	rows := make([]*types.Rendition, 0, len(results))
	for _, r := range results {
		if r.rendition != nil {
			rows = append(rows, r.rendition)
		}
	}
	return p.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		if err := p.renditions.Upsert(txc, rows); err != nil {
			return fmt.Errorf("upsert renditions: %w", err)
		}
		for _, r := range results {
			out := r.outcome
			out.FinishedAt = now
			if err := p.items.Finish(txc, video.ID, out); err != nil {
				return fmt.Errorf("finish item %s: %w", r.quality, err)
			}
		}
		if _, err := p.videos.MarkComplete(txc, video.ID, now); err != nil {
			return fmt.Errorf("mark complete: %w", err)
		}
		return nil
	})
}

func (p *Pipeline) publish(jc *jobrt.Context, event realtime.SSEEvent, data realtime.VideoEventData) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(jc.Ctx, realtime.VideoEvent(event, data)); err != nil {
		p.log.Warn("publish event failed", "event", event, "video_id", data.VideoID, "error", err)
	}
}

func outcomeOf(results []qualityResult) types.Outcome {
	items := make([]*types.DerivationItem, 0, len(results))
	for _, r := range results {
		items = append(items, &types.DerivationItem{Quality: r.quality, Status: r.outcome.Status})
	}
	return types.DeriveOutcome(&types.Video{Status: types.VideoStatusComplete}, items)
}

type qualityResult struct {
	quality   types.Quality
	rendition *types.Rendition
	outcome   mediarepo.ItemOutcome
}
