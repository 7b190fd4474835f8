package rendition_build

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	mediarepo "github.com/yungbote/mediaforge-backend/internal/data/repos/media"
	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	jobrt "github.com/yungbote/mediaforge-backend/internal/jobs/runtime"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/platform/localmedia"
	"github.com/yungbote/mediaforge-backend/internal/platform/mediastore"
	"github.com/yungbote/mediaforge-backend/internal/realtime"
)

const maxItemErrorBytes = 4000

// transcodeOne runs one quality to a final outcome. Only transient failures
// are retried; each attempt gets its own deadline.
func (p *Pipeline) transcodeOne(jc *jobrt.Context, video *types.Video, q types.Quality) qualityResult {
	log := p.log.With("video_id", video.ID, "quality", q)
	dbc := dbctx.Context{Ctx: jc.Ctx}
	rel := mediastore.RenditionPath(video.FilePath, q)
	res := qualityResult{quality: q, outcome: mediarepo.ItemOutcome{Quality: q}}

	if err := p.items.MarkRunning(dbc, video.ID, q, time.Now().UTC()); err != nil {
		log.Warn("mark item running failed", "error", err)
	}
	p.publish(jc, realtime.SSEEventRenditionStarted, realtime.VideoEventData{VideoID: video.ID, Quality: string(q)})

	start := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		res.outcome.Attempts = attempt
		ctx, cancel := context.WithTimeout(jc.Ctx, p.cfg.TranscodeTimeout)
		_, err := p.tools.TranscodeQuality(ctx, p.store.Abs(video.FilePath), p.store.Abs(rel), q)
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		f, ok := localmedia.AsFailure(err)
		if !ok || !f.Transient || attempt > p.cfg.TranscodeRetries || jc.Ctx.Err() != nil {
			break
		}
		log.Warn("transient transcode failure, retrying", "attempt", attempt, "error", err)
		select {
		case <-jc.Ctx.Done():
		case <-time.After(p.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}

	if lastErr != nil {
		kind := "permanent"
		if f, ok := localmedia.AsFailure(lastErr); ok {
			kind = f.Class()
		}
		res.outcome.Status = types.ItemStatusFailed
		res.outcome.FailureKind = kind
		res.outcome.Error = truncate(lastErr.Error(), maxItemErrorBytes)
		log.Warn("transcode failed", "failure_kind", kind, "attempts", res.outcome.Attempts, "error", lastErr)
		p.metrics.ObserveTranscode(string(q), string(types.ItemStatusFailed), kind, time.Since(start))
		return res
	}

	height, _ := q.Height()
	size, err := p.store.Size(rel)
	if err != nil {
		log.Warn("stat rendition failed", "error", err)
	}
	res.rendition = &types.Rendition{
		VideoID:   video.ID,
		Quality:   q,
		FilePath:  rel,
		Height:    height,
		Size:      size,
		MirrorURL: p.mirrorRendition(jc, rel),
	}
	res.outcome.Status = types.ItemStatusSucceeded
	p.metrics.ObserveTranscode(string(q), string(types.ItemStatusSucceeded), "", time.Since(start))
	return res
}

// mirrorRendition copies the rendition to object storage when configured.
// A failed mirror only costs the URL.
func (p *Pipeline) mirrorRendition(jc *jobrt.Context, rel string) string {
	if p.mirror == nil {
		return ""
	}
	if err := p.mirror.UploadLocalFile(dbctx.Context{Ctx: jc.Ctx}, rel, p.store.Abs(rel)); err != nil {
		p.log.Warn("mirror upload failed", "key", rel, "error", err)
		return ""
	}
	return p.mirror.GetPublicURL(rel)
}

// truncate cuts s to at most n bytes on a rune boundary. Item errors land in
// text columns, so the result is always valid UTF-8.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
