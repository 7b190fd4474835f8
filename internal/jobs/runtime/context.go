package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/mediaforge-backend/internal/data/repos/jobs"
	types "github.com/yungbote/mediaforge-backend/internal/domain/jobs"
	"github.com/yungbote/mediaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
)

/*
Context is the execution handle for a single claimed job run. Handlers never
touch job_run directly; progress and the terminal state go through Progress,
Fail and Succeed so the row and the in-memory copy stay in step.
*/
type Context struct {
	Ctx  context.Context
	DB   *gorm.DB
	Job  *types.JobRun
	Repo jobrepo.JobRunRepo

	payload map[string]any
}

// NewContext decodes the payload eagerly and restores the trace data the
// enqueuing request stored in it.
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo jobrepo.JobRunRepo) *Context {
	c := &Context{
		Ctx:  ctxutil.Default(ctx),
		DB:   db,
		Job:  job,
		Repo: repo,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	td := &ctxutil.TraceData{
		TraceID:   c.PayloadString("trace_id"),
		RequestID: c.PayloadString("request_id"),
		VideoID:   c.PayloadString("video_id"),
	}
	if td.TraceID == "" && td.RequestID == "" && td.VideoID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, td)
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := c.PayloadString(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *Context) jobID() uuid.UUID {
	if c == nil || c.Job == nil {
		return uuid.Nil
	}
	return c.Job.ID
}

// Progress records a non-terminal stage and doubles as a heartbeat. Finished
// rows are left untouched.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	if c.Repo != nil && c.jobID() != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.Ctx}, c.jobID(), []string{types.StatusSucceeded, types.StatusFailed}, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
}

// Fail marks the run failed. The worker may claim it again once the retry
// delay has passed and attempts remain.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if c.Repo != nil && c.jobID() != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: context.WithoutCancel(c.Ctx)}, c.jobID(), []string{types.StatusSucceeded}, map[string]interface{}{
			"status":        types.StatusFailed,
			"stage":         stage,
			"message":       "",
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Status = types.StatusFailed
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
}

// Succeed marks the run succeeded and stores result as JSON.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	if c.Repo != nil && c.jobID() != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: context.WithoutCancel(c.Ctx)}, c.jobID(), []string{types.StatusSucceeded}, map[string]interface{}{
			"status":       types.StatusSucceeded,
			"stage":        finalStage,
			"progress":     100,
			"message":      "",
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Status = types.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
}

// Finished reports whether the handler already recorded a terminal state.
func (c *Context) Finished() bool {
	return c != nil && c.Job.Terminal()
}
