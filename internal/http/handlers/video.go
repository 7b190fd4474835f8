package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/mediaforge-backend/internal/http/response"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/services"
)

type VideoHandler struct {
	log       *logger.Logger
	intake    services.IntakeService
	readiness services.ReadinessService
}

func NewVideoHandler(log *logger.Logger, intake services.IntakeService, readiness services.ReadinessService) *VideoHandler {
	return &VideoHandler{
		log:       log.With("handler", "VideoHandler"),
		intake:    intake,
		readiness: readiness,
	}
}

// POST /api/upload
func (h *VideoHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()

	res, err := h.intake.Upload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		respondMediaError(c, err)
		return
	}
	response.RespondAccepted(c, res)
}

// GET /api/videos
func (h *VideoHandler) ListVideos(c *gin.Context) {
	videos, err := h.readiness.ListVideos(c.Request.Context())
	if err != nil {
		respondMediaError(c, err)
		return
	}
	response.RespondOK(c, videos)
}

// GET /api/videos/:id
func (h *VideoHandler) GetVideo(c *gin.Context) {
	id, ok := videoIDParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.readiness.GetVideo(c.Request.Context(), id)
	if err != nil {
		respondMediaError(c, err)
		return
	}
	response.RespondOK(c, detail)
}

// DELETE /api/videos/:id
func (h *VideoHandler) DeleteVideo(c *gin.Context) {
	id, ok := videoIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.readiness.DeleteVideo(c.Request.Context(), id); err != nil {
		respondMediaError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true, "video_id": id})
}

// GET /api/download/:video_id?quality=720p
func (h *VideoHandler) Download(c *gin.Context) {
	id, ok := videoIDParam(c, "video_id")
	if !ok {
		return
	}
	file, err := h.readiness.ResolveRendition(c.Request.Context(), id, c.Query("quality"))
	if err != nil {
		respondMediaError(c, err)
		return
	}
	serveVideoFile(c, file.Path, file.Name)
}

func videoIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_video_id", fmt.Errorf("invalid video id %q", c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

func serveVideoFile(c *gin.Context, path, name string) {
	c.Header("Content-Type", "video/mp4")
	c.FileAttachment(path, name)
}
