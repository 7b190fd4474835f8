package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/mediaforge-backend/internal/http/response"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/services"
)

type EditHandler struct {
	log   *logger.Logger
	edits services.EditService
}

func NewEditHandler(log *logger.Logger, edits services.EditService) *EditHandler {
	return &EditHandler{log: log.With("handler", "EditHandler"), edits: edits}
}

type trimRequest struct {
	VideoID   uuid.UUID `json:"video_id" binding:"required"`
	StartTime float64   `json:"start_time"`
	EndTime   float64   `json:"end_time"`
}

type textOverlayRequest struct {
	VideoID   uuid.UUID `json:"video_id" binding:"required"`
	Text      string    `json:"text" binding:"required"`
	StartTime float64   `json:"start_time"`
	EndTime   float64   `json:"end_time"`
}

type watermarkRequest struct {
	VideoID uuid.UUID `json:"video_id" binding:"required"`
}

// POST /api/trim
func (h *EditHandler) Trim(c *gin.Context) {
	var req trimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.edits.Trim(c.Request.Context(), req.VideoID, req.StartTime, req.EndTime)
	if err != nil {
		respondMediaError(c, err)
		return
	}
	serveVideoFile(c, res.Path, res.Name)
}

// POST /api/overlay/text
func (h *EditHandler) OverlayText(c *gin.Context) {
	var req textOverlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.edits.OverlayText(c.Request.Context(), req.VideoID, req.Text, req.StartTime, req.EndTime)
	if err != nil {
		respondMediaError(c, err)
		return
	}
	serveVideoFile(c, res.Path, res.Name)
}

// POST /api/overlay/watermark
func (h *EditHandler) Watermark(c *gin.Context) {
	var req watermarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.edits.Watermark(c.Request.Context(), req.VideoID)
	if err != nil {
		respondMediaError(c, err)
		return
	}
	serveVideoFile(c, res.Path, res.Name)
}
