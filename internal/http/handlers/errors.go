package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/http/response"
	"github.com/yungbote/mediaforge-backend/internal/platform/apierr"
)

var mediaErrors = []struct {
	target error
	status int
	code   string
}{
	{types.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{types.ErrDuplicateFile, http.StatusBadRequest, "duplicate_file"},
	{types.ErrNotReady, http.StatusBadRequest, "not_ready"},
	{types.ErrUnknownQuality, http.StatusBadRequest, "unknown_quality"},
	{types.ErrUploadTooLarge, http.StatusRequestEntityTooLarge, "upload_too_large"},
	{types.ErrNotFound, http.StatusNotFound, "video_not_found"},
	{types.ErrRenditionMissing, http.StatusNotFound, "rendition_not_found"},
	{types.ErrFileMissing, http.StatusNotFound, "file_missing"},
	{types.ErrAssetMissing, http.StatusNotFound, "asset_missing"},
	{types.ErrVideoBusy, http.StatusConflict, "video_busy"},
	{types.ErrBusy, http.StatusServiceUnavailable, "busy"},
	{types.ErrMetadata, http.StatusInternalServerError, "metadata_error"},
	{types.ErrTransformFailure, http.StatusInternalServerError, "transform_failed"},
}

// mediaError attaches the HTTP status for a media error. Order matters: an
// adapter failure for invalid input is also a transform failure.
func mediaError(err error) *apierr.Error {
	for _, m := range mediaErrors {
		if errors.Is(err, m.target) {
			return apierr.New(m.status, m.code, err)
		}
	}
	return apierr.From(err)
}

func respondMediaError(c *gin.Context, err error) {
	response.RespondAPIError(c, mediaError(err))
}
