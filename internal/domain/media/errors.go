package media

import "errors"

var (
	ErrDuplicateFile    = errors.New("file with this name already exists")
	ErrMetadata         = errors.New("could not read video metadata")
	ErrTransformFailure = errors.New("media transform failed")
	ErrUnknownQuality   = errors.New("unknown quality")
	ErrNotFound         = errors.New("video not found")
	ErrNotReady         = errors.New("video is still processing")
	ErrRenditionMissing = errors.New("rendition not found")
	ErrFileMissing      = errors.New("file not found on server")
	ErrAssetMissing     = errors.New("watermark asset not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUploadTooLarge   = errors.New("upload exceeds size limit")
	ErrBusy             = errors.New("processing queue is full")
	ErrVideoBusy        = errors.New("video is still processing and cannot be deleted")
)
