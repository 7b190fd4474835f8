package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/mediaforge-backend/internal/platform/gcp"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

var newBucketService = gcp.NewBucketService

type MirrorBootstrapErrorCode string

const (
	MirrorBootstrapErrorInvalidMode         MirrorBootstrapErrorCode = "invalid_mode"
	MirrorBootstrapErrorMissingBucket       MirrorBootstrapErrorCode = "missing_bucket"
	MirrorBootstrapErrorMissingEmulatorHost MirrorBootstrapErrorCode = "missing_emulator_host"
	MirrorBootstrapErrorInvalidEmulatorHost MirrorBootstrapErrorCode = "invalid_emulator_host"
	MirrorBootstrapErrorInvalidPublicBase   MirrorBootstrapErrorCode = "invalid_public_base_url"
	MirrorBootstrapErrorConnectFailed       MirrorBootstrapErrorCode = "connect_failed"
)

type MirrorBootstrapError struct {
	Code         MirrorBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *MirrorBootstrapError) Error() string {
	if e == nil {
		return "rendition mirror bootstrap failed"
	}
	return fmt.Sprintf(
		"rendition mirror bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *MirrorBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (c MirrorConfig) objectStorageConfig() gcp.ObjectStorageConfig {
	return gcp.ObjectStorageConfig{
		Mode:                  gcp.ObjectStorageMode(strings.TrimSpace(c.Mode)),
		EmulatorHost:          strings.TrimSpace(c.EmulatorHost),
		Bucket:                strings.TrimSpace(c.Bucket),
		CDNDomain:             strings.TrimSpace(c.CDNDomain),
		PublicBaseURL:         strings.TrimSpace(c.PublicBaseURL),
		Credentials:           c.Credentials,
		CompatibilityFallback: c.CompatFallback,
	}
}

// resolveMirror returns nil, nil when mirroring is disabled. Renditions then
// live only under the media root.
func resolveMirror(log *logger.Logger, cfg MirrorConfig) (gcp.BucketService, error) {
	if !cfg.Enabled {
		log.Info("Rendition mirror disabled")
		return nil, nil
	}
	storageCfg, err := gcp.ResolveObjectStorageMode(cfg.objectStorageConfig())
	if err != nil {
		classified := classifyMirrorBootstrapError(storageCfg, err)
		log.Error(
			"Rendition mirror config rejected",
			"mode", storageCfg.Mode,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", mirrorBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}

	log.Info(
		"Selecting rendition mirror",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"bucket", storageCfg.Bucket,
		"emulator_host", storageCfg.EmulatorHost,
	)

	bucket, err := newBucketService(log, storageCfg)
	if err != nil {
		classified := classifyMirrorBootstrapError(storageCfg, err)
		log.Error(
			"Rendition mirror bootstrap failed",
			"mode", storageCfg.Mode,
			"mode_source", storageCfg.ModeSource(),
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", mirrorBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return bucket, nil
}

var mirrorConfigCodes = map[gcp.ObjectStorageConfigErrorCode]MirrorBootstrapErrorCode{
	gcp.ObjectStorageConfigErrorInvalidMode:         MirrorBootstrapErrorInvalidMode,
	gcp.ObjectStorageConfigErrorMissingBucket:       MirrorBootstrapErrorMissingBucket,
	gcp.ObjectStorageConfigErrorMissingEmulatorHost: MirrorBootstrapErrorMissingEmulatorHost,
	gcp.ObjectStorageConfigErrorInvalidEmulatorHost: MirrorBootstrapErrorInvalidEmulatorHost,
	gcp.ObjectStorageConfigErrorInvalidPublicBase:   MirrorBootstrapErrorInvalidPublicBase,
}

func classifyMirrorBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) error {
	code := MirrorBootstrapErrorConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		if mapped, ok := mirrorConfigCodes[cfgErr.Code]; ok {
			code = mapped
		}
	}
	return &MirrorBootstrapError{
		Code:         code,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}

func mirrorBootstrapErrorCode(err error) MirrorBootstrapErrorCode {
	var bootstrapErr *MirrorBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return MirrorBootstrapErrorConnectFailed
}
