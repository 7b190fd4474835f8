package gcp

import (
	"fmt"
	"net/url"
	"strings"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

// ObjectStorageConfig selects where rendition mirrors go. It is built by the
// app config layer; nothing here reads the environment.
type ObjectStorageConfig struct {
	Mode                  ObjectStorageMode
	EmulatorHost          string
	Bucket                string
	CDNDomain             string
	PublicBaseURL         string
	Credentials           string
	CompatibilityFallback bool
}

func IsSupportedObjectStorageMode(mode ObjectStorageMode) bool {
	switch mode {
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
		return true
	default:
		return false
	}
}

func (cfg ObjectStorageConfig) IsEmulatorMode() bool {
	return cfg.Mode == ObjectStorageModeGCSEmulator
}

func (cfg ObjectStorageConfig) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "compatibility_fallback"
	}
	return "explicit_or_default"
}

type ObjectStorageConfigErrorCode string

const (
	ObjectStorageConfigErrorInvalidMode         ObjectStorageConfigErrorCode = "invalid_mode"
	ObjectStorageConfigErrorMissingBucket       ObjectStorageConfigErrorCode = "missing_bucket"
	ObjectStorageConfigErrorMissingEmulatorHost ObjectStorageConfigErrorCode = "missing_emulator_host"
	ObjectStorageConfigErrorInvalidEmulatorHost ObjectStorageConfigErrorCode = "invalid_emulator_host"
	ObjectStorageConfigErrorInvalidPublicBase   ObjectStorageConfigErrorCode = "invalid_public_base_url"
)

type ObjectStorageConfigError struct {
	Code  ObjectStorageConfigErrorCode
	Value string
	Cause error
}

func (e *ObjectStorageConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ObjectStorageConfigErrorInvalidMode:
		return fmt.Sprintf("invalid object storage mode %q (allowed: %q, %q)", e.Value, ObjectStorageModeGCS, ObjectStorageModeGCSEmulator)
	case ObjectStorageConfigErrorMissingBucket:
		return "object storage bucket name is required"
	case ObjectStorageConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("object storage mode %q requires an emulator host", ObjectStorageModeGCSEmulator)
	case ObjectStorageConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid emulator host %q; expected absolute URL like http://fake-gcs:4443", e.Value)
	case ObjectStorageConfigErrorInvalidPublicBase:
		return fmt.Sprintf("invalid public base URL %q; expected absolute URL like http://localhost:4443", e.Value)
	default:
		return "invalid object storage config"
	}
}

func (e *ObjectStorageConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveObjectStorageMode picks the mode from the raw setting. An empty
// mode with an emulator host configured means the emulator.
func ResolveObjectStorageMode(cfg ObjectStorageConfig) (ObjectStorageConfig, error) {
	cfg.EmulatorHost = strings.TrimSpace(cfg.EmulatorHost)
	mode := ObjectStorageMode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	switch mode {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = ObjectStorageModeGCSEmulator
			cfg.CompatibilityFallback = true
		} else {
			cfg.Mode = ObjectStorageModeGCS
		}
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Value: string(cfg.Mode)}
	}
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ValidateObjectStorageConfig(cfg ObjectStorageConfig) error {
	if !IsSupportedObjectStorageMode(cfg.Mode) {
		return &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Value: string(cfg.Mode)}
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return &ObjectStorageConfigError{Code: ObjectStorageConfigErrorMissingBucket}
	}
	if raw := strings.TrimSpace(cfg.PublicBaseURL); raw != "" && !isAbsoluteURL(raw) {
		return &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidPublicBase, Value: raw}
	}
	if !cfg.IsEmulatorMode() {
		return nil
	}
	if cfg.EmulatorHost == "" {
		return &ObjectStorageConfigError{Code: ObjectStorageConfigErrorMissingEmulatorHost}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return &ObjectStorageConfigError{
			Code:  ObjectStorageConfigErrorInvalidEmulatorHost,
			Value: cfg.EmulatorHost,
			Cause: err,
		}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.TrimSpace(u.Scheme) != "" && strings.TrimSpace(u.Host) != ""
}
