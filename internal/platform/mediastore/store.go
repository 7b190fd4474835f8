package mediastore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/mediaforge-backend/internal/domain/media"
)

const (
	UploadsDir    = "uploads"
	TranscodedDir = "transcoded"
	EditsDir      = "edits"
)

var allowedVideoExts = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".m4v":  true,
}

func IsSupportedVideoExt(ext string) bool {
	return allowedVideoExts[strings.ToLower(strings.TrimSpace(ext))]
}

// Store lays out media files under one root. Records keep paths relative to
// the root (slash separated) so the root can move and the static mount and
// object mirror share keys.
type Store struct {
	Root string
}

func New(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) EnsureDirs() error {
	for _, dir := range []string{UploadsDir, TranscodedDir, EditsDir} {
		if err := os.MkdirAll(filepath.Join(s.Root, dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Abs resolves a stored relative path. Paths escaping the root resolve to "".
func (s *Store) Abs(rel string) string {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return ""
	}
	full := filepath.Join(s.Root, filepath.FromSlash(rel))
	if !isWithinDir(s.Root, full) {
		return ""
	}
	return full
}

func (s *Store) Exists(rel string) bool {
	full := s.Abs(rel)
	if full == "" {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// NormalizeUploadName reduces a client supplied name to its base and checks
// the extension.
func NormalizeUploadName(raw string) (string, error) {
	value := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	name := path.Base(value)
	if value == "" || name == "." || name == "/" || name == ".." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: invalid file name %q", media.ErrInvalidArgument, raw)
	}
	if !IsSupportedVideoExt(path.Ext(name)) {
		return "", fmt.Errorf("%w: unsupported file type %q", media.ErrInvalidArgument, path.Ext(name))
	}
	return name, nil
}

func UploadPath(name string) string {
	return path.Join(UploadsDir, name)
}

// RenditionExt is the container every rendition is written in; libx264
// output does not fit every upload container (webm).
const RenditionExt = ".mp4"

// RenditionPath is <transcoded>/<base>_<quality>.mp4 for the source's base.
func RenditionPath(sourceRel string, q media.Quality) string {
	base, _ := splitBase(sourceRel)
	return path.Join(TranscodedDir, base+"_"+string(q)+RenditionExt)
}

func TrimPath(sourceRel string, start, end float64) string {
	base, ext := splitBase(sourceRel)
	return path.Join(EditsDir, fmt.Sprintf("%s_trimmed_%s_%s%s", base, formatOffset(start), formatOffset(end), ext))
}

const overlayHashLen = 12

// TextOverlayPath is <edits>/<base>_text_overlay_<video id>_<hash><ext>. The
// hash covers the request so distinct overlays of one source do not
// overwrite each other.
func TextOverlayPath(sourceRel string, videoID uuid.UUID, text string, start, end float64) string {
	base, ext := splitBase(sourceRel)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%s", text, formatOffset(start), formatOffset(end))))
	return path.Join(EditsDir, textOverlayPrefix(base, videoID)+hex.EncodeToString(sum[:])[:overlayHashLen]+ext)
}

// IsTextOverlayOf reports whether the file name is exactly a
// TextOverlayPath output of the given video. Names of other videos that
// merely start with the same text never match.
func IsTextOverlayOf(name, sourceRel string, videoID uuid.UUID) bool {
	base, ext := splitBase(sourceRel)
	rest, ok := strings.CutPrefix(name, textOverlayPrefix(base, videoID))
	if !ok {
		return false
	}
	hash, ok := strings.CutSuffix(rest, ext)
	if !ok || len(hash) != overlayHashLen {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func textOverlayPrefix(base string, videoID uuid.UUID) string {
	return base + "_text_overlay_" + videoID.String() + "_"
}

func WatermarkedPath(sourceRel string) string {
	base, ext := splitBase(sourceRel)
	return path.Join(EditsDir, base+"_watermarked"+ext)
}

// CreateExclusive writes r to rel, failing with media.ErrDuplicateFile if the
// file already exists and media.ErrUploadTooLarge past maxBytes (<=0 means no
// limit). A partial file is removed on any error.
func (s *Store) CreateExclusive(rel string, r io.Reader, maxBytes int64) (int64, error) {
	full := s.Abs(rel)
	if full == "" {
		return 0, fmt.Errorf("%w: path escapes media root", media.ErrInvalidArgument)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, fmt.Errorf("%w: %s", media.ErrDuplicateFile, path.Base(rel))
		}
		return 0, err
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(full)
		return 0, copyErr
	case closeErr != nil:
		_ = os.Remove(full)
		return 0, closeErr
	case maxBytes > 0 && n > maxBytes:
		_ = os.Remove(full)
		return 0, fmt.Errorf("%w: limit %d bytes", media.ErrUploadTooLarge, maxBytes)
	}
	return n, nil
}

func (s *Store) Size(rel string) (int64, error) {
	full := s.Abs(rel)
	if full == "" {
		return 0, os.ErrNotExist
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes the given files, ignoring ones already gone, and returns
// the first other error.
func (s *Store) Remove(rels ...string) error {
	var first error
	for _, rel := range rels {
		full := s.Abs(rel)
		if full == "" {
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) && first == nil {
			first = err
		}
	}
	return first
}

func splitBase(rel string) (string, string) {
	name := path.Base(filepath.ToSlash(rel))
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

func formatOffset(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isWithinDir(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
