package mediastore

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/mediaforge-backend/internal/domain/media"
)

func TestNormalizeUploadName(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"clip.mp4", "clip.mp4", false},
		{"../../etc/clip.MOV", "clip.MOV", false},
		{`C:\videos\clip.mkv`, "clip.mkv", false},
		{"", "", true},
		{"..", "", true},
		{".hidden.mp4", "", true},
		{"notes.txt", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeUploadName(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, media.ErrInvalidArgument) {
				t.Fatalf("NormalizeUploadName(%q): want ErrInvalidArgument got %v", tc.raw, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("NormalizeUploadName(%q): want %q got %q err=%v", tc.raw, tc.want, got, err)
		}
	}
}

func TestDerivedPaths(t *testing.T) {
	src := UploadPath("holiday.mp4")
	if got := RenditionPath(src, media.Quality720p); got != "transcoded/holiday_720p.mp4" {
		t.Fatalf("RenditionPath: %q", got)
	}
	if got := TrimPath(src, 1.5, 10); got != "edits/holiday_trimmed_1.5_10.mp4" {
		t.Fatalf("TrimPath: %q", got)
	}
	if got := WatermarkedPath(src); got != "edits/holiday_watermarked.mp4" {
		t.Fatalf("WatermarkedPath: %q", got)
	}
	if got := RenditionPath(UploadPath("phone.webm"), media.Quality480p); got != "transcoded/phone_480p.mp4" {
		t.Fatalf("RenditionPath(webm): %q", got)
	}
	id := uuid.MustParse("6f1c1f7e-4a8e-4c43-9d0e-2b4a6f0b1c11")
	a := TextOverlayPath(src, id, "hello", 0, 2)
	b := TextOverlayPath(src, id, "hello", 0, 3)
	if a == b || !strings.HasPrefix(a, "edits/holiday_text_overlay_"+id.String()+"_") || TextOverlayPath(src, id, "hello", 0, 2) != a {
		t.Fatalf("TextOverlayPath should be deterministic per request: %q %q", a, b)
	}
}

func TestIsTextOverlayOf(t *testing.T) {
	idA := uuid.New()
	idB := uuid.New()
	srcA := UploadPath("clip.mp4")
	srcB := UploadPath("clip_text_overlay_x.mp4")
	ownA := path.Base(TextOverlayPath(srcA, idA, "hi", 0, 1))
	ownB := path.Base(TextOverlayPath(srcB, idB, "hi", 0, 1))

	if !IsTextOverlayOf(ownA, srcA, idA) {
		t.Fatalf("own overlay %q not matched", ownA)
	}
	if IsTextOverlayOf(ownB, srcA, idA) {
		t.Fatalf("overlay %q of another video matched clip.mp4", ownB)
	}
	if IsTextOverlayOf(ownA, srcA, idB) {
		t.Fatalf("overlay matched with the wrong video id")
	}
	for _, name := range []string{
		"clip_text_overlay_" + idA.String() + "_zzzzzzzzzzzz.mp4",
		"clip_text_overlay_" + idA.String() + "_0123456789ab.mov",
		"clip_text_overlay_" + idA.String() + "_0123456789ab_x.mp4",
		"clip_watermarked.mp4",
	} {
		if IsTextOverlayOf(name, srcA, idA) {
			t.Fatalf("unexpected match for %q", name)
		}
	}
}

func TestCreateExclusive(t *testing.T) {
	s := New(t.TempDir())
	if err := s.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	rel := UploadPath("a.mp4")
	n, err := s.CreateExclusive(rel, strings.NewReader("0123456789"), 0)
	if err != nil || n != 10 {
		t.Fatalf("CreateExclusive: n=%d err=%v", n, err)
	}
	if _, err := s.CreateExclusive(rel, strings.NewReader("other"), 0); !errors.Is(err, media.ErrDuplicateFile) {
		t.Fatalf("second CreateExclusive: want ErrDuplicateFile got %v", err)
	}
	data, _ := os.ReadFile(s.Abs(rel))
	if string(data) != "0123456789" {
		t.Fatalf("duplicate upload must not touch the existing file, got %q", data)
	}

	big := UploadPath("big.mp4")
	if _, err := s.CreateExclusive(big, strings.NewReader("0123456789"), 4); !errors.Is(err, media.ErrUploadTooLarge) {
		t.Fatalf("oversize: want ErrUploadTooLarge got %v", err)
	}
	if s.Exists(big) {
		t.Fatalf("oversize upload should be removed")
	}
	if _, err := s.CreateExclusive(UploadPath("exact.mp4"), strings.NewReader("0123"), 4); err != nil {
		t.Fatalf("upload at the limit: %v", err)
	}
}

func TestAbsRejectsEscapes(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	if got := s.Abs("../outside.mp4"); got != "" {
		t.Fatalf("Abs should reject escapes, got %q", got)
	}
	if got := s.Abs("uploads/x.mp4"); got != filepath.Join(root, "uploads", "x.mp4") {
		t.Fatalf("Abs: %q", got)
	}
	if err := s.Remove("uploads/missing.mp4", "../nope"); err != nil {
		t.Fatalf("Remove of missing files: %v", err)
	}
}
