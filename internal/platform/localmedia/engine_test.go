package localmedia

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/gofont/goregular"
)

// These tests drive the installed ffmpeg and ffprobe against lavfi inputs and
// are skipped where the binaries are missing.

func requireEngine(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

// lavfiSource renders a synthetic clip with one keyframe per second.
func lavfiSource(t *testing.T, dir, name, graph string) string {
	t.Helper()
	out := filepath.Join(dir, name)
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", graph,
		"-c:v", "mpeg4", "-q:v", "2", "-g", "25", "-pix_fmt", "yuv420p",
		out,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("render %s: %v\n%s", name, err, b)
	}
	return out
}

// frameAt decodes one frame of the video at second ts.
func frameAt(t *testing.T, video string, ts float64) image.Image {
	t.Helper()
	out := filepath.Join(t.TempDir(), fmt.Sprintf("frame_%.2f.png", ts))
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-ss", formatSeconds(ts), "-i", video, "-frames:v", "1", out,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("extract frame at %.2f: %v\n%s", ts, err, b)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open frame: %v", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return img
}

func bright(img image.Image, x, y int) bool {
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y > 128
}

func brightCount(img image.Image) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if bright(img, x, y) {
				n++
			}
		}
	}
	return n
}

func engineTools(t *testing.T) Tools {
	t.Helper()
	return newTestTools(t, ExecRunner{}, 2*time.Minute)
}

func TestEngineTrimDuration(t *testing.T) {
	requireEngine(t)
	dir := t.TempDir()
	src := lavfiSource(t, dir, "src.mp4", "testsrc=size=320x240:rate=25:duration=6")
	tl := engineTools(t)
	ctx := context.Background()

	out, err := tl.Trim(ctx, src, filepath.Join(dir, "trimmed.mp4"), 1, 4)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	res, err := tl.Probe(ctx, out)
	if err != nil {
		t.Fatalf("Probe(trimmed): %v", err)
	}
	if math.Abs(res.Duration-3) > 0.25 {
		t.Fatalf("trimmed duration: want about 3s got %.3f", res.Duration)
	}
	if res.Width != 320 || res.Height != 240 || res.Size <= 0 {
		t.Fatalf("trimmed probe: %+v", res)
	}
}

func TestEngineWatermarkGeometry(t *testing.T) {
	requireEngine(t)
	dir := t.TempDir()
	src := lavfiSource(t, dir, "black.mp4", "color=c=black:size=320x240:rate=25:duration=2")

	png := filepath.Join(dir, "mark.png")
	dc := gg.NewContext(64, 32)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	if err := dc.SavePNG(png); err != nil {
		t.Fatalf("save png: %v", err)
	}

	out, err := engineTools(t).OverlayWatermark(context.Background(), src, filepath.Join(dir, "marked.mp4"), png)
	if err != nil {
		t.Fatalf("OverlayWatermark: %v", err)
	}
	img := frameAt(t, out, 1)

	// 320/10 = 32px wide, 16px high, 10px from the bottom-right corner. Two
	// pixels of slack cover encoder ringing at the edges.
	const wantX0, wantX1, wantY0, wantY1 = 278, 309, 214, 229
	x0, x1 := -1, -1
	for x := 0; x < 320; x++ {
		if bright(img, x, (wantY0+wantY1)/2) {
			if x0 < 0 {
				x0 = x
			}
			x1 = x
		}
	}
	y0, y1 := -1, -1
	for y := 0; y < 240; y++ {
		if bright(img, (wantX0+wantX1)/2, y) {
			if y0 < 0 {
				y0 = y
			}
			y1 = y
		}
	}
	near := func(got, want int) bool { return got >= want-2 && got <= want+2 }
	if !near(x0, wantX0) || !near(x1, wantX1) || !near(y0, wantY0) || !near(y1, wantY1) {
		t.Fatalf("watermark box: got x=[%d,%d] y=[%d,%d], want x=[%d,%d] y=[%d,%d]", x0, x1, y0, y1, wantX0, wantX1, wantY0, wantY1)
	}
	if bright(img, 10, 10) {
		t.Fatalf("watermark leaked outside its corner")
	}
}

func TestEngineTextOverlayWindow(t *testing.T) {
	requireEngine(t)
	dir := t.TempDir()
	src := lavfiSource(t, dir, "black.mp4", "color=c=black:size=320x240:rate=25:duration=6")
	font := filepath.Join(dir, "Go-Regular.ttf")
	if err := os.WriteFile(font, goregular.TTF, 0o644); err != nil {
		t.Fatalf("write font: %v", err)
	}

	out, err := engineTools(t).OverlayText(context.Background(), src, filepath.Join(dir, "titled.mp4"), TextOverlay{
		Text:     "HELLO",
		Start:    2,
		End:      4,
		FontPath: font,
	})
	if err != nil {
		t.Fatalf("OverlayText: %v", err)
	}
	for _, tc := range []struct {
		at      float64
		visible bool
	}{
		{1, false},
		{3, true},
		{5, false},
	} {
		n := brightCount(frameAt(t, out, tc.at))
		if tc.visible && n < 100 {
			t.Fatalf("text should be visible at %.1fs, bright pixels=%d", tc.at, n)
		}
		if !tc.visible && n > 0 {
			t.Fatalf("text should be hidden at %.1fs, bright pixels=%d", tc.at, n)
		}
	}
}
