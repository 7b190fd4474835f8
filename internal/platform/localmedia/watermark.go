package localmedia

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const watermarkMargin = 10

// WatermarkPlacement is the scaled watermark size and its top-left corner in
// the output frame.
type WatermarkPlacement struct {
	Width  int
	Height int
	X      int
	Y      int
}

// PlaceWatermark scales the watermark to one tenth of the video width,
// keeping its aspect ratio, and anchors it 10px from the bottom-right corner.
func PlaceWatermark(videoW, videoH, imgW, imgH int) (WatermarkPlacement, error) {
	if videoW <= 0 || videoH <= 0 {
		return WatermarkPlacement{}, fmt.Errorf("invalid video size %dx%d", videoW, videoH)
	}
	if imgW <= 0 || imgH <= 0 {
		return WatermarkPlacement{}, fmt.Errorf("invalid watermark size %dx%d", imgW, imgH)
	}
	w := videoW / 10
	if w < 1 {
		w = 1
	}
	h := int(math.Round(float64(imgH) * float64(w) / float64(imgW)))
	if h < 1 {
		h = 1
	}
	return WatermarkPlacement{
		Width:  w,
		Height: h,
		X:      videoW - w - watermarkMargin,
		Y:      videoH - h - watermarkMargin,
	}, nil
}

// imageSize reads only the image header.
func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func watermarkFilter(p WatermarkPlacement) string {
	return fmt.Sprintf(
		"[1:v]scale=%d:%d[wm];[0:v][wm]overlay=main_w-overlay_w-%d:main_h-overlay_h-%d",
		p.Width, p.Height, watermarkMargin, watermarkMargin,
	)
}

// watermarkRefFilter lets ffmpeg size the watermark against the video when
// either dimension is unknown up front.
func watermarkRefFilter() string {
	return fmt.Sprintf(
		"[1:v][0:v]scale2ref=w=trunc(main_w/10):h=ow*ih/iw[wm][base];[base][wm]overlay=main_w-overlay_w-%d:main_h-overlay_h-%d",
		watermarkMargin, watermarkMargin,
	)
}
