package localmedia

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ProbeResult describes a file as a player shows it. Width and Height are
// the displayed dimensions, already swapped for quarter-turn rotations.
// Rotation is the display rotation in degrees, normalized to [0, 360).
type ProbeResult struct {
	Duration   float64
	Size       int64
	Width      int
	Height     int
	Rotation   int
	VideoCodec string
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Tags      struct {
		Rotate string `json:"rotate,omitempty"`
	} `json:"tags"`
	SideDataList []struct {
		SideDataType string   `json:"side_data_type"`
		Rotation     *float64 `json:"rotation,omitempty"`
	} `json:"side_data_list,omitempty"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

func parseProbe(out []byte) (ProbeResult, error) {
	var data ffprobeOutput
	if err := json.Unmarshal(out, &data); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	res := ProbeResult{}
	if d, err := strconv.ParseFloat(data.Format.Duration, 64); err == nil {
		res.Duration = d
	}
	if s, err := strconv.ParseInt(data.Format.Size, 10, 64); err == nil {
		res.Size = s
	}
	for _, st := range data.Streams {
		if st.CodecType != "video" {
			continue
		}
		res.Width = st.Width
		res.Height = st.Height
		res.VideoCodec = st.CodecName
		res.Rotation = streamRotation(st)
		if res.Rotation == 90 || res.Rotation == 270 {
			res.Width, res.Height = res.Height, res.Width
		}
		if res.Duration <= 0 {
			if d, err := strconv.ParseFloat(st.Duration, 64); err == nil {
				res.Duration = d
			}
		}
		break
	}
	if res.Duration <= 0 {
		return res, fmt.Errorf("no usable duration in ffprobe output")
	}
	return res, nil
}

// streamRotation prefers the display matrix side data that newer ffprobe
// builds report and falls back to the legacy rotate tag.
func streamRotation(st ffprobeStream) int {
	for _, sd := range st.SideDataList {
		if sd.Rotation != nil {
			return normalizeRotation(*sd.Rotation)
		}
	}
	if tag := strings.TrimSpace(st.Tags.Rotate); tag != "" {
		if r, err := strconv.ParseFloat(tag, 64); err == nil {
			return normalizeRotation(r)
		}
	}
	return 0
}

func normalizeRotation(deg float64) int {
	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	return r
}
