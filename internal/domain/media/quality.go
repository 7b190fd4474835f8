package media

import "strings"

type Quality string

const (
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
)

// Qualities is the rendition ladder in build order.
var Qualities = []Quality{Quality1080p, Quality720p, Quality480p}

var qualityHeights = map[Quality]int{
	Quality1080p: 1080,
	Quality720p:  720,
	Quality480p:  480,
}

// Height returns the target frame height and whether q is a known label.
func (q Quality) Height() (int, bool) {
	h, ok := qualityHeights[q]
	return h, ok
}

func (q Quality) Valid() bool {
	_, ok := qualityHeights[q]
	return ok
}

func ParseQuality(raw string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(raw)))
	if !q.Valid() {
		return "", ErrUnknownQuality
	}
	return q, nil
}
