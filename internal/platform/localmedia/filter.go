package localmedia

import (
	"strconv"
	"strings"
)

// escapeOptionValue escapes a value for use inside a single filter option.
func escapeOptionValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	return r.Replace(s)
}

// escapeGraph escapes characters that are special to the filtergraph parser.
func escapeGraph(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '\\', '\'', '[', ']', ',', ';':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// filterPath makes a filesystem path safe to embed as an option value in a
// -vf or -filter_complex argument.
func filterPath(p string) string {
	return escapeGraph(escapeOptionValue(p))
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// sanitizeOverlayText drops control characters. The text never enters the
// filter graph directly; it is read by drawtext from a file.
func sanitizeOverlayText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || (r >= 0x7f && r < 0xa0) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func drawTextFilter(textFile string, fontFile string, start, end float64) string {
	parts := []string{}
	if fontFile != "" {
		parts = append(parts, "fontfile="+filterPath(fontFile))
	}
	parts = append(parts,
		"textfile="+filterPath(textFile),
		"expansion=none",
		"fontsize=60",
		"fontcolor=white",
		"x=(w-text_w)/2",
		"y=(h-text_h)/2",
		"enable='between(t,"+formatSeconds(start)+","+formatSeconds(end)+")'",
	)
	return "drawtext=" + strings.Join(parts, ":")
}
