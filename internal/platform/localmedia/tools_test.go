package localmedia

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

type runnerFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return f(ctx, name, args...)
}

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) record(name string, args []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
}

func (r *recorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

const probeJSON = `{"streams":[{"codec_type":"audio","codec_name":"aac"},{"codec_type":"video","codec_name":"h264","width":1920,"height":1080}],"format":{"duration":"12.500000","size":"4096"}}`

// succeedingRunner answers ffprobe with probeJSON and makes ffmpeg write its
// output argument.
func succeedingRunner(rec *recorder) Runner {
	return runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		rec.record(name, args)
		if name == "ffprobe" {
			return []byte(probeJSON), nil, nil
		}
		out := args[len(args)-1]
		return nil, nil, os.WriteFile(out, []byte("rendered"), 0o644)
	})
}

func newTestTools(t *testing.T, r Runner, timeout time.Duration) Tools {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(log, Options{
		WorkDir:        t.TempDir(),
		DefaultTimeout: timeout,
		Runner:         r,
	})
}

func writeSource(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "source.mp4")
	if err := os.WriteFile(p, []byte("source-bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return p
}

func containsSeq(args []string, seq ...string) bool {
	for i := 0; i+len(seq) <= len(args); i++ {
		match := true
		for j := range seq {
			if args[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestTranscodeQualityArgsAndAtomicOutput(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir)
	out := filepath.Join(dir, "transcoded", "source_720p.mp4")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(out, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed stale output: %v", err)
	}

	rec := &recorder{}
	tl := newTestTools(t, succeedingRunner(rec), time.Minute)
	got, err := tl.TranscodeQuality(context.Background(), src, out, media.Quality720p)
	if err != nil {
		t.Fatalf("TranscodeQuality: %v", err)
	}
	if got != out {
		t.Fatalf("TranscodeQuality: want path %s got %s", out, got)
	}
	args := rec.last()
	for _, seq := range [][]string{
		{"-vf", "scale=-2:720"},
		{"-c:v", "libx264"},
		{"-preset", "fast"},
		{"-c:a", "copy"},
	} {
		if !containsSeq(args, seq...) {
			t.Fatalf("TranscodeQuality: args %v missing %v", args, seq)
		}
	}
	if written := args[len(args)-1]; written == out || filepath.Dir(written) != filepath.Dir(out) || filepath.Ext(written) != ".mp4" {
		t.Fatalf("TranscodeQuality: expected temp sibling with same ext, got %s", written)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "rendered" {
		t.Fatalf("TranscodeQuality: output not replaced: %q err=%v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(out))
	if len(entries) != 1 {
		t.Fatalf("TranscodeQuality: temp file left behind: %v", entries)
	}
}

func TestTranscodeQualityUnknownQuality(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir)
	called := false
	tl := newTestTools(t, runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		called = true
		return nil, nil, nil
	}), time.Minute)

	_, err := tl.TranscodeQuality(context.Background(), src, filepath.Join(dir, "x.mp4"), media.Quality("4k"))
	if !errors.Is(err, media.ErrUnknownQuality) {
		t.Fatalf("expected ErrUnknownQuality, got %v", err)
	}
	f, ok := AsFailure(err)
	if !ok || f.Kind != FailureUnknownQuality || f.Transient {
		t.Fatalf("expected permanent unknown_quality failure, got %+v", f)
	}
	if called {
		t.Fatalf("engine must not run for an unknown quality")
	}
}

func TestEngineFailureClassification(t *testing.T) {
	cases := []struct {
		name      string
		output    string
		transient bool
		class     string
	}{
		{"malformed input", "source.mp4: moov atom not found\nInvalid data found when processing input", false, "permanent"},
		{"resource contention", "av_malloc: Cannot allocate memory", true, "transient"},
	}
	for _, tc := range cases {
		dir := t.TempDir()
		src := writeSource(t, dir)
		out := filepath.Join(dir, "out.mp4")
		tl := newTestTools(t, runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			return nil, []byte(tc.output), errors.New("exit status 1")
		}), time.Minute)

		_, err := tl.TranscodeQuality(context.Background(), src, out, media.Quality480p)
		if !errors.Is(err, media.ErrTransformFailure) {
			t.Fatalf("%s: expected ErrTransformFailure, got %v", tc.name, err)
		}
		f, ok := AsFailure(err)
		if !ok {
			t.Fatalf("%s: expected *Failure, got %T", tc.name, err)
		}
		if f.Transient != tc.transient || f.Class() != tc.class {
			t.Fatalf("%s: transient=%v class=%s", tc.name, f.Transient, f.Class())
		}
		if !strings.Contains(f.Diagnostic, strings.Split(tc.output, "\n")[0]) {
			t.Fatalf("%s: diagnostic %q missing engine text", tc.name, f.Diagnostic)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Fatalf("%s: failed transform must not leave an output file", tc.name)
		}
	}
}

func TestTransformTimeout(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir)
	tl := newTestTools(t, runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, errors.New("signal: killed")
	}), 20*time.Millisecond)

	_, err := tl.TranscodeQuality(context.Background(), src, filepath.Join(dir, "out.mp4"), media.Quality1080p)
	f, ok := AsFailure(err)
	if !ok || f.Kind != FailureTimeout || !f.Transient || f.Class() != "timeout" {
		t.Fatalf("expected timeout failure, got %v", err)
	}
}

func TestMissingInput(t *testing.T) {
	dir := t.TempDir()
	tl := newTestTools(t, succeedingRunner(&recorder{}), time.Minute)
	_, err := tl.Trim(context.Background(), filepath.Join(dir, "gone.mp4"), filepath.Join(dir, "out.mp4"), 0, 1)
	if !errors.Is(err, media.ErrFileMissing) {
		t.Fatalf("expected ErrFileMissing, got %v", err)
	}
}

func TestTrimArgsAndValidation(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir)
	rec := &recorder{}
	tl := newTestTools(t, succeedingRunner(rec), time.Minute)

	for _, bounds := range [][2]float64{{3, 3}, {5, 2}, {-1, 2}} {
		_, err := tl.Trim(context.Background(), src, filepath.Join(dir, "t.mp4"), bounds[0], bounds[1])
		if !errors.Is(err, media.ErrInvalidArgument) {
			t.Fatalf("Trim(%v): expected ErrInvalidArgument, got %v", bounds, err)
		}
	}
	if len(rec.calls) != 0 {
		t.Fatalf("Trim: engine ran for invalid bounds")
	}

	out := filepath.Join(dir, "edits", "source_trimmed_1.5_4.mp4")
	if _, err := tl.Trim(context.Background(), src, out, 1.5, 4); err != nil {
		t.Fatalf("Trim: %v", err)
	}
	args := rec.last()
	if !containsSeq(args, "-ss", "1.5") || !containsSeq(args, "-t", "2.5") || !containsSeq(args, "-c", "copy") {
		t.Fatalf("Trim: unexpected args %v", args)
	}
}

func TestOverlayTextKeepsTextOutOfFilterGraph(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir)
	workDir := t.TempDir()
	log, _ := logger.New("test")

	var filter, textFileContents string
	r := runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		for i, a := range args {
			if a == "-vf" && i+1 < len(args) {
				filter = args[i+1]
			}
		}
		entries, _ := os.ReadDir(workDir)
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".txt") {
				b, _ := os.ReadFile(filepath.Join(workDir, e.Name()))
				textFileContents = string(b)
			}
		}
		return nil, nil, os.WriteFile(args[len(args)-1], []byte("rendered"), 0o644)
	})
	tl := New(log, Options{WorkDir: workDir, Runner: r})

	hostile := "it's 10:00'; drawbox=c=red,[x]\n\x1b[31mhi"
	if _, err := tl.OverlayText(context.Background(), src, filepath.Join(dir, "o.mp4"), TextOverlay{
		Text:  hostile,
		Start: 1,
		End:   3,
	}); err != nil {
		t.Fatalf("OverlayText: %v", err)
	}
	if strings.Contains(filter, "drawbox") || strings.Contains(filter, "10:00") {
		t.Fatalf("OverlayText: text leaked into filter graph: %s", filter)
	}
	for _, want := range []string{"textfile=", "expansion=none", "fontsize=60", "fontcolor=white", "enable='between(t,1,3)'"} {
		if !strings.Contains(filter, want) {
			t.Fatalf("OverlayText: filter %q missing %q", filter, want)
		}
	}
	if textFileContents != "it's 10:00'; drawbox=c=red,[x][31mhi" {
		t.Fatalf("OverlayText: unexpected text file contents %q", textFileContents)
	}
	if entries, _ := os.ReadDir(workDir); len(entries) != 0 {
		t.Fatalf("OverlayText: work file not cleaned up")
	}
}

func TestOverlayTextFontValidation(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir)
	tl := newTestTools(t, succeedingRunner(&recorder{}), time.Minute)

	bad := filepath.Join(dir, "bad.ttf")
	if err := os.WriteFile(bad, []byte("not a font"), 0o644); err != nil {
		t.Fatalf("write bad font: %v", err)
	}
	_, err := tl.OverlayText(context.Background(), src, filepath.Join(dir, "o.mp4"), TextOverlay{Text: "hi", Start: 0, End: 1, FontPath: bad})
	if !errors.Is(err, media.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for bad font, got %v", err)
	}

	good := filepath.Join(dir, "Go-Regular.ttf")
	if err := os.WriteFile(good, goregular.TTF, 0o644); err != nil {
		t.Fatalf("write font: %v", err)
	}
	if _, err := tl.OverlayText(context.Background(), src, filepath.Join(dir, "o.mp4"), TextOverlay{Text: "hi", Start: 0, End: 1, FontPath: good}); err != nil {
		t.Fatalf("OverlayText with valid font: %v", err)
	}

	// CFF outlines and collections are not parsed here; the engine reads them.
	for _, name := range []string{"NotoSans.otf", "Helvetica.ttc"} {
		font := filepath.Join(dir, name)
		if err := os.WriteFile(font, []byte("OTTO\x00\x0b\x00\x80"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := tl.OverlayText(context.Background(), src, filepath.Join(dir, "o.mp4"), TextOverlay{Text: "hi", Start: 0, End: 1, FontPath: font}); err != nil {
			t.Fatalf("OverlayText with %s: %v", name, err)
		}
	}

	empty := filepath.Join(dir, "empty.otf")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty font: %v", err)
	}
	for _, font := range []string{empty, filepath.Join(dir, "missing.otf")} {
		_, err := tl.OverlayText(context.Background(), src, filepath.Join(dir, "o.mp4"), TextOverlay{Text: "hi", Start: 0, End: 1, FontPath: font})
		if !errors.Is(err, media.ErrInvalidArgument) {
			t.Fatalf("OverlayText(%s): expected ErrInvalidArgument, got %v", filepath.Base(font), err)
		}
	}
	if err := validateFont(bad); err == nil || !strings.Contains(err.Error(), "not a valid TrueType file") {
		t.Fatalf("validateFont(bad.ttf): got %v", err)
	}
}

func TestPlaceWatermark(t *testing.T) {
	cases := []struct {
		videoW, videoH, imgW, imgH int
		want                       WatermarkPlacement
	}{
		{1920, 1080, 400, 200, WatermarkPlacement{Width: 192, Height: 96, X: 1718, Y: 974}},
		{1280, 720, 300, 300, WatermarkPlacement{Width: 128, Height: 128, X: 1142, Y: 582}},
		{1366, 768, 100, 50, WatermarkPlacement{Width: 136, Height: 68, X: 1220, Y: 690}},
		{640, 360, 1000, 10, WatermarkPlacement{Width: 64, Height: 1, X: 566, Y: 349}},
	}
	for _, tc := range cases {
		got, err := PlaceWatermark(tc.videoW, tc.videoH, tc.imgW, tc.imgH)
		if err != nil {
			t.Fatalf("PlaceWatermark(%dx%d): %v", tc.videoW, tc.videoH, err)
		}
		if got != tc.want {
			t.Fatalf("PlaceWatermark(%dx%d, %dx%d): want %+v got %+v", tc.videoW, tc.videoH, tc.imgW, tc.imgH, tc.want, got)
		}
		if got.Width != tc.videoW/10 || tc.videoW-got.X-got.Width != 10 || tc.videoH-got.Y-got.Height != 10 {
			t.Fatalf("PlaceWatermark: geometry off for %+v", got)
		}
	}
	if _, err := PlaceWatermark(0, 1080, 10, 10); err == nil {
		t.Fatalf("PlaceWatermark: expected error for zero width")
	}
}

func TestOverlayWatermarkFilter(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir)

	png := filepath.Join(dir, "watermark.png")
	dc := gg.NewContext(400, 200)
	dc.SetRGBA(1, 1, 1, 0.6)
	dc.DrawRectangle(0, 0, 400, 200)
	dc.Fill()
	if err := dc.SavePNG(png); err != nil {
		t.Fatalf("save png: %v", err)
	}
	junk := filepath.Join(dir, "watermark.bin")
	if err := os.WriteFile(junk, []byte("???"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}

	cases := []struct {
		name  string
		image string
		want  string
	}{
		{"decoded in go", png, "[1:v]scale=192:96[wm];[0:v][wm]overlay=main_w-overlay_w-10:main_h-overlay_h-10"},
		{"sized by engine", junk, "scale2ref=w=trunc(main_w/10):h=ow*ih/iw"},
	}
	for _, tc := range cases {
		rec := &recorder{}
		tl := newTestTools(t, succeedingRunner(rec), time.Minute)
		if _, err := tl.OverlayWatermark(context.Background(), src, filepath.Join(dir, "w.mp4"), tc.image); err != nil {
			t.Fatalf("%s: OverlayWatermark: %v", tc.name, err)
		}
		args := rec.last()
		found := false
		for i, a := range args {
			if a == "-filter_complex" && i+1 < len(args) && strings.Contains(args[i+1], tc.want) {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: filter_complex missing %q in %v", tc.name, tc.want, args)
		}
	}

	tl := newTestTools(t, succeedingRunner(&recorder{}), time.Minute)
	if _, err := tl.OverlayWatermark(context.Background(), src, filepath.Join(dir, "w.mp4"), filepath.Join(dir, "missing.png")); !errors.Is(err, media.ErrFileMissing) {
		t.Fatalf("OverlayWatermark(missing asset): expected ErrFileMissing, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir)
	tl := newTestTools(t, succeedingRunner(&recorder{}), time.Minute)

	res, err := tl.Probe(context.Background(), src)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Duration != 12.5 || res.Size != 4096 || res.Width != 1920 || res.Height != 1080 || res.VideoCodec != "h264" {
		t.Fatalf("Probe: unexpected result %+v", res)
	}

	noDuration := newTestTools(t, runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(`{"streams":[],"format":{"duration":"N/A"}}`), nil, nil
	}), time.Minute)
	if _, err := noDuration.Probe(context.Background(), src); !errors.Is(err, media.ErrMetadata) {
		t.Fatalf("Probe(no duration): expected ErrMetadata, got %v", err)
	}

	broken := newTestTools(t, runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("Invalid data found when processing input"), errors.New("exit status 1")
	}), time.Minute)
	if _, err := broken.Probe(context.Background(), src); !errors.Is(err, media.ErrMetadata) {
		t.Fatalf("Probe(broken): expected ErrMetadata, got %v", err)
	}
}

func TestFilterPathEscaping(t *testing.T) {
	got := filterPath(`/tmp/a:b'c,d`)
	want := `/tmp/a\\:b\\\'c\,d`
	if got != want {
		t.Fatalf("filterPath: want %s got %s", want, got)
	}
	if s := sanitizeOverlayText("a\tb\x00c\u0085d"); s != "abcd" {
		t.Fatalf("sanitizeOverlayText: got %q", s)
	}
}

func TestProbeRotation(t *testing.T) {
	cases := []struct {
		name          string
		stream        string
		width, height int
		rotation      int
	}{
		{"display matrix", `"width":1920,"height":1080,"side_data_list":[{"side_data_type":"Display Matrix","rotation":-90}]`, 1080, 1920, 270},
		{"rotate tag", `"width":1920,"height":1080,"tags":{"rotate":"90"}`, 1080, 1920, 90},
		{"upside down", `"width":1920,"height":1080,"tags":{"rotate":"180"}`, 1920, 1080, 180},
		{"none", `"width":1920,"height":1080`, 1920, 1080, 0},
	}
	for _, tc := range cases {
		out := `{"streams":[{"codec_type":"video","codec_name":"h264",` + tc.stream + `}],"format":{"duration":"3.0"}}`
		res, err := parseProbe([]byte(out))
		if err != nil {
			t.Fatalf("%s: parseProbe: %v", tc.name, err)
		}
		if res.Width != tc.width || res.Height != tc.height || res.Rotation != tc.rotation {
			t.Fatalf("%s: got %dx%d rotation %d", tc.name, res.Width, res.Height, res.Rotation)
		}
	}
}

func TestOverlayWatermarkRotatedSource(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir)
	png := filepath.Join(dir, "watermark.png")
	dc := gg.NewContext(200, 100)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	if err := dc.SavePNG(png); err != nil {
		t.Fatalf("save png: %v", err)
	}

	const portrait = `{"streams":[{"codec_type":"video","codec_name":"h264","width":1920,"height":1080,"side_data_list":[{"side_data_type":"Display Matrix","rotation":-90}]}],"format":{"duration":"4.0"}}`
	rec := &recorder{}
	tl := newTestTools(t, runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		rec.record(name, args)
		if name == "ffprobe" {
			return []byte(portrait), nil, nil
		}
		return nil, nil, os.WriteFile(args[len(args)-1], []byte("rendered"), 0o644)
	}), time.Minute)

	if _, err := tl.OverlayWatermark(context.Background(), src, filepath.Join(dir, "w.mp4"), png); err != nil {
		t.Fatalf("OverlayWatermark: %v", err)
	}
	args := rec.last()
	if !containsSeq(args, "-filter_complex", "[1:v]scale=108:54[wm];[0:v][wm]overlay=main_w-overlay_w-10:main_h-overlay_h-10") {
		t.Fatalf("watermark should be a tenth of the displayed width: %v", args)
	}
}

func TestProbeUsesStderrAsDiagnostic(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir)

	var probeArgs []string
	failing := newTestTools(t, runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		probeArgs = args
		return nil, []byte("source.mp4: Invalid data found when processing input\n"), errors.New("exit status 1")
	}), time.Minute)
	_, err := failing.Probe(context.Background(), src)
	f, ok := AsFailure(err)
	if !ok || f.Kind != FailureProbe {
		t.Fatalf("Probe(failing): expected probe failure, got %v", err)
	}
	if f.Diagnostic != "source.mp4: Invalid data found when processing input" {
		t.Fatalf("Probe(failing): diagnostic %q", f.Diagnostic)
	}
	if !containsSeq(probeArgs, "-v", "error") {
		t.Fatalf("Probe: ffprobe must keep errors on stderr, args %v", probeArgs)
	}

	noisy := newTestTools(t, runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(probeJSON), []byte("[mov,mp4] stream 1, timescale not set"), nil
	}), time.Minute)
	res, err := noisy.Probe(context.Background(), src)
	if err != nil || res.Duration != 12.5 {
		t.Fatalf("Probe(noisy stderr): res=%+v err=%v", res, err)
	}

	garbled := newTestTools(t, runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte("not json"), []byte("truncated moov"), nil
	}), time.Minute)
	_, err = garbled.Probe(context.Background(), src)
	if f, ok := AsFailure(err); !ok || f.Diagnostic != "truncated moov" {
		t.Fatalf("Probe(garbled): got %v", err)
	}
}

func TestClassifyKeepsDiagnosticValidUTF8(t *testing.T) {
	out := "x" + strings.Repeat("é", 1200) + "y"
	f := classify(context.Background(), "transcode", []byte(out), errors.New("exit status 1"))
	if !utf8.ValidString(f.Diagnostic) || !utf8.ValidString(f.Error()) {
		t.Fatalf("classify: diagnostic is not valid UTF-8")
	}
	if !strings.HasPrefix(f.Diagnostic, "...") || !strings.HasSuffix(f.Diagnostic, "y") {
		t.Fatalf("classify: diagnostic should keep the tail, got %q", f.Diagnostic[:10])
	}
	if len(f.Diagnostic) > maxDiagnosticBytes+len("...") {
		t.Fatalf("classify: diagnostic too long: %d", len(f.Diagnostic))
	}

	raw := classify(context.Background(), "transcode", []byte("bad \xff\xfe byte"), errors.New("exit status 1"))
	if !utf8.ValidString(raw.Diagnostic) || !utf8.ValidString(raw.Error()) {
		t.Fatalf("classify: invalid engine bytes leaked: %q", raw.Diagnostic)
	}
}
