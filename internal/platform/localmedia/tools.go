package localmedia

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

// Tools wraps ffmpeg and ffprobe.
//
// REQUIRED BINARIES: ffmpeg, ffprobe (or the configured paths).
//
// Every call blocks until the engine exits or the per-call deadline passes.
// Outputs are written next to outPath and renamed into place, so a reader
// never sees a partial file and an existing file is replaced.
type Tools interface {
	AssertReady(ctx context.Context) error

	Probe(ctx context.Context, path string) (ProbeResult, error)
	Trim(ctx context.Context, inPath, outPath string, start, end float64) (string, error)
	OverlayText(ctx context.Context, inPath, outPath string, overlay TextOverlay) (string, error)
	OverlayWatermark(ctx context.Context, inPath, outPath, watermarkPath string) (string, error)
	TranscodeQuality(ctx context.Context, inPath, outPath string, quality media.Quality) (string, error)
}

type TextOverlay struct {
	Text     string
	Start    float64
	End      float64
	FontPath string
}

type Options struct {
	FFmpegPath     string
	FFprobePath    string
	WorkDir        string
	DefaultTimeout time.Duration
	ProbeTimeout   time.Duration
	Runner         Runner
}

type tools struct {
	log    *logger.Logger
	runner Runner
	tracer trace.Tracer

	ffmpegPath  string
	ffprobePath string
	workDir     string

	defaultTimeout time.Duration
	probeTimeout   time.Duration
}

func New(log *logger.Logger, opts Options) Tools {
	t := &tools{
		log:            log.With("service", "MediaTools"),
		runner:         opts.Runner,
		tracer:         otel.Tracer("mediaforge/localmedia"),
		ffmpegPath:     opts.FFmpegPath,
		ffprobePath:    opts.FFprobePath,
		workDir:        opts.WorkDir,
		defaultTimeout: opts.DefaultTimeout,
		probeTimeout:   opts.ProbeTimeout,
	}
	if t.runner == nil {
		t.runner = ExecRunner{}
	}
	if t.ffmpegPath == "" {
		t.ffmpegPath = "ffmpeg"
	}
	if t.ffprobePath == "" {
		t.ffprobePath = "ffprobe"
	}
	if t.workDir == "" {
		t.workDir = filepath.Join(os.TempDir(), "mediaforge-work")
	}
	if t.defaultTimeout <= 0 {
		t.defaultTimeout = 10 * time.Minute
	}
	if t.probeTimeout <= 0 {
		t.probeTimeout = 30 * time.Second
	}
	return t
}

func (m *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return &Failure{Op: "assert_ready", Kind: FailureMissingBinary, Err: fmt.Errorf("missing required binary %q in PATH: %w", bin, err)}
		}
	}
	if err := os.MkdirAll(m.workDir, 0o755); err != nil {
		return &Failure{Op: "assert_ready", Kind: FailureIO, Err: fmt.Errorf("create workDir: %w", err)}
	}
	return nil
}

func (m *tools) Probe(ctx context.Context, path string) (ProbeResult, error) {
	const op = "probe"
	ctx, span := m.startSpan(ctx, op, path)
	defer span.End()

	if err := requireInput(op, path); err != nil {
		return ProbeResult{}, endSpan(span, err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	stdout, stderr, err := m.runner.Run(ctx, m.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		f := classify(ctx, op, stderr, err)
		f.Kind = FailureProbe
		return ProbeResult{}, endSpan(span, f)
	}
	res, err := parseProbe(stdout)
	if err != nil {
		return ProbeResult{}, endSpan(span, &Failure{Op: op, Kind: FailureProbe, Err: err, Diagnostic: diagnostic(stderr)})
	}
	if res.Rotation != 0 {
		span.SetAttributes(attribute.Int("media.rotation", res.Rotation))
	}
	if res.Size <= 0 {
		if info, statErr := os.Stat(path); statErr == nil {
			res.Size = info.Size()
		}
	}
	return res, nil
}

func (m *tools) Trim(ctx context.Context, inPath, outPath string, start, end float64) (string, error) {
	const op = "trim"
	ctx, span := m.startSpan(ctx, op, inPath)
	defer span.End()

	if start < 0 || end <= start {
		return "", endSpan(span, invalid(op, "require end > start >= 0, got start=%s end=%s", formatSeconds(start), formatSeconds(end)))
	}
	if err := requireInput(op, inPath); err != nil {
		return "", endSpan(span, err)
	}
	args := []string{
		"-ss", formatSeconds(start),
		"-i", inPath,
		"-t", formatSeconds(end - start),
		"-c", "copy",
	}
	return m.produce(ctx, span, op, outPath, args)
}

func (m *tools) OverlayText(ctx context.Context, inPath, outPath string, overlay TextOverlay) (string, error) {
	const op = "overlay_text"
	ctx, span := m.startSpan(ctx, op, inPath)
	defer span.End()

	text := sanitizeOverlayText(overlay.Text)
	if text == "" {
		return "", endSpan(span, invalid(op, "overlay text is empty"))
	}
	if overlay.Start < 0 || overlay.End < overlay.Start {
		return "", endSpan(span, invalid(op, "require end >= start >= 0, got start=%s end=%s", formatSeconds(overlay.Start), formatSeconds(overlay.End)))
	}
	if overlay.FontPath != "" {
		if err := validateFont(overlay.FontPath); err != nil {
			return "", endSpan(span, &Failure{Op: op, Kind: FailureInvalidArgument, Err: err})
		}
	}
	if err := requireInput(op, inPath); err != nil {
		return "", endSpan(span, err)
	}

	textFile, cleanup, err := m.writeWorkFile([]byte(text), ".txt")
	if err != nil {
		return "", endSpan(span, &Failure{Op: op, Kind: FailureIO, Err: err})
	}
	defer cleanup()

	args := []string{
		"-i", inPath,
		"-vf", drawTextFilter(textFile, overlay.FontPath, overlay.Start, overlay.End),
		"-c:a", "copy",
	}
	return m.produce(ctx, span, op, outPath, args)
}

func (m *tools) OverlayWatermark(ctx context.Context, inPath, outPath, watermarkPath string) (string, error) {
	const op = "overlay_watermark"
	ctx, span := m.startSpan(ctx, op, inPath)
	defer span.End()

	if err := requireInput(op, inPath); err != nil {
		return "", endSpan(span, err)
	}
	if err := requireInput(op, watermarkPath); err != nil {
		return "", endSpan(span, err)
	}

	filter := watermarkRefFilter()
	if probe, err := m.Probe(ctx, inPath); err == nil {
		if imgW, imgH, imgErr := imageSize(watermarkPath); imgErr == nil {
			if placement, placeErr := PlaceWatermark(probe.Width, probe.Height, imgW, imgH); placeErr == nil {
				filter = watermarkFilter(placement)
				span.SetAttributes(
					attribute.Int("watermark.width", placement.Width),
					attribute.Int("watermark.height", placement.Height),
				)
			}
		} else {
			m.log.Debug("watermark header not decodable, sizing in ffmpeg", "path", watermarkPath, "error", imgErr)
		}
	}

	args := []string{
		"-i", inPath,
		"-i", watermarkPath,
		"-filter_complex", filter,
		"-c:a", "copy",
	}
	return m.produce(ctx, span, op, outPath, args)
}

func (m *tools) TranscodeQuality(ctx context.Context, inPath, outPath string, quality media.Quality) (string, error) {
	const op = "transcode"
	ctx, span := m.startSpan(ctx, op, inPath)
	defer span.End()
	span.SetAttributes(attribute.String("media.quality", string(quality)))

	height, ok := quality.Height()
	if !ok {
		return "", endSpan(span, &Failure{Op: op, Kind: FailureUnknownQuality, Err: fmt.Errorf("%w: %q", media.ErrUnknownQuality, quality)})
	}
	if err := requireInput(op, inPath); err != nil {
		return "", endSpan(span, err)
	}
	args := []string{
		"-i", inPath,
		"-vf", fmt.Sprintf("scale=-2:%d", height),
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "copy",
	}
	return m.produce(ctx, span, op, outPath, args)
}

// produce runs ffmpeg into a temp sibling of outPath and renames it over
// outPath on success.
func (m *tools) produce(ctx context.Context, span trace.Span, op, outPath string, args []string) (string, error) {
	if strings.TrimSpace(outPath) == "" {
		return "", endSpan(span, invalid(op, "outPath required"))
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", endSpan(span, &Failure{Op: op, Kind: FailureIO, Err: fmt.Errorf("mkdir out dir: %w", err)})
	}
	tmpPath := tempSibling(outPath)
	defer os.Remove(tmpPath)

	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), m.defaultTimeout)
	defer cancel()

	full := make([]string, 0, len(args)+5)
	full = append(full, "-hide_banner", "-loglevel", "error", "-y")
	full = append(full, args...)
	full = append(full, tmpPath)

	started := time.Now()
	stdout, stderr, err := m.runner.Run(ctx, m.ffmpegPath, full...)
	out := append(append([]byte(nil), stderr...), stdout...)
	if err != nil {
		f := classify(ctx, op, out, err)
		m.log.Warn("ffmpeg failed", "op", op, "kind", f.Kind, "transient", f.Transient, "out_path", outPath, "elapsed", time.Since(started))
		return "", endSpan(span, f)
	}
	info, statErr := os.Stat(tmpPath)
	if statErr != nil || info.Size() == 0 {
		return "", endSpan(span, &Failure{
			Op:         op,
			Kind:       FailureEngine,
			Err:        errors.New("engine produced no output"),
			Diagnostic: diagnostic(out),
		})
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return "", endSpan(span, &Failure{Op: op, Kind: FailureIO, Transient: true, Err: fmt.Errorf("rename output: %w", err)})
	}
	m.log.Debug("ffmpeg done", "op", op, "out_path", outPath, "bytes", info.Size(), "elapsed", time.Since(started))
	return outPath, nil
}

func (m *tools) writeWorkFile(data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(m.workDir, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workDir: %w", err)
	}
	path := filepath.Join(m.workDir, uuid.NewString()+suffix)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", func() {}, fmt.Errorf("write work file: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func (m *tools) startSpan(ctx context.Context, op, inPath string) (context.Context, trace.Span) {
	ctx = ctxutil.Default(ctx)
	attrs := []attribute.KeyValue{attribute.String("media.input", filepath.Base(inPath))}
	if td := ctxutil.GetTraceData(ctx); td != nil && td.VideoID != "" {
		attrs = append(attrs, attribute.String("video.id", td.VideoID))
	}
	return m.tracer.Start(ctx, "localmedia."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func requireInput(op, path string) error {
	if strings.TrimSpace(path) == "" {
		return invalid(op, "input path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Failure{Op: op, Kind: FailureInputMissing, Err: err}
		}
		return &Failure{Op: op, Kind: FailureIO, Err: err}
	}
	if info.IsDir() {
		return invalid(op, "input %s is a directory", path)
	}
	return nil
}

// tempSibling keeps the extension so ffmpeg picks the same muxer.
func tempSibling(outPath string) string {
	dir := filepath.Dir(outPath)
	base := filepath.Base(outPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, "."+stem+".tmp-"+uuid.NewString()[:8]+ext)
}
