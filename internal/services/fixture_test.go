package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	jobrepo "github.com/yungbote/mediaforge-backend/internal/data/repos/jobs"
	mediarepo "github.com/yungbote/mediaforge-backend/internal/data/repos/media"
	"github.com/yungbote/mediaforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/mediaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/mediaforge-backend/internal/platform/localmedia"
	"github.com/yungbote/mediaforge-backend/internal/platform/mediastore"
	"github.com/yungbote/mediaforge-backend/internal/realtime"
	"github.com/yungbote/mediaforge-backend/internal/realtime/bus"
)

// fakeTools writes a marker file for every transform. probeErr and editErr
// script failures.
type fakeTools struct {
	localmedia.Tools

	mu       sync.Mutex
	probeErr error
	editErr  error
	lastText localmedia.TextOverlay
	// lastVideo is the video id the last overlay call carried in its trace data.
	lastVideo string
}

func (f *fakeTools) Probe(ctx context.Context, path string) (localmedia.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeErr != nil {
		return localmedia.ProbeResult{}, f.probeErr
	}
	return localmedia.ProbeResult{Duration: 42.5, Width: 1920, Height: 1080, VideoCodec: "h264"}, nil
}

func (f *fakeTools) Trim(ctx context.Context, inPath, outPath string, start, end float64) (string, error) {
	return f.produce(inPath, outPath, "trim")
}

func (f *fakeTools) OverlayText(ctx context.Context, inPath, outPath string, overlay localmedia.TextOverlay) (string, error) {
	f.mu.Lock()
	f.lastText = overlay
	f.lastVideo = ""
	if td := ctxutil.GetTraceData(ctx); td != nil {
		f.lastVideo = td.VideoID
	}
	f.mu.Unlock()
	return f.produce(inPath, outPath, "text")
}

func (f *fakeTools) OverlayWatermark(ctx context.Context, inPath, outPath, watermarkPath string) (string, error) {
	return f.produce(inPath, outPath, "watermark")
}

func (f *fakeTools) produce(inPath, outPath, marker string) (string, error) {
	f.mu.Lock()
	err := f.editErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(inPath); statErr != nil {
		return "", &localmedia.Failure{Op: marker, Kind: localmedia.FailureInputMissing, Err: statErr}
	}
	if mkErr := os.MkdirAll(filepath.Dir(outPath), 0o755); mkErr != nil {
		return "", mkErr
	}
	return outPath, os.WriteFile(outPath, []byte(marker), 0o644)
}

type countingWaker struct{ n atomic.Int32 }

func (w *countingWaker) Wake() { w.n.Add(1) }

type fixture struct {
	db         *gorm.DB
	store      *mediastore.Store
	tools      *fakeTools
	waker      *countingWaker
	jobRepo    jobrepo.JobRunRepo
	videos     mediarepo.VideoRepo
	renditions mediarepo.RenditionRepo
	trims      mediarepo.TrimRepo
	items      mediarepo.DerivationItemRepo

	jobs      JobService
	intake    IntakeService
	readiness ReadinessService
	edits     EditService

	mu     sync.Mutex
	events []realtime.SSEMessage
}

func newFixture(t *testing.T, intakeCfg IntakeConfig, editCfg EditConfig) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	fx := &fixture{
		db:         db,
		store:      mediastore.New(t.TempDir()),
		tools:      &fakeTools{},
		waker:      &countingWaker{},
		jobRepo:    jobrepo.NewJobRunRepo(db, log),
		videos:     mediarepo.NewVideoRepo(db, log),
		renditions: mediarepo.NewRenditionRepo(db, log),
		trims:      mediarepo.NewTrimRepo(db, log),
		items:      mediarepo.NewDerivationItemRepo(db, log),
	}
	if err := fx.store.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	events := bus.NewMemoryBus(log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := events.StartForwarder(ctx, func(m realtime.SSEMessage) {
		fx.mu.Lock()
		fx.events = append(fx.events, m)
		fx.mu.Unlock()
	}); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	fx.jobs = NewJobService(log, fx.jobRepo, fx.waker)
	fx.intake = NewIntakeService(db, log, fx.videos, fx.items, fx.jobs, fx.tools, fx.store, events, nil, intakeCfg)
	fx.readiness = NewReadinessService(db, log, fx.videos, fx.renditions, fx.trims, fx.items, fx.jobs, fx.store, nil, events)
	fx.edits = NewEditService(db, log, fx.videos, fx.trims, fx.tools, fx.store, nil, editCfg)
	return fx
}

func (fx *fixture) upload(t *testing.T, name string) *UploadResult {
	t.Helper()
	res, err := fx.intake.Upload(context.Background(), name, strings.NewReader("video bytes"))
	if err != nil {
		t.Fatalf("Upload(%s): %v", name, err)
	}
	return res
}

func (fx *fixture) eventNames() []realtime.SSEEvent {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	out := make([]realtime.SSEEvent, 0, len(fx.events))
	for _, m := range fx.events {
		out = append(out, m.Event)
	}
	return out
}

func wantErr(t *testing.T, label string, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("%s: want %v, got %v", label, target, err)
	}
}

// countRows counts rows of model matching where.
func countRows(t *testing.T, db *gorm.DB, model interface{}, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func testingPostgres() bool {
	return os.Getenv("TEST_POSTGRES_DSN") != ""
}
