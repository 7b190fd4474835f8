package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/mediaforge-backend/internal/domain/media"
	"github.com/yungbote/mediaforge-backend/internal/http/response"
	"github.com/yungbote/mediaforge-backend/internal/platform/localmedia"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/realtime"
	"github.com/yungbote/mediaforge-backend/internal/services"
)

type fakeIntake struct {
	gotName string
	gotBody string
	err     error
}

func (f *fakeIntake) Upload(ctx context.Context, filename string, r io.Reader) (*services.UploadResult, error) {
	b, _ := io.ReadAll(r)
	f.gotName, f.gotBody = filename, string(b)
	if f.err != nil {
		return nil, f.err
	}
	return &services.UploadResult{Message: services.UploadAcceptedMessage, VideoID: uuid.New()}, nil
}

type fakeReadiness struct {
	file *services.RenditionFile
	err  error
}

func (f *fakeReadiness) ListVideos(ctx context.Context) ([]services.VideoSummary, error) {
	return []services.VideoSummary{{ID: uuid.New(), Filename: "a.mp4", Status: types.VideoStatusProcessing}}, f.err
}

func (f *fakeReadiness) GetVideo(ctx context.Context, id uuid.UUID) (*services.VideoDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.VideoDetail{Video: &types.Video{ID: id, Status: types.VideoStatusComplete}, Outcome: types.OutcomePartial}, nil
}

func (f *fakeReadiness) ResolveRendition(ctx context.Context, id uuid.UUID, quality string) (*services.RenditionFile, error) {
	return f.file, f.err
}

func (f *fakeReadiness) DeleteVideo(ctx context.Context, id uuid.UUID) error { return f.err }

type fakeEdits struct {
	res *services.EditResult
	err error
}

func (f *fakeEdits) Trim(ctx context.Context, id uuid.UUID, start, end float64) (*services.EditResult, error) {
	return f.res, f.err
}

func (f *fakeEdits) OverlayText(ctx context.Context, id uuid.UUID, text string, start, end float64) (*services.EditResult, error) {
	return f.res, f.err
}

func (f *fakeEdits) Watermark(ctx context.Context, id uuid.UUID) (*services.EditResult, error) {
	return f.res, f.err
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newEngine(t *testing.T, intake *fakeIntake, readiness *fakeReadiness, edits *fakeEdits) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testLogger(t)
	vh := NewVideoHandler(log, intake, readiness)
	eh := NewEditHandler(log, edits)
	r := gin.New()
	r.POST("/api/upload", vh.Upload)
	r.GET("/api/videos", vh.ListVideos)
	r.GET("/api/videos/:id", vh.GetVideo)
	r.DELETE("/api/videos/:id", vh.DeleteVideo)
	r.GET("/api/download/:video_id", vh.Download)
	r.POST("/api/trim", eh.Trim)
	r.POST("/api/overlay/text", eh.OverlayText)
	r.POST("/api/overlay/watermark", eh.Watermark)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func multipartUpload(t *testing.T, field, name, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte(body))
	_ = w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadHandler(t *testing.T) {
	intake := &fakeIntake{}
	r := newEngine(t, intake, &fakeReadiness{}, &fakeEdits{})

	rec := do(r, multipartUpload(t, "file", "clip.mp4", "bytes"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var res services.UploadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.Message != services.UploadAcceptedMessage || res.VideoID == uuid.Nil {
		t.Fatalf("upload body %s: %v", rec.Body.String(), err)
	}
	if intake.gotName != "clip.mp4" || intake.gotBody != "bytes" {
		t.Fatalf("intake saw name=%q body=%q", intake.gotName, intake.gotBody)
	}

	rec = do(r, multipartUpload(t, "video", "clip.mp4", "bytes"))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "missing_file" {
		t.Fatalf("missing field: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestMediaErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: x", types.ErrDuplicateFile), http.StatusBadRequest, "duplicate_file"},
		{types.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
		{types.ErrUploadTooLarge, http.StatusRequestEntityTooLarge, "upload_too_large"},
		{fmt.Errorf("%w: probe", types.ErrMetadata), http.StatusInternalServerError, "metadata_error"},
		{types.ErrBusy, http.StatusServiceUnavailable, "busy"},
	}
	for _, tc := range cases {
		r := newEngine(t, &fakeIntake{err: tc.err}, &fakeReadiness{}, &fakeEdits{})
		rec := do(r, multipartUpload(t, "file", "clip.mp4", "bytes"))
		if rec.Code != tc.status || errorCode(t, rec) != tc.code {
			t.Fatalf("%v: status=%d body=%s", tc.err, rec.Code, rec.Body.String())
		}
	}
}

func TestDownloadHandler(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "clip_720p.mp4")
	if err := os.WriteFile(p, []byte("rendition"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	id := uuid.New()

	r := newEngine(t, &fakeIntake{}, &fakeReadiness{file: &services.RenditionFile{Path: p, Name: "clip_720p.mp4", Quality: types.Quality720p}}, &fakeEdits{})
	rec := do(r, httptest.NewRequest(http.MethodGet, "/api/download/"+id.String()+"?quality=720p", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "rendition" {
		t.Fatalf("download: status=%d body=%q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "clip_720p.mp4") {
		t.Fatalf("Content-Disposition: %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("Content-Type: %q", got)
	}

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{types.ErrNotReady, http.StatusBadRequest, "not_ready"},
		{types.ErrUnknownQuality, http.StatusBadRequest, "unknown_quality"},
		{types.ErrNotFound, http.StatusNotFound, "video_not_found"},
		{types.ErrRenditionMissing, http.StatusNotFound, "rendition_not_found"},
		{types.ErrFileMissing, http.StatusNotFound, "file_missing"},
	}
	for _, tc := range cases {
		r := newEngine(t, &fakeIntake{}, &fakeReadiness{err: tc.err}, &fakeEdits{})
		rec := do(r, httptest.NewRequest(http.MethodGet, "/api/download/"+id.String()+"?quality=720p", nil))
		if rec.Code != tc.status || errorCode(t, rec) != tc.code {
			t.Fatalf("%v: status=%d body=%s", tc.err, rec.Code, rec.Body.String())
		}
	}

	rec = do(r, httptest.NewRequest(http.MethodGet, "/api/download/42?quality=720p", nil))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_video_id" {
		t.Fatalf("bad id: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestVideoReadHandlers(t *testing.T) {
	r := newEngine(t, &fakeIntake{}, &fakeReadiness{}, &fakeEdits{})
	id := uuid.New()

	rec := do(r, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	var list []services.VideoSummary
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &list) != nil || len(list) != 1 {
		t.Fatalf("list: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(r, httptest.NewRequest(http.MethodGet, "/api/videos/"+id.String(), nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"outcome":"partial"`) {
		t.Fatalf("get: status=%d body=%s", rec.Code, rec.Body.String())
	}

	r = newEngine(t, &fakeIntake{}, &fakeReadiness{err: types.ErrVideoBusy}, &fakeEdits{})
	rec = do(r, httptest.NewRequest(http.MethodDelete, "/api/videos/"+id.String(), nil))
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "video_busy" {
		t.Fatalf("delete busy: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestEditHandlers(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "clip_trimmed_1_2.mp4")
	if err := os.WriteFile(p, []byte("trimmed"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ok := &fakeEdits{res: &services.EditResult{Path: p, Name: "clip_trimmed_1_2.mp4"}}
	id := uuid.New().String()

	r := newEngine(t, &fakeIntake{}, &fakeReadiness{}, ok)
	for _, tc := range []struct{ path, body string }{
		{"/api/trim", `{"video_id":"` + id + `","start_time":1,"end_time":2}`},
		{"/api/overlay/text", `{"video_id":"` + id + `","text":"hi","start_time":0,"end_time":2}`},
		{"/api/overlay/watermark", `{"video_id":"` + id + `"}`},
	} {
		req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		rec := do(r, req)
		if rec.Code != http.StatusOK || rec.Body.String() != "trimmed" {
			t.Fatalf("%s: status=%d body=%q", tc.path, rec.Code, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/overlay/text", strings.NewReader(`{"video_id":"`+id+`"}`))
	req.Header.Set("Content-Type", "application/json")
	if rec := do(r, req); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_request" {
		t.Fatalf("missing text: status=%d body=%s", rec.Code, rec.Body.String())
	}

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{types.ErrAssetMissing, http.StatusNotFound, "asset_missing"},
		{types.ErrNotFound, http.StatusNotFound, "video_not_found"},
		{&localmedia.Failure{Op: "overlay_watermark", Kind: localmedia.FailureEngine}, http.StatusInternalServerError, "transform_failed"},
	}
	for _, tc := range cases {
		r := newEngine(t, &fakeIntake{}, &fakeReadiness{}, &fakeEdits{err: tc.err})
		req := httptest.NewRequest(http.MethodPost, "/api/overlay/watermark", strings.NewReader(`{"video_id":"`+id+`"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := do(r, req)
		if rec.Code != tc.status || errorCode(t, rec) != tc.code {
			t.Fatalf("%v: status=%d body=%s", tc.err, rec.Code, rec.Body.String())
		}
	}
}

func TestRealtimeStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := testLogger(t)
	hub := realtime.NewSSEHub(log)
	h := NewRealtimeHandler(log, hub)
	r := gin.New()
	r.GET("/api/events", h.Stream)

	if rec := do(r, httptest.NewRequest(http.MethodGet, "/api/events?video_id=nope", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad video_id: status=%d", rec.Code)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()
	videoID := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?video_id="+videoID.String(), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type: %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(videoID.String()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Forward(realtime.VideoEvent(realtime.SSEEventVideoComplete, realtime.VideoEventData{VideoID: videoID, Outcome: "complete"}))

	buf := make([]byte, 4096)
	var got strings.Builder
	for !strings.Contains(got.String(), "\n\n") {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			t.Fatalf("read stream: %v (got %q)", err, got.String())
		}
	}
	if !strings.HasPrefix(got.String(), "event: VideoComplete\ndata: ") || !strings.Contains(got.String(), videoID.String()) {
		t.Fatalf("stream: %q", got.String())
	}
}
