package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"adas-dashboard/internal/backend"
	"adas-dashboard/internal/camera"
	"adas-dashboard/internal/model"
	"adas-dashboard/internal/voice"
)

type fakeDashboard struct {
	snapshot      model.DashboardSnapshot
	ok            bool
	ready         bool
	notifications []model.Notification
	dismissed     []int64
	state         model.ConnectivityState
	feedErrors    int
	snap          camera.Snapshot
	snapErr       error
	image         backend.Media
	imageErr      error
	feed          string
	feedErr       error
	voiceErr      error
	transcripts   []string
}

func (f *fakeDashboard) Snapshot() (model.DashboardSnapshot, bool) { return f.snapshot, f.ok }
func (f *fakeDashboard) Ready() bool                               { return f.ready }
func (f *fakeDashboard) PollInterval() time.Duration               { return 2 * time.Second }
func (f *fakeDashboard) Notifications() []model.Notification       { return f.notifications }
func (f *fakeDashboard) Mode() model.DisplayMode                   { return model.ModeFor(f.state) }

func (f *fakeDashboard) Dismiss(id int64) bool {
	for _, n := range f.notifications {
		if n.ID == id {
			f.dismissed = append(f.dismissed, id)
			return true
		}
	}
	return false
}

func (f *fakeDashboard) ToggleCamera() model.ConnectivityState {
	if f.state == model.OnlineRemoteCamera {
		f.state = model.OnlineNoCameraFallback
	}
	return f.state
}

func (f *fakeDashboard) ReportFeedError(error) model.ConnectivityState {
	f.feedErrors++
	return model.OnlineNoCameraFallback
}

func (f *fakeDashboard) Frame(context.Context) (image.Image, error) {
	return nil, camera.ErrInactive
}

func (f *fakeDashboard) TakeSnapshot(context.Context) (camera.Snapshot, error) {
	return f.snap, f.snapErr
}

func (f *fakeDashboard) AlertImage(context.Context, int64) (backend.Media, error) {
	return f.image, f.imageErr
}

func (f *fakeDashboard) VideoFeed(context.Context) (backend.Stream, error) {
	if f.feedErr != nil {
		return backend.Stream{}, f.feedErr
	}
	return backend.Stream{ContentType: "multipart/x-mixed-replace; boundary=frame", Body: io.NopCloser(strings.NewReader(f.feed))}, nil
}

func (f *fakeDashboard) TriggerVoice() error { return f.voiceErr }

func (f *fakeDashboard) SubmitTranscript(transcript string) (voice.Command, bool, error) {
	f.transcripts = append(f.transcripts, transcript)
	command, ok := voice.Classify(transcript)
	return command, ok, nil
}

func newAPI(d *fakeDashboard) *API {
	return New(d, Options{PageTitle: "ADAS Control Center", PageSubtitle: "Advanced Driver Assistance System"}, nil)
}

func TestDashboardEndpointReturnsSnapshot(t *testing.T) {
	api := newAPI(&fakeDashboard{
		snapshot: model.DashboardSnapshot{
			GeneratedAt:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
			Connectivity: model.OnlineRemoteCamera,
			DisplayMode:  model.DisplayRemote,
			SourceOnline: true,
			EmptyState:   model.EmptyNoAlerts,
		},
		ok:    true,
		ready: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store cache header")
	}

	var payload struct {
		model.DashboardSnapshot
		PageTitle      string     `json:"page_title"`
		PageSubtitle   string     `json:"page_subtitle"`
		PollIntervalMS int64      `json:"poll_interval_ms"`
		Tone           model.Tone `json:"tone"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if !payload.SourceOnline || payload.DisplayMode != model.DisplayRemote {
		t.Fatalf("unexpected connectivity: %+v", payload.DashboardSnapshot)
	}
	if payload.EmptyState != model.EmptyNoAlerts {
		t.Fatalf("unexpected empty state %q", payload.EmptyState)
	}
	if payload.PageTitle != "ADAS Control Center" || payload.PageSubtitle != "Advanced Driver Assistance System" {
		t.Fatalf("unexpected page branding: %+v", payload)
	}
	if payload.PollIntervalMS != 2000 {
		t.Fatalf("unexpected poll interval ms: %d", payload.PollIntervalMS)
	}
	if payload.Tone != model.AlertTone {
		t.Fatalf("unexpected tone: %+v", payload.Tone)
	}
}

func TestDashboardEndpointUnavailableBeforeFirstProbe(t *testing.T) {
	api := newAPI(&fakeDashboard{})

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestDashboardEndpointMethodNotAllowed(t *testing.T) {
	api := newAPI(&fakeDashboard{ok: true, ready: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard", nil)
	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestReadyz(t *testing.T) {
	api := newAPI(&fakeDashboard{ok: true, ready: false})

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when not ready, got %d", rr.Code)
	}

	api = newAPI(&fakeDashboard{ok: true, ready: true})
	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", rr.Code)
	}
}

func TestDismissNotification(t *testing.T) {
	d := &fakeDashboard{notifications: []model.Notification{{ID: 7}}}
	api := newAPI(d)

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/notifications/7", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if len(d.dismissed) != 1 || d.dismissed[0] != 7 {
		t.Fatalf("expected notification 7 dismissed, got %v", d.dismissed)
	}

	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/notifications/8", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestToggleCamera(t *testing.T) {
	d := &fakeDashboard{state: model.OnlineRemoteCamera}
	api := newAPI(d)

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/camera/toggle", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var change model.ConnectivityChange
	if err := json.Unmarshal(rr.Body.Bytes(), &change); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if change.DisplayMode != model.DisplayLocal {
		t.Fatalf("expected local display after toggle, got %s", change.DisplayMode)
	}
}

func TestSnapshotDownload(t *testing.T) {
	d := &fakeDashboard{snap: camera.Snapshot{Filename: "capture_1772352000000.jpg", Data: []byte{0xff, 0xd8, 0xff, 0xd9}}}
	api := newAPI(d)

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/camera/snapshot", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="capture_1772352000000.jpg"` {
		t.Fatalf("unexpected disposition %q", got)
	}

	d.snapErr = camera.ErrInactive
	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/camera/snapshot", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 without a live camera, got %d", rr.Code)
	}
}

func TestLocalFeedRequiresLocalMode(t *testing.T) {
	api := newAPI(&fakeDashboard{state: model.OnlineRemoteCamera})

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/camera/local_feed", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestVideoFeedProxiesAndReportsFailure(t *testing.T) {
	d := &fakeDashboard{feed: "--frame\r\nContent-Type: image/jpeg\r\n\r\n"}
	api := newAPI(d)

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/video_feed", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Body.String(), "--frame") {
		t.Fatalf("expected proxied stream body, got %q", rr.Body.String())
	}
	if d.feedErrors != 0 {
		t.Fatalf("unexpected feed error report")
	}

	d.feedErr = errors.New("connection refused")
	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/video_feed", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if d.feedErrors != 1 {
		t.Fatalf("expected feed failure to be reported once, got %d", d.feedErrors)
	}
}

func TestAlertImagePassesThroughStatus(t *testing.T) {
	d := &fakeDashboard{image: backend.Media{ContentType: "image/jpeg", Data: []byte{1, 2, 3}}}
	api := newAPI(d)

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/12/image", nil))
	if rr.Code != http.StatusOK || rr.Body.Len() != 3 {
		t.Fatalf("expected image bytes, got %d (%d bytes)", rr.Code, rr.Body.Len())
	}

	d.imageErr = &backend.StatusError{Path: "/alerts/12/image", StatusCode: http.StatusNotFound, Body: "Alert not found"}
	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/12/image", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestVoiceEndpoints(t *testing.T) {
	d := &fakeDashboard{voiceErr: voice.ErrUnsupported}
	api := newAPI(d)

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/voice/listen", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 when unsupported, got %d", rr.Code)
	}

	d.voiceErr = voice.ErrBusy
	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/voice/listen", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 when busy, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/voice/transcript", strings.NewReader(`{"transcript":"take a photo"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp transcriptResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Matched || resp.Command != voice.CommandCapture {
		t.Fatalf("unexpected transcript response %+v", resp)
	}

	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/voice/transcript", strings.NewReader(`{`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestStaticUIServed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>ADAS</h1>"), 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	api := New(&fakeDashboard{}, Options{WebDir: dir}, nil)

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ADAS") {
		t.Fatalf("expected index page, got %d", rr.Code)
	}
}
