package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"adas-dashboard/internal/backend"
	"adas-dashboard/internal/camera"
	"adas-dashboard/internal/mjpeg"
	"adas-dashboard/internal/model"
	"adas-dashboard/internal/voice"
)

type dashboard interface {
	Snapshot() (model.DashboardSnapshot, bool)
	Ready() bool
	PollInterval() time.Duration
	Notifications() []model.Notification
	Dismiss(id int64) bool
	ToggleCamera() model.ConnectivityState
	ReportFeedError(err error) model.ConnectivityState
	Mode() model.DisplayMode
	Frame(ctx context.Context) (image.Image, error)
	TakeSnapshot(ctx context.Context) (camera.Snapshot, error)
	AlertImage(ctx context.Context, id int64) (backend.Media, error)
	VideoFeed(ctx context.Context) (backend.Stream, error)
	TriggerVoice() error
	SubmitTranscript(transcript string) (voice.Command, bool, error)
}

// Options brand the page and locate optional handlers.
type Options struct {
	PageTitle    string
	PageSubtitle string
	WebDir       string
	// Events serves the WebSocket channel when set.
	Events http.Handler
	// FrameInterval paces the local MJPEG feed.
	FrameInterval time.Duration
}

// API hosts the dashboard endpoints, media proxies and static UI.
type API struct {
	screen dashboard
	opts   Options
	logger *zap.Logger
	router *mux.Router
}

func New(screen dashboard, opts Options, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.WebDir == "" {
		opts.WebDir = "web"
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 100 * time.Millisecond
	}

	api := &API{
		screen: screen,
		opts:   opts,
		logger: logger,
		router: mux.NewRouter(),
	}

	r := api.router
	r.Use(api.logRequests)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		methodNotAllowed(w)
	})

	r.HandleFunc("/api/v1/dashboard", api.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/healthz", api.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", api.handleReadyz).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/notifications", api.handleNotifications).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/notifications/{id:[0-9]+}", api.handleDismiss).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/camera/toggle", api.handleToggle).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/camera/snapshot", api.handleSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/camera/local_feed", api.handleLocalFeed).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/video_feed", api.handleVideoFeed).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/alerts/{id:[0-9]+}/image", api.handleAlertImage).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/voice/listen", api.handleVoiceListen).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/voice/transcript", api.handleVoiceTranscript).Methods(http.MethodPost)
	if opts.Events != nil {
		r.Handle("/ws", opts.Events).Methods(http.MethodGet)
	}
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(opts.WebDir))).Methods(http.MethodGet, http.MethodHead)

	return api
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := a.screen.Snapshot()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot unavailable"})
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, dashboardResponse{
		DashboardSnapshot: snapshot,
		PageTitle:         a.opts.PageTitle,
		PageSubtitle:      a.opts.PageSubtitle,
		PollIntervalMS:    a.screen.PollInterval().Milliseconds(),
		Tone:              model.AlertTone,
	})
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !a.screen.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{"notifications": a.screen.Notifications()})
}

func (a *API) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !a.screen.Dismiss(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "notification not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleToggle(w http.ResponseWriter, r *http.Request) {
	state := a.screen.ToggleCamera()
	writeJSON(w, http.StatusOK, model.ConnectivityChange{
		State:       state,
		DisplayMode: model.ModeFor(state),
		Reason:      "toggle",
	})
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.screen.TakeSnapshot(r.Context())
	if err != nil {
		if errors.Is(err, camera.ErrInactive) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "local camera is not live"})
			return
		}
		a.logger.Warn("Snapshot failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshot failed"})
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="`+snap.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Data)
}

func (a *API) handleLocalFeed(w http.ResponseWriter, r *http.Request) {
	if a.screen.Mode() != model.DisplayLocal {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "display mode is remote"})
		return
	}
	if _, err := a.screen.Frame(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "local camera is not live"})
		return
	}

	clearWriteDeadline(w)
	if err := mjpeg.Serve(r.Context(), w, a.screen, a.opts.FrameInterval, a.logger); err != nil {
		a.logger.Debug("Local feed closed", zap.Error(err))
	}
}

// handleVideoFeed proxies the backend stream. A failure to open or relay it
// falls back to the local camera.
func (a *API) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	stream, err := a.screen.VideoFeed(r.Context())
	if err != nil {
		a.screen.ReportFeedError(err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "video feed unavailable"})
		return
	}
	defer stream.Body.Close()

	clearWriteDeadline(w)
	contentType := stream.ContentType
	if contentType == "" {
		contentType = mjpeg.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if err := copyFlushing(w, stream.Body); err != nil && r.Context().Err() == nil {
		a.screen.ReportFeedError(err)
	}
}

func (a *API) handleAlertImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	media, err := a.screen.AlertImage(r.Context(), id)
	if err != nil {
		var statusErr *backend.StatusError
		if errors.As(err, &statusErr) {
			writeJSON(w, statusErr.StatusCode, map[string]string{"error": statusErr.Body})
			return
		}
		a.logger.Warn("Alert image fetch failed", zap.Int64("alert_id", id), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "alert image unavailable"})
		return
	}

	contentType := media.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(media.Data)
}

func (a *API) handleVoiceListen(w http.ResponseWriter, r *http.Request) {
	switch err := a.screen.TriggerVoice(); {
	case errors.Is(err, voice.ErrUnsupported):
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": voice.FeedbackUnsupported})
	case errors.Is(err, voice.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already listening"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusAccepted, map[string]bool{"listening": true})
	}
}

type transcriptRequest struct {
	Transcript string `json:"transcript"`
}

type transcriptResponse struct {
	Command voice.Command `json:"command,omitempty"`
	Matched bool          `json:"matched"`
}

func (a *API) handleVoiceTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid transcript payload"})
		return
	}

	command, matched, err := a.screen.SubmitTranscript(req.Transcript)
	if errors.Is(err, voice.ErrBusy) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already listening"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Command: command, Matched: matched})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// clearWriteDeadline lifts the server write timeout for long-lived streams.
func clearWriteDeadline(w http.ResponseWriter) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
}

func copyFlushing(w http.ResponseWriter, body io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type dashboardResponse struct {
	model.DashboardSnapshot
	PageTitle      string     `json:"page_title"`
	PageSubtitle   string     `json:"page_subtitle"`
	PollIntervalMS int64      `json:"poll_interval_ms"`
	Tone           model.Tone `json:"tone"`
}
