package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONRejectsUnknownPath(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("blocked path must not reach the server: %s", r.URL.Path)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 2*time.Second)

	var out map[string]any
	err := client.getJSON(context.Background(), "/api/chat", nil, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisallowedPath))
}

func TestAlertsSendsLimitAndDecodesMixedTimestamps(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alerts" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Query().Get("limit") != "10" {
			t.Fatalf("missing limit query")
		}
		_, _ = w.Write([]byte(`[
			{"id":42,"timestamp":"2026-03-01T08:00:05","object_class":"person","confidence":0.82,"distance":24.5,"image_path":"captured_alerts/alert_42.jpg"},
			{"id":41,"timestamp":1772352000,"object_class":"car","confidence":0.91,"distance":61,"image_path":""}
		]`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 2*time.Second)
	alerts, err := client.Alerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, int64(42), alerts[0].ID)
	assert.Equal(t, "person", alerts[0].ObjectClass)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 5, 0, time.UTC), alerts[0].Timestamp.Time)
	assert.Equal(t, time.Unix(1772352000, 0).UTC(), alerts[1].Timestamp.Time)
}

func TestCameraStatusNon2xxIsStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("camera not available"))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 2*time.Second)
	_, err := client.CameraStatus(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "camera not available", statusErr.Body)
}

func TestUnreachableBackendIsClassified(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := client.AdminStats(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
}

func TestMalformedJSONIsDecodeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"camera_initialized":`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 2*time.Second)
	_, err := client.CameraStatus(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnreachable))
	assert.Contains(t, err.Error(), "decode response /camera/status")
}

func TestAlertImageAndVideoFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/alerts/7/image":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xd9})
		case "/video_feed":
			w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
			_, _ = w.Write([]byte("--frame\r\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 2*time.Second)

	media, err := client.AlertImage(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", media.ContentType)
	assert.Len(t, media.Data, 4)

	_, err = client.AlertImage(context.Background(), 8)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	stream, err := client.VideoFeed(context.Background())
	require.NoError(t, err)
	defer stream.Body.Close()
	body, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", string(body))
	assert.Contains(t, stream.ContentType, "multipart/x-mixed-replace")
}

func TestAlertImageIsBoundByAllowlist(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("blocked path must not reach the server: %s", r.URL.Path)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 2*time.Second)
	_, err := client.AlertImage(context.Background(), -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisallowedPath))

	assert.NoError(t, checkPath("/alerts/42/image"))
	assert.ErrorIs(t, checkPath("/alerts/42/image/../delete"), ErrDisallowedPath)
	assert.ErrorIs(t, checkPath("/alerts/abc/image"), ErrDisallowedPath)
}
