package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"adas-dashboard/internal/model"
)

var (
	// ErrUnreachable wraps transport failures: refused connections, DNS, timeouts.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrDisallowedPath is returned for paths outside the read-only allowlist.
	ErrDisallowedPath = errors.New("path is not allowed in read-only mode")
)

var allowedReadPaths = map[string]struct{}{
	"/camera/status": {},
	"/alerts":        {},
	"/captures":      {},
	"/admin/stats":   {},
	"/video_feed":    {},
}

var allowedReadPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/alerts/[0-9]+/image$`),
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request %s failed with status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Media is a fully buffered binary response.
type Media struct {
	ContentType string
	Data        []byte
}

// Stream is an open streaming response; the caller must close Body.
type Stream struct {
	ContentType string
	Body        io.ReadCloser
}

// Client is a strict read-only client for the detection backend.
type Client struct {
	baseURL string
	http    *resty.Client
	stream  *resty.Client
}

// NewClient builds a client. timeout bounds ordinary requests; the video feed
// is a long-lived stream and is bounded only by its context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		baseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		stream: resty.New().
			SetBaseURL(baseURL).
			SetDoNotParseResponse(true),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) CameraStatus(ctx context.Context) (model.CameraStatus, error) {
	var out model.CameraStatus
	if err := c.getJSON(ctx, "/camera/status", nil, &out); err != nil {
		return model.CameraStatus{}, err
	}
	return out, nil
}

// Alerts returns the newest alerts first.
func (c *Client) Alerts(ctx context.Context, limit int) ([]model.Alert, error) {
	var out []model.Alert
	if err := c.getJSON(ctx, "/alerts", limitQuery(limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Captures(ctx context.Context, limit int) ([]model.Capture, error) {
	var out []model.Capture
	if err := c.getJSON(ctx, "/captures", limitQuery(limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AdminStats(ctx context.Context) (model.AdminStats, error) {
	var out model.AdminStats
	if err := c.getJSON(ctx, "/admin/stats", nil, &out); err != nil {
		return model.AdminStats{}, err
	}
	return out, nil
}

func (c *Client) AlertImage(ctx context.Context, id int64) (Media, error) {
	path := "/alerts/" + strconv.FormatInt(id, 10) + "/image"
	if err := checkPath(path); err != nil {
		return Media{}, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "image/*").
		Get(path)
	if err != nil {
		return Media{}, fmt.Errorf("%w: request %s: %v", ErrUnreachable, path, err)
	}
	if resp.IsError() {
		return Media{}, statusError(path, resp.StatusCode(), resp.Body())
	}

	return Media{
		ContentType: resp.Header().Get("Content-Type"),
		Data:        resp.Body(),
	}, nil
}

// VideoFeed opens the backend's multipart JPEG stream.
func (c *Client) VideoFeed(ctx context.Context) (Stream, error) {
	const path = "/video_feed"
	if err := checkPath(path); err != nil {
		return Stream{}, err
	}
	resp, err := c.stream.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return Stream{}, fmt.Errorf("%w: request %s: %v", ErrUnreachable, path, err)
	}

	body := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		_ = body.Close()
		return Stream{}, statusError(path, resp.StatusCode(), snippet)
	}

	return Stream{
		ContentType: resp.Header().Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string]string, out any) error {
	if err := checkPath(path); err != nil {
		return err
	}

	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("%w: request %s: %v", ErrUnreachable, path, err)
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return statusError(path, resp.StatusCode(), resp.Body())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}

	return nil
}

func checkPath(path string) error {
	if _, ok := allowedReadPaths[path]; ok {
		return nil
	}
	for _, pattern := range allowedReadPatterns {
		if pattern.MatchString(path) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrDisallowedPath, path)
}

func statusError(path string, code int, body []byte) error {
	if len(body) > 512 {
		body = body[:512]
	}
	return &StatusError{Path: path, StatusCode: code, Body: strings.TrimSpace(string(body))}
}

func limitQuery(limit int) map[string]string {
	if limit <= 0 {
		return nil
	}
	return map[string]string{"limit": strconv.Itoa(limit)}
}
