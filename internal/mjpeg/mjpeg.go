// Package mjpeg writes multipart JPEG streams that browsers render in an
// <img> element.
package mjpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const Boundary = "frame"

// ContentType is the header value announcing a frame stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// FrameSource yields the current frame.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// Writer frames JPEG payloads onto an underlying writer.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

func NewWriter(w io.Writer) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// WriteFrame writes one part and flushes it to the client.
func (mw *Writer) WriteFrame(data []byte) error {
	if _, err := fmt.Fprintf(mw.w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(data)); err != nil {
		return err
	}
	if _, err := mw.w.Write(data); err != nil {
		return err
	}
	if _, err := io.WriteString(mw.w, "\r\n"); err != nil {
		return err
	}
	if mw.flusher != nil {
		mw.flusher.Flush()
	}
	return nil
}

// Encode renders img as a JPEG.
func Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Serve streams frames from source every interval until ctx ends or the
// client goes away. A frame error ends the stream.
func Serve(ctx context.Context, w http.ResponseWriter, source FrameSource, interval time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	header := w.Header()
	header.Set("Content-Type", ContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("Pragma", "no-cache")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writer := NewWriter(w)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frames := 0
	for {
		img, err := source.Frame(ctx)
		if err != nil {
			logger.Debug("MJPEG stream ended", zap.Int("frames", frames), zap.Error(err))
			return err
		}
		data, err := Encode(img, 80)
		if err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
		if err := writer.WriteFrame(data); err != nil {
			return err
		}
		frames++

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
