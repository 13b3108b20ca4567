package alerts

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"adas-dashboard/internal/model"
)

// Captures carry no classification, so synthesized alerts use fixed placeholders.
const (
	PlaceholderClass      = "car"
	PlaceholderConfidence = 0.9
)

var ErrMalformedDistance = errors.New("malformed capture distance")

// FromCapture maps a fallback capture record into alert shape. The capture
// timestamp doubles as the alert id.
func FromCapture(capture model.Capture) (model.Alert, error) {
	distance, err := ParseDistance(capture.Distance)
	if err != nil {
		return model.Alert{}, err
	}

	return model.Alert{
		ID:          capture.Timestamp,
		Timestamp:   model.NewTimestamp(time.Unix(capture.Timestamp, 0)),
		ObjectClass: PlaceholderClass,
		Confidence:  PlaceholderConfidence,
		Distance:    distance,
		ImagePath:   capture.URL,
	}, nil
}

// ParseDistance parses values such as "12.3m".
func ParseDistance(value string) (float64, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(value), "m")
	distance, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
	if err != nil || math.IsNaN(distance) || math.IsInf(distance, 0) || distance < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDistance, value)
	}
	return distance, nil
}
