package hazard

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saferoute/hazardwatch/internal/geo"
)

// ErrDecode is matched by every *DecodeError.
var ErrDecode = errors.New("hazard: decode failed")

// DecodeError reports a change payload that could not be turned into an Event.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hazard: decode failed: %s: %v", e.Reason, e.Err)
	}
	return "hazard: decode failed: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) true for any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Envelope is the JSON document published on the change channel by the
// notify_hazard_changes trigger (and by the other feed drivers).
type Envelope struct {
	EventType      string   `json:"event_type"`
	HazardID       *int64   `json:"hazard_id"`
	HazardType     string   `json:"hazard_type,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	Description    string   `json:"description,omitempty"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	PriorityLevel  int      `json:"priority_level,omitempty"`
	AffectsTraffic bool     `json:"affects_traffic,omitempty"`
	WeatherRelated bool     `json:"weather_related,omitempty"`
	Status         string   `json:"status,omitempty"`

	OldStatus   string `json:"old_status,omitempty"`
	NewStatus   string `json:"new_status,omitempty"`
	OldSeverity string `json:"old_severity,omitempty"`
	NewSeverity string `json:"new_severity,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// timestampLayouts covers RFC 3339 and the default PostgreSQL text form of
// timestamptz.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999-07:00",
	"2006-01-02T15:04:05.999999-07",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999-07",
}

// Decode parses a raw change payload. Unknown event_type values decode to
// KindUnknown instead of failing. now is used when the payload carries no
// timestamp.
func Decode(raw []byte, now time.Time) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, &DecodeError{Reason: "invalid json", Err: err}
	}
	return FromEnvelope(env, now)
}

// FromEnvelope validates env and converts it into an Event.
func FromEnvelope(env Envelope, now time.Time) (Event, error) {
	if env.EventType == "" {
		return Event{}, &DecodeError{Reason: "missing event_type"}
	}
	if env.HazardID == nil {
		return Event{}, &DecodeError{Reason: "missing hazard_id"}
	}
	if env.Latitude == nil || env.Longitude == nil {
		return Event{}, &DecodeError{Reason: "missing location"}
	}
	loc := geo.Point{Lat: *env.Latitude, Lon: *env.Longitude}
	if !loc.Valid() {
		return Event{}, &DecodeError{Reason: fmt.Sprintf("location out of range (%f, %f)", loc.Lat, loc.Lon)}
	}

	evt := Event{
		Kind:             KindFromEventType(env.EventType),
		RawType:          env.EventType,
		HazardID:         *env.HazardID,
		HazardType:       env.HazardType,
		Severity:         Severity(strings.ToLower(firstNonEmpty(env.NewSeverity, env.Severity))),
		Location:         loc,
		PriorityLevel:    env.PriorityLevel,
		AffectsTraffic:   env.AffectsTraffic,
		WeatherRelated:   env.WeatherRelated,
		Description:      env.Description,
		Status:           firstNonEmpty(env.NewStatus, env.Status),
		PreviousStatus:   env.OldStatus,
		PreviousSeverity: Severity(strings.ToLower(env.OldSeverity)),
	}

	if evt.Kind == KindDeleted && evt.Status == "" {
		evt.Status = "deleted"
	}

	occurred, err := parseTimestamp(firstNonEmpty(env.Timestamp, env.UpdatedAt, env.CreatedAt))
	if err != nil {
		return Event{}, &DecodeError{Reason: "invalid timestamp", Err: err}
	}
	if occurred.IsZero() {
		occurred = now
	}
	evt.OccurredAt = occurred.UTC()

	return evt, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
