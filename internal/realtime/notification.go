package realtime

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/saferoute/hazardwatch/internal/geo"
	"github.com/saferoute/hazardwatch/internal/hazard"
)

// Notification types. Clients key their behaviour off these values.
const (
	TypeConnected      = "connected"
	TypeNewHazard      = "new_hazard"
	TypeHazardUpdated  = "hazard_updated"
	TypeHazardResolved = "hazard_resolved"
	TypeHazardEvent    = "hazard_event"
)

// Urgency levels.
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyNormal = "normal"
)

// Notification is one JSON message on the stream.
type Notification struct {
	Type           string         `json:"type"`
	EventType      string         `json:"event_type,omitempty"`
	Hazard         *HazardPayload `json:"hazard,omitempty"`
	Message        string         `json:"message"`
	Timestamp      string         `json:"timestamp"`
	Urgency        string         `json:"urgency,omitempty"`
	DistanceMeters *int           `json:"distanceMeters,omitempty"`
}

// HazardPayload carries everything a client needs to render an alert.
type HazardPayload struct {
	ID               int64     `json:"id"`
	HazardType       string    `json:"hazardType"`
	Severity         string    `json:"severity"`
	Description      string    `json:"description"`
	Location         geo.Point `json:"location"`
	PriorityLevel    int       `json:"priorityLevel"`
	AffectsTraffic   bool      `json:"affectsTraffic"`
	WeatherRelated   bool      `json:"weatherRelated"`
	Status           string    `json:"status,omitempty"`
	PreviousStatus   string    `json:"previousStatus,omitempty"`
	PreviousSeverity string    `json:"previousSeverity,omitempty"`
	OccurredAt       string    `json:"occurredAt"`
}

// NotificationType maps an event kind to the wire type.
func NotificationType(kind hazard.EventKind) string {
	switch kind {
	case hazard.KindCreated:
		return TypeNewHazard
	case hazard.KindUpdated:
		return TypeHazardUpdated
	case hazard.KindDeleted:
		return TypeHazardResolved
	default:
		return TypeHazardEvent
	}
}

// Urgency maps severity to urgency.
func Urgency(sev hazard.Severity) string {
	switch sev {
	case hazard.SeverityCritical:
		return UrgencyHigh
	case hazard.SeverityHigh:
		return UrgencyMedium
	default:
		return UrgencyNormal
	}
}

// RoundDistance rounds meters to the nearest whole meter.
func RoundDistance(meters float64) int {
	return int(math.Round(meters))
}

// BuildNotification formats evt for one session. distance is nil when the
// session has no location.
func BuildNotification(evt hazard.Event, distance *int, now time.Time) Notification {
	return Notification{
		Type:      NotificationType(evt.Kind),
		EventType: evt.RawType,
		Hazard: &HazardPayload{
			ID:               evt.HazardID,
			HazardType:       evt.HazardType,
			Severity:         string(evt.Severity),
			Description:      evt.Description,
			Location:         evt.Location,
			PriorityLevel:    evt.PriorityLevel,
			AffectsTraffic:   evt.AffectsTraffic,
			WeatherRelated:   evt.WeatherRelated,
			Status:           evt.Status,
			PreviousStatus:   evt.PreviousStatus,
			PreviousSeverity: string(evt.PreviousSeverity),
			OccurredAt:       formatTimestamp(evt.OccurredAt),
		},
		Message:        notificationMessage(evt, distance),
		Timestamp:      formatTimestamp(now),
		Urgency:        Urgency(evt.Severity),
		DistanceMeters: distance,
	}
}

// ConnectedNotification is the handshake enqueued before any hazard.
func ConnectedNotification(now time.Time) Notification {
	return Notification{
		Type:      TypeConnected,
		Message:   "Connected to hazard alerts",
		Timestamp: formatTimestamp(now),
	}
}

func notificationMessage(evt hazard.Event, distance *int) string {
	label := hazardLabel(evt.HazardType)
	severity := string(evt.Severity)
	if severity == "" {
		severity = "unknown"
	}

	var msg string
	switch evt.Kind {
	case hazard.KindCreated:
		msg = fmt.Sprintf("New %s severity %s reported", severity, label)
	case hazard.KindUpdated:
		msg = fmt.Sprintf("%s updated (%s severity)", capitalize(label), severity)
		if evt.PreviousStatus != "" && evt.PreviousStatus != evt.Status {
			msg += fmt.Sprintf(", status changed from %s to %s", evt.PreviousStatus, evt.Status)
		}
	case hazard.KindDeleted:
		msg = fmt.Sprintf("%s has been resolved", capitalize(label))
	default:
		msg = fmt.Sprintf("%s changed (%s)", capitalize(label), evt.RawType)
	}
	if distance != nil {
		msg += fmt.Sprintf(" %dm away", *distance)
	}
	return msg
}

func hazardLabel(hazardType string) string {
	if hazardType == "" {
		return "hazard"
	}
	return strings.ReplaceAll(hazardType, "_", " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
