// Package hazard defines the typed hazard change events that flow from the
// change feed to the broadcaster.
package hazard

import (
	"time"

	"github.com/saferoute/hazardwatch/internal/geo"
)

// EventKind classifies a change notification.
type EventKind int

const (
	// KindUnknown is used for event_type values this build does not know.
	KindUnknown EventKind = iota
	KindCreated
	KindUpdated
	KindDeleted
)

// Wire values of event_type produced by the store trigger.
const (
	EventTypeCreated = "hazard_created"
	EventTypeUpdated = "hazard_updated"
	EventTypeDeleted = "hazard_deleted"
)

func (k EventKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindUpdated:
		return "updated"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// KindFromEventType maps an event_type string to its EventKind.
func KindFromEventType(eventType string) EventKind {
	switch eventType {
	case EventTypeCreated:
		return KindCreated
	case EventTypeUpdated:
		return KindUpdated
	case EventTypeDeleted:
		return KindDeleted
	default:
		return KindUnknown
	}
}

// Severity is the categorical severity of a hazard.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Known reports whether s is one of the four defined levels.
func (s Severity) Known() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Event is a decoded hazard change. It is built once per change-feed
// message and treated as immutable afterwards.
type Event struct {
	Kind    EventKind
	RawType string

	HazardID       int64
	HazardType     string
	Severity       Severity
	Location       geo.Point
	PriorityLevel  int
	AffectsTraffic bool
	WeatherRelated bool
	Description    string
	Status         string

	PreviousStatus   string
	PreviousSeverity Severity

	OccurredAt time.Time
}
