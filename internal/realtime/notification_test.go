package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/saferoute/hazardwatch/internal/geo"
	"github.com/saferoute/hazardwatch/internal/hazard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationType(t *testing.T) {
	tests := []struct {
		kind hazard.EventKind
		want string
	}{
		{hazard.KindCreated, TypeNewHazard},
		{hazard.KindUpdated, TypeHazardUpdated},
		{hazard.KindDeleted, TypeHazardResolved},
		{hazard.KindUnknown, TypeHazardEvent},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, NotificationType(tt.kind))
		})
	}
}

func TestUrgency(t *testing.T) {
	assert.Equal(t, UrgencyHigh, Urgency(hazard.SeverityCritical))
	assert.Equal(t, UrgencyMedium, Urgency(hazard.SeverityHigh))
	assert.Equal(t, UrgencyNormal, Urgency(hazard.SeverityMedium))
	assert.Equal(t, UrgencyNormal, Urgency(hazard.SeverityLow))
	assert.Equal(t, UrgencyNormal, Urgency(""))
}

func TestBuildNotification_DeletedIsResolved(t *testing.T) {
	evt := hazard.Event{
		Kind:       hazard.KindDeleted,
		RawType:    hazard.EventTypeDeleted,
		HazardID:   7,
		HazardType: "road_closure",
		Severity:   hazard.SeverityLow,
		Status:     "deleted",
	}
	n := BuildNotification(evt, nil, time.Now())

	assert.Equal(t, TypeHazardResolved, n.Type)
	assert.Equal(t, UrgencyNormal, n.Urgency)
	assert.Equal(t, hazard.EventTypeDeleted, n.EventType)
	assert.Equal(t, "Road closure has been resolved", n.Message)
}

func TestBuildNotification_WireFormat(t *testing.T) {
	occurred := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	now := time.Date(2024, 3, 1, 9, 30, 1, 0, time.UTC)
	evt := hazard.Event{
		Kind:           hazard.KindCreated,
		RawType:        hazard.EventTypeCreated,
		HazardID:       12,
		HazardType:     "flooding",
		Severity:       hazard.SeverityCritical,
		Location:       geo.Point{Lat: 51.5, Lon: -0.12},
		PriorityLevel:  1,
		AffectsTraffic: true,
		WeatherRelated: true,
		Description:    "Underpass flooded",
		Status:         "active",
		OccurredAt:     occurred,
	}
	distance := 250

	data, err := json.Marshal(BuildNotification(evt, &distance, now))
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "new_hazard", got["type"])
	assert.Equal(t, "hazard_created", got["event_type"])
	assert.Equal(t, "high", got["urgency"])
	assert.Equal(t, float64(250), got["distanceMeters"])
	assert.Equal(t, "2024-03-01T09:30:01.000Z", got["timestamp"])
	assert.NotEmpty(t, got["message"])

	h := got["hazard"].(map[string]interface{})
	assert.Equal(t, float64(12), h["id"])
	assert.Equal(t, "flooding", h["hazardType"])
	assert.Equal(t, "critical", h["severity"])
	assert.Equal(t, "Underpass flooded", h["description"])
	assert.Equal(t, float64(1), h["priorityLevel"])
	assert.Equal(t, true, h["affectsTraffic"])
	assert.Equal(t, true, h["weatherRelated"])
	assert.Equal(t, "active", h["status"])
	assert.Equal(t, "2024-03-01T09:30:00.000Z", h["occurredAt"])
	loc := h["location"].(map[string]interface{})
	assert.Equal(t, 51.5, loc["latitude"])
	assert.Equal(t, -0.12, loc["longitude"])
}

func TestBuildNotification_DistanceOmittedWithoutLocation(t *testing.T) {
	data, err := json.Marshal(BuildNotification(hazard.Event{Kind: hazard.KindCreated}, nil, time.Now()))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "distanceMeters")

	zero := 0
	data, err = json.Marshal(BuildNotification(hazard.Event{Kind: hazard.KindCreated}, &zero, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"distanceMeters":0`)
}

func TestBuildNotification_UpdateMentionsStatusChange(t *testing.T) {
	evt := hazard.Event{
		Kind:           hazard.KindUpdated,
		HazardType:     "pothole",
		Severity:       hazard.SeverityHigh,
		Status:         "resolved",
		PreviousStatus: "active",
	}
	n := BuildNotification(evt, nil, time.Now())
	assert.Equal(t, TypeHazardUpdated, n.Type)
	assert.Equal(t, UrgencyMedium, n.Urgency)
	assert.Contains(t, n.Message, "from active to resolved")
}

func TestConnectedNotification(t *testing.T) {
	data, err := json.Marshal(ConnectedNotification(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "connected", got["type"])
	assert.Equal(t, "2024-01-02T03:04:05.000Z", got["timestamp"])
	assert.NotEmpty(t, got["message"])
	assert.Len(t, got, 3)
}
